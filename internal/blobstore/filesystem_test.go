package blobstore

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *FilesystemStore {
	t.Helper()
	s, err := NewFilesystemStore(t.TempDir(), "http://localhost:8080", []byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestNewFilesystemStoreRequiresSecret(t *testing.T) {
	_, err := NewFilesystemStore(t.TempDir(), "http://localhost", nil)
	assert.Error(t, err)
}

func TestUploadAndOpen(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	info, err := s.Upload(ctx, "recordings/org-1/sess-1.mp4",
		strings.NewReader("fake media bytes"), "video/mp4",
		map[string]string{"meeting_id": "meeting-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(16), info.Size)
	assert.Equal(t, "video/mp4", info.ContentType)

	r, got, err := s.Open(ctx, "recordings/org-1/sess-1.mp4")
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "fake media bytes", string(data))
	assert.Equal(t, "meeting-1", got.Metadata["meeting_id"])
}

func TestUploadOverwrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.Upload(ctx, "k.bin", strings.NewReader("first"), "", nil)
	require.NoError(t, err)
	info, err := s.Upload(ctx, "k.bin", strings.NewReader("second!"), "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), info.Size)

	r, _, err := s.Open(ctx, "k.bin")
	require.NoError(t, err)
	defer r.Close()
	data, _ := io.ReadAll(r)
	assert.Equal(t, "second!", string(data))
}

func TestOpenMissing(t *testing.T) {
	s := testStore(t)
	_, _, err := s.Open(context.Background(), "nope.mp4")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.Upload(ctx, "k.bin", strings.NewReader("x"), "", nil)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "k.bin"))

	_, _, err = s.Open(ctx, "k.bin")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error.
	assert.NoError(t, s.Delete(ctx, "k.bin"))
}

func TestResolveRejectsTraversal(t *testing.T) {
	s := testStore(t)

	for _, key := range []string{"../escape", "a/../../escape", "/etc/passwd", ""} {
		_, err := s.resolve(key)
		assert.Error(t, err, key)
	}

	// Normal nested keys are fine.
	_, err := s.resolve("recordings/org-1/sess.mp4")
	assert.NoError(t, err)
}

func TestSignedURL(t *testing.T) {
	s := testStore(t)

	signed, expires, err := s.SignedURL("recordings/org-1/sess.mp4", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.Path, "/download/recordings/org-1/"))

	exp := u.Query().Get("exp")
	sig := u.Query().Get("sig")
	require.NotEmpty(t, exp)
	require.NotEmpty(t, sig)

	assert.NoError(t, s.VerifySignedURL("recordings/org-1/sess.mp4", exp, sig))

	// Tampered key fails verification.
	assert.Error(t, s.VerifySignedURL("recordings/org-2/sess.mp4", exp, sig))
	// Tampered expiry fails verification.
	assert.Error(t, s.VerifySignedURL("recordings/org-1/sess.mp4", "9999999999", sig))
}

func TestSignedURLExpiry(t *testing.T) {
	s := testStore(t)

	// Sign with an expiry already in the past.
	past := time.Now().Add(-time.Minute).Unix()
	sig := s.sign("k.bin", past)
	err := s.VerifySignedURL("k.bin", "", sig)
	assert.Error(t, err)

	err = s.VerifySignedURL("k.bin", "-1", s.sign("k.bin", -1))
	assert.ErrorContains(t, err, "expired")

	_, _, err = s.SignedURL("k.bin", -time.Hour)
	assert.Error(t, err)
}
