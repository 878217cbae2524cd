package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/meetrec/internal/blobstore"
)

func newDownloadServer(t *testing.T, store *blobstore.FilesystemStore) *httptest.Server {
	t.Helper()
	router := chi.NewRouter()
	NewDownloadHandler(store, testLogger()).Register(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadSignedURL(t *testing.T) {
	store := newTestStore(t)
	srv := newDownloadServer(t, store)

	key := "recordings/org-1/sess-1.mp4"
	_, err := store.Upload(context.Background(), key, strings.NewReader("artifact bytes"), "video/mp4", nil)
	require.NoError(t, err)

	signed, _, err := store.SignedURL(key, time.Hour)
	require.NoError(t, err)

	// Rebase the signed path onto the test server.
	u, err := url.Parse(signed)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + u.Path + "?" + u.RawQuery)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "artifact bytes", string(body))
}

func TestDownloadRejectsTamperedSignature(t *testing.T) {
	store := newTestStore(t)
	srv := newDownloadServer(t, store)

	key := "recordings/org-1/sess-1.mp4"
	_, err := store.Upload(context.Background(), key, strings.NewReader("artifact"), "video/mp4", nil)
	require.NoError(t, err)

	signed, _, err := store.SignedURL(key, time.Hour)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)

	q := u.Query()
	q.Set("sig", "forged")
	resp, err := http.Get(srv.URL + u.Path + "?" + q.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDownloadExpiredURL(t *testing.T) {
	store := newTestStore(t)
	srv := newDownloadServer(t, store)

	key := "recordings/org-1/sess-1.mp4"
	_, err := store.Upload(context.Background(), key, strings.NewReader("artifact"), "video/mp4", nil)
	require.NoError(t, err)

	signed, expires, err := store.SignedURL(key, time.Second)
	require.NoError(t, err)

	// Expiry has one-second granularity; wait until the URL is stale.
	time.Sleep(time.Until(expires.Add(1100 * time.Millisecond)))

	u, err := url.Parse(signed)
	require.NoError(t, err)
	resp, err := http.Get(srv.URL + u.Path + "?" + u.RawQuery)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDownloadMissingObject(t *testing.T) {
	store := newTestStore(t)
	srv := newDownloadServer(t, store)

	signed, _, err := store.SignedURL("recordings/org-1/absent.mp4", time.Hour)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + u.Path + "?" + u.RawQuery)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
