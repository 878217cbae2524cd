package blobstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/meetrec/internal/urlutil"
)

// metadataSuffix is appended to the object path for the sidecar info file.
const metadataSuffix = ".meta.json"

// FilesystemStore is a Store backed by a local directory tree. Object keys
// map to paths under the root; all resolution is contained to the root to
// prevent traversal. Download URLs are HMAC-signed with an expiry so they
// can be handed to clients without exposing the filesystem.
type FilesystemStore struct {
	root          string
	publicBaseURL string
	secret        []byte
}

var _ Store = (*FilesystemStore)(nil)

// NewFilesystemStore creates a store rooted at dir. The directory is created
// if it does not exist. publicBaseURL is the externally reachable base for
// signed URLs; secret signs them.
func NewFilesystemStore(dir, publicBaseURL string, secret []byte) (*FilesystemStore, error) {
	absRoot, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o750); err != nil {
		return nil, fmt.Errorf("creating blob root: %w", err)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}

	return &FilesystemStore{
		root:          absRoot,
		publicBaseURL: urlutil.NormalizeBaseURL(publicBaseURL),
		secret:        secret,
	}, nil
}

// Root returns the absolute path of the store's root directory.
func (s *FilesystemStore) Root() string {
	return s.root
}

// resolve maps an object key to an absolute path contained within the root.
func (s *FilesystemStore) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty blob key")
	}
	if filepath.IsAbs(key) {
		return "", fmt.Errorf("invalid blob key %q: absolute paths not allowed", key)
	}

	clean := filepath.Clean(filepath.FromSlash(key))
	full := filepath.Join(s.root, clean)

	abs, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	if !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob key %q: escapes store root", key)
	}
	return abs, nil
}

// Upload stores the contents of r under key. The object is written to a
// temporary file first and renamed into place so readers never observe a
// partial object.
func (s *FilesystemStore) Upload(ctx context.Context, key string, r io.Reader, contentType string, metadata map[string]string) (*ObjectInfo, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("writing blob: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return nil, fmt.Errorf("finalizing blob: %w", err)
	}

	info := &ObjectInfo{
		Key:         key,
		Size:        size,
		ContentType: contentType,
		Metadata:    metadata,
		UploadedAt:  time.Now().UTC(),
	}
	if err := s.writeInfo(path, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (s *FilesystemStore) writeInfo(objectPath string, info *ObjectInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encoding blob metadata: %w", err)
	}
	if err := os.WriteFile(objectPath+metadataSuffix, data, 0o640); err != nil {
		return fmt.Errorf("writing blob metadata: %w", err)
	}
	return nil
}

func (s *FilesystemStore) readInfo(objectPath, key string) (*ObjectInfo, error) {
	data, err := os.ReadFile(objectPath + metadataSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			// Object exists without a sidecar; synthesize minimal info.
			st, serr := os.Stat(objectPath)
			if serr != nil {
				return nil, ErrNotFound
			}
			return &ObjectInfo{Key: key, Size: st.Size(), UploadedAt: st.ModTime().UTC()}, nil
		}
		return nil, fmt.Errorf("reading blob metadata: %w", err)
	}
	var info ObjectInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decoding blob metadata: %w", err)
	}
	return &info, nil
}

// SignedURL returns a download URL for key of the form
// {base}/download/{key}?exp={unix}&sig={hmac}. The signature covers the key
// and expiry so neither can be tampered with.
func (s *FilesystemStore) SignedURL(key string, ttl time.Duration) (string, time.Time, error) {
	if _, err := s.resolve(key); err != nil {
		return "", time.Time{}, err
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("signed URL ttl must be positive")
	}

	expires := time.Now().Add(ttl).UTC().Truncate(time.Second)
	sig := s.sign(key, expires.Unix())

	u := fmt.Sprintf("%s?exp=%d&sig=%s",
		urlutil.JoinPath(s.publicBaseURL, "/download/"+pathEscapeKey(key)),
		expires.Unix(),
		sig,
	)
	return u, expires, nil
}

// VerifySignedURL checks the expiry and signature for a download request.
// Returns an error when the signature is invalid or the URL has expired.
func (s *FilesystemStore) VerifySignedURL(key, expStr, sig string) error {
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expiry: %w", err)
	}
	if !hmac.Equal([]byte(s.sign(key, exp)), []byte(sig)) {
		return fmt.Errorf("invalid signature")
	}
	if time.Now().Unix() > exp {
		return fmt.Errorf("url expired")
	}
	return nil
}

func (s *FilesystemStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%d", key, expires)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// pathEscapeKey escapes each key segment while preserving slashes.
func pathEscapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// Open returns a reader over the stored object.
func (s *FilesystemStore) Open(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("opening blob: %w", err)
	}

	info, err := s.readInfo(path, key)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

// Delete removes the object under key. Deleting a missing key is not an error.
func (s *FilesystemStore) Delete(ctx context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting blob: %w", err)
	}
	if err := os.Remove(path + metadataSuffix); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting blob metadata: %w", err)
	}
	return nil
}
