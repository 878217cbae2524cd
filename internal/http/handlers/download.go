package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/meetrec/internal/blobstore"
)

// DownloadHandler serves recording artifacts through signed URLs. The
// signature and expiry are verified before any bytes leave the store.
type DownloadHandler struct {
	store  *blobstore.FilesystemStore
	logger *slog.Logger
}

// NewDownloadHandler creates a download handler backed by the filesystem
// store that issued the signed URLs.
func NewDownloadHandler(store *blobstore.FilesystemStore, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		store:  store,
		logger: logger.With(slog.String("component", "download")),
	}
}

// Register mounts the download route on the router. Registered directly on
// chi so the response can stream the artifact body.
func (h *DownloadHandler) Register(router chi.Router) {
	router.Get("/download/*", h.ServeDownload)
}

// ServeDownload validates the signed URL and streams the artifact.
func (h *DownloadHandler) ServeDownload(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	expires := r.URL.Query().Get("exp")
	signature := r.URL.Query().Get("sig")

	if err := h.store.VerifySignedURL(key, expires, signature); err != nil {
		h.logger.Warn("rejecting download",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		http.Error(w, "invalid or expired download link", http.StatusForbidden)
		return
	}

	rc, info, err := h.store.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			http.Error(w, "recording not found", http.StatusNotFound)
			return
		}
		h.logger.Error("opening recording artifact",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("streaming recording artifact",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
