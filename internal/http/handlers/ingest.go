package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/jmylchreest/meetrec/internal/recorder"
)

// IngestConfig holds websocket ingest settings.
type IngestConfig struct {
	// ReadTimeout is the maximum silence before the connection is dropped.
	ReadTimeout time.Duration
	// MaxChunkBytes caps the size of a single media frame.
	MaxChunkBytes int64
	// EnableCompression negotiates permessage-deflate with the client.
	EnableCompression bool
}

// IngestHandler accepts live media over a websocket and routes it to the
// session manager. Frames are fire-and-forget: a frame for a meeting with
// no active session is dropped, never an error to the sender.
type IngestHandler struct {
	manager  *recorder.Manager
	upgrader websocket.Upgrader
	timeout  time.Duration
	maxChunk int64
	logger   *slog.Logger
}

// NewIngestHandler creates a websocket ingest handler.
func NewIngestHandler(manager *recorder.Manager, cfg IngestConfig, logger *slog.Logger) *IngestHandler {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	return &IngestHandler{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    32 * 1024,
			WriteBufferSize:   4 * 1024,
			EnableCompression: cfg.EnableCompression,
			CheckOrigin:       func(*http.Request) bool { return true },
		},
		timeout:  cfg.ReadTimeout,
		maxChunk: cfg.MaxChunkBytes,
		logger:   logger.With(slog.String("component", "ingest")),
	}
}

// Register mounts the ingest routes on the router. They are registered
// directly on chi rather than through the API layer; websocket upgrades do
// not fit the request/response schema model. The bare path is mounted too
// so a missing meeting id can be rejected with a close code instead of a
// 404 the client never surfaces.
func (h *IngestHandler) Register(router chi.Router) {
	router.Get("/ingest", h.ServeIngest)
	router.Get("/ingest/", h.ServeIngest)
	router.Get("/ingest/{meetingID}", h.ServeIngest)
}

// controlMessage is a JSON text frame carrying meeting metadata alongside
// the binary media stream.
type controlMessage struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participant_id,omitempty"`
	Name          string `json:"name,omitempty"`
	Kind          string `json:"kind,omitempty"`
	Codec         string `json:"codec,omitempty"`
	Label         string `json:"label,omitempty"`
}

// ServeIngest upgrades the connection and pumps media frames into the
// session manager until the client disconnects.
func (h *IngestHandler) ServeIngest(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.Close()

	if meetingID == "" {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "meeting id is required")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return
	}

	h.logger.Info("ingest connection opened",
		slog.String("meeting_id", meetingID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	conn.SetReadLimit(h.readLimit())
	_ = conn.SetReadDeadline(time.Now().Add(h.timeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.timeout))
	})

	frames := 0
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("ingest connection failed",
					slog.String("meeting_id", meetingID),
					slog.String("error", err.Error()),
				)
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.timeout))

		switch messageType {
		case websocket.BinaryMessage:
			h.manager.RouteChunk(meetingID, data)
			frames++
		case websocket.TextMessage:
			h.handleControl(meetingID, data)
		}
	}

	h.logger.Info("ingest connection closed",
		slog.String("meeting_id", meetingID),
		slog.Int("frames", frames),
	)
}

func (h *IngestHandler) handleControl(meetingID string, data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn("ignoring malformed control message",
			slog.String("meeting_id", meetingID),
			slog.String("error", err.Error()),
		)
		return
	}

	switch msg.Type {
	case "participant_joined":
		h.manager.AddParticipant(meetingID, msg.ParticipantID, msg.Name)
	case "participant_left":
		h.manager.MarkParticipantLeft(meetingID, msg.ParticipantID)
	case "stream":
		h.manager.AddStream(meetingID, recorder.StreamDescriptor{
			Kind:  msg.Kind,
			Codec: msg.Codec,
			Label: msg.Label,
		})
	default:
		h.logger.Debug("ignoring unknown control message",
			slog.String("meeting_id", meetingID),
			slog.String("type", msg.Type),
		)
	}
}

func (h *IngestHandler) readLimit() int64 {
	// Leave headroom above the chunk cap so the manager, not the socket,
	// enforces the limit and can log the drop.
	limit := int64(4 << 20)
	if h.maxChunk*4 > limit {
		limit = h.maxChunk * 4
	}
	return limit
}
