package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/meetrec/internal/recorder"
)

func newIngestServer(t *testing.T, manager *recorder.Manager) *httptest.Server {
	t.Helper()
	router := chi.NewRouter()
	NewIngestHandler(manager, IngestConfig{ReadTimeout: 5 * time.Second}, testLogger()).Register(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return strings.Replace(srv.URL, "http://", "ws://", 1) + path
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForChunks(t *testing.T, manager *recorder.Manager, meetingID string, want uint64) recorder.Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		status := manager.Status(meetingID)
		if status.ChunksFed >= want {
			return status
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d chunks, got %d", want, status.ChunksFed)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestIngestMissingMeetingID(t *testing.T) {
	manager := newTestManager(t)
	srv := newIngestServer(t, manager)

	conn := dialWS(t, wsURL(srv, "/ingest"))

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestIngestRoutesBinaryFrames(t *testing.T) {
	manager := newTestManager(t)
	srv := newIngestServer(t, manager)

	_, err := manager.Start(context.Background(), recorder.Options{
		MeetingID:      "meet-1",
		OrganizationID: "org-1",
	})
	require.NoError(t, err)

	conn := dialWS(t, wsURL(srv, "/ingest/meet-1"))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("frame-1")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("frame-2")))

	status := waitForChunks(t, manager, "meet-1", 2)
	assert.Equal(t, uint64(len("frame-1")+len("frame-2")), status.BytesFed)
}

func TestIngestUnknownMeetingDropsFrames(t *testing.T) {
	manager := newTestManager(t)
	srv := newIngestServer(t, manager)

	// No session exists; frames are dropped and the socket stays open.
	conn := dialWS(t, wsURL(srv, "/ingest/ghost"))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("frame")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("frame")))

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	require.NoError(t, conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
}

func TestIngestControlMessages(t *testing.T) {
	manager := newTestManager(t)
	srv := newIngestServer(t, manager)

	_, err := manager.Start(context.Background(), recorder.Options{
		MeetingID:      "meet-1",
		OrganizationID: "org-1",
	})
	require.NoError(t, err)

	conn := dialWS(t, wsURL(srv, "/ingest/meet-1"))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"participant_joined","participant_id":"u1","name":"Alice"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"stream","kind":"audio","codec":"opus"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))

	deadline := time.Now().Add(5 * time.Second)
	for {
		status := manager.Status("meet-1")
		if len(status.Participants) == 1 && len(status.Streams) == 1 {
			assert.Equal(t, "u1", status.Participants[0].ID)
			assert.Equal(t, "audio", status.Streams[0].Kind)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("control messages were not applied")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
