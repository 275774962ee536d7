package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

const (
	// wsWriteTimeout bounds one event write to a slow client.
	wsWriteTimeout = 5 * time.Second

	// maxAudioMessageBytes caps inbound audio frames on the session socket.
	// 1 MiB is about 32 seconds of 16 kHz mono PCM16.
	maxAudioMessageBytes = 1 << 20
)

// HandleEventsWebSocket upgrades to a WebSocket and streams every pipeline
// event from every session as JSON text frames. The feed is one-way; data
// frames from the client close the connection.
func (h *Handler) HandleEventsWebSocket(w http.ResponseWriter, req *http.Request) {
	events, cancel, err := h.sessions.Subscribe("")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer cancel()

	conn, err := websocket.Accept(w, req, nil)
	if err != nil {
		h.logger.Warn("event feed accept failed", "error", err)
		return
	}

	// CloseRead answers pings and cancels the context when the client goes
	// away.
	ctx := conn.CloseRead(req.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "feed closed")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "server stopping")
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// HandleSessionWebSocket upgrades to a WebSocket scoped to one session.
// Binary frames from the client carry source-language PCM16 and are fed to
// the pipeline; pipeline events flow back as JSON text frames.
func (h *Handler) HandleSessionWebSocket(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	events, cancel, err := h.sessions.Subscribe(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	defer cancel()

	conn, err := websocket.Accept(w, req, nil)
	if err != nil {
		h.logger.Warn("session socket accept failed", "session_id", id, "error", err)
		return
	}
	conn.SetReadLimit(maxAudioMessageBytes)

	ctx, stop := context.WithCancel(req.Context())
	defer stop()

	// Inbound audio pump. Text frames are not part of the protocol and are
	// ignored.
	go func() {
		defer stop()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ != websocket.MessageBinary {
				continue
			}
			if err := h.sessions.Feed(id, data); err != nil {
				h.logger.Warn("session feed rejected", "session_id", id, "error", err)
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "done")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "session ended")
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// writeEvent marshals ev and writes it as one text frame, bounded by
// wsWriteTimeout.
func writeEvent(ctx context.Context, conn *websocket.Conn, ev SessionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
