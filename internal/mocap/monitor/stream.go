package monitor

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const streamWriteWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamMessage is one frame of the live stream.
type StreamMessage struct {
	Receiving bool               `json:"receiving"`
	Version   uint64             `json:"version"`
	Head      headResponse       `json:"head"`
	Weights   map[string]float64 `json:"weights"`
	SentAt    time.Time          `json:"sent_at"`
}

func newStreamMessage(src Source, version uint64) StreamMessage {
	snap := src.Snapshot()
	return StreamMessage{
		Receiving: src.IsReceiving(),
		Version:   version,
		Head:      newHeadResponse(snap),
		Weights:   snap.Weights,
		SentAt:    time.Now().UTC(),
	}
}

// handleStream polls the source every stream interval and pushes a
// snapshot whenever the store has changed. The first snapshot is sent
// immediately.
func (ws *WebServer) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	// Client messages are ignored; reading surfaces the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		_ = conn.Close()
		<-closed
	}()

	log := ws.log.With(zap.String("remote", r.RemoteAddr))
	log.Debug("stream client connected")

	ticker := time.NewTicker(ws.streamInterval)
	defer ticker.Stop()

	var last uint64
	first := true
	for {
		if v := ws.source.Version(); first || v != last {
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(newStreamMessage(ws.source, v)); err != nil {
				log.Debug("stream write failed", zap.Error(err))
				return
			}
			last, first = v, false
		}

		select {
		case <-closed:
			log.Debug("stream client disconnected")
			return
		case <-ws.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(streamWriteWait))
			return
		case <-ticker.C:
		}
	}
}
