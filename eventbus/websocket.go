package eventbus

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// WebSocketSink exposes the bus to external listeners (UI, webhook
// bridges) as a stream of JSON event frames over a websocket endpoint.
type WebSocketSink struct {
	bus    *Bus
	logger *zap.Logger
}

// NewWebSocketSink creates the websocket fan-out handler.
func NewWebSocketSink(bus *Bus, logger *zap.Logger) *WebSocketSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketSink{
		bus:    bus,
		logger: logger.With(zap.String("component", "ws_sink")),
	}
}

// ServeHTTP upgrades the request and streams every bus event to the client
// until the client disconnects or the request context ends. Writes are
// sequential on this connection; websocket connections do not support
// concurrent writes.
func (s *WebSocketSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	events, cancel := s.bus.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			frame, err := json.Marshal(event)
			if err != nil {
				s.logger.Error("marshal event frame", zap.Error(err))
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
				s.logger.Debug("client write failed, closing", zap.Error(err))
				return
			}
		}
	}
}
