package ws

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sun_harvester/internal/simulator"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// DataFunc describes the loaded simulation for the data:loaded message.
type DataFunc func() DataLoadedPayload

// Handler manages WebSocket connections and routes messages to the engine.
type Handler struct {
	hub    *Hub
	engine *simulator.Engine
	bridge *Bridge
	data   DataFunc
	logger *zap.Logger
}

func NewHandler(hub *Hub, engine *simulator.Engine, bridge *Bridge, data DataFunc, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: hub, engine: engine, bridge: bridge, data: data, logger: logger.Named("ws")}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h.hub, conn)

	h.hub.Register(client)
	go client.writePump()

	h.sendDataLoaded(client)
	h.sendSimState(client)

	h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		h.handleMessage(msg)
	}
}

func (h *Handler) handleMessage(msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		h.logger.Debug("invalid message", zap.Error(err))
		return
	}

	switch env.Type {
	case TypeSimStart:
		h.engine.Start()

	case TypeSimPause:
		h.engine.Pause()

	case TypeSimSetSpeed:
		var p SetSpeedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.logger.Debug("invalid set_speed payload", zap.Error(err))
			return
		}
		h.engine.SetSpeed(p.Speed)

	default:
		h.logger.Debug("unknown message type", zap.String("type", env.Type))
	}
}

func (h *Handler) dataLoadedMessage() ([]byte, error) {
	var payload DataLoadedPayload
	if h.data != nil {
		payload = h.data()
	}
	if payload.Sensors == nil {
		payload.Sensors = []SensorInfo{}
	}
	return NewEnvelope(TypeDataLoaded, payload)
}

func (h *Handler) sendDataLoaded(c *Client) {
	msg, err := h.dataLoadedMessage()
	if err != nil {
		h.logger.Error("creating data:loaded message", zap.Error(err))
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

func (h *Handler) sendSimState(c *Client) {
	msg, err := NewEnvelope(TypeSimState, SimStateFromEngine(h.engine.State(), h.bridge.start))
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
