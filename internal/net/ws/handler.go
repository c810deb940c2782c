package ws

import (
	"context"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/room"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
)

const (
	defaultWriteWait = 5 * time.Second
	defaultRate      = 30
	defaultBurst     = 60
)

type HandlerConfig struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	WriteWait time.Duration
	// FramesPerSecond and Burst bound what a single connection may send.
	FramesPerSecond float64
	Burst           int
}

// Handler binds websocket connections to room members.
type Handler struct {
	room     *room.Room
	logger   telemetry.Logger
	metrics  telemetry.Metrics
	upgrader websocket.Upgrader
	wait     time.Duration
	limit    rate.Limit
	burst    int
}

func NewHandler(r *room.Room, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	wait := cfg.WriteWait
	if wait <= 0 {
		wait = defaultWriteWait
	}
	limit := rate.Limit(cfg.FramesPerSecond)
	if cfg.FramesPerSecond <= 0 {
		limit = defaultRate
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		room:     r,
		logger:   logger,
		metrics:  cfg.Metrics,
		upgrader: upgrader,
		wait:     wait,
		limit:    limit,
		burst:    burst,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		nethttp.Error(w, "missing name", nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", name, err)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	member, err := h.room.Join(ctx, name)
	if err != nil {
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(h.wait))
		conn.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.pump(conn, member)
	}()

	h.read(ctx, conn, member)
	h.room.Leave(ctx, member.Actor)
	<-writerDone
}

// pump writes the member's outbox to the socket until the member leaves or a
// write fails.
func (h *Handler) pump(conn *websocket.Conn, member *room.Member) {
	defer conn.Close()
	for frame := range member.Outbox() {
		data, err := proto.Encode(frame)
		if err != nil {
			h.logger.Printf("failed to encode %s for %s: %v", frame.Type, member.Name, err)
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(h.wait))
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			h.logger.Printf("failed to send to %s: %v", member.Name, err)
			return
		}
	}
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(h.wait))
}

func (h *Handler) read(ctx context.Context, conn *websocket.Conn, member *room.Member) {
	limiter := rate.NewLimiter(h.limit, h.burst)
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := proto.Decode(payload)
		if err != nil {
			h.logger.Printf("discarding malformed frame from %s: %v", member.Name, err)
			h.add(telemetry.MetricFramesRejected)
			continue
		}
		if !admit(ctx, limiter, frame.Type) {
			h.add(telemetry.MetricFramesLimited)
			continue
		}
		if err := h.room.Route(member.Actor, frame); err != nil {
			h.logger.Printf("route %s from %s: %v", frame.Type, member.Name, err)
		}
	}
}

// admit applies the per-connection limit. Snapshot frames over the limit are
// dropped because the next one replaces them. Everything else waits for a
// token so countdowns and calls reach the room complete and in order.
func admit(ctx context.Context, limiter *rate.Limiter, t proto.FrameType) bool {
	switch t {
	case proto.FramePeerState, proto.FrameInventory:
		return limiter.Allow()
	default:
		return limiter.Wait(ctx) == nil
	}
}

func (h *Handler) add(key string) {
	if h.metrics != nil {
		h.metrics.Add(key, 1)
	}
}
