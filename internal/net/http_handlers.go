package net

import (
	"encoding/json"
	nethttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/ws"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/room"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/logging"
)

type HTTPHandlerConfig struct {
	Room     *room.Room
	Socket   *ws.Handler
	Registry *prometheus.Registry
	Counters *telemetry.Counters
	// Events returns recent log events for /diagnostics.
	Events func() []logging.Event
	Logger telemetry.Logger
}

func NewHTTPHandler(cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string            `json:"status"`
			ServerTime int64             `json:"serverTime"`
			Room       any               `json:"room,omitempty"`
			Counters   map[string]uint64 `json:"counters,omitempty"`
			Events     []logging.Event   `json:"events,omitempty"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
		}
		if cfg.Room != nil {
			payload.Room = cfg.Room.Info()
		}
		if cfg.Counters != nil {
			payload.Counters = cfg.Counters.Snapshot()
		}
		if cfg.Events != nil {
			payload.Events = cfg.Events()
		}
		writeJSON(w, logger, payload)
	})

	mux.HandleFunc("/room", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		if cfg.Room == nil {
			httpError(w, "no room", nethttp.StatusServiceUnavailable)
			return
		}
		writeJSON(w, logger, cfg.Room.Info())
	})

	mux.HandleFunc("/protocol/schema", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, logger, proto.Schema())
	})

	if cfg.Registry != nil {
		mux.Handle("/metrics", telemetry.Handler(cfg.Registry))
	}
	if cfg.Socket != nil {
		mux.HandleFunc("/ws", cfg.Socket.Handle)
	}

	return mux
}

func writeJSON(w nethttp.ResponseWriter, logger telemetry.Logger, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("failed to encode response: %v", err)
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
