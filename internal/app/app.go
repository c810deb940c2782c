// Package app wires configuration, logging and metrics around the relay
// server and the headless peer.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/config"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/logging"
	loggingSinks "github.com/AbriCroco/Peak-Collections-of-Chaos/logging/sinks"
)

const closeTimeout = 5 * time.Second

// observability bundles the ambient services both binaries share.
type observability struct {
	zap      *zap.Logger
	logger   telemetry.Logger
	router   *logging.Router
	memory   *loggingSinks.MemorySink
	registry *prometheus.Registry
	counters *telemetry.Counters
	metrics  telemetry.Metrics
}

func newObservability(cfg config.Config, withRegistry bool) (*observability, error) {
	zl, err := telemetry.NewZapLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	logger := telemetry.WrapZap(zl)

	logCfg := cfg.Log.Logging()
	o := &observability{zap: zl, logger: logger, counters: telemetry.NewCounters()}

	var named []logging.NamedSink
	if logCfg.HasSink(logging.SinkConsole) {
		named = append(named, logging.NamedSink{Name: logging.SinkConsole, Sink: loggingSinks.NewConsoleSink(zl)})
	}
	if logCfg.HasSink(logging.SinkJSON) {
		named = append(named, logging.NamedSink{Name: logging.SinkJSON, Sink: loggingSinks.NewRotatingJSON(logCfg.JSON)})
	}
	if logCfg.HasSink(logging.SinkMemory) || withRegistry {
		o.memory = loggingSinks.NewMemorySink(cfg.Server.DiagnosticsSize)
		named = append(named, logging.NamedSink{Name: logging.SinkMemory, Sink: o.memory})
	}
	o.router = logging.NewRouter(logging.SystemClock{}, logCfg, logger, named)

	o.metrics = o.counters
	if withRegistry {
		o.registry = prometheus.NewRegistry()
		o.metrics = telemetry.Fanout(telemetry.NewRecorder(o.registry), o.counters)
	}
	return o, nil
}

func (o *observability) events() []logging.Event {
	if o.memory == nil {
		return nil
	}
	return o.memory.Events()
}

func (o *observability) close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := o.router.Close(ctx); err != nil {
		o.logger.Printf("failed to close logging router: %v", err)
	}
	_ = o.zap.Sync()
}
