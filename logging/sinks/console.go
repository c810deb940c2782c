package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/logging"
)

// ConsoleSink writes events through a zap logger, one line per event.
type ConsoleSink struct {
	logger *zap.Logger
}

func NewConsoleSink(logger *zap.Logger) *ConsoleSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleSink{logger: logger.Named("events")}
}

func (s *ConsoleSink) Write(event logging.Event) error {
	fields := make([]zap.Field, 0, 6)
	fields = append(fields,
		zap.Uint64("tick", event.Tick),
		zap.String("actor", formatEntity(event.Actor)),
	)
	if event.Category != "" {
		fields = append(fields, zap.String("category", event.Category))
	}
	if len(event.Targets) > 0 {
		targets := make([]string, 0, len(event.Targets))
		for _, target := range event.Targets {
			targets = append(targets, formatEntity(target))
		}
		fields = append(fields, zap.Strings("targets", targets))
	}
	if event.Payload != nil {
		fields = append(fields, zap.Any("payload", event.Payload))
	}
	if len(event.Extra) > 0 {
		fields = append(fields, zap.Any("extra", event.Extra))
	}

	msg := string(event.Type)
	switch event.Severity {
	case logging.SeverityDebug:
		s.logger.Debug(msg, fields...)
	case logging.SeverityWarn:
		s.logger.Warn(msg, fields...)
	case logging.SeverityError:
		s.logger.Error(msg, fields...)
	default:
		s.logger.Info(msg, fields...)
	}
	return nil
}

// Close flushes buffered output. Sync errors on terminals are ignored.
func (s *ConsoleSink) Close(context.Context) error {
	_ = s.logger.Sync()
	return nil
}

func formatEntity(ref logging.EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}
