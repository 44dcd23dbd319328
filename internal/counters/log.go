package counters

import (
	"context"
	"log/slog"
	"time"
)

// LogSink is the fallback CounterSink used when Redis is not configured:
// counts are logged and otherwise discarded.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "CounterLogSink")}
}

func (s *LogSink) AddDelivered(ctx context.Context, realm int64, day time.Time, devices int) error {
	s.logger.Info("Delivery counter increment (no redis configured).",
		"realm_id", realm,
		"day", day.UTC().Format(dayFormat),
		"devices", devices,
	)
	return nil
}
