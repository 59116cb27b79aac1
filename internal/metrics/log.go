package metrics

import (
	"context"
	"log"
	"time"

	"github.com/i474232898/air-quality-features/internal/features"
)

// LogSink writes every data point to the standard logger.
type LogSink struct{}

func (LogSink) Emit(_ context.Context, m features.Metric) error {
	if m.Name == "" {
		return errEmptyName
	}
	log.Printf("metrics: name=%s value=%g unit=%s ts=%s", m.Name, m.Value, m.Unit, m.Timestamp.UTC().Format(time.RFC3339))
	return nil
}
