// Package notify delivers the called-patient snapshot to downstream sinks
// after a call-next transaction commits. Delivery is best-effort: a sink
// failure is logged and counted, never retried, and never fed back into
// queue state.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"clinicq/internal/metrics"
	"clinicq/internal/scheduler"
)

// Sink delivers one snapshot to a single downstream consumer.
type Sink interface {
	Name() string
	PatientCalled(ctx context.Context, p scheduler.CalledPatient) error
}

// Hub fans the snapshot out to all configured sinks.
type Hub struct {
	sinks  []Sink
	logger *zerolog.Logger
}

// NewHub constructs a hub over the given sinks.
func NewHub(logger *zerolog.Logger, sinks ...Sink) *Hub {
	return &Hub{sinks: sinks, logger: logger}
}

// PatientCalled implements scheduler.Notifier. Every sink is attempted;
// the first error is returned for the caller's log line.
func (h *Hub) PatientCalled(ctx context.Context, p scheduler.CalledPatient) error {
	var first error
	for _, sink := range h.sinks {
		if err := sink.PatientCalled(ctx, p); err != nil {
			metrics.IncNotifyFailure(sink.Name())
			h.logger.Error().Err(err).
				Str("sink", sink.Name()).
				Str("visit_id", p.VisitID).
				Msg("notification sink failed")
			if first == nil {
				first = err
			}
		}
	}
	return first
}
