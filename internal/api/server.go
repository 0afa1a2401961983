// Package api is the thin HTTP surface over the queue scheduler.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"clinicq/internal/scheduler"
)

// QueueService is the slice of the scheduler the API consumes.
type QueueService interface {
	Intake(ctx context.Context, req scheduler.IntakeRequest) (*scheduler.IntakeResult, error)
	CheckIn(ctx context.Context, visitID, queueDate string) error
	CallNext(ctx context.Context, doctorID, queueDate string) (*scheduler.CallNextResult, error)
	Skip(ctx context.Context, doctorID, visitID, queueDate, reason string) error
	StartConsultation(ctx context.Context, doctorID, visitID, queueDate string) error
	EndConsultation(ctx context.Context, doctorID, visitID, queueDate string) (*scheduler.EndResult, error)
	Status(ctx context.Context, req scheduler.StatusRequest) (*scheduler.StatusView, error)
}

// Reporter produces the downloadable day-ledger workbook.
type Reporter interface {
	WriteExcel(ctx context.Context, w io.Writer, doctorID, queueDate string) error
}

// HTTPServer serves the queue API.
type HTTPServer struct {
	queue    QueueService
	reporter Reporter
	logger   *zerolog.Logger
}

// NewHTTPServer wires the handlers. Reporter may be nil; the report route
// then responds 404.
func NewHTTPServer(queue QueueService, reporter Reporter, logger *zerolog.Logger) *HTTPServer {
	return &HTTPServer{queue: queue, reporter: reporter, logger: logger}
}

// Routes returns the API mux.
func (s *HTTPServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/queue/intake", s.handleIntake)
	mux.HandleFunc("/api/queue/check-in", s.handleCheckIn)
	mux.HandleFunc("/api/queue/call-next", s.handleCallNext)
	mux.HandleFunc("/api/queue/skip", s.handleSkip)
	mux.HandleFunc("/api/queue/start", s.handleStart)
	mux.HandleFunc("/api/queue/end", s.handleEnd)
	mux.HandleFunc("/api/queue/status", s.handleStatus)
	mux.HandleFunc("/api/report", s.handleReport)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// writeSchedulerError maps scheduler errors: missing records to 404, other
// policy rejections to 409, everything else to 500.
func (s *HTTPServer) writeSchedulerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrQueueNotFound),
		errors.Is(err, scheduler.ErrEntryNotFound),
		errors.Is(err, scheduler.ErrVisitNotFound),
		errors.Is(err, scheduler.ErrDoctorNotFound),
		errors.Is(err, scheduler.ErrDepartmentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case scheduler.IsPolicyRejection(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("queue operation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
