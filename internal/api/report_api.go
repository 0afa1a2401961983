package api

import (
	"bytes"
	"fmt"
	"net/http"

	"clinicq/internal/metrics"
)

// handleReport streams the day ledger as an .xlsx workbook.
// GET /api/report?doctor_id=&queue_date=YYYY-MM-DD
func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("report")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.reporter == nil {
		writeError(w, http.StatusNotFound, "reporting is not enabled")
		return
	}

	doctorID := r.URL.Query().Get("doctor_id")
	queueDate := r.URL.Query().Get("queue_date")
	if err := validateID("doctor_id", doctorID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateDate(queueDate); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := s.reporter.WriteExcel(r.Context(), &buf, doctorID, queueDate); err != nil {
		s.logger.Error().Err(err).Msg("ledger export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=queue-%s.xlsx", queueDate))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
