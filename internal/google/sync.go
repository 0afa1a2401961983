package google

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"clinicq/internal/models"
)

// LedgerLister enumerates the queues open for a date.
type LedgerLister interface {
	QueuesForDate(ctx context.Context, queueDate string) ([]models.DoctorQueue, error)
}

// ValuesSource renders one ledger as sheet values.
type ValuesSource interface {
	Values(ctx context.Context, doctorID, queueDate string) ([][]interface{}, error)
}

// ledgerWriter is the slice of SheetsService the sync loop needs.
type ledgerWriter interface {
	SyncLedger(ctx context.Context, tab string, values [][]interface{}) error
}

// RunDailySync mirrors every queue of the current day on a fixed interval
// until ctx is cancelled. Sync failures are logged and retried on the next
// tick; they never affect queue state.
func (s *SheetsService) RunDailySync(ctx context.Context, lister LedgerLister, source ValuesSource, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			today := time.Now().Format(models.DateFormat)
			syncDay(ctx, s, lister, source, s.logger, today)
		}
	}
}

func syncDay(ctx context.Context, writer ledgerWriter, lister LedgerLister, source ValuesSource, logger *zerolog.Logger, date string) {
	queues, err := lister.QueuesForDate(ctx, date)
	if err != nil {
		logger.Error().Err(err).Msg("list queues for sheets sync failed")
		return
	}
	for _, q := range queues {
		values, err := source.Values(ctx, q.DoctorID, q.QueueDate)
		if err != nil {
			logger.Error().Err(err).Str("doctor_id", q.DoctorID).Msg("render ledger failed")
			continue
		}
		tab := tabName(q)
		if err := writer.SyncLedger(ctx, tab, values); err != nil {
			logger.Error().Err(err).Str("tab", tab).Msg("sheets sync failed")
		}
	}
}

func tabName(q models.DoctorQueue) string {
	id := q.DoctorID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s %s", q.QueueDate, id)
}
