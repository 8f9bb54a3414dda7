package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LotExpiryScanner marks active lots whose expiry date has passed. Expired
// lots keep their remaining quantity; the flag only stops them being issued.
type LotExpiryScanner struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLotExpiryScanner constructs LotExpiryScanner.
func NewLotExpiryScanner(pool *pgxpool.Pool, logger *slog.Logger) *LotExpiryScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &LotExpiryScanner{pool: pool, logger: logger}
}

// Handle processes TaskLotExpiryScan tasks.
func (s *LotExpiryScanner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tag, err := s.pool.Exec(ctx, `UPDATE lot_batches SET status='EXPIRED', updated_at=NOW()
WHERE status='ACTIVE' AND expiry_date IS NOT NULL AND expiry_date < NOW()`)
	if err != nil {
		s.logger.Error("lot expiry scan failed", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("lot expiry scan completed",
		slog.Int64("expired", tag.RowsAffected()),
		slog.Time("scheduled_for", payload.ScheduledFor))
	return nil
}
