package stockledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// MovementCompletedEvent is emitted after a movement is approved and its
// balance effect has committed. Downstream modules (costing, replenishment)
// subscribe to it; the ledger itself never consumes it.
type MovementCompletedEvent struct {
	TenantID   int64           `json:"tenant_id"`
	MovementID int64           `json:"movement_id"`
	Number     string          `json:"number"`
	Type       MovementType    `json:"type"`
	ItemID     int64           `json:"item_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// LogPublisher is the default Publisher. It records completions to the
// structured log until a real consumer is wired in.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs LogPublisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// MovementCompleted logs the completion event.
func (p *LogPublisher) MovementCompleted(ctx context.Context, event MovementCompletedEvent) {
	p.logger.InfoContext(ctx, "stock movement completed",
		slog.Int64("tenant_id", event.TenantID),
		slog.Int64("movement_id", event.MovementID),
		slog.String("number", event.Number),
		slog.String("type", string(event.Type)),
		slog.String("quantity", event.Quantity.String()))
}
