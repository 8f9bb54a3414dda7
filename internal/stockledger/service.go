package stockledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts the persistence layer of the ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMovement(ctx context.Context, tenantID, id int64) (StockMovement, error)
	ListMovements(ctx context.Context, tenantID int64, filter MovementFilter) ([]StockMovement, int, error)
	GetStatistics(ctx context.Context, tenantID int64, filter MovementFilter) ([]MovementStat, error)
}

// AuditPort records audit trail entries. Failures are logged, never
// propagated; the ledger mutation has already committed.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Publisher notifies downstream modules after a movement completes.
type Publisher interface {
	MovementCompleted(ctx context.Context, event MovementCompletedEvent)
}

// MovementMetrics counts processed movements by type and outcome.
type MovementMetrics interface {
	MovementProcessed(movementType, outcome string)
}

// Service implements the stock ledger use cases.
type Service struct {
	repo       RepositoryPort
	audit      AuditPort
	stats      *StatsCache
	publisher  Publisher
	metrics    MovementMetrics
	logger     *slog.Logger
	maxRetries int
	now        func() time.Time
}

// ServiceParams bundles Service dependencies. Audit, stats and publisher are
// optional.
type ServiceParams struct {
	Repo       RepositoryPort
	Audit      AuditPort
	Stats      *StatsCache
	Publisher  Publisher
	Metrics    MovementMetrics
	Logger     *slog.Logger
	MaxRetries int
}

// NewService constructs Service.
func NewService(params ServiceParams) *Service {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retries := params.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Service{
		repo:       params.Repo,
		audit:      params.Audit,
		stats:      params.Stats,
		publisher:  params.Publisher,
		metrics:    params.Metrics,
		logger:     logger,
		maxRetries: retries,
		now:        time.Now,
	}
}

// CreateMovement validates the input and persists a PENDING movement with a
// freshly numbered document. No balances are touched.
func (s *Service) CreateMovement(ctx context.Context, actor shared.Actor, input CreateMovementInput) (StockMovement, error) {
	if err := ValidateEndpoints(input.Type, input.WarehouseID, input.FromWarehouseID, input.ToWarehouseID); err != nil {
		return StockMovement{}, err
	}
	if err := ValidateQuantity(input.Type, input.Quantity); err != nil {
		return StockMovement{}, err
	}
	if input.ReferenceID != "" {
		if _, err := uuid.Parse(input.ReferenceID); err != nil {
			return StockMovement{}, fmt.Errorf("%w: reference id must be a UUID", ErrValidationFailed)
		}
	}

	now := s.now().UTC()
	movement := StockMovement{
		TenantID:        actor.TenantID,
		Type:            input.Type,
		Status:          StatusPending,
		WarehouseID:     input.WarehouseID,
		FromWarehouseID: input.FromWarehouseID,
		ToWarehouseID:   input.ToWarehouseID,
		ItemID:          input.ItemID,
		Quantity:        input.Quantity,
		UnitCost:        input.UnitCost,
		LotNumber:       input.LotNumber,
		BatchNumber:     input.BatchNumber,
		SerialNumber:    input.SerialNumber,
		ExpiryDate:      input.ExpiryDate,
		ReferenceType:   input.ReferenceType,
		ReferenceID:     input.ReferenceID,
		Notes:           input.Notes,
		CreatedBy:       actor.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if input.UnitCost != nil {
		total := input.UnitCost.Mul(input.Quantity)
		movement.TotalCost = &total
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextMovementSeq(ctx, actor.TenantID)
		if err != nil {
			return fmt.Errorf("next movement seq: %w", err)
		}
		movement.Number = fmt.Sprintf("SM-%d-%04d", now.Year(), seq)
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return fmt.Errorf("insert movement: %w", err)
		}
		movement.ID = id
		return nil
	})
	if err != nil {
		return StockMovement{}, err
	}

	s.recordAudit(ctx, actor, "stock.movement.created", movement.ID, map[string]any{
		"number": movement.Number,
		"type":   string(movement.Type),
	})
	s.countMovement(movement.Type, "created")
	s.stats.Bump(ctx, actor.TenantID)
	return movement, nil
}

// GetMovement returns a single movement within the actor's tenant.
func (s *Service) GetMovement(ctx context.Context, actor shared.Actor, id int64) (StockMovement, error) {
	return s.repo.GetMovement(ctx, actor.TenantID, id)
}

// ListMovements returns the filtered page plus the total count.
func (s *Service) ListMovements(ctx context.Context, actor shared.Actor, filter MovementFilter) ([]StockMovement, int, error) {
	return s.repo.ListMovements(ctx, actor.TenantID, filter)
}

// GetStatistics aggregates the ledger by (type, status), served through the
// cache when one is configured.
func (s *Service) GetStatistics(ctx context.Context, actor shared.Actor, filter MovementFilter) ([]MovementStat, error) {
	return s.stats.Fetch(ctx, actor.TenantID, filter, func(ctx context.Context) ([]MovementStat, error) {
		return s.repo.GetStatistics(ctx, actor.TenantID, filter)
	})
}

// UpdateMovement patches a PENDING movement. Total cost is recomputed when
// quantity or unit cost change.
func (s *Service) UpdateMovement(ctx context.Context, actor shared.Actor, id int64, input UpdateMovementInput) (StockMovement, error) {
	var updated StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movement, err := tx.GetMovementForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if movement.Status != StatusPending {
			return fmt.Errorf("%w: only PENDING movements can be updated", ErrInvalidStateTransition)
		}
		if input.Quantity != nil {
			if err := ValidateQuantity(movement.Type, *input.Quantity); err != nil {
				return err
			}
			movement.Quantity = *input.Quantity
		}
		if input.UnitCost != nil {
			movement.UnitCost = input.UnitCost
		}
		if input.LotNumber != nil {
			movement.LotNumber = *input.LotNumber
		}
		if input.BatchNumber != nil {
			movement.BatchNumber = *input.BatchNumber
		}
		if input.SerialNumber != nil {
			movement.SerialNumber = *input.SerialNumber
		}
		if input.ExpiryDate != nil {
			movement.ExpiryDate = input.ExpiryDate
		}
		if input.Notes != nil {
			movement.Notes = *input.Notes
		}
		if (input.Quantity != nil || input.UnitCost != nil) && movement.UnitCost != nil {
			total := movement.UnitCost.Mul(movement.Quantity)
			movement.TotalCost = &total
		}
		movement.UpdatedAt = s.now().UTC()
		if err := tx.UpdateMovement(ctx, movement); err != nil {
			return fmt.Errorf("update movement: %w", err)
		}
		updated = movement
		return nil
	})
	if err != nil {
		return StockMovement{}, err
	}

	s.recordAudit(ctx, actor, "stock.movement.updated", updated.ID, map[string]any{"number": updated.Number})
	s.stats.Bump(ctx, actor.TenantID)
	return updated, nil
}

// ApproveMovement transitions a PENDING movement to COMPLETED and applies its
// balance effect atomically. Serialization failures from concurrent approvals
// are retried a bounded number of times.
func (s *Service) ApproveMovement(ctx context.Context, actor shared.Actor, id int64) (StockMovement, error) {
	var (
		movement StockMovement
		err      error
	)
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		movement, err = s.approveOnce(ctx, actor, id)
		if err == nil || !retryable(err) {
			break
		}
		s.logger.Warn("approval serialization conflict, retrying",
			slog.Int64("movement_id", id),
			slog.Int("attempt", attempt))
	}
	if err != nil {
		return StockMovement{}, err
	}

	s.recordAudit(ctx, actor, "stock.movement.approved", movement.ID, map[string]any{
		"number": movement.Number,
		"type":   string(movement.Type),
	})
	s.countMovement(movement.Type, "approved")
	s.stats.Bump(ctx, actor.TenantID)
	if s.publisher != nil {
		s.publisher.MovementCompleted(ctx, MovementCompletedEvent{
			TenantID:   movement.TenantID,
			MovementID: movement.ID,
			Number:     movement.Number,
			Type:       movement.Type,
			ItemID:     movement.ItemID,
			Quantity:   movement.Quantity,
			OccurredAt: *movement.ApprovedAt,
		})
	}
	return movement, nil
}

func (s *Service) approveOnce(ctx context.Context, actor shared.Actor, id int64) (StockMovement, error) {
	var approved StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movement, err := tx.GetMovementForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if movement.Status != StatusPending {
			return fmt.Errorf("%w: movement is not in PENDING status", ErrInvalidStateTransition)
		}
		effect, err := effectFor(movement)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := s.applyEffect(ctx, tx, movement.TenantID, effect, now); err != nil {
			return err
		}
		if err := tx.MarkCompleted(ctx, movement.TenantID, movement.ID, actor.UserID, now); err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}
		movement.Status = StatusCompleted
		movement.ApprovedBy = &actor.UserID
		movement.ApprovedAt = &now
		movement.UpdatedAt = now
		approved = movement
		return nil
	})
	if err != nil {
		return StockMovement{}, err
	}
	return approved, nil
}

func (s *Service) applyEffect(ctx context.Context, tx TxRepository, tenantID int64, effect movementEffect, now time.Time) error {
	switch eff := effect.(type) {
	case inboundEffect:
		return s.applyInbound(ctx, tx, tenantID, eff, now)
	case outboundEffect:
		return s.applyOutbound(ctx, tx, tenantID, eff, now)
	case adjustmentEffect:
		return s.applyAdjustment(ctx, tx, tenantID, eff, now)
	case transferEffect:
		return s.applyTransfer(ctx, tx, tenantID, eff, now)
	default:
		return ErrInvalidMovementType
	}
}

// applyInbound adds stock and reprices the balance with a weighted moving
// average. Receipts without a unit cost keep the previous average.
func (s *Service) applyInbound(ctx context.Context, tx TxRepository, tenantID int64, eff inboundEffect, now time.Time) error {
	balance, err := tx.GetBalanceForUpdate(ctx, tenantID, eff.warehouseID, eff.itemID)
	if err != nil && !errors.Is(err, ErrStockRecordNotFound) {
		return err
	}

	newQty := balance.Quantity.Add(eff.qty)
	if eff.unitCost != nil {
		inTotal := eff.unitCost.Mul(eff.qty)
		oldTotal := balance.AvgCost.Mul(balance.Quantity)
		if newQty.IsPositive() {
			balance.AvgCost = oldTotal.Add(inTotal).Div(newQty)
		}
		balance.LastPurchasePrice = *eff.unitCost
	}
	balance.Quantity = newQty
	balance.AvailableQty = balance.Quantity.Sub(balance.ReservedQty)
	balance.UpdatedAt = now
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return fmt.Errorf("upsert balance: %w", err)
	}

	if eff.lot != nil && eff.lot.lotNumber != "" {
		lot := LotBatch{
			TenantID:      tenantID,
			LotNumber:     eff.lot.lotNumber,
			BatchNumber:   eff.lot.batchNumber,
			SerialNumber:  eff.lot.serialNumber,
			ItemID:        eff.itemID,
			Quantity:      eff.qty,
			RemainingQty:  eff.qty,
			Status:        LotActive,
			ExpiryDate:    eff.lot.expiryDate,
			ReferenceType: eff.lot.referenceType,
			ReferenceID:   eff.lot.referenceID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if _, err := tx.InsertLot(ctx, lot); err != nil {
			return fmt.Errorf("insert lot: %w", err)
		}
	}
	return nil
}

// applyOutbound issues stock, rejecting when the available quantity does not
// cover the issue. A referenced lot is drawn down; an unknown lot number is
// ignored rather than rejected.
func (s *Service) applyOutbound(ctx context.Context, tx TxRepository, tenantID int64, eff outboundEffect, now time.Time) error {
	balance, err := tx.GetBalanceForUpdate(ctx, tenantID, eff.warehouseID, eff.itemID)
	if err != nil {
		if errors.Is(err, ErrStockRecordNotFound) {
			return ErrInsufficientStock
		}
		return err
	}
	if balance.AvailableQty.LessThan(eff.qty) {
		return ErrInsufficientStock
	}
	balance.Quantity = balance.Quantity.Sub(eff.qty)
	balance.AvailableQty = balance.Quantity.Sub(balance.ReservedQty)
	balance.UpdatedAt = now
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return fmt.Errorf("upsert balance: %w", err)
	}

	if eff.lotNumber != "" {
		lot, err := tx.GetLotForUpdate(ctx, tenantID, eff.lotNumber)
		if err != nil {
			if errors.Is(err, ErrLotNotFound) {
				return nil
			}
			return err
		}
		lot.RemainingQty = lot.RemainingQty.Sub(eff.qty)
		if lot.RemainingQty.LessThanOrEqual(decimal.Zero) {
			lot.Status = LotDepleted
		}
		lot.UpdatedAt = now
		if err := tx.UpdateLot(ctx, lot); err != nil {
			return fmt.Errorf("update lot: %w", err)
		}
	}
	return nil
}

// applyAdjustment applies a signed delta to an existing balance. Unlike
// inbound receipts it never creates a balance row, and it has no lower
// bound: a large negative delta can drive the balance negative.
func (s *Service) applyAdjustment(ctx context.Context, tx TxRepository, tenantID int64, eff adjustmentEffect, now time.Time) error {
	balance, err := tx.GetBalanceForUpdate(ctx, tenantID, eff.warehouseID, eff.itemID)
	if err != nil {
		return err
	}
	balance.Quantity = balance.Quantity.Add(eff.delta)
	balance.AvailableQty = balance.Quantity.Sub(balance.ReservedQty)
	balance.UpdatedAt = now
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return fmt.Errorf("upsert balance: %w", err)
	}
	return nil
}

// applyTransfer moves stock between warehouses. The destination balance is
// created on first use and inherits the source's costing so valuation does
// not reset to zero.
func (s *Service) applyTransfer(ctx context.Context, tx TxRepository, tenantID int64, eff transferEffect, now time.Time) error {
	source, err := tx.GetBalanceForUpdate(ctx, tenantID, eff.fromWarehouseID, eff.itemID)
	if err != nil {
		if errors.Is(err, ErrStockRecordNotFound) {
			return ErrInsufficientStock
		}
		return err
	}
	if source.AvailableQty.LessThan(eff.qty) {
		return ErrInsufficientStock
	}
	source.Quantity = source.Quantity.Sub(eff.qty)
	source.AvailableQty = source.Quantity.Sub(source.ReservedQty)
	source.UpdatedAt = now
	if err := tx.UpsertBalance(ctx, source); err != nil {
		return fmt.Errorf("upsert source balance: %w", err)
	}

	dest, err := tx.GetBalanceForUpdate(ctx, tenantID, eff.toWarehouseID, eff.itemID)
	if err != nil {
		if !errors.Is(err, ErrStockRecordNotFound) {
			return err
		}
		dest.AvgCost = source.AvgCost
		dest.LastPurchasePrice = source.LastPurchasePrice
	}
	dest.Quantity = dest.Quantity.Add(eff.qty)
	dest.AvailableQty = dest.Quantity.Sub(dest.ReservedQty)
	dest.UpdatedAt = now
	if err := tx.UpsertBalance(ctx, dest); err != nil {
		return fmt.Errorf("upsert destination balance: %w", err)
	}
	return nil
}

// CancelMovement transitions a PENDING movement to CANCELLED. No balances
// are touched because a PENDING movement never applied any.
func (s *Service) CancelMovement(ctx context.Context, actor shared.Actor, id int64) (StockMovement, error) {
	var cancelled StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movement, err := tx.GetMovementForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if movement.Status != StatusPending {
			return fmt.Errorf("%w: can only cancel PENDING movements", ErrInvalidStateTransition)
		}
		now := s.now().UTC()
		if err := tx.MarkCancelled(ctx, movement.TenantID, movement.ID, now); err != nil {
			return fmt.Errorf("mark cancelled: %w", err)
		}
		movement.Status = StatusCancelled
		movement.UpdatedAt = now
		cancelled = movement
		return nil
	})
	if err != nil {
		return StockMovement{}, err
	}

	s.recordAudit(ctx, actor, "stock.movement.cancelled", cancelled.ID, map[string]any{"number": cancelled.Number})
	s.countMovement(cancelled.Type, "cancelled")
	s.stats.Bump(ctx, actor.TenantID)
	return cancelled, nil
}

func (s *Service) countMovement(t MovementType, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.MovementProcessed(string(t), outcome)
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, movementID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: actor.TenantID,
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "stock_movement",
		EntityID: strconv.FormatInt(movementID, 10),
		Meta:     meta,
		At:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("audit record failed",
			slog.String("action", action),
			slog.Int64("movement_id", movementID),
			slog.String("error", err.Error()))
	}
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
