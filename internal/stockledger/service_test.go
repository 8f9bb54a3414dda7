package stockledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type balanceKey struct {
	tenant    int64
	warehouse int64
	item      int64
}

type lotKey struct {
	tenant int64
	lot    string
}

// memoryRepo is an in-memory RepositoryPort. WithTx snapshots state before
// running the callback and restores it on error, mirroring a rollback.
type memoryRepo struct {
	mu         sync.Mutex
	seq        map[int64]int64
	nextID     int64
	nextLotID  int64
	movements  map[int64]StockMovement
	balances   map[balanceKey]WarehouseStock
	lots       map[lotKey]LotBatch
	txFailures int
	txErr      error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		seq:       map[int64]int64{},
		movements: map[int64]StockMovement{},
		balances:  map[balanceKey]WarehouseStock{},
		lots:      map[lotKey]LotBatch{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.txFailures > 0 {
		m.txFailures--
		return m.txErr
	}
	movements, balances, lots := m.snapshot()
	if err := fn(ctx, &memoryTx{repo: m}); err != nil {
		m.movements, m.balances, m.lots = movements, balances, lots
		return err
	}
	return nil
}

func (m *memoryRepo) snapshot() (map[int64]StockMovement, map[balanceKey]WarehouseStock, map[lotKey]LotBatch) {
	movements := make(map[int64]StockMovement, len(m.movements))
	for k, v := range m.movements {
		movements[k] = v
	}
	balances := make(map[balanceKey]WarehouseStock, len(m.balances))
	for k, v := range m.balances {
		balances[k] = v
	}
	lots := make(map[lotKey]LotBatch, len(m.lots))
	for k, v := range m.lots {
		lots[k] = v
	}
	return movements, balances, lots
}

func (m *memoryRepo) GetMovement(ctx context.Context, tenantID, id int64) (StockMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	movement, ok := m.movements[id]
	if !ok || movement.TenantID != tenantID {
		return StockMovement{}, ErrMovementNotFound
	}
	return movement, nil
}

func (m *memoryRepo) ListMovements(ctx context.Context, tenantID int64, filter MovementFilter) ([]StockMovement, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StockMovement
	for _, movement := range m.movements {
		if movement.TenantID == tenantID {
			out = append(out, movement)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) GetStatistics(ctx context.Context, tenantID int64, filter MovementFilter) ([]MovementStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	grouped := map[string]*MovementStat{}
	for _, movement := range m.movements {
		if movement.TenantID != tenantID {
			continue
		}
		key := string(movement.Type) + "/" + string(movement.Status)
		stat, ok := grouped[key]
		if !ok {
			stat = &MovementStat{Type: movement.Type, Status: movement.Status}
			grouped[key] = stat
		}
		stat.Count++
		stat.SumQuantity = stat.SumQuantity.Add(movement.Quantity)
		if movement.TotalCost != nil {
			stat.SumTotalCost = stat.SumTotalCost.Add(*movement.TotalCost)
		}
	}
	stats := make([]MovementStat, 0, len(grouped))
	for _, stat := range grouped {
		stats = append(stats, *stat)
	}
	return stats, nil
}

func (m *memoryRepo) balance(tenant, warehouse, item int64) WarehouseStock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[balanceKey{tenant, warehouse, item}]
}

func (m *memoryRepo) setBalance(b WarehouseStock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[balanceKey{b.TenantID, b.WarehouseID, b.ItemID}] = b
}

func (m *memoryRepo) setLot(l LotBatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == 0 {
		m.nextLotID++
		l.ID = m.nextLotID
	}
	m.lots[lotKey{l.TenantID, l.LotNumber}] = l
}

func (m *memoryRepo) lot(tenant int64, number string) LotBatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lots[lotKey{tenant, number}]
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) NextMovementSeq(ctx context.Context, tenantID int64) (int64, error) {
	t.repo.seq[tenantID]++
	return t.repo.seq[tenantID], nil
}

func (t *memoryTx) InsertMovement(ctx context.Context, m StockMovement) (int64, error) {
	t.repo.nextID++
	m.ID = t.repo.nextID
	t.repo.movements[m.ID] = m
	return m.ID, nil
}

func (t *memoryTx) GetMovementForUpdate(ctx context.Context, tenantID, id int64) (StockMovement, error) {
	movement, ok := t.repo.movements[id]
	if !ok || movement.TenantID != tenantID {
		return StockMovement{}, ErrMovementNotFound
	}
	return movement, nil
}

func (t *memoryTx) UpdateMovement(ctx context.Context, m StockMovement) error {
	t.repo.movements[m.ID] = m
	return nil
}

func (t *memoryTx) MarkCompleted(ctx context.Context, tenantID, id, approvedBy int64, approvedAt time.Time) error {
	movement := t.repo.movements[id]
	movement.Status = StatusCompleted
	movement.ApprovedBy = &approvedBy
	movement.ApprovedAt = &approvedAt
	movement.UpdatedAt = approvedAt
	t.repo.movements[id] = movement
	return nil
}

func (t *memoryTx) MarkCancelled(ctx context.Context, tenantID, id int64, at time.Time) error {
	movement := t.repo.movements[id]
	movement.Status = StatusCancelled
	movement.UpdatedAt = at
	t.repo.movements[id] = movement
	return nil
}

func (t *memoryTx) GetBalanceForUpdate(ctx context.Context, tenantID, warehouseID, itemID int64) (WarehouseStock, error) {
	key := balanceKey{tenantID, warehouseID, itemID}
	balance, ok := t.repo.balances[key]
	if !ok {
		return WarehouseStock{TenantID: tenantID, WarehouseID: warehouseID, ItemID: itemID}, ErrStockRecordNotFound
	}
	return balance, nil
}

func (t *memoryTx) UpsertBalance(ctx context.Context, balance WarehouseStock) error {
	t.repo.balances[balanceKey{balance.TenantID, balance.WarehouseID, balance.ItemID}] = balance
	return nil
}

func (t *memoryTx) GetLotForUpdate(ctx context.Context, tenantID int64, lotNumber string) (LotBatch, error) {
	lot, ok := t.repo.lots[lotKey{tenantID, lotNumber}]
	if !ok {
		return LotBatch{}, ErrLotNotFound
	}
	return lot, nil
}

func (t *memoryTx) InsertLot(ctx context.Context, lot LotBatch) (int64, error) {
	t.repo.nextLotID++
	lot.ID = t.repo.nextLotID
	t.repo.lots[lotKey{lot.TenantID, lot.LotNumber}] = lot
	return lot.ID, nil
}

func (t *memoryTx) UpdateLot(ctx context.Context, lot LotBatch) error {
	t.repo.lots[lotKey{lot.TenantID, lot.LotNumber}] = lot
	return nil
}

var testActor = shared.Actor{TenantID: 1, UserID: 7}

func newTestService(repo *memoryRepo) *Service {
	return NewService(ServiceParams{Repo: repo, MaxRetries: 3})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T {
	return &v
}

func TestCreateMovementAssignsSequentialNumbers(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	year := time.Now().UTC().Year()

	first, err := svc.CreateMovement(context.Background(), testActor, CreateMovementInput{
		Type:        MovementIn,
		WarehouseID: ptr(int64(10)),
		ItemID:      100,
		Quantity:    dec("5"),
	})
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("SM-%d-0001", year), first.Number)
	require.Equal(t, StatusPending, first.Status)

	second, err := svc.CreateMovement(context.Background(), testActor, CreateMovementInput{
		Type:        MovementOut,
		WarehouseID: ptr(int64(10)),
		ItemID:      100,
		Quantity:    dec("2"),
	})
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("SM-%d-0002", year), second.Number)

	otherTenant := shared.Actor{TenantID: 2, UserID: 1}
	third, err := svc.CreateMovement(context.Background(), otherTenant, CreateMovementInput{
		Type:        MovementIn,
		WarehouseID: ptr(int64(10)),
		ItemID:      100,
		Quantity:    dec("1"),
	})
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("SM-%d-0001", year), third.Number)
}

func TestCreateMovementComputesTotalCost(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	movement, err := svc.CreateMovement(context.Background(), testActor, CreateMovementInput{
		Type:        MovementIn,
		WarehouseID: ptr(int64(10)),
		ItemID:      100,
		Quantity:    dec("4"),
		UnitCost:    ptr(dec("2.50")),
	})
	require.NoError(t, err)
	require.NotNil(t, movement.TotalCost)
	require.True(t, movement.TotalCost.Equal(dec("10")))
}

func TestCreateMovementRejectsInvalidInput(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementIn, ItemID: 100, Quantity: dec("5"),
	})
	require.ErrorIs(t, err, ErrMissingWarehouse)

	_, err = svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementTransfer, FromWarehouseID: ptr(int64(10)), ToWarehouseID: ptr(int64(10)),
		ItemID: 100, Quantity: dec("5"),
	})
	require.ErrorIs(t, err, ErrSameWarehouseTransfer)

	_, err = svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementOut, WarehouseID: ptr(int64(10)), ItemID: 100, Quantity: dec("0"),
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementAdjustment, WarehouseID: ptr(int64(10)), ItemID: 100, Quantity: dec("0"),
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementIn, WarehouseID: ptr(int64(10)), ItemID: 100, Quantity: dec("1"),
		ReferenceID: "not-a-uuid",
	})
	require.ErrorIs(t, err, ErrValidationFailed)

	_, err = svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementType("RETURN"), WarehouseID: ptr(int64(10)), ItemID: 100, Quantity: dec("1"),
	})
	require.ErrorIs(t, err, ErrInvalidMovementType)
}

func TestApproveInboundAppliesWeightedAverage(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	repo.setBalance(WarehouseStock{
		TenantID: 1, WarehouseID: 10, ItemID: 100,
		Quantity: dec("10"), AvailableQty: dec("10"),
		AvgCost: dec("5"), LastPurchasePrice: dec("5"),
	})

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementIn, WarehouseID: ptr(int64(10)), ItemID: 100,
		Quantity: dec("10"), UnitCost: ptr(dec("7")),
	})
	require.NoError(t, err)

	approved, err := svc.ApproveMovement(ctx, testActor, movement.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	require.Equal(t, testActor.UserID, *approved.ApprovedBy)

	balance := repo.balance(1, 10, 100)
	require.True(t, balance.Quantity.Equal(dec("20")))
	require.True(t, balance.AvailableQty.Equal(dec("20")))
	require.True(t, balance.AvgCost.Equal(dec("6")))
	require.True(t, balance.LastPurchasePrice.Equal(dec("7")))
}

func TestApproveInboundWithoutCostKeepsAverage(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	repo.setBalance(WarehouseStock{
		TenantID: 1, WarehouseID: 10, ItemID: 100,
		Quantity: dec("10"), AvailableQty: dec("10"),
		AvgCost: dec("5"), LastPurchasePrice: dec("5"),
	})

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementIn, WarehouseID: ptr(int64(10)), ItemID: 100, Quantity: dec("5"),
	})
	require.NoError(t, err)
	_, err = svc.ApproveMovement(ctx, testActor, movement.ID)
	require.NoError(t, err)

	balance := repo.balance(1, 10, 100)
	require.True(t, balance.Quantity.Equal(dec("15")))
	require.True(t, balance.AvgCost.Equal(dec("5")))
	require.True(t, balance.LastPurchasePrice.Equal(dec("5")))
}

func TestApproveInboundCreatesLot(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementIn, WarehouseID: ptr(int64(10)), ItemID: 100,
		Quantity: dec("8"), UnitCost: ptr(dec("3")),
		LotNumber: "LOT-1", BatchNumber: "B-9",
	})
	require.NoError(t, err)
	_, err = svc.ApproveMovement(ctx, testActor, movement.ID)
	require.NoError(t, err)

	lot := repo.lot(1, "LOT-1")
	require.Equal(t, LotActive, lot.Status)
	require.True(t, lot.Quantity.Equal(dec("8")))
	require.True(t, lot.RemainingQty.Equal(dec("8")))
	require.Equal(t, "B-9", lot.BatchNumber)
}

func TestApproveOutboundInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	repo.setBalance(WarehouseStock{
		TenantID: 1, WarehouseID: 10, ItemID: 100,
		Quantity: dec("10"), ReservedQty: dec("6"), AvailableQty: dec("4"),
	})

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementOut, WarehouseID: ptr(int64(10)), ItemID: 100, Quantity: dec("5"),
	})
	require.NoError(t, err)

	_, err = svc.ApproveMovement(ctx, testActor, movement.ID)
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Rejection must leave both the movement and the balance untouched.
	stored, err := repo.GetMovement(ctx, 1, movement.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
	balance := repo.balance(1, 10, 100)
	require.True(t, balance.Quantity.Equal(dec("10")))
}

func TestApproveOutboundDepletesLot(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	repo.setBalance(WarehouseStock{
		TenantID: 1, WarehouseID: 10, ItemID: 100,
		Quantity: dec("10"), AvailableQty: dec("10"),
	})
	repo.setLot(LotBatch{
		TenantID: 1, LotNumber: "LOT-1", ItemID: 100,
		Quantity: dec("10"), RemainingQty: dec("10"), Status: LotActive,
	})

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementOut, WarehouseID: ptr(int64(10)), ItemID: 100,
		Quantity: dec("10"), LotNumber: "LOT-1",
	})
	require.NoError(t, err)
	_, err = svc.ApproveMovement(ctx, testActor, movement.ID)
	require.NoError(t, err)

	lot := repo.lot(1, "LOT-1")
	require.Equal(t, LotDepleted, lot.Status)
	require.True(t, lot.RemainingQty.IsZero())
	balance := repo.balance(1, 10, 100)
	require.True(t, balance.Quantity.IsZero())
}

func TestApproveOutboundUnknownLotIgnored(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	repo.setBalance(WarehouseStock{
		TenantID: 1, WarehouseID: 10, ItemID: 100,
		Quantity: dec("10"), AvailableQty: dec("10"),
	})

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementOut, WarehouseID: ptr(int64(10)), ItemID: 100,
		Quantity: dec("3"), LotNumber: "NOPE",
	})
	require.NoError(t, err)
	_, err = svc.ApproveMovement(ctx, testActor, movement.ID)
	require.NoError(t, err)
	balance := repo.balance(1, 10, 100)
	require.True(t, balance.Quantity.Equal(dec("7")))
}

func TestApproveAdjustmentRequiresBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementAdjustment, WarehouseID: ptr(int64(10)), ItemID: 100, Quantity: dec("-2"),
	})
	require.NoError(t, err)
	_, err = svc.ApproveMovement(ctx, testActor, movement.ID)
	require.ErrorIs(t, err, ErrStockRecordNotFound)
}

func TestApproveAdjustmentCanGoNegative(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	repo.setBalance(WarehouseStock{
		TenantID: 1, WarehouseID: 10, ItemID: 100,
		Quantity: dec("3"), AvailableQty: dec("3"),
	})

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementAdjustment, WarehouseID: ptr(int64(10)), ItemID: 100, Quantity: dec("-5"),
	})
	require.NoError(t, err)
	_, err = svc.ApproveMovement(ctx, testActor, movement.ID)
	require.NoError(t, err)

	balance := repo.balance(1, 10, 100)
	require.True(t, balance.Quantity.Equal(dec("-2")))
	require.True(t, balance.AvailableQty.Equal(dec("-2")))
}

func TestApproveTransferInheritsCosting(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	repo.setBalance(WarehouseStock{
		TenantID: 1, WarehouseID: 10, ItemID: 100,
		Quantity: dec("10"), AvailableQty: dec("10"),
		AvgCost: dec("4.5"), LastPurchasePrice: dec("5"),
	})

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementTransfer, FromWarehouseID: ptr(int64(10)), ToWarehouseID: ptr(int64(20)),
		ItemID: 100, Quantity: dec("4"),
	})
	require.NoError(t, err)
	_, err = svc.ApproveMovement(ctx, testActor, movement.ID)
	require.NoError(t, err)

	source := repo.balance(1, 10, 100)
	require.True(t, source.Quantity.Equal(dec("6")))
	dest := repo.balance(1, 20, 100)
	require.True(t, dest.Quantity.Equal(dec("4")))
	require.True(t, dest.AvgCost.Equal(dec("4.5")))
	require.True(t, dest.LastPurchasePrice.Equal(dec("5")))
}

func TestApproveTransferInsufficientSource(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementTransfer, FromWarehouseID: ptr(int64(10)), ToWarehouseID: ptr(int64(20)),
		ItemID: 100, Quantity: dec("4"),
	})
	require.NoError(t, err)
	_, err = svc.ApproveMovement(ctx, testActor, movement.ID)
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestApproveIsNotIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementIn, WarehouseID: ptr(int64(10)), ItemID: 100, Quantity: dec("5"),
	})
	require.NoError(t, err)
	_, err = svc.ApproveMovement(ctx, testActor, movement.ID)
	require.NoError(t, err)
	_, err = svc.ApproveMovement(ctx, testActor, movement.ID)
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	balance := repo.balance(1, 10, 100)
	require.True(t, balance.Quantity.Equal(dec("5")))
}

func TestApproveRetriesSerializationFailure(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementIn, WarehouseID: ptr(int64(10)), ItemID: 100, Quantity: dec("5"),
	})
	require.NoError(t, err)

	repo.txErr = &pgconn.PgError{Code: "40001"}
	repo.txFailures = 2
	approved, err := svc.ApproveMovement(ctx, testActor, movement.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, approved.Status)
}

func TestApproveGivesUpAfterMaxRetries(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementIn, WarehouseID: ptr(int64(10)), ItemID: 100, Quantity: dec("5"),
	})
	require.NoError(t, err)

	repo.txFailures = 10
	repo.txErr = &pgconn.PgError{Code: "40001"}
	_, err = svc.ApproveMovement(ctx, testActor, movement.ID)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
}

func TestCancelOnlyPending(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementIn, WarehouseID: ptr(int64(10)), ItemID: 100, Quantity: dec("5"),
	})
	require.NoError(t, err)

	cancelled, err := svc.CancelMovement(ctx, testActor, movement.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	_, err = svc.ApproveMovement(ctx, testActor, movement.ID)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
	_, err = svc.CancelMovement(ctx, testActor, movement.ID)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestUpdateMovementRecomputesTotalCost(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementIn, WarehouseID: ptr(int64(10)), ItemID: 100,
		Quantity: dec("5"), UnitCost: ptr(dec("2")),
	})
	require.NoError(t, err)

	updated, err := svc.UpdateMovement(ctx, testActor, movement.ID, UpdateMovementInput{
		Quantity: ptr(dec("6")),
		Notes:    ptr("recount"),
	})
	require.NoError(t, err)
	require.True(t, updated.Quantity.Equal(dec("6")))
	require.NotNil(t, updated.TotalCost)
	require.True(t, updated.TotalCost.Equal(dec("12")))
	require.Equal(t, "recount", updated.Notes)
}

func TestUpdateMovementRejectsCompleted(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementIn, WarehouseID: ptr(int64(10)), ItemID: 100, Quantity: dec("5"),
	})
	require.NoError(t, err)
	_, err = svc.ApproveMovement(ctx, testActor, movement.ID)
	require.NoError(t, err)

	_, err = svc.UpdateMovement(ctx, testActor, movement.ID, UpdateMovementInput{Quantity: ptr(dec("9"))})
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestUpdateMovementValidatesQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementOut, WarehouseID: ptr(int64(10)), ItemID: 100, Quantity: dec("5"),
	})
	require.NoError(t, err)

	_, err = svc.UpdateMovement(ctx, testActor, movement.ID, UpdateMovementInput{Quantity: ptr(dec("-1"))})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestMovementsAreTenantScoped(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	movement, err := svc.CreateMovement(ctx, testActor, CreateMovementInput{
		Type: MovementIn, WarehouseID: ptr(int64(10)), ItemID: 100, Quantity: dec("5"),
	})
	require.NoError(t, err)

	stranger := shared.Actor{TenantID: 99, UserID: 1}
	_, err = svc.GetMovement(ctx, stranger, movement.ID)
	require.ErrorIs(t, err, ErrMovementNotFound)
	_, err = svc.ApproveMovement(ctx, stranger, movement.ID)
	require.ErrorIs(t, err, ErrMovementNotFound)
}
