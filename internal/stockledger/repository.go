package stockledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations available inside one ledger
// transaction. Balance and lot reads take row locks so concurrent approvals
// against the same rows serialise instead of losing updates.
type TxRepository interface {
	NextMovementSeq(ctx context.Context, tenantID int64) (int64, error)
	InsertMovement(ctx context.Context, m StockMovement) (int64, error)
	GetMovementForUpdate(ctx context.Context, tenantID, id int64) (StockMovement, error)
	UpdateMovement(ctx context.Context, m StockMovement) error
	MarkCompleted(ctx context.Context, tenantID, id, approvedBy int64, approvedAt time.Time) error
	MarkCancelled(ctx context.Context, tenantID, id int64, at time.Time) error
	GetBalanceForUpdate(ctx context.Context, tenantID, warehouseID, itemID int64) (WarehouseStock, error)
	UpsertBalance(ctx context.Context, balance WarehouseStock) error
	GetLotForUpdate(ctx context.Context, tenantID int64, lotNumber string) (LotBatch, error)
	InsertLot(ctx context.Context, lot LotBatch) (int64, error)
	UpdateLot(ctx context.Context, lot LotBatch) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stockledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const movementColumns = `id, tenant_id, number, movement_type, status, warehouse_id, from_warehouse_id, to_warehouse_id,
item_id, quantity, unit_cost, total_cost, COALESCE(lot_number, ''), COALESCE(batch_number, ''),
COALESCE(serial_number, ''), expiry_date, COALESCE(reference_type, ''), COALESCE(reference_id, ''),
COALESCE(notes, ''), created_by, approved_by, approved_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(row rowScanner) (StockMovement, error) {
	var m StockMovement
	err := row.Scan(&m.ID, &m.TenantID, &m.Number, &m.Type, &m.Status, &m.WarehouseID, &m.FromWarehouseID, &m.ToWarehouseID,
		&m.ItemID, &m.Quantity, &m.UnitCost, &m.TotalCost, &m.LotNumber, &m.BatchNumber,
		&m.SerialNumber, &m.ExpiryDate, &m.ReferenceType, &m.ReferenceID,
		&m.Notes, &m.CreatedBy, &m.ApprovedBy, &m.ApprovedAt, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// GetMovement loads a movement by id within the tenant.
func (r *Repository) GetMovement(ctx context.Context, tenantID, id int64) (StockMovement, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	m, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockMovement{}, ErrMovementNotFound
		}
		return StockMovement{}, err
	}
	return m, nil
}

// ListMovements returns the filtered page of movements plus the total row count.
func (r *Repository) ListMovements(ctx context.Context, tenantID int64, filter MovementFilter) ([]StockMovement, int, error) {
	where, args := buildMovementFilter(tenantID, filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM stock_movements `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`SELECT `+movementColumns+` FROM stock_movements %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	movements := []StockMovement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// GetStatistics aggregates committed ledger rows by (type, status). It runs
// outside any ledger transaction and never blocks concurrent writers.
func (r *Repository) GetStatistics(ctx context.Context, tenantID int64, filter MovementFilter) ([]MovementStat, error) {
	where, args := buildMovementFilter(tenantID, filter)
	query := `SELECT movement_type, status, count(*), COALESCE(SUM(quantity), 0), COALESCE(SUM(total_cost), 0)
FROM stock_movements ` + where + ` GROUP BY movement_type, status ORDER BY movement_type, status`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stats := []MovementStat{}
	for rows.Next() {
		var s MovementStat
		if err := rows.Scan(&s.Type, &s.Status, &s.Count, &s.SumQuantity, &s.SumTotalCost); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

func buildMovementFilter(tenantID int64, filter MovementFilter) (string, []any) {
	conds := []string{"tenant_id=$1"}
	args := []any{tenantID}
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.WarehouseID != nil {
		add("(warehouse_id=$%[1]d OR from_warehouse_id=$%[1]d OR to_warehouse_id=$%[1]d)", *filter.WarehouseID)
	}
	if filter.ItemID != nil {
		add("item_id=$%d", *filter.ItemID)
	}
	if filter.Type != nil {
		add("movement_type=$%d", string(*filter.Type))
	}
	if filter.Status != nil {
		add("status=$%d", string(*filter.Status))
	}
	if filter.ReferenceType != "" {
		add("reference_type=$%d", filter.ReferenceType)
	}
	if filter.ReferenceID != "" {
		add("reference_id=$%d", filter.ReferenceID)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at <= $%d", *filter.To)
	}
	if filter.Search != "" {
		add("(number ILIKE $%[1]d OR notes ILIKE $%[1]d OR lot_number ILIKE $%[1]d OR batch_number ILIKE $%[1]d)", "%"+filter.Search+"%")
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// NextMovementSeq atomically advances the tenant-scoped movement counter.
// The counter row is created on first use.
func (r *txRepository) NextMovementSeq(ctx context.Context, tenantID int64) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO movement_counters (tenant_id, seq) VALUES ($1, 1)
ON CONFLICT (tenant_id) DO UPDATE SET seq = movement_counters.seq + 1
RETURNING seq`, tenantID).Scan(&seq)
	return seq, err
}

func (r *txRepository) InsertMovement(ctx context.Context, m StockMovement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements
(tenant_id, number, movement_type, status, warehouse_id, from_warehouse_id, to_warehouse_id, item_id,
 quantity, unit_cost, total_cost, lot_number, batch_number, serial_number, expiry_date,
 reference_type, reference_id, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$20)
RETURNING id`,
		m.TenantID, m.Number, string(m.Type), string(m.Status), m.WarehouseID, m.FromWarehouseID, m.ToWarehouseID, m.ItemID,
		m.Quantity, m.UnitCost, m.TotalCost, nullStr(m.LotNumber), nullStr(m.BatchNumber), nullStr(m.SerialNumber), m.ExpiryDate,
		nullStr(m.ReferenceType), nullStr(m.ReferenceID), m.Notes, m.CreatedBy, m.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetMovementForUpdate(ctx context.Context, tenantID, id int64) (StockMovement, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
	m, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockMovement{}, ErrMovementNotFound
		}
		return StockMovement{}, err
	}
	return m, nil
}

func (r *txRepository) UpdateMovement(ctx context.Context, m StockMovement) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_movements SET
quantity=$3, unit_cost=$4, total_cost=$5, lot_number=$6, batch_number=$7, serial_number=$8,
expiry_date=$9, notes=$10, updated_at=$11
WHERE tenant_id=$1 AND id=$2`,
		m.TenantID, m.ID, m.Quantity, m.UnitCost, m.TotalCost, nullStr(m.LotNumber), nullStr(m.BatchNumber), nullStr(m.SerialNumber),
		m.ExpiryDate, m.Notes, m.UpdatedAt)
	return err
}

func (r *txRepository) MarkCompleted(ctx context.Context, tenantID, id, approvedBy int64, approvedAt time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_movements SET status=$3, approved_by=$4, approved_at=$5, updated_at=$5
WHERE tenant_id=$1 AND id=$2`, tenantID, id, string(StatusCompleted), approvedBy, approvedAt)
	return err
}

func (r *txRepository) MarkCancelled(ctx context.Context, tenantID, id int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_movements SET status=$3, updated_at=$4
WHERE tenant_id=$1 AND id=$2`, tenantID, id, string(StatusCancelled), at)
	return err
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, tenantID, warehouseID, itemID int64) (WarehouseStock, error) {
	var b WarehouseStock
	err := r.tx.QueryRow(ctx, `SELECT tenant_id, warehouse_id, item_id, quantity, reserved_qty, available_qty, avg_cost, last_purchase_price, updated_at
FROM warehouse_stocks WHERE tenant_id=$1 AND warehouse_id=$2 AND item_id=$3 FOR UPDATE`, tenantID, warehouseID, itemID).
		Scan(&b.TenantID, &b.WarehouseID, &b.ItemID, &b.Quantity, &b.ReservedQty, &b.AvailableQty, &b.AvgCost, &b.LastPurchasePrice, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WarehouseStock{TenantID: tenantID, WarehouseID: warehouseID, ItemID: itemID}, ErrStockRecordNotFound
		}
		return WarehouseStock{}, err
	}
	return b, nil
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance WarehouseStock) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO warehouse_stocks
(tenant_id, warehouse_id, item_id, quantity, reserved_qty, available_qty, avg_cost, last_purchase_price, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (tenant_id, warehouse_id, item_id) DO UPDATE SET
quantity=EXCLUDED.quantity, reserved_qty=EXCLUDED.reserved_qty, available_qty=EXCLUDED.available_qty,
avg_cost=EXCLUDED.avg_cost, last_purchase_price=EXCLUDED.last_purchase_price, updated_at=EXCLUDED.updated_at`,
		balance.TenantID, balance.WarehouseID, balance.ItemID, balance.Quantity, balance.ReservedQty, balance.AvailableQty,
		balance.AvgCost, balance.LastPurchasePrice, balance.UpdatedAt)
	return err
}

func (r *txRepository) GetLotForUpdate(ctx context.Context, tenantID int64, lotNumber string) (LotBatch, error) {
	var l LotBatch
	err := r.tx.QueryRow(ctx, `SELECT id, tenant_id, lot_number, COALESCE(batch_number, ''), COALESCE(serial_number, ''), item_id,
quantity, remaining_qty, status, expiry_date, COALESCE(reference_type, ''), COALESCE(reference_id, ''), created_at, updated_at
FROM lot_batches WHERE tenant_id=$1 AND lot_number=$2 FOR UPDATE`, tenantID, lotNumber).
		Scan(&l.ID, &l.TenantID, &l.LotNumber, &l.BatchNumber, &l.SerialNumber, &l.ItemID,
			&l.Quantity, &l.RemainingQty, &l.Status, &l.ExpiryDate, &l.ReferenceType, &l.ReferenceID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LotBatch{}, ErrLotNotFound
		}
		return LotBatch{}, err
	}
	return l, nil
}

func (r *txRepository) InsertLot(ctx context.Context, lot LotBatch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO lot_batches
(tenant_id, lot_number, batch_number, serial_number, item_id, quantity, remaining_qty, status, expiry_date, reference_type, reference_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
RETURNING id`,
		lot.TenantID, lot.LotNumber, nullStr(lot.BatchNumber), nullStr(lot.SerialNumber), lot.ItemID,
		lot.Quantity, lot.RemainingQty, string(lot.Status), lot.ExpiryDate, nullStr(lot.ReferenceType), nullStr(lot.ReferenceID), lot.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateLot(ctx context.Context, lot LotBatch) error {
	_, err := r.tx.Exec(ctx, `UPDATE lot_batches SET remaining_qty=$3, status=$4, updated_at=$5
WHERE tenant_id=$1 AND id=$2`, lot.TenantID, lot.ID, lot.RemainingQty, string(lot.Status), lot.UpdatedAt)
	return err
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}
