package stockledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates the supported stock movement kinds.
type MovementType string

const (
	// MovementIn represents an inbound receipt.
	MovementIn MovementType = "IN"
	// MovementOut represents an outbound issue.
	MovementOut MovementType = "OUT"
	// MovementAdjustment represents a signed correction of existing stock.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementTransfer moves stock between two warehouses.
	MovementTransfer MovementType = "TRANSFER"
)

// MovementStatus tracks a movement through its lifecycle. Transitions are
// monotonic: PENDING to COMPLETED or PENDING to CANCELLED, nothing else.
type MovementStatus string

const (
	StatusPending   MovementStatus = "PENDING"
	StatusCompleted MovementStatus = "COMPLETED"
	StatusCancelled MovementStatus = "CANCELLED"
)

// LotStatus tracks lot depletion.
type LotStatus string

const (
	LotActive   LotStatus = "ACTIVE"
	LotDepleted LotStatus = "DEPLETED"
	// LotExpired is set by the periodic expiry scan, never by approvals.
	LotExpired LotStatus = "EXPIRED"
)

// ReferencePurchaseOrder is the reference type that links an inbound lot to
// its originating purchase order.
const ReferencePurchaseOrder = "PURCHASE_ORDER"

// StockMovement models one row of the movement ledger. A row is mutable
// only while PENDING; after approval or cancellation it is append-only.
type StockMovement struct {
	ID              int64
	TenantID        int64
	Number          string
	Type            MovementType
	Status          MovementStatus
	WarehouseID     *int64
	FromWarehouseID *int64
	ToWarehouseID   *int64
	ItemID          int64
	Quantity        decimal.Decimal
	UnitCost        *decimal.Decimal
	TotalCost       *decimal.Decimal
	LotNumber       string
	BatchNumber     string
	SerialNumber    string
	ExpiryDate      *time.Time
	ReferenceType   string
	ReferenceID     string
	Notes           string
	CreatedBy       int64
	ApprovedBy      *int64
	ApprovedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WarehouseStock is the denormalised balance per (tenant, warehouse, item).
// AvailableQty must equal Quantity minus ReservedQty after every mutation;
// it is stored explicitly, so every writer recomputes it alongside Quantity.
type WarehouseStock struct {
	TenantID          int64
	WarehouseID       int64
	ItemID            int64
	Quantity          decimal.Decimal
	ReservedQty       decimal.Decimal
	AvailableQty      decimal.Decimal
	AvgCost           decimal.Decimal
	LastPurchasePrice decimal.Decimal
	UpdatedAt         time.Time
}

// LotBatch tracks a received lot until depletion. RemainingQty only ever
// decreases; Status flips to DEPLETED exactly when it reaches zero or below.
type LotBatch struct {
	ID            int64
	TenantID      int64
	LotNumber     string
	BatchNumber   string
	SerialNumber  string
	ItemID        int64
	Quantity      decimal.Decimal
	RemainingQty  decimal.Decimal
	Status        LotStatus
	ExpiryDate    *time.Time
	ReferenceType string
	ReferenceID   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateMovementInput carries the fields accepted at creation time.
type CreateMovementInput struct {
	Type            MovementType
	WarehouseID     *int64
	FromWarehouseID *int64
	ToWarehouseID   *int64
	ItemID          int64
	Quantity        decimal.Decimal
	UnitCost        *decimal.Decimal
	LotNumber       string
	BatchNumber     string
	SerialNumber    string
	ExpiryDate      *time.Time
	ReferenceType   string
	ReferenceID     string
	Notes           string
}

// UpdateMovementInput patches a PENDING movement. Nil fields are left
// untouched.
type UpdateMovementInput struct {
	Quantity     *decimal.Decimal
	UnitCost     *decimal.Decimal
	LotNumber    *string
	BatchNumber  *string
	SerialNumber *string
	ExpiryDate   *time.Time
	Notes        *string
}

// MovementFilter narrows listings and statistics. The warehouse filter
// matches the single warehouse of IN/OUT/ADJUSTMENT rows as well as either
// endpoint of a TRANSFER.
type MovementFilter struct {
	WarehouseID   *int64
	ItemID        *int64
	Type          *MovementType
	Status        *MovementStatus
	ReferenceType string
	ReferenceID   string
	From          *time.Time
	To            *time.Time
	Search        string
	Page          int
	PerPage       int
}

// MovementStat aggregates the ledger by (type, status).
type MovementStat struct {
	Type         MovementType    `json:"type"`
	Status       MovementStatus  `json:"status"`
	Count        int64           `json:"count"`
	SumQuantity  decimal.Decimal `json:"sum_quantity"`
	SumTotalCost decimal.Decimal `json:"sum_total_cost"`
}

// Business-rule rejections. All of these leave state untouched and are
// surfaced to the caller as typed failures, never logged as system errors.
var (
	// ErrMissingWarehouse indicates a movement without the warehouse
	// endpoint(s) its type requires.
	ErrMissingWarehouse = errors.New("stockledger: warehouse is required for this movement type")
	// ErrSameWarehouseTransfer indicates a transfer with identical endpoints.
	ErrSameWarehouseTransfer = errors.New("stockledger: transfer source and destination must differ")
	// ErrInvalidMovementType indicates an unknown movement type.
	ErrInvalidMovementType = errors.New("stockledger: invalid movement type")
	// ErrInvalidQuantity indicates a non-positive magnitude, or a zero
	// adjustment.
	ErrInvalidQuantity = errors.New("stockledger: invalid quantity")
	// ErrValidationFailed indicates malformed input outside the structural
	// checks, such as a reference id that is not a UUID.
	ErrValidationFailed = errors.New("stockledger: validation failed")
	// ErrInvalidStateTransition indicates approve/cancel/update on a
	// movement that is no longer PENDING.
	ErrInvalidStateTransition = errors.New("stockledger: invalid state transition")
	// ErrInsufficientStock indicates an OUT or TRANSFER that would drive
	// available quantity negative.
	ErrInsufficientStock = errors.New("stockledger: insufficient available stock")
	// ErrStockRecordNotFound indicates an ADJUSTMENT against a
	// (warehouse, item) pair that has no balance row yet.
	ErrStockRecordNotFound = errors.New("stockledger: no stock record for warehouse and item")
	// ErrMovementNotFound indicates the movement id does not resolve within
	// the caller's tenant.
	ErrMovementNotFound = errors.New("stockledger: movement not found")
	// ErrLotNotFound indicates a missing lot row.
	ErrLotNotFound = errors.New("stockledger: lot not found")
)
