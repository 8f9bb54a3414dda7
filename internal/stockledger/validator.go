package stockledger

import "github.com/shopspring/decimal"

// ValidateEndpoints checks the structural warehouse requirements of a
// movement type. Pure function, never touches storage; runs before a
// movement is persisted as PENDING.
func ValidateEndpoints(t MovementType, warehouseID, fromWarehouseID, toWarehouseID *int64) error {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment:
		if warehouseID == nil {
			return ErrMissingWarehouse
		}
	case MovementTransfer:
		if fromWarehouseID == nil || toWarehouseID == nil {
			return ErrMissingWarehouse
		}
		if *fromWarehouseID == *toWarehouseID {
			return ErrSameWarehouseTransfer
		}
	default:
		return ErrInvalidMovementType
	}
	return nil
}

// ValidateQuantity checks the quantity against the movement type. IN, OUT
// and TRANSFER carry an unsigned magnitude; ADJUSTMENT is signed but must
// not be zero.
func ValidateQuantity(t MovementType, qty decimal.Decimal) error {
	if t == MovementAdjustment {
		if qty.IsZero() {
			return ErrInvalidQuantity
		}
		return nil
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidQuantity
	}
	return nil
}
