package stockledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// movementEffect is the closed set of balance mutations a movement can
// apply. Deriving the effect up front means an unknown movement type is
// rejected before any balance row is touched, and each applier only sees
// the fields it needs.
type movementEffect interface {
	isMovementEffect()
}

type inboundEffect struct {
	warehouseID int64
	itemID      int64
	qty         decimal.Decimal
	unitCost    *decimal.Decimal
	lot         *lotReceipt
}

// lotReceipt describes the lot row an inbound movement creates.
type lotReceipt struct {
	lotNumber     string
	batchNumber   string
	serialNumber  string
	expiryDate    *time.Time
	referenceType string
	referenceID   string
}

type outboundEffect struct {
	warehouseID int64
	itemID      int64
	qty         decimal.Decimal
	lotNumber   string
}

type adjustmentEffect struct {
	warehouseID int64
	itemID      int64
	delta       decimal.Decimal
}

type transferEffect struct {
	fromWarehouseID int64
	toWarehouseID   int64
	itemID          int64
	qty             decimal.Decimal
}

func (inboundEffect) isMovementEffect()    {}
func (outboundEffect) isMovementEffect()   {}
func (adjustmentEffect) isMovementEffect() {}
func (transferEffect) isMovementEffect()   {}

// effectFor derives the balance effect of a movement. The endpoint fields
// were validated at creation time, but a movement read back from storage is
// re-checked so a malformed row can never reach an applier.
func effectFor(m StockMovement) (movementEffect, error) {
	if err := ValidateEndpoints(m.Type, m.WarehouseID, m.FromWarehouseID, m.ToWarehouseID); err != nil {
		return nil, err
	}
	switch m.Type {
	case MovementIn:
		eff := inboundEffect{
			warehouseID: *m.WarehouseID,
			itemID:      m.ItemID,
			qty:         m.Quantity,
			unitCost:    m.UnitCost,
		}
		if m.LotNumber != "" || m.BatchNumber != "" || m.SerialNumber != "" {
			receipt := &lotReceipt{
				lotNumber:    m.LotNumber,
				batchNumber:  m.BatchNumber,
				serialNumber: m.SerialNumber,
				expiryDate:   m.ExpiryDate,
			}
			if m.ReferenceType == ReferencePurchaseOrder {
				receipt.referenceType = m.ReferenceType
				receipt.referenceID = m.ReferenceID
			}
			eff.lot = receipt
		}
		return eff, nil
	case MovementOut:
		return outboundEffect{
			warehouseID: *m.WarehouseID,
			itemID:      m.ItemID,
			qty:         m.Quantity,
			lotNumber:   m.LotNumber,
		}, nil
	case MovementAdjustment:
		return adjustmentEffect{
			warehouseID: *m.WarehouseID,
			itemID:      m.ItemID,
			delta:       m.Quantity,
		}, nil
	case MovementTransfer:
		return transferEffect{
			fromWarehouseID: *m.FromWarehouseID,
			toWarehouseID:   *m.ToWarehouseID,
			itemID:          m.ItemID,
			qty:             m.Quantity,
		}, nil
	default:
		return nil, ErrInvalidMovementType
	}
}
