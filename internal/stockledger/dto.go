package stockledger

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type createMovementRequest struct {
	Type            string  `json:"type" validate:"required,oneof=IN OUT ADJUSTMENT TRANSFER"`
	WarehouseID     *int64  `json:"warehouse_id"`
	FromWarehouseID *int64  `json:"from_warehouse_id"`
	ToWarehouseID   *int64  `json:"to_warehouse_id"`
	ItemID          int64   `json:"item_id" validate:"required,gt=0"`
	Quantity        string  `json:"quantity" validate:"required"`
	UnitCost        *string `json:"unit_cost"`
	LotNumber       string  `json:"lot_number"`
	BatchNumber     string  `json:"batch_number"`
	SerialNumber    string  `json:"serial_number"`
	ExpiryDate      *string `json:"expiry_date"`
	ReferenceType   string  `json:"reference_type"`
	ReferenceID     string  `json:"reference_id"`
	Notes           string  `json:"notes"`
}

type updateMovementRequest struct {
	Quantity     *string `json:"quantity"`
	UnitCost     *string `json:"unit_cost"`
	LotNumber    *string `json:"lot_number"`
	BatchNumber  *string `json:"batch_number"`
	SerialNumber *string `json:"serial_number"`
	ExpiryDate   *string `json:"expiry_date"`
	Notes        *string `json:"notes"`
}

type movementResponse struct {
	ID              int64      `json:"id"`
	Number          string     `json:"number"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	WarehouseID     *int64     `json:"warehouse_id,omitempty"`
	FromWarehouseID *int64     `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   *int64     `json:"to_warehouse_id,omitempty"`
	ItemID          int64      `json:"item_id"`
	Quantity        string     `json:"quantity"`
	UnitCost        *string    `json:"unit_cost,omitempty"`
	TotalCost       *string    `json:"total_cost,omitempty"`
	LotNumber       string     `json:"lot_number,omitempty"`
	BatchNumber     string     `json:"batch_number,omitempty"`
	SerialNumber    string     `json:"serial_number,omitempty"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
	ReferenceType   string     `json:"reference_type,omitempty"`
	ReferenceID     string     `json:"reference_id,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	CreatedBy       int64      `json:"created_by"`
	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type listMovementsResponse struct {
	Data []movementResponse `json:"data"`
	Meta paginationMeta     `json:"meta"`
}

type paginationMeta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func toMovementResponse(m StockMovement) movementResponse {
	resp := movementResponse{
		ID:              m.ID,
		Number:          m.Number,
		Type:            string(m.Type),
		Status:          string(m.Status),
		WarehouseID:     m.WarehouseID,
		FromWarehouseID: m.FromWarehouseID,
		ToWarehouseID:   m.ToWarehouseID,
		ItemID:          m.ItemID,
		Quantity:        m.Quantity.String(),
		LotNumber:       m.LotNumber,
		BatchNumber:     m.BatchNumber,
		SerialNumber:    m.SerialNumber,
		ExpiryDate:      m.ExpiryDate,
		ReferenceType:   m.ReferenceType,
		ReferenceID:     m.ReferenceID,
		Notes:           m.Notes,
		CreatedBy:       m.CreatedBy,
		ApprovedBy:      m.ApprovedBy,
		ApprovedAt:      m.ApprovedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.UnitCost != nil {
		v := m.UnitCost.String()
		resp.UnitCost = &v
	}
	if m.TotalCost != nil {
		v := m.TotalCost.String()
		resp.TotalCost = &v
	}
	return resp
}

func parseDecimal(value string) (decimal.Decimal, error) {
	return decimal.NewFromString(value)
}

func parseDate(value string) (*time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// filterFromQuery maps list query parameters onto a MovementFilter. Unknown
// or malformed values are ignored rather than rejected.
func filterFromQuery(r *http.Request) MovementFilter {
	q := r.URL.Query()
	var filter MovementFilter
	if v, err := strconv.ParseInt(q.Get("warehouse_id"), 10, 64); err == nil {
		filter.WarehouseID = &v
	}
	if v, err := strconv.ParseInt(q.Get("item_id"), 10, 64); err == nil {
		filter.ItemID = &v
	}
	if v := q.Get("type"); v != "" {
		t := MovementType(v)
		filter.Type = &t
	}
	if v := q.Get("status"); v != "" {
		s := MovementStatus(v)
		filter.Status = &s
	}
	filter.ReferenceType = q.Get("reference_type")
	filter.ReferenceID = q.Get("reference_id")
	if v, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		filter.From = &v
	}
	if v, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		end := v.Add(24*time.Hour - time.Nanosecond)
		filter.To = &end
	}
	filter.Search = q.Get("search")
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		filter.Page = v
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && v > 0 && v <= 100 {
		filter.PerPage = v
	}
	return filter
}
