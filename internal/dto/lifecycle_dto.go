package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

// RollLine produces Count full rolls of Length meters each.
type RollLine struct {
	Count  int             `json:"count"  validate:"required,min=1"`
	Length decimal.Decimal `json:"length" validate:"required,gt=0"`
}

// BundleLine produces Count bundles of PiecesPerBundle pieces each.
type BundleLine struct {
	Count           int `json:"count"             validate:"required,min=1"`
	PiecesPerBundle int `json:"pieces_per_bundle" validate:"required,min=1"`
}

type ProduceRequest struct {
	ProductVariantID uuid.UUID         `json:"product_variant_id" validate:"required"`
	BatchCode        string            `json:"batch_code"         validate:"required,max=64"`
	ProductionDate   *time.Time        `json:"production_date"`
	Notes            *string           `json:"notes"              validate:"omitempty,max=500"`
	Rolls            []RollLine        `json:"rolls"              validate:"omitempty,dive"`
	CutPieces        []decimal.Decimal `json:"cut_pieces"         validate:"omitempty,dive,gt=0"`
	Bundles          []BundleLine      `json:"bundles"            validate:"omitempty,dive"`
	SparePieces      int               `json:"spare_pieces"       validate:"min=0"`
}

type CutRequest struct {
	StockID    uuid.UUID         `json:"stock_id"    validate:"required"`
	CutLengths []decimal.Decimal `json:"cut_lengths" validate:"required,min=1,dive,gt=0"`
}

type SplitBundleRequest struct {
	StockID       uuid.UUID `json:"stock_id"        validate:"required"`
	PiecesToSplit []int     `json:"pieces_to_split" validate:"required,min=1,dive,min=1"`
}

type CombineSparesRequest struct {
	BatchID       uuid.UUID   `json:"batch_id"        validate:"required"`
	SparePieceIDs []uuid.UUID `json:"spare_piece_ids" validate:"required,min=1"`
}

// DispatchItem addresses one stock unit. PieceIDs pins the exact pieces of a
// splittable unit; when empty the oldest IN_STOCK pieces are taken.
type DispatchItem struct {
	StockID          uuid.UUID   `json:"stock_id"           validate:"required"`
	ProductVariantID *uuid.UUID  `json:"product_variant_id"`
	ItemType         string      `json:"item_type"          validate:"required,oneof=FULL_ROLL CUT_ROLL BUNDLE SPARE"`
	Quantity         int         `json:"quantity"           validate:"required,min=1"`
	PieceIDs         []uuid.UUID `json:"piece_ids"`
}

type DispatchRequest struct {
	CustomerID    uuid.UUID `json:"customer_id"    validate:"required"`
	InvoiceNumber *string   `json:"invoice_number" validate:"omitempty,max=64"`
	Notes         *string   `json:"notes"          validate:"omitempty,max=500"`
	// Type is DISPATCH (default) or SALE.
	Type  string         `json:"type"  validate:"omitempty,oneof=DISPATCH SALE"`
	Items []DispatchItem `json:"items" validate:"required,min=1,dive"`
}

type ScrapItem struct {
	StockID         uuid.UUID        `json:"stock_id"          validate:"required"`
	QuantityToScrap int              `json:"quantity_to_scrap" validate:"required,min=1"`
	EstimatedValue  *decimal.Decimal `json:"estimated_value"`
	Notes           *string          `json:"notes"             validate:"omitempty,max=500"`
	PieceIDs        []uuid.UUID      `json:"piece_ids"`
}

type ScrapRequest struct {
	Reason    string      `json:"reason"     validate:"required,max=200"`
	ScrapDate *time.Time  `json:"scrap_date"`
	Notes     *string     `json:"notes"      validate:"omitempty,max=500"`
	Items     []ScrapItem `json:"items"      validate:"required,min=1,dive"`
}

type RevertRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=200"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

// OperationResponse is returned by every lifecycle operation: the ledger entry
// it wrote and the resulting state of every stock unit it touched.
type OperationResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Batch       *BatchResponse      `json:"batch,omitempty"`
	Stock       []StockUnitResponse `json:"stock"`
	PieceIDs    []uuid.UUID         `json:"piece_ids,omitempty"`
}
