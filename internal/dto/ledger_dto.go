package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionFilter is bound from the query string of GET /v1/transactions.
type TransactionFilter struct {
	Type        string `form:"type"          validate:"omitempty,oneof=PRODUCTION CUT_ROLL SPLIT_BUNDLE COMBINE_SPARES DISPATCH SALE SCRAP RETURN ADJUSTMENT"`
	BatchID     string `form:"batch_id"      validate:"omitempty,uuid"`
	CustomerID  string `form:"customer_id"   validate:"omitempty,uuid"`
	StockUnitID string `form:"stock_id"      validate:"omitempty,uuid"`
	From        string `form:"from"` // YYYY-MM-DD, inclusive
	To          string `form:"to"`   // YYYY-MM-DD, inclusive
	Page        int    `form:"page,default=1"    validate:"min=1"`
	Limit       int    `form:"limit,default=50"  validate:"min=1,max=500"`
}

// StockFilter is bound from the query string of GET /v1/stock.
type StockFilter struct {
	BatchID          string `form:"batch_id"           validate:"omitempty,uuid"`
	ProductVariantID string `form:"product_variant_id" validate:"omitempty,uuid"`
	Category         string `form:"category"           validate:"omitempty,oneof=FULL_ROLL CUT_ROLL BUNDLE SPARE"`
	Status           string `form:"status"             validate:"omitempty,oneof=IN_STOCK PARTIAL SOLD_OUT RESERVED"`
	IncludeEmpty     bool   `form:"include_empty"`
	Page             int    `form:"page,default=1"     validate:"min=1"`
	Limit            int    `form:"limit,default=100"  validate:"min=1,max=500"`
}

type TransactionItemResponse struct {
	ID             uuid.UUID        `json:"id"`
	StockUnitID    uuid.UUID        `json:"stock_id"`
	ItemType       string           `json:"item_type"`
	Quantity       int              `json:"quantity"`
	Measure        decimal.Decimal  `json:"measure"`
	PieceIDs       []uuid.UUID      `json:"piece_ids,omitempty"`
	EstimatedValue *decimal.Decimal `json:"estimated_value,omitempty"`
	Notes          *string          `json:"notes,omitempty"`
}

type TransactionResponse struct {
	ID                    uuid.UUID                 `json:"id"`
	Type                  string                    `json:"type"`
	BatchID               *uuid.UUID                `json:"batch_id,omitempty"`
	QuantityChange        decimal.Decimal           `json:"quantity_change"`
	ActorID               *uuid.UUID                `json:"actor_id,omitempty"`
	CustomerID            *uuid.UUID                `json:"customer_id,omitempty"`
	InvoiceNumber         *string                   `json:"invoice_number,omitempty"`
	Reason                *string                   `json:"reason,omitempty"`
	EffectiveDate         *time.Time                `json:"effective_date,omitempty"`
	Notes                 *string                   `json:"notes,omitempty"`
	EstimatedLoss         *decimal.Decimal          `json:"estimated_loss,omitempty"`
	Snapshot              json.RawMessage           `json:"snapshot,omitempty"`
	ReversesTransactionID *uuid.UUID                `json:"reverses_transaction_id,omitempty"`
	Items                 []TransactionItemResponse `json:"items,omitempty"`
	CreatedAt             time.Time                 `json:"created_at"`
}

type TransactionListResponse struct {
	Data  []TransactionResponse `json:"data"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

type StockUnitResponse struct {
	ID              uuid.UUID        `json:"id"`
	BatchID         uuid.UUID        `json:"batch_id"`
	BatchCode       string           `json:"batch_code,omitempty"`
	Category        string           `json:"category"`
	Quantity        int              `json:"quantity"`
	LengthPerUnit   *decimal.Decimal `json:"length_per_unit,omitempty"`
	PiecesPerBundle *int             `json:"pieces_per_bundle,omitempty"`
	UnitOfMeasure   string           `json:"unit_of_measure"`
	Status          string           `json:"status"`
	Version         int              `json:"version"`
	Deleted         bool             `json:"deleted"`
}

type StockListResponse struct {
	Data  []StockUnitResponse `json:"data"`
	Total int64               `json:"total"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
}

type BatchResponse struct {
	ID               uuid.UUID           `json:"id"`
	BatchCode        string              `json:"batch_code"`
	ProductVariantID uuid.UUID           `json:"product_variant_id"`
	InitialQuantity  decimal.Decimal     `json:"initial_quantity"`
	CurrentQuantity  decimal.Decimal     `json:"current_quantity"`
	ProductionDate   time.Time           `json:"production_date"`
	Notes            *string             `json:"notes,omitempty"`
	Stock            []StockUnitResponse `json:"stock,omitempty"`
}

type LifecycleEventResponse struct {
	ID            uuid.UUID  `json:"id"`
	PieceID       uuid.UUID  `json:"piece_id"`
	StockUnitID   uuid.UUID  `json:"stock_id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	Event         string     `json:"event"`
	FromStatus    *string    `json:"from_status,omitempty"`
	ToStatus      string     `json:"to_status"`
	ActorID       *uuid.UUID `json:"actor_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// PieceHistoryResponse is the forensic view of one piece.
type PieceHistoryResponse struct {
	PieceID                uuid.UUID                `json:"piece_id"`
	StockUnitID            uuid.UUID                `json:"stock_id"`
	Status                 string                   `json:"status"`
	Length                 *decimal.Decimal         `json:"length,omitempty"`
	CreatedByTransactionID uuid.UUID                `json:"created_by_transaction_id"`
	DeletedByTransactionID *uuid.UUID               `json:"deleted_by_transaction_id,omitempty"`
	Version                int                      `json:"version"`
	Events                 []LifecycleEventResponse `json:"events"`
}
