package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TransactionType names the domain event recorded in the ledger.
type TransactionType string

const (
	TxProduction    TransactionType = "PRODUCTION"
	TxCutRoll       TransactionType = "CUT_ROLL"
	TxSplitBundle   TransactionType = "SPLIT_BUNDLE"
	TxCombineSpares TransactionType = "COMBINE_SPARES"
	TxDispatch      TransactionType = "DISPATCH"
	TxSale          TransactionType = "SALE"
	TxScrap         TransactionType = "SCRAP"
	TxReturn        TransactionType = "RETURN"
	TxAdjustment    TransactionType = "ADJUSTMENT"
)

// Revertible reports whether Revert accepts a transaction of this type.
func (t TransactionType) Revertible() bool {
	switch t {
	case TxDispatch, TxSale, TxScrap, TxCutRoll, TxSplitBundle:
		return true
	}
	return false
}

// Transaction is an append-only ledger entry. Rows are never modified:
// corrections are later ADJUSTMENT rows pointing at the original through
// ReversesTransactionID (unique, so a transaction is reverted at most once).
type Transaction struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Type                  TransactionType `gorm:"type:varchar(30);not null;index"`
	BatchID               *uuid.UUID      `gorm:"type:uuid;index"`
	QuantityChange        decimal.Decimal `gorm:"type:decimal(14,3);not null"`
	ActorID               *uuid.UUID      `gorm:"type:uuid"`
	CustomerID            *uuid.UUID      `gorm:"type:uuid;index"`
	InvoiceNumber         *string
	Reason                *string
	EffectiveDate         *time.Time
	Notes                 *string
	EstimatedLoss         *decimal.Decimal `gorm:"type:decimal(14,2)"`
	Snapshot              datatypes.JSON   `gorm:"type:jsonb"`
	ReversesTransactionID *uuid.UUID       `gorm:"type:uuid;uniqueIndex"`
	CreatedAt             time.Time        `gorm:"index"`

	Items []TransactionItem `gorm:"foreignKey:TransactionID"`
}

func (Transaction) TableName() string { return "transactions" }

// TransactionItem is a per-item detail row of a multi-item operation.
// Quantity and Measure are the signed change applied to the stock unit.
// PieceIDs records the exact pieces touched so a revert restores the same set.
type TransactionItem struct {
	ID             uuid.UUID                      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TransactionID  uuid.UUID                      `gorm:"type:uuid;not null;index"`
	StockUnitID    uuid.UUID                      `gorm:"type:uuid;not null;index"`
	ItemType       StockCategory                  `gorm:"type:varchar(20);not null"`
	Quantity       int                            `gorm:"not null"`
	Measure        decimal.Decimal                `gorm:"type:decimal(14,3);not null"`
	PieceIDs       datatypes.JSONSlice[uuid.UUID] `gorm:"type:jsonb"`
	EstimatedValue *decimal.Decimal               `gorm:"type:decimal(14,2)"`
	Notes          *string
}

func (TransactionItem) TableName() string { return "transaction_items" }
