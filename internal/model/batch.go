package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Batch is a production lot of one product variant.
// Quantities are in the product's measure: meters for roll products,
// pieces for bundle products. CurrentQuantity never leaves [0, InitialQuantity],
// so cumulative dispatched+scrapped can never exceed what was produced.
type Batch struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	BatchCode        string          `gorm:"uniqueIndex;not null"`
	ProductVariantID uuid.UUID       `gorm:"type:uuid;not null;index"`
	InitialQuantity  decimal.Decimal `gorm:"type:decimal(14,3);not null"`
	CurrentQuantity  decimal.Decimal `gorm:"type:decimal(14,3);not null"`
	ProductionDate   time.Time       `gorm:"not null"`
	Notes            *string
	CreatedBy        *uuid.UUID `gorm:"type:uuid"`
	DeletedAt        *time.Time `gorm:"index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time

	ProductVariant *ProductVariant `gorm:"foreignKey:ProductVariantID"`
}

func (Batch) TableName() string { return "batches" }

// Live reports whether the batch has not been soft-deleted.
func (b *Batch) Live() bool { return b.DeletedAt == nil }
