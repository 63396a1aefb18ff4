package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockCategory is the physical form a stock unit holds.
type StockCategory string

const (
	CategoryFullRoll StockCategory = "FULL_ROLL"
	CategoryCutRoll  StockCategory = "CUT_ROLL"
	CategoryBundle   StockCategory = "BUNDLE"
	CategorySpare    StockCategory = "SPARE"
)

// Splittable categories derive their quantity from child Piece rows.
func (c StockCategory) Splittable() bool {
	return c == CategoryCutRoll || c == CategorySpare
}

// UnitOfMeasure is the unit a stock unit's Quantity counts.
func (c StockCategory) UnitOfMeasure() string {
	switch c {
	case CategoryFullRoll:
		return "roll"
	case CategoryBundle:
		return "bundle"
	default:
		return "piece"
	}
}

func (c StockCategory) Valid() bool {
	switch c {
	case CategoryFullRoll, CategoryCutRoll, CategoryBundle, CategorySpare:
		return true
	}
	return false
}

// StockStatus of an aggregate row.
type StockStatus string

const (
	StockInStock  StockStatus = "IN_STOCK"
	StockPartial  StockStatus = "PARTIAL"
	StockSoldOut  StockStatus = "SOLD_OUT"
	StockReserved StockStatus = "RESERVED"
)

// StockUnit is the aggregate quantity record for one kind of physical inventory
// within a batch. For splittable categories Quantity must always equal the
// number of live IN_STOCK pieces it owns.
type StockUnit struct {
	ID              uuid.UUID        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	BatchID         uuid.UUID        `gorm:"type:uuid;not null;index"`
	Category        StockCategory    `gorm:"type:varchar(20);not null;index"`
	Quantity        int              `gorm:"not null;default:0;check:quantity >= 0"`
	LengthPerUnit   *decimal.Decimal `gorm:"type:decimal(12,3)"`
	PiecesPerBundle *int
	UnitOfMeasure   string      `gorm:"type:varchar(20);not null"`
	Status          StockStatus `gorm:"type:varchar(20);not null;default:'IN_STOCK'"`
	Version         int         `gorm:"not null;default:1"`
	DeletedAt       *time.Time  `gorm:"index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Batch *Batch `gorm:"foreignKey:BatchID"`
}

func (StockUnit) TableName() string { return "stock_units" }

// Live reports whether the unit has not been soft-deleted.
func (u *StockUnit) Live() bool { return u.DeletedAt == nil }

// Available reports whether the unit can be consumed by cut/dispatch/scrap.
func (u *StockUnit) Available() bool {
	return u.Live() && u.Quantity > 0 && (u.Status == StockInStock || u.Status == StockPartial)
}

// NextStatus derives the status after a quantity change of delta.
func (u *StockUnit) NextStatus(newQty, delta int) StockStatus {
	switch {
	case newQty == 0:
		return StockSoldOut
	case u.Status == StockReserved:
		return StockReserved
	case delta < 0:
		return StockPartial
	case u.Status == StockSoldOut:
		return StockInStock
	default:
		return u.Status
	}
}

// Measure converts qty units of this stock into the batch measure.
// Splittable units are measured from their pieces, not from here.
func (u *StockUnit) Measure(qty int) decimal.Decimal {
	switch u.Category {
	case CategoryFullRoll:
		if u.LengthPerUnit == nil {
			return decimal.Zero
		}
		return u.LengthPerUnit.Mul(decimal.NewFromInt(int64(qty)))
	case CategoryBundle:
		if u.PiecesPerBundle == nil {
			return decimal.Zero
		}
		return decimal.NewFromInt(int64(qty * *u.PiecesPerBundle))
	default:
		return decimal.NewFromInt(int64(qty))
	}
}
