package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PieceStatus is the lifecycle state of one physical unit.
//
//	CREATED -> IN_STOCK -> {DISPATCHED, SCRAPPED, COMBINED}
//
// DISPATCHED and SCRAPPED may be reverted to IN_STOCK. COMBINED is terminal.
type PieceStatus string

const (
	PieceInStock    PieceStatus = "IN_STOCK"
	PieceDispatched PieceStatus = "DISPATCHED"
	PieceScrapped   PieceStatus = "SCRAPPED"
	PieceCombined   PieceStatus = "COMBINED"
)

var (
	// ErrCreatorImmutable is returned when a write would change a piece's creator transaction.
	ErrCreatorImmutable = errors.New("piece creator transaction is immutable")
	// ErrPieceCount is returned when a piece would represent more than one physical unit.
	ErrPieceCount = errors.New("piece count must be exactly 1")
	// ErrMissingCreator is returned when a piece is inserted without a creator transaction.
	ErrMissingCreator = errors.New("piece requires a creator transaction")
)

// Piece is one countable physical unit (a cut length or a spare) owned by
// exactly one stock unit. CreatedByTransactionID is write-once.
type Piece struct {
	ID                      uuid.UUID        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	StockUnitID             uuid.UUID        `gorm:"type:uuid;not null;index"`
	PieceCount              int              `gorm:"not null;default:1;check:piece_count = 1"`
	Length                  *decimal.Decimal `gorm:"type:decimal(12,3)"`
	Status                  PieceStatus      `gorm:"type:varchar(20);not null;index"`
	CreatedByTransactionID  uuid.UUID        `gorm:"type:uuid;not null;index"`
	DeletedAt               *time.Time       `gorm:"index"`
	DeletedByTransactionID  *uuid.UUID       `gorm:"type:uuid"`
	ReservedByTransactionID *uuid.UUID       `gorm:"type:uuid"`
	ReservedAt              *time.Time
	Version                 int `gorm:"not null;default:1"`
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (Piece) TableName() string { return "pieces" }

// Live reports whether the piece has not been deleted.
func (p *Piece) Live() bool { return p.DeletedAt == nil }

// Countable reports whether the piece counts toward its unit's quantity.
func (p *Piece) Countable() bool { return p.Live() && p.Status == PieceInStock }

// Measure is the piece's contribution to its batch measure.
func (p *Piece) Measure() decimal.Decimal {
	if p.Length != nil {
		return *p.Length
	}
	return decimal.NewFromInt(int64(p.PieceCount))
}

// ValidateNew checks the insert-time guards shared by every store.
func (p *Piece) ValidateNew() error {
	if p.PieceCount != 1 {
		return ErrPieceCount
	}
	if p.CreatedByTransactionID == uuid.Nil {
		return ErrMissingCreator
	}
	return nil
}

// GuardCreatorTransaction compares an incoming creator reference with the stored one.
// The creator is accepted only on first insert; any later difference is rejected.
func GuardCreatorTransaction(stored, incoming uuid.UUID) error {
	if incoming != stored {
		return ErrCreatorImmutable
	}
	return nil
}

// BeforeCreate enforces one-physical-unit-per-row and the creator reference.
func (p *Piece) BeforeCreate(tx *gorm.DB) error {
	if p.PieceCount == 0 {
		p.PieceCount = 1
	}
	return p.ValidateNew()
}

// BeforeUpdate rejects any update that names the creator column, whatever
// code path issued it. Repositories write the mutable columns only.
func (p *Piece) BeforeUpdate(tx *gorm.DB) error {
	if tx.Statement.Changed("CreatedByTransactionID") {
		return ErrCreatorImmutable
	}
	return nil
}
