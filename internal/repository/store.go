package repository

import (
	"context"

	"tarkostock/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the persistence collaborator of the lifecycle engine.
// InTx runs fn as one atomic unit: every write made through the Repos handed
// to fn commits together or not at all. Snapshot runs fn against one
// consistent read-only view. Reader returns repositories bound to no
// transaction, for single read queries.
type Store interface {
	InTx(ctx context.Context, fn func(r Repos) error) error
	Snapshot(ctx context.Context, fn func(r Repos) error) error
	Reader() Repos
	Ping(ctx context.Context) error
}

// Repos bundles the repositories that share one unit of work.
type Repos struct {
	Batches BatchRepository
	Stock   StockRepository
	Pieces  PieceRepository
	Ledger  LedgerRepository
	Catalog CatalogRepository
}

// BatchRepository defines the data access contract for production batches.
type BatchRepository interface {
	Create(ctx context.Context, b *model.Batch) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Batch, error)
	FindByCode(ctx context.Context, code string) (*model.Batch, error)
	// AdjustCurrent adds delta to current_quantity. The write is rejected with a
	// validation error when the result would leave [0, initial_quantity].
	AdjustCurrent(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
	// ListAll includes soft-deleted batches.
	ListAll(ctx context.Context) ([]model.Batch, error)
}

// StockRepository defines the data access contract for stock units.
// Lock* methods take row locks held until the surrounding transaction ends;
// outside InTx they behave like plain reads.
type StockRepository interface {
	Create(ctx context.Context, u *model.StockUnit) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.StockUnit, error)
	// LockByIDs locks the given units in ascending id order. Missing ids are
	// absent from the result.
	LockByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.StockUnit, error)
	// LockSplittable returns the batch's live unit of a splittable category,
	// or nil when the batch has none yet.
	LockSplittable(ctx context.Context, batchID uuid.UUID, category model.StockCategory) (*model.StockUnit, error)
	// Update writes quantity, status and deleted_at with a version compare-and-set
	// and bumps u.Version. A stale version yields a conflict.
	Update(ctx context.Context, u *model.StockUnit) error
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]model.StockUnit, error)
	List(ctx context.Context, filter StockFilter) ([]model.StockUnit, int64, error)
}

// PieceRepository defines the data access contract for pieces.
// Every Update runs the creator-transaction immutability guard.
type PieceRepository interface {
	// CreateMany inserts one row per physical piece.
	CreateMany(ctx context.Context, pieces []*model.Piece) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Piece, error)
	LockByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Piece, error)
	// LockOldestInStock locks up to limit live IN_STOCK pieces of a unit, oldest first.
	LockOldestInStock(ctx context.Context, stockUnitID uuid.UUID, limit int) ([]*model.Piece, error)
	// LockCreatedBy locks every piece whose creator is the given transaction.
	LockCreatedBy(ctx context.Context, txID uuid.UUID) ([]*model.Piece, error)
	Update(ctx context.Context, p *model.Piece) error
	ListByStockUnit(ctx context.Context, stockUnitID uuid.UUID) ([]model.Piece, error)
}

// LedgerRepository is append-only: it has no update or delete.
type LedgerRepository interface {
	// Append inserts the transaction together with its items.
	Append(ctx context.Context, t *model.Transaction) error
	AppendEvents(ctx context.Context, events []model.LifecycleEvent) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	// FindReversal returns the ADJUSTMENT that reverts id, or nil.
	FindReversal(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	List(ctx context.Context, filter TransactionFilter) ([]model.Transaction, int64, error)
	PieceHistory(ctx context.Context, pieceID uuid.UUID) ([]model.LifecycleEvent, error)
}

// CatalogRepository exposes reference data. The lifecycle engine only reads it;
// the Create methods exist for seeding.
type CatalogRepository interface {
	FindVariant(ctx context.Context, id uuid.UUID) (*model.ProductVariant, error)
	ListVariants(ctx context.Context) ([]model.ProductVariant, error)
	FindCustomer(ctx context.Context, id uuid.UUID) (*model.Customer, error)
	CreateProductType(ctx context.Context, pt *model.ProductType) error
	CreateBrand(ctx context.Context, b *model.Brand) error
	CreateVariant(ctx context.Context, v *model.ProductVariant) error
	CreateCustomer(ctx context.Context, c *model.Customer) error
}
