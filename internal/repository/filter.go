package repository

import (
	"time"

	"tarkostock/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Pagination bounds list queries.
type Pagination struct {
	Page  int
	Limit int
}

func (p Pagination) normalize() (offset, limit int) {
	page := p.Page
	limit = p.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return (page - 1) * limit, limit
}

// window slices an already-filtered result set the same way the SQL OFFSET/LIMIT does.
func window[T any](rows []T, p Pagination) []T {
	offset, limit := p.normalize()
	if offset >= len(rows) {
		return nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

// TransactionFilter is a structured ledger query. Nil fields do not constrain.
type TransactionFilter struct {
	Type        *model.TransactionType
	BatchID     *uuid.UUID
	CustomerID  *uuid.UUID
	StockUnitID *uuid.UUID
	From        *time.Time
	To          *time.Time
	Pagination
}

// Scopes compiles the filter into gorm scopes.
func (f TransactionFilter) Scopes() []func(*gorm.DB) *gorm.DB {
	var scopes []func(*gorm.DB) *gorm.DB
	if f.Type != nil {
		scopes = append(scopes, eq("type", *f.Type))
	}
	if f.BatchID != nil {
		scopes = append(scopes, eq("batch_id", *f.BatchID))
	}
	if f.CustomerID != nil {
		scopes = append(scopes, eq("customer_id", *f.CustomerID))
	}
	if f.StockUnitID != nil {
		id := *f.StockUnitID
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
			sub := db.Session(&gorm.Session{NewDB: true}).
				Model(&model.TransactionItem{}).
				Select("transaction_id").
				Where("stock_unit_id = ?", id)
			return db.Where("id IN (?)", sub)
		})
	}
	if f.From != nil {
		from := *f.From
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("created_at >= ?", from) })
	}
	if f.To != nil {
		to := *f.To
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("created_at < ?", to) })
	}
	return scopes
}

// Match evaluates the filter against one transaction in memory.
func (f TransactionFilter) Match(t *model.Transaction) bool {
	if f.Type != nil && t.Type != *f.Type {
		return false
	}
	if f.BatchID != nil && (t.BatchID == nil || *t.BatchID != *f.BatchID) {
		return false
	}
	if f.CustomerID != nil && (t.CustomerID == nil || *t.CustomerID != *f.CustomerID) {
		return false
	}
	if f.StockUnitID != nil {
		found := false
		for _, it := range t.Items {
			if it.StockUnitID == *f.StockUnitID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && t.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !t.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

// StockFilter is a structured stock query. Soft-deleted and empty units are
// excluded unless asked for.
type StockFilter struct {
	BatchID          *uuid.UUID
	ProductVariantID *uuid.UUID
	Category         *model.StockCategory
	Status           *model.StockStatus
	IncludeEmpty     bool
	IncludeDeleted   bool
	Pagination
}

// Scopes compiles the filter into gorm scopes.
func (f StockFilter) Scopes() []func(*gorm.DB) *gorm.DB {
	var scopes []func(*gorm.DB) *gorm.DB
	if !f.IncludeDeleted {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("stock_units.deleted_at IS NULL") })
	}
	if !f.IncludeEmpty {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("stock_units.quantity > 0") })
	}
	if f.BatchID != nil {
		scopes = append(scopes, eq("stock_units.batch_id", *f.BatchID))
	}
	if f.Category != nil {
		scopes = append(scopes, eq("stock_units.category", *f.Category))
	}
	if f.Status != nil {
		scopes = append(scopes, eq("stock_units.status", *f.Status))
	}
	if f.ProductVariantID != nil {
		id := *f.ProductVariantID
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
			return db.Joins("JOIN batches ON batches.id = stock_units.batch_id").
				Where("batches.product_variant_id = ?", id)
		})
	}
	return scopes
}

// Match evaluates the filter in memory. batch is the unit's batch and may be nil.
func (f StockFilter) Match(u *model.StockUnit, batch *model.Batch) bool {
	if !f.IncludeDeleted && !u.Live() {
		return false
	}
	if !f.IncludeEmpty && u.Quantity == 0 {
		return false
	}
	if f.BatchID != nil && u.BatchID != *f.BatchID {
		return false
	}
	if f.Category != nil && u.Category != *f.Category {
		return false
	}
	if f.Status != nil && u.Status != *f.Status {
		return false
	}
	if f.ProductVariantID != nil && (batch == nil || batch.ProductVariantID != *f.ProductVariantID) {
		return false
	}
	return true
}

func eq(column string, value any) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB { return db.Where(column+" = ?", value) }
}
