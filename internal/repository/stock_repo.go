package repository

import (
	"context"
	"sort"
	"time"

	"tarkostock/internal/apierror"
	"tarkostock/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type stockRepo struct{ db *gorm.DB }

func (r *stockRepo) Create(ctx context.Context, u *model.StockUnit) error {
	return mapErr("stock.create", r.db.WithContext(ctx).Create(u).Error)
}

func (r *stockRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.StockUnit, error) {
	var u model.StockUnit
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, mapErr("stock.find", err)
	}
	return &u, nil
}

func (r *stockRepo) LockByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.StockUnit, error) {
	out := make(map[uuid.UUID]*model.StockUnit, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	sorted := sortedIDs(ids)
	var units []model.StockUnit
	err := r.db.WithContext(ctx).Clauses(forUpdate).
		Where("id IN ?", sorted).
		Order("id ASC").
		Find(&units).Error
	if err != nil {
		return nil, mapErr("stock.lock", err)
	}
	for i := range units {
		out[units[i].ID] = &units[i]
	}
	return out, nil
}

func (r *stockRepo) LockSplittable(ctx context.Context, batchID uuid.UUID, category model.StockCategory) (*model.StockUnit, error) {
	var units []model.StockUnit
	err := r.db.WithContext(ctx).Clauses(forUpdate).
		Where("batch_id = ? AND category = ? AND deleted_at IS NULL", batchID, category).
		Order("created_at ASC").
		Limit(1).
		Find(&units).Error
	if err != nil {
		return nil, mapErr("stock.lock_splittable", err)
	}
	if len(units) == 0 {
		return nil, nil
	}
	return &units[0], nil
}

func (r *stockRepo) Update(ctx context.Context, u *model.StockUnit) error {
	res := r.db.WithContext(ctx).Model(&model.StockUnit{}).
		Where("id = ? AND version = ?", u.ID, u.Version).
		Updates(map[string]interface{}{
			"quantity":   u.Quantity,
			"status":     u.Status,
			"deleted_at": u.DeletedAt,
			"version":    u.Version + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return mapErr("stock.update", res.Error)
	}
	if res.RowsAffected == 0 {
		return apierror.Conflict("stock.update", "stock unit changed concurrently").
			With("stock_id", u.ID).With("version", u.Version)
	}
	u.Version++
	return nil
}

func (r *stockRepo) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]model.StockUnit, error) {
	var units []model.StockUnit
	err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("created_at ASC, id ASC").Find(&units).Error
	return units, mapErr("stock.list_by_batch", err)
}

func (r *stockRepo) List(ctx context.Context, filter StockFilter) ([]model.StockUnit, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.StockUnit{}).Scopes(filter.Scopes()...)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, mapErr("stock.list", err)
	}

	offset, limit := filter.normalize()
	var units []model.StockUnit
	err := q.Preload("Batch").
		Order("stock_units.created_at DESC, stock_units.id ASC").
		Offset(offset).Limit(limit).
		Find(&units).Error
	return units, total, mapErr("stock.list", err)
}

func sortedIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
