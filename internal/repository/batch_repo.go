package repository

import (
	"context"
	"time"

	"tarkostock/internal/apierror"
	"tarkostock/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type batchRepo struct{ db *gorm.DB }

func (r *batchRepo) Create(ctx context.Context, b *model.Batch) error {
	return mapErr("batches.create", r.db.WithContext(ctx).Create(b).Error)
}

func (r *batchRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Batch, error) {
	var b model.Batch
	err := r.db.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", id).First(&b).Error
	if err != nil {
		return nil, mapErr("batches.find", err)
	}
	return &b, nil
}

func (r *batchRepo) FindByCode(ctx context.Context, code string) (*model.Batch, error) {
	var b model.Batch
	err := r.db.WithContext(ctx).Where("batch_code = ?", code).First(&b).Error
	if err != nil {
		return nil, mapErr("batches.find_by_code", err)
	}
	return &b, nil
}

func (r *batchRepo) AdjustCurrent(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	res := r.db.WithContext(ctx).Model(&model.Batch{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Where("current_quantity + ? >= 0 AND current_quantity + ? <= initial_quantity", delta, delta).
		Updates(map[string]interface{}{
			"current_quantity": gorm.Expr("current_quantity + ?", delta),
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return mapErr("batches.adjust", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return apierror.Validation("batches.adjust", "batch quantity would leave [0, initial]").
		With("batch_id", id).With("delta", delta.String())
}

func (r *batchRepo) ListAll(ctx context.Context) ([]model.Batch, error) {
	var batches []model.Batch
	err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&batches).Error
	return batches, mapErr("batches.list", err)
}
