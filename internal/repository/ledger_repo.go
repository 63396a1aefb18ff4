package repository

import (
	"context"

	"tarkostock/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ledgerRepo struct{ db *gorm.DB }

func (r *ledgerRepo) Append(ctx context.Context, t *model.Transaction) error {
	return mapErr("ledger.append", r.db.WithContext(ctx).Create(t).Error)
}

func (r *ledgerRepo) AppendEvents(ctx context.Context, events []model.LifecycleEvent) error {
	if len(events) == 0 {
		return nil
	}
	return mapErr("ledger.append_events", r.db.WithContext(ctx).CreateInBatches(events, 200).Error)
}

func (r *ledgerRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).Preload("Items").First(&t, "id = ?", id).Error
	if err != nil {
		return nil, mapErr("ledger.find", err)
	}
	return &t, nil
}

func (r *ledgerRepo) FindReversal(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	var ts []model.Transaction
	err := r.db.WithContext(ctx).Where("reverses_transaction_id = ?", id).Limit(1).Find(&ts).Error
	if err != nil {
		return nil, mapErr("ledger.find_reversal", err)
	}
	if len(ts) == 0 {
		return nil, nil
	}
	return &ts[0], nil
}

func (r *ledgerRepo) List(ctx context.Context, filter TransactionFilter) ([]model.Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Transaction{}).Scopes(filter.Scopes()...)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, mapErr("ledger.list", err)
	}

	offset, limit := filter.normalize()
	var ts []model.Transaction
	err := q.Preload("Items").
		Order("created_at DESC, id ASC").
		Offset(offset).Limit(limit).
		Find(&ts).Error
	return ts, total, mapErr("ledger.list", err)
}

func (r *ledgerRepo) PieceHistory(ctx context.Context, pieceID uuid.UUID) ([]model.LifecycleEvent, error) {
	var events []model.LifecycleEvent
	err := r.db.WithContext(ctx).Where("piece_id = ?", pieceID).Order("created_at ASC, id ASC").Find(&events).Error
	return events, mapErr("ledger.piece_history", err)
}
