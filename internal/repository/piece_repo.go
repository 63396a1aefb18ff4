package repository

import (
	"context"
	"time"

	"tarkostock/internal/apierror"
	"tarkostock/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type pieceRepo struct{ db *gorm.DB }

func (r *pieceRepo) CreateMany(ctx context.Context, pieces []*model.Piece) error {
	if len(pieces) == 0 {
		return nil
	}
	return mapErr("pieces.create", r.db.WithContext(ctx).CreateInBatches(pieces, 200).Error)
}

func (r *pieceRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Piece, error) {
	var p model.Piece
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, mapErr("pieces.find", err)
	}
	return &p, nil
}

func (r *pieceRepo) LockByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Piece, error) {
	out := make(map[uuid.UUID]*model.Piece, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var pieces []model.Piece
	err := r.db.WithContext(ctx).Clauses(forUpdate).
		Where("id IN ?", sortedIDs(ids)).
		Order("id ASC").
		Find(&pieces).Error
	if err != nil {
		return nil, mapErr("pieces.lock", err)
	}
	for i := range pieces {
		out[pieces[i].ID] = &pieces[i]
	}
	return out, nil
}

func (r *pieceRepo) LockOldestInStock(ctx context.Context, stockUnitID uuid.UUID, limit int) ([]*model.Piece, error) {
	var pieces []model.Piece
	err := r.db.WithContext(ctx).Clauses(forUpdate).
		Where("stock_unit_id = ? AND status = ? AND deleted_at IS NULL", stockUnitID, model.PieceInStock).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&pieces).Error
	if err != nil {
		return nil, mapErr("pieces.lock_oldest", err)
	}
	return pointers(pieces), nil
}

func (r *pieceRepo) LockCreatedBy(ctx context.Context, txID uuid.UUID) ([]*model.Piece, error) {
	var pieces []model.Piece
	err := r.db.WithContext(ctx).Clauses(forUpdate).
		Where("created_by_transaction_id = ?", txID).
		Order("id ASC").
		Find(&pieces).Error
	if err != nil {
		return nil, mapErr("pieces.lock_created_by", err)
	}
	return pointers(pieces), nil
}

// Update writes the mutable columns of p. The stored creator is compared
// first; the creator column itself is never part of the statement.
func (r *pieceRepo) Update(ctx context.Context, p *model.Piece) error {
	db := r.db.WithContext(ctx)

	var stored model.Piece
	if err := db.Select("id", "created_by_transaction_id").First(&stored, "id = ?", p.ID).Error; err != nil {
		return mapErr("pieces.update", err)
	}
	if err := model.GuardCreatorTransaction(stored.CreatedByTransactionID, p.CreatedByTransactionID); err != nil {
		return apierror.Immutability("pieces.update", err.Error()).
			With("piece_id", p.ID).
			With("created_by_transaction_id", stored.CreatedByTransactionID)
	}

	res := db.Model(&model.Piece{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]interface{}{
			"stock_unit_id":              p.StockUnitID,
			"status":                     p.Status,
			"deleted_at":                 p.DeletedAt,
			"deleted_by_transaction_id":  p.DeletedByTransactionID,
			"reserved_by_transaction_id": p.ReservedByTransactionID,
			"reserved_at":                p.ReservedAt,
			"version":                    p.Version + 1,
			"updated_at":                 time.Now(),
		})
	if res.Error != nil {
		return mapErr("pieces.update", res.Error)
	}
	if res.RowsAffected == 0 {
		return apierror.Conflict("pieces.update", "piece changed concurrently").With("piece_id", p.ID)
	}
	p.Version++
	return nil
}

func (r *pieceRepo) ListByStockUnit(ctx context.Context, stockUnitID uuid.UUID) ([]model.Piece, error) {
	var pieces []model.Piece
	err := r.db.WithContext(ctx).Where("stock_unit_id = ?", stockUnitID).Order("created_at ASC, id ASC").Find(&pieces).Error
	return pieces, mapErr("pieces.list", err)
}

func pointers[T any](rows []T) []*T {
	out := make([]*T, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}
