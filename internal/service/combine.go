package service

import (
	"context"

	"tarkostock/internal/apierror"
	"tarkostock/internal/dto"
	"tarkostock/internal/model"
	"tarkostock/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const opCombine = "combine_spares"

// ── CombineSpares ─────────────────────────────────────────────────────────────
// Reassembles a bundle from spare pieces of one batch. The pieces end COMBINED
// (never deleted, creator untouched) and a new BUNDLE unit of quantity 1 holds
// them.

func (s *lifecycleService) CombineSpares(ctx context.Context, actorID uuid.UUID, req dto.CombineSparesRequest) (*dto.OperationResponse, error) {
	if req.BatchID == uuid.Nil {
		return nil, apierror.Validation(opCombine, "batch_id is required")
	}
	if len(req.SparePieceIDs) == 0 {
		return nil, apierror.Validation(opCombine, "spare_piece_ids must not be empty").With("batch_id", req.BatchID)
	}
	seen := make(map[uuid.UUID]struct{}, len(req.SparePieceIDs))
	for _, id := range req.SparePieceIDs {
		if _, dup := seen[id]; dup {
			return nil, apierror.Validation(opCombine, "spare piece listed twice").With("piece_id", id)
		}
		seen[id] = struct{}{}
	}

	attrs := []attribute.KeyValue{
		attribute.String("batch.id", req.BatchID.String()),
		attribute.Int("combine.pieces", len(req.SparePieceIDs)),
	}
	return s.execute(ctx, opCombine, attrs, func(ctx context.Context, r repository.Repos, txID uuid.UUID) (*opResult, error) {
		batch, err := r.Batches.FindByID(ctx, req.BatchID)
		if err != nil {
			return nil, notFoundAs(err, opCombine, "batch not found", "batch_id", req.BatchID)
		}
		variant, err := r.Catalog.FindVariant(ctx, batch.ProductVariantID)
		if err != nil {
			return nil, notFoundAs(err, opCombine, "product variant not found", "product_variant_id", batch.ProductVariantID)
		}
		if variant.PiecesPerBundle == nil || *variant.PiecesPerBundle <= 0 {
			return nil, apierror.Validation(opCombine, "variant has no configured bundle size").With("product_variant_id", variant.ID)
		}
		size := *variant.PiecesPerBundle
		if len(req.SparePieceIDs) != size {
			return nil, apierror.Validation(opCombine, "piece count does not match bundle size").
				With("batch_id", batch.ID).With("requested", len(req.SparePieceIDs)).With("pieces_per_bundle", size)
		}

		spare, err := r.Stock.LockSplittable(ctx, batch.ID, model.CategorySpare)
		if err != nil {
			return nil, err
		}
		if spare == nil {
			return nil, apierror.Validation(opCombine, "batch has no spare pieces").With("batch_id", batch.ID)
		}
		pieces, err := r.Pieces.LockByIDs(ctx, req.SparePieceIDs)
		if err != nil {
			return nil, err
		}
		for _, id := range req.SparePieceIDs {
			p, ok := pieces[id]
			if !ok {
				return nil, apierror.NotFound(opCombine, "piece not found").With("piece_id", id)
			}
			if p.StockUnitID != spare.ID {
				return nil, apierror.Validation(opCombine, "piece is not a spare of this batch").
					With("piece_id", id).With("batch_id", batch.ID)
			}
			if !p.Countable() {
				return nil, apierror.Validation(opCombine, "piece is not available").
					With("piece_id", id).With("status", p.Status)
			}
		}

		actor := actorRef(actorID)
		var events []model.LifecycleEvent
		for _, id := range req.SparePieceIDs {
			if err := transition(ctx, r, pieces[id], model.PieceCombined, model.EventCombined, txID, actor, &events); err != nil {
				return nil, err
			}
		}
		if err := applyDelta(ctx, r, spare, -size); err != nil {
			return nil, err
		}
		bundle := &model.StockUnit{
			ID:              uuid.New(),
			BatchID:         batch.ID,
			Category:        model.CategoryBundle,
			Quantity:        1,
			PiecesPerBundle: &size,
			UnitOfMeasure:   model.CategoryBundle.UnitOfMeasure(),
			Status:          model.StockInStock,
			Version:         1,
		}
		if err := r.Stock.Create(ctx, bundle); err != nil {
			return nil, err
		}

		measure := decimal.NewFromInt(int64(size))
		batchID := batch.ID
		tx := &model.Transaction{
			ID:             txID,
			Type:           model.TxCombineSpares,
			BatchID:        &batchID,
			QuantityChange: decimal.Zero,
			ActorID:        actor,
			Snapshot: snapshot(map[string]interface{}{
				"spare_stock_id":     spare.ID,
				"bundle_stock_id":    bundle.ID,
				"consumed_piece_ids": req.SparePieceIDs,
			}),
			Items: []model.TransactionItem{
				{ID: uuid.New(), StockUnitID: spare.ID, ItemType: spare.Category, Quantity: -size, Measure: measure.Neg(), PieceIDs: req.SparePieceIDs},
				{ID: uuid.New(), StockUnitID: bundle.ID, ItemType: bundle.Category, Quantity: 1, Measure: measure},
			},
		}
		if err := r.Ledger.Append(ctx, tx); err != nil {
			return nil, err
		}
		if err := r.Ledger.AppendEvents(ctx, events); err != nil {
			return nil, err
		}
		return &opResult{tx: tx, units: []*model.StockUnit{spare, bundle}, pieceIDs: req.SparePieceIDs}, nil
	})
}
