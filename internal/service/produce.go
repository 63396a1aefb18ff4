package service

import (
	"context"
	"strings"
	"time"

	"tarkostock/internal/apierror"
	"tarkostock/internal/dto"
	"tarkostock/internal/model"
	"tarkostock/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const opProduce = "produce"

// ── Produce ───────────────────────────────────────────────────────────────────
// Creates a batch and its stock: one FULL_ROLL unit per roll line, one CUT_ROLL
// unit holding one piece per cut length, one BUNDLE unit per bundle line and one
// SPARE unit holding one piece per spare. Writes a PRODUCTION transaction whose
// quantity change is the batch's initial quantity.

func (s *lifecycleService) Produce(ctx context.Context, actorID uuid.UUID, req dto.ProduceRequest) (*dto.OperationResponse, error) {
	if err := validateProduce(req); err != nil {
		return nil, err
	}
	code := strings.TrimSpace(req.BatchCode)
	attrs := []attribute.KeyValue{
		attribute.String("batch.code", code),
		attribute.String("variant.id", req.ProductVariantID.String()),
	}
	return s.execute(ctx, opProduce, attrs, func(ctx context.Context, r repository.Repos, txID uuid.UUID) (*opResult, error) {
		variant, err := r.Catalog.FindVariant(ctx, req.ProductVariantID)
		if err != nil {
			return nil, notFoundAs(err, opProduce, "product variant not found", "product_variant_id", req.ProductVariantID)
		}
		if !variant.Active {
			return nil, apierror.NotFound(opProduce, "product variant is not active").With("product_variant_id", variant.ID)
		}
		if variant.ProductType == nil {
			return nil, apierror.NotFound(opProduce, "product type not found").With("product_type_id", variant.ProductTypeID)
		}
		if missing := variant.MissingParameters(variant.ProductType); len(missing) > 0 {
			return nil, apierror.Validation(opProduce, "variant parameters are incomplete").With("missing", missing)
		}
		if err := checkKind(variant, req); err != nil {
			return nil, err
		}
		if _, err := r.Batches.FindByCode(ctx, code); err == nil {
			return nil, apierror.Validation(opProduce, "batch code already exists").With("batch_code", code)
		} else if !apierror.Is(err, apierror.KindNotFound) {
			return nil, err
		}

		actor := actorRef(actorID)
		productionDate := time.Now().UTC()
		if req.ProductionDate != nil {
			productionDate = *req.ProductionDate
		}
		batch := &model.Batch{
			ID:               uuid.New(),
			BatchCode:        code,
			ProductVariantID: variant.ID,
			InitialQuantity:  produceMeasure(req),
			ProductionDate:   productionDate,
			Notes:            req.Notes,
			CreatedBy:        actor,
		}
		batch.CurrentQuantity = batch.InitialQuantity
		if err := r.Batches.Create(ctx, batch); err != nil {
			return nil, err
		}

		res := &opResult{batch: batch}
		var items []model.TransactionItem
		var events []model.LifecycleEvent

		for _, line := range req.Rolls {
			length := line.Length
			u := &model.StockUnit{
				ID:            uuid.New(),
				BatchID:       batch.ID,
				Category:      model.CategoryFullRoll,
				Quantity:      line.Count,
				LengthPerUnit: &length,
				UnitOfMeasure: model.CategoryFullRoll.UnitOfMeasure(),
				Status:        model.StockInStock,
				Version:       1,
			}
			if err := r.Stock.Create(ctx, u); err != nil {
				return nil, err
			}
			res.units = append(res.units, u)
			items = append(items, model.TransactionItem{
				ID: uuid.New(), StockUnitID: u.ID, ItemType: u.Category,
				Quantity: line.Count, Measure: u.Measure(line.Count),
			})
		}

		for _, line := range req.Bundles {
			size := line.PiecesPerBundle
			u := &model.StockUnit{
				ID:              uuid.New(),
				BatchID:         batch.ID,
				Category:        model.CategoryBundle,
				Quantity:        line.Count,
				PiecesPerBundle: &size,
				UnitOfMeasure:   model.CategoryBundle.UnitOfMeasure(),
				Status:          model.StockInStock,
				Version:         1,
			}
			if err := r.Stock.Create(ctx, u); err != nil {
				return nil, err
			}
			res.units = append(res.units, u)
			items = append(items, model.TransactionItem{
				ID: uuid.New(), StockUnitID: u.ID, ItemType: u.Category,
				Quantity: line.Count, Measure: u.Measure(line.Count),
			})
		}

		// Splittable units: one insert per physical piece.
		splittable := []struct {
			category model.StockCategory
			pieces   []*model.Piece
		}{
			{model.CategoryCutRoll, cutPieces(req.CutPieces)},
			{model.CategorySpare, sparePieces(req.SparePieces)},
		}
		for _, sp := range splittable {
			if len(sp.pieces) == 0 {
				continue
			}
			u := &model.StockUnit{
				ID:            uuid.New(),
				BatchID:       batch.ID,
				Category:      sp.category,
				Quantity:      len(sp.pieces),
				UnitOfMeasure: sp.category.UnitOfMeasure(),
				Status:        model.StockInStock,
				Version:       1,
			}
			if err := r.Stock.Create(ctx, u); err != nil {
				return nil, err
			}
			pieces := newPieces(u.ID, txID, sp.pieces)
			if err := r.Pieces.CreateMany(ctx, pieces); err != nil {
				return nil, err
			}
			ids := make([]uuid.UUID, 0, len(pieces))
			measure := decimal.Zero
			for _, p := range pieces {
				ids = append(ids, p.ID)
				measure = measure.Add(p.Measure())
				events = append(events, pieceEvent(p, txID, actor, model.EventCreated, nil))
			}
			res.units = append(res.units, u)
			res.pieceIDs = append(res.pieceIDs, ids...)
			items = append(items, model.TransactionItem{
				ID: uuid.New(), StockUnitID: u.ID, ItemType: u.Category,
				Quantity: len(pieces), Measure: measure, PieceIDs: ids,
			})
		}

		batchID := batch.ID
		tx := &model.Transaction{
			ID:             txID,
			Type:           model.TxProduction,
			BatchID:        &batchID,
			QuantityChange: batch.InitialQuantity,
			ActorID:        actor,
			EffectiveDate:  &productionDate,
			Notes:          req.Notes,
			Snapshot: snapshot(map[string]interface{}{
				"batch_code":   code,
				"rolls":        req.Rolls,
				"cut_pieces":   req.CutPieces,
				"bundles":      req.Bundles,
				"spare_pieces": req.SparePieces,
			}),
			Items: items,
		}
		if err := r.Ledger.Append(ctx, tx); err != nil {
			return nil, err
		}
		if err := r.Ledger.AppendEvents(ctx, events); err != nil {
			return nil, err
		}
		res.tx = tx
		return res, nil
	})
}

func validateProduce(req dto.ProduceRequest) error {
	if req.ProductVariantID == uuid.Nil {
		return apierror.Validation(opProduce, "product_variant_id is required")
	}
	if strings.TrimSpace(req.BatchCode) == "" {
		return apierror.Validation(opProduce, "batch_code is required")
	}
	if len(req.Rolls) == 0 && len(req.CutPieces) == 0 && len(req.Bundles) == 0 && req.SparePieces == 0 {
		return apierror.Validation(opProduce, "at least one stock line is required")
	}
	for i, line := range req.Rolls {
		if line.Count <= 0 || !line.Length.IsPositive() {
			return apierror.Validation(opProduce, "roll count and length must be positive").
				With("index", i).With("count", line.Count).With("length", line.Length.String())
		}
	}
	for i, l := range req.CutPieces {
		if !l.IsPositive() {
			return apierror.Validation(opProduce, "cut piece length must be positive").With("index", i).With("length", l.String())
		}
	}
	for i, line := range req.Bundles {
		if line.Count <= 0 || line.PiecesPerBundle <= 0 {
			return apierror.Validation(opProduce, "bundle count and size must be positive").
				With("index", i).With("count", line.Count).With("pieces_per_bundle", line.PiecesPerBundle)
		}
	}
	if req.SparePieces < 0 {
		return apierror.Validation(opProduce, "spare_pieces must not be negative").With("spare_pieces", req.SparePieces)
	}
	return nil
}

// checkKind rejects stock lines that do not fit how the product is measured.
// Bundle lines must use the variant's configured size so split spares can be
// combined back.
func checkKind(variant *model.ProductVariant, req dto.ProduceRequest) error {
	kind := variant.ProductType.Kind
	switch kind {
	case model.ProductKindRoll:
		if len(req.Bundles) > 0 || req.SparePieces > 0 {
			return apierror.Validation(opProduce, "roll products take rolls and cut pieces only").With("kind", kind)
		}
	case model.ProductKindBundle:
		if len(req.Rolls) > 0 || len(req.CutPieces) > 0 {
			return apierror.Validation(opProduce, "bundle products take bundles and spare pieces only").With("kind", kind)
		}
		if variant.PiecesPerBundle == nil || *variant.PiecesPerBundle <= 0 {
			return apierror.Validation(opProduce, "variant has no configured bundle size").With("product_variant_id", variant.ID)
		}
		for i, line := range req.Bundles {
			if line.PiecesPerBundle != *variant.PiecesPerBundle {
				return apierror.Validation(opProduce, "bundle size does not match variant").
					With("index", i).With("pieces_per_bundle", line.PiecesPerBundle).
					With("variant_pieces_per_bundle", *variant.PiecesPerBundle)
			}
		}
	default:
		return apierror.Validation(opProduce, "unknown product kind").With("kind", kind)
	}
	return nil
}

func produceMeasure(req dto.ProduceRequest) decimal.Decimal {
	total := decimal.Zero
	for _, line := range req.Rolls {
		total = total.Add(line.Length.Mul(decimal.NewFromInt(int64(line.Count))))
	}
	for _, l := range req.CutPieces {
		total = total.Add(l)
	}
	for _, line := range req.Bundles {
		total = total.Add(decimal.NewFromInt(int64(line.Count * line.PiecesPerBundle)))
	}
	return total.Add(decimal.NewFromInt(int64(req.SparePieces)))
}

func cutPieces(lengths []decimal.Decimal) []*model.Piece {
	out := make([]*model.Piece, 0, len(lengths))
	for _, l := range lengths {
		length := l
		out = append(out, &model.Piece{Length: &length})
	}
	return out
}

func sparePieces(n int) []*model.Piece {
	out := make([]*model.Piece, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &model.Piece{})
	}
	return out
}
