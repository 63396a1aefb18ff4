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

const (
	opCut   = "cut"
	opSplit = "split_bundle"
)

// cutSnapshot is stored on CUT_ROLL transactions and read back by Revert.
type cutSnapshot struct {
	SourceStockID uuid.UUID         `json:"source_stock_id"`
	CutStockID    uuid.UUID         `json:"cut_stock_id"`
	RollLength    decimal.Decimal   `json:"roll_length"`
	CutLengths    []decimal.Decimal `json:"cut_lengths"`
	Offcut        decimal.Decimal   `json:"offcut"`
	PieceIDs      []uuid.UUID       `json:"piece_ids"`
}

// splitSnapshot is stored on SPLIT_BUNDLE transactions and read back by Revert.
type splitSnapshot struct {
	SourceStockID uuid.UUID   `json:"source_stock_id"`
	SpareStockID  uuid.UUID   `json:"spare_stock_id"`
	Groups        []int       `json:"groups"`
	PieceIDs      []uuid.UUID `json:"piece_ids"`
}

// ── Cut ───────────────────────────────────────────────────────────────────────
// Consumes one roll of a FULL_ROLL unit and adds one piece per cut length to the
// batch's CUT_ROLL unit. The uncut remainder is an offcut: it leaves the batch.

func (s *lifecycleService) Cut(ctx context.Context, actorID uuid.UUID, req dto.CutRequest) (*dto.OperationResponse, error) {
	if req.StockID == uuid.Nil {
		return nil, apierror.Validation(opCut, "stock_id is required")
	}
	if len(req.CutLengths) == 0 {
		return nil, apierror.Validation(opCut, "cut_lengths must not be empty").With("stock_id", req.StockID)
	}
	requested := decimal.Zero
	for i, l := range req.CutLengths {
		if !l.IsPositive() {
			return nil, apierror.Validation(opCut, "cut length must be positive").
				With("stock_id", req.StockID).With("index", i).With("length", l.String())
		}
		requested = requested.Add(l)
	}

	attrs := []attribute.KeyValue{
		attribute.String("stock.id", req.StockID.String()),
		attribute.Int("cut.count", len(req.CutLengths)),
	}
	return s.execute(ctx, opCut, attrs, func(ctx context.Context, r repository.Repos, txID uuid.UUID) (*opResult, error) {
		src, err := lockUnit(ctx, r, opCut, req.StockID)
		if err != nil {
			return nil, err
		}
		if src.Category != model.CategoryFullRoll {
			return nil, apierror.Validation(opCut, "only full rolls can be cut").
				With("stock_id", src.ID).With("category", src.Category)
		}
		if src.Quantity < 1 {
			return nil, apierror.NotFound(opCut, "no remaining available roll").With("stock_id", src.ID)
		}
		if err := consumable(opCut, src); err != nil {
			return nil, err
		}
		rollLength := decimal.Zero
		if src.LengthPerUnit != nil {
			rollLength = *src.LengthPerUnit
		}
		if requested.GreaterThan(rollLength) {
			return nil, apierror.Validation(opCut, "cut lengths exceed roll length").
				With("stock_id", src.ID).
				With("requested", requested.String()).
				With("available", rollLength.String())
		}

		if err := applyDelta(ctx, r, src, -1); err != nil {
			return nil, err
		}
		dst, err := splittableUnit(ctx, r, src.BatchID, model.CategoryCutRoll)
		if err != nil {
			return nil, err
		}
		pieces := newPieces(dst.ID, txID, cutPieces(req.CutLengths))
		if err := r.Pieces.CreateMany(ctx, pieces); err != nil {
			return nil, err
		}
		if err := applyDelta(ctx, r, dst, len(pieces)); err != nil {
			return nil, err
		}

		offcut := rollLength.Sub(requested)
		if offcut.IsPositive() {
			if err := r.Batches.AdjustCurrent(ctx, src.BatchID, offcut.Neg()); err != nil {
				return nil, err
			}
		}

		actor := actorRef(actorID)
		ids := make([]uuid.UUID, 0, len(pieces))
		events := make([]model.LifecycleEvent, 0, len(pieces))
		for _, p := range pieces {
			ids = append(ids, p.ID)
			events = append(events, pieceEvent(p, txID, actor, model.EventCreated, nil))
		}
		batchID := src.BatchID
		tx := &model.Transaction{
			ID:             txID,
			Type:           model.TxCutRoll,
			BatchID:        &batchID,
			QuantityChange: offcut.Neg(),
			ActorID:        actor,
			Snapshot: snapshot(cutSnapshot{
				SourceStockID: src.ID,
				CutStockID:    dst.ID,
				RollLength:    rollLength,
				CutLengths:    req.CutLengths,
				Offcut:        offcut,
				PieceIDs:      ids,
			}),
			Items: []model.TransactionItem{
				{ID: uuid.New(), StockUnitID: src.ID, ItemType: src.Category, Quantity: -1, Measure: rollLength.Neg()},
				{ID: uuid.New(), StockUnitID: dst.ID, ItemType: dst.Category, Quantity: len(pieces), Measure: requested, PieceIDs: ids},
			},
		}
		if err := r.Ledger.Append(ctx, tx); err != nil {
			return nil, err
		}
		if err := r.Ledger.AppendEvents(ctx, events); err != nil {
			return nil, err
		}
		return &opResult{tx: tx, units: []*model.StockUnit{src, dst}, pieceIDs: ids}, nil
	})
}

// ── SplitBundle ───────────────────────────────────────────────────────────────
// Opens one bundle into individual spares. The requested counts describe how
// the bundle is laid out and must add up to its size; every physical piece is
// its own row in the batch's SPARE unit.

func (s *lifecycleService) SplitBundle(ctx context.Context, actorID uuid.UUID, req dto.SplitBundleRequest) (*dto.OperationResponse, error) {
	if req.StockID == uuid.Nil {
		return nil, apierror.Validation(opSplit, "stock_id is required")
	}
	if len(req.PiecesToSplit) == 0 {
		return nil, apierror.Validation(opSplit, "pieces_to_split must not be empty").With("stock_id", req.StockID)
	}
	total := 0
	for i, n := range req.PiecesToSplit {
		if n <= 0 {
			return nil, apierror.Validation(opSplit, "piece count must be positive").
				With("stock_id", req.StockID).With("index", i).With("count", n)
		}
		total += n
	}

	attrs := []attribute.KeyValue{
		attribute.String("stock.id", req.StockID.String()),
		attribute.Int("split.pieces", total),
	}
	return s.execute(ctx, opSplit, attrs, func(ctx context.Context, r repository.Repos, txID uuid.UUID) (*opResult, error) {
		src, err := lockUnit(ctx, r, opSplit, req.StockID)
		if err != nil {
			return nil, err
		}
		if src.Category != model.CategoryBundle {
			return nil, apierror.Validation(opSplit, "only bundles can be split").
				With("stock_id", src.ID).With("category", src.Category)
		}
		if src.Quantity < 1 {
			return nil, apierror.NotFound(opSplit, "no remaining available bundle").With("stock_id", src.ID)
		}
		if err := consumable(opSplit, src); err != nil {
			return nil, err
		}
		size := 0
		if src.PiecesPerBundle != nil {
			size = *src.PiecesPerBundle
		}
		if total != size {
			return nil, apierror.Validation(opSplit, "piece counts must add up to the bundle size").
				With("stock_id", src.ID).With("requested", total).With("pieces_per_bundle", size)
		}

		if err := applyDelta(ctx, r, src, -1); err != nil {
			return nil, err
		}
		dst, err := splittableUnit(ctx, r, src.BatchID, model.CategorySpare)
		if err != nil {
			return nil, err
		}
		pieces := newPieces(dst.ID, txID, sparePieces(total))
		if err := r.Pieces.CreateMany(ctx, pieces); err != nil {
			return nil, err
		}
		if err := applyDelta(ctx, r, dst, len(pieces)); err != nil {
			return nil, err
		}

		actor := actorRef(actorID)
		ids := make([]uuid.UUID, 0, len(pieces))
		events := make([]model.LifecycleEvent, 0, len(pieces))
		for _, p := range pieces {
			ids = append(ids, p.ID)
			events = append(events, pieceEvent(p, txID, actor, model.EventCreated, nil))
		}
		batchID := src.BatchID
		measure := decimal.NewFromInt(int64(total))
		tx := &model.Transaction{
			ID:             txID,
			Type:           model.TxSplitBundle,
			BatchID:        &batchID,
			QuantityChange: decimal.Zero,
			ActorID:        actor,
			Snapshot: snapshot(splitSnapshot{
				SourceStockID: src.ID,
				SpareStockID:  dst.ID,
				Groups:        req.PiecesToSplit,
				PieceIDs:      ids,
			}),
			Items: []model.TransactionItem{
				{ID: uuid.New(), StockUnitID: src.ID, ItemType: src.Category, Quantity: -1, Measure: measure.Neg()},
				{ID: uuid.New(), StockUnitID: dst.ID, ItemType: dst.Category, Quantity: len(pieces), Measure: measure, PieceIDs: ids},
			},
		}
		if err := r.Ledger.Append(ctx, tx); err != nil {
			return nil, err
		}
		if err := r.Ledger.AppendEvents(ctx, events); err != nil {
			return nil, err
		}
		return &opResult{tx: tx, units: []*model.StockUnit{src, dst}, pieceIDs: ids}, nil
	})
}
