package service

import (
	"context"
	"strings"

	"tarkostock/internal/apierror"
	"tarkostock/internal/dto"
	"tarkostock/internal/model"
	"tarkostock/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	opDispatch = "dispatch"
	opScrap    = "scrap"
)

// consumeLine is one stock unit's share of a dispatch or scrap, after items
// addressing the same unit have been merged.
type consumeLine struct {
	stockID        uuid.UUID
	itemType       model.StockCategory
	variantIDs     []uuid.UUID
	quantity       int
	pieceIDs       []uuid.UUID
	estimatedValue *decimal.Decimal
	notes          *string
}

// consumePlan parameterizes the shared dispatch/scrap path.
type consumePlan struct {
	op          string
	pieceStatus model.PieceStatus
	event       model.LifecycleEventType
}

// mergeLine folds an item into lines, keeping first-seen order.
func mergeLine(op string, lines []*consumeLine, index map[uuid.UUID]*consumeLine, in consumeLine) ([]*consumeLine, error) {
	if in.stockID == uuid.Nil {
		return nil, apierror.Validation(op, "stock_id is required")
	}
	if in.quantity <= 0 {
		return nil, apierror.Validation(op, "quantity must be positive").
			With("stock_id", in.stockID).With("quantity", in.quantity)
	}
	if len(in.pieceIDs) > 0 && len(in.pieceIDs) != in.quantity {
		return nil, apierror.Validation(op, "piece_ids must list exactly quantity pieces").
			With("stock_id", in.stockID).With("quantity", in.quantity).With("piece_ids", len(in.pieceIDs))
	}
	cur, ok := index[in.stockID]
	if !ok {
		cp := in
		index[in.stockID] = &cp
		return append(lines, &cp), nil
	}
	if in.itemType != "" && cur.itemType != "" && in.itemType != cur.itemType {
		return nil, apierror.Validation(op, "conflicting item_type for the same stock unit").With("stock_id", in.stockID)
	}
	if (len(cur.pieceIDs) > 0) != (len(in.pieceIDs) > 0) {
		return nil, apierror.Validation(op, "piece_ids must be given for all or none of a stock unit's items").With("stock_id", in.stockID)
	}
	cur.quantity += in.quantity
	cur.pieceIDs = append(cur.pieceIDs, in.pieceIDs...)
	cur.variantIDs = append(cur.variantIDs, in.variantIDs...)
	if in.estimatedValue != nil {
		sum := decimal.Zero
		if cur.estimatedValue != nil {
			sum = *cur.estimatedValue
		}
		sum = sum.Add(*in.estimatedValue)
		cur.estimatedValue = &sum
	}
	return lines, nil
}

func checkDistinctPieces(op string, lines []*consumeLine) error {
	seen := map[uuid.UUID]struct{}{}
	for _, l := range lines {
		for _, id := range l.pieceIDs {
			if _, dup := seen[id]; dup {
				return apierror.Validation(op, "piece listed twice").With("piece_id", id)
			}
			seen[id] = struct{}{}
		}
	}
	return nil
}

// consume applies every line inside the current unit of work: it locks the
// units, retires the pieces or scalar quantity, and lowers the batches.
// It returns the transaction items, the piece events and the touched units.
func consume(ctx context.Context, r repository.Repos, plan consumePlan, lines []*consumeLine, txID uuid.UUID, actor *uuid.UUID) ([]model.TransactionItem, []model.LifecycleEvent, []*model.StockUnit, decimal.Decimal, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.stockID)
	}
	units, err := r.Stock.LockByIDs(ctx, ids)
	if err != nil {
		return nil, nil, nil, decimal.Zero, err
	}

	var (
		items      []model.TransactionItem
		events     []model.LifecycleEvent
		touched    []*model.StockUnit
		total      = decimal.Zero
		perBatch   = map[uuid.UUID]decimal.Decimal{}
		batchOrder []uuid.UUID
	)
	for _, l := range lines {
		u, ok := units[l.stockID]
		if !ok || !u.Live() {
			return nil, nil, nil, decimal.Zero, apierror.NotFound(plan.op, "stock unit not found").With("stock_id", l.stockID)
		}
		if l.itemType != "" && l.itemType != u.Category {
			return nil, nil, nil, decimal.Zero, apierror.Validation(plan.op, "item_type does not match stock category").
				With("stock_id", u.ID).With("item_type", l.itemType).With("category", u.Category)
		}
		if len(l.variantIDs) > 0 {
			batch, err := r.Batches.FindByID(ctx, u.BatchID)
			if err != nil {
				return nil, nil, nil, decimal.Zero, notFoundAs(err, plan.op, "batch not found", "batch_id", u.BatchID)
			}
			for _, v := range l.variantIDs {
				if v != batch.ProductVariantID {
					return nil, nil, nil, decimal.Zero, apierror.Validation(plan.op, "product_variant_id does not match stock").
						With("stock_id", u.ID).With("product_variant_id", v)
				}
			}
		}
		if err := consumable(plan.op, u); err != nil {
			return nil, nil, nil, decimal.Zero, err
		}
		if l.quantity > u.Quantity {
			return nil, nil, nil, decimal.Zero, apierror.Validation(plan.op, "insufficient quantity").
				With("stock_id", u.ID).With("requested", l.quantity).With("available", u.Quantity)
		}

		measure := u.Measure(l.quantity)
		var pieceIDs []uuid.UUID
		if u.Category.Splittable() {
			pieces, err := pickPieces(ctx, r, plan.op, u, l)
			if err != nil {
				return nil, nil, nil, decimal.Zero, err
			}
			measure = decimal.Zero
			for _, p := range pieces {
				if err := transition(ctx, r, p, plan.pieceStatus, plan.event, txID, actor, &events); err != nil {
					return nil, nil, nil, decimal.Zero, err
				}
				measure = measure.Add(p.Measure())
				pieceIDs = append(pieceIDs, p.ID)
			}
		}
		if err := applyDelta(ctx, r, u, -l.quantity); err != nil {
			return nil, nil, nil, decimal.Zero, err
		}

		if _, seen := perBatch[u.BatchID]; !seen {
			batchOrder = append(batchOrder, u.BatchID)
		}
		perBatch[u.BatchID] = perBatch[u.BatchID].Add(measure)
		total = total.Add(measure)
		touched = append(touched, u)
		items = append(items, model.TransactionItem{
			ID:             uuid.New(),
			StockUnitID:    u.ID,
			ItemType:       u.Category,
			Quantity:       -l.quantity,
			Measure:        measure.Neg(),
			PieceIDs:       pieceIDs,
			EstimatedValue: l.estimatedValue,
			Notes:          l.notes,
		})
	}

	for _, batchID := range batchOrder {
		if err := r.Batches.AdjustCurrent(ctx, batchID, perBatch[batchID].Neg()); err != nil {
			return nil, nil, nil, decimal.Zero, err
		}
	}
	return items, events, touched, total, nil
}

// pickPieces resolves the pieces a line retires: the pinned ids, or the
// oldest IN_STOCK pieces of the unit.
func pickPieces(ctx context.Context, r repository.Repos, op string, u *model.StockUnit, l *consumeLine) ([]*model.Piece, error) {
	if len(l.pieceIDs) == 0 {
		pieces, err := r.Pieces.LockOldestInStock(ctx, u.ID, l.quantity)
		if err != nil {
			return nil, err
		}
		if len(pieces) != l.quantity {
			return nil, apierror.Validation(op, "insufficient pieces in stock").
				With("stock_id", u.ID).With("requested", l.quantity).With("available", len(pieces))
		}
		return pieces, nil
	}

	locked, err := r.Pieces.LockByIDs(ctx, l.pieceIDs)
	if err != nil {
		return nil, err
	}
	pieces := make([]*model.Piece, 0, len(l.pieceIDs))
	for _, id := range l.pieceIDs {
		p, ok := locked[id]
		if !ok || !p.Live() {
			return nil, apierror.NotFound(op, "piece not found").With("piece_id", id)
		}
		if p.StockUnitID != u.ID {
			return nil, apierror.Validation(op, "piece does not belong to stock unit").
				With("piece_id", id).With("stock_id", u.ID)
		}
		if p.Status != model.PieceInStock {
			return nil, apierror.Validation(op, "piece is not available").
				With("piece_id", id).With("status", p.Status)
		}
		pieces = append(pieces, p)
	}
	return pieces, nil
}

// ── Dispatch ──────────────────────────────────────────────────────────────────

func (s *lifecycleService) Dispatch(ctx context.Context, actorID uuid.UUID, req dto.DispatchRequest) (*dto.OperationResponse, error) {
	if req.CustomerID == uuid.Nil {
		return nil, apierror.Validation(opDispatch, "customer_id is required")
	}
	if len(req.Items) == 0 {
		return nil, apierror.Validation(opDispatch, "items must not be empty")
	}
	txType := model.TxDispatch
	switch req.Type {
	case "", string(model.TxDispatch):
	case string(model.TxSale):
		txType = model.TxSale
	default:
		return nil, apierror.Validation(opDispatch, "type must be DISPATCH or SALE").With("type", req.Type)
	}

	var lines []*consumeLine
	index := map[uuid.UUID]*consumeLine{}
	for i, it := range req.Items {
		category := model.StockCategory(it.ItemType)
		if category == "" {
			return nil, apierror.Validation(opDispatch, "item_type is required").With("index", i).With("stock_id", it.StockID)
		}
		if !category.Valid() {
			return nil, apierror.Validation(opDispatch, "unknown item_type").With("index", i).With("item_type", it.ItemType)
		}
		line := consumeLine{stockID: it.StockID, itemType: category, quantity: it.Quantity, pieceIDs: it.PieceIDs}
		if it.ProductVariantID != nil {
			line.variantIDs = []uuid.UUID{*it.ProductVariantID}
		}
		var err error
		if lines, err = mergeLine(opDispatch, lines, index, line); err != nil {
			return nil, err
		}
	}
	if err := checkDistinctPieces(opDispatch, lines); err != nil {
		return nil, err
	}

	plan := consumePlan{op: opDispatch, pieceStatus: model.PieceDispatched, event: model.EventDispatched}
	attrs := []attribute.KeyValue{
		attribute.String("customer.id", req.CustomerID.String()),
		attribute.Int("dispatch.lines", len(lines)),
	}
	return s.execute(ctx, opDispatch, attrs, func(ctx context.Context, r repository.Repos, txID uuid.UUID) (*opResult, error) {
		if _, err := r.Catalog.FindCustomer(ctx, req.CustomerID); err != nil {
			return nil, notFoundAs(err, opDispatch, "customer not found", "customer_id", req.CustomerID)
		}
		actor := actorRef(actorID)
		items, events, units, total, err := consume(ctx, r, plan, lines, txID, actor)
		if err != nil {
			return nil, err
		}
		customerID := req.CustomerID
		tx := &model.Transaction{
			ID:             txID,
			Type:           txType,
			BatchID:        singleBatch(units),
			QuantityChange: total.Neg(),
			ActorID:        actor,
			CustomerID:     &customerID,
			InvoiceNumber:  req.InvoiceNumber,
			Notes:          req.Notes,
			Items:          items,
		}
		if err := r.Ledger.Append(ctx, tx); err != nil {
			return nil, err
		}
		if err := r.Ledger.AppendEvents(ctx, events); err != nil {
			return nil, err
		}
		return &opResult{tx: tx, units: units, pieceIDs: eventPieces(events)}, nil
	})
}

// ── Scrap ─────────────────────────────────────────────────────────────────────

func (s *lifecycleService) Scrap(ctx context.Context, actorID uuid.UUID, req dto.ScrapRequest) (*dto.OperationResponse, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apierror.Validation(opScrap, "reason is required")
	}
	if len(req.Items) == 0 {
		return nil, apierror.Validation(opScrap, "items must not be empty")
	}

	var lines []*consumeLine
	index := map[uuid.UUID]*consumeLine{}
	for i, it := range req.Items {
		if it.EstimatedValue != nil && it.EstimatedValue.IsNegative() {
			return nil, apierror.Validation(opScrap, "estimated_value must not be negative").
				With("index", i).With("stock_id", it.StockID)
		}
		line := consumeLine{
			stockID:        it.StockID,
			quantity:       it.QuantityToScrap,
			pieceIDs:       it.PieceIDs,
			estimatedValue: it.EstimatedValue,
			notes:          it.Notes,
		}
		var err error
		if lines, err = mergeLine(opScrap, lines, index, line); err != nil {
			return nil, err
		}
	}
	if err := checkDistinctPieces(opScrap, lines); err != nil {
		return nil, err
	}

	plan := consumePlan{op: opScrap, pieceStatus: model.PieceScrapped, event: model.EventScrapped}
	attrs := []attribute.KeyValue{attribute.Int("scrap.lines", len(lines))}
	return s.execute(ctx, opScrap, attrs, func(ctx context.Context, r repository.Repos, txID uuid.UUID) (*opResult, error) {
		actor := actorRef(actorID)
		items, events, units, total, err := consume(ctx, r, plan, lines, txID, actor)
		if err != nil {
			return nil, err
		}
		var loss *decimal.Decimal
		for _, l := range lines {
			if l.estimatedValue == nil {
				continue
			}
			sum := l.estimatedValue.Copy()
			if loss != nil {
				sum = sum.Add(*loss)
			}
			loss = &sum
		}
		tx := &model.Transaction{
			ID:             txID,
			Type:           model.TxScrap,
			BatchID:        singleBatch(units),
			QuantityChange: total.Neg(),
			ActorID:        actor,
			Reason:         &reason,
			EffectiveDate:  req.ScrapDate,
			Notes:          req.Notes,
			EstimatedLoss:  loss,
			Items:          items,
		}
		if err := r.Ledger.Append(ctx, tx); err != nil {
			return nil, err
		}
		if err := r.Ledger.AppendEvents(ctx, events); err != nil {
			return nil, err
		}
		return &opResult{tx: tx, units: units, pieceIDs: eventPieces(events)}, nil
	})
}

// singleBatch returns the batch shared by every unit, or nil for a mixed set.
func singleBatch(units []*model.StockUnit) *uuid.UUID {
	if len(units) == 0 {
		return nil
	}
	id := units[0].BatchID
	for _, u := range units[1:] {
		if u.BatchID != id {
			return nil
		}
	}
	return &id
}

func eventPieces(events []model.LifecycleEvent) []uuid.UUID {
	if len(events) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.PieceID)
	}
	return ids
}
