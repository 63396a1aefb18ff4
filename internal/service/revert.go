package service

import (
	"context"
	"encoding/json"
	"time"

	"tarkostock/internal/apierror"
	"tarkostock/internal/dto"
	"tarkostock/internal/model"
	"tarkostock/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const opRevert = "revert"

// ── Revert ────────────────────────────────────────────────────────────────────
// Writes an ADJUSTMENT that undoes the stock effect of an earlier transaction.
//
//   DISPATCH / SALE / SCRAP  the pieces recorded on the original items go back to
//                            IN_STOCK (deleted pieces are skipped) and scalar
//                            quantities are restored, one write per stock unit.
//   CUT_ROLL / SPLIT_BUNDLE  the pieces the original created must all still be in
//                            stock; they are deleted and the source unit regains
//                            its roll or bundle.
//
// A transaction is reverted at most once: the ADJUSTMENT's reverses reference
// is unique in the ledger.

func (s *lifecycleService) Revert(ctx context.Context, actorID uuid.UUID, transactionID uuid.UUID, req dto.RevertRequest) (*dto.OperationResponse, error) {
	if transactionID == uuid.Nil {
		return nil, apierror.Validation(opRevert, "transaction id is required")
	}
	attrs := []attribute.KeyValue{attribute.String("transaction.reverted", transactionID.String())}
	return s.execute(ctx, opRevert, attrs, func(ctx context.Context, r repository.Repos, txID uuid.UUID) (*opResult, error) {
		orig, err := r.Ledger.FindByID(ctx, transactionID)
		if err != nil {
			return nil, notFoundAs(err, opRevert, "transaction not found", "transaction_id", transactionID)
		}
		if !orig.Type.Revertible() {
			return nil, apierror.Validation(opRevert, "transaction type cannot be reverted").
				With("transaction_id", orig.ID).With("type", orig.Type)
		}
		prior, err := r.Ledger.FindReversal(ctx, orig.ID)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return nil, apierror.Validation(opRevert, "transaction already reverted").
				With("transaction_id", orig.ID).With("reverted_by", prior.ID)
		}

		actor := actorRef(actorID)
		var res *opResult
		switch orig.Type {
		case model.TxDispatch, model.TxSale, model.TxScrap:
			res, err = revertConsumption(ctx, r, orig, txID, actor)
		case model.TxCutRoll:
			res, err = revertCut(ctx, r, orig, txID, actor)
		case model.TxSplitBundle:
			res, err = revertSplit(ctx, r, orig, txID, actor)
		}
		if err != nil {
			return nil, err
		}

		origID := orig.ID
		res.tx.ID = txID
		res.tx.Type = model.TxAdjustment
		res.tx.BatchID = orig.BatchID
		res.tx.ActorID = actor
		res.tx.CustomerID = orig.CustomerID
		res.tx.Reason = req.Reason
		res.tx.ReversesTransactionID = &origID
		if err := r.Ledger.Append(ctx, res.tx); err != nil {
			return nil, err
		}
		return res, nil
	})
}

// revertConsumption restores a dispatch, sale or scrap. Items are grouped by
// stock unit so each unit gets exactly one quantity write.
func revertConsumption(ctx context.Context, r repository.Repos, orig *model.Transaction, txID uuid.UUID, actor *uuid.UUID) (*opResult, error) {
	expected := model.PieceDispatched
	if orig.Type == model.TxScrap {
		expected = model.PieceScrapped
	}

	type group struct {
		scalar   int
		pieceIDs []uuid.UUID
	}
	groups := map[uuid.UUID]*group{}
	var order []uuid.UUID
	for _, it := range orig.Items {
		g, ok := groups[it.StockUnitID]
		if !ok {
			g = &group{}
			groups[it.StockUnitID] = g
			order = append(order, it.StockUnitID)
		}
		if len(it.PieceIDs) > 0 {
			g.pieceIDs = append(g.pieceIDs, it.PieceIDs...)
		} else {
			g.scalar += -it.Quantity
		}
	}

	units, err := r.Stock.LockByIDs(ctx, order)
	if err != nil {
		return nil, err
	}

	res := &opResult{tx: &model.Transaction{}}
	var events []model.LifecycleEvent
	perBatch := map[uuid.UUID]decimal.Decimal{}
	var batchOrder []uuid.UUID
	total := decimal.Zero

	for _, stockID := range order {
		u, ok := units[stockID]
		if !ok || !u.Live() {
			return nil, apierror.NotFound(opRevert, "stock unit not found").With("stock_id", stockID)
		}
		g := groups[stockID]
		restored := g.scalar
		measure := u.Measure(g.scalar)
		var restoredIDs []uuid.UUID

		if len(g.pieceIDs) > 0 {
			pieces, err := r.Pieces.LockByIDs(ctx, g.pieceIDs)
			if err != nil {
				return nil, err
			}
			for _, id := range g.pieceIDs {
				p, ok := pieces[id]
				if !ok || !p.Live() {
					continue
				}
				if p.Status != expected {
					return nil, apierror.Validation(opRevert, "piece is no longer in the reverted state").
						With("piece_id", id).With("status", p.Status).With("expected", expected)
				}
				if err := transition(ctx, r, p, model.PieceInStock, model.EventRestored, txID, actor, &events); err != nil {
					return nil, err
				}
				restored++
				measure = measure.Add(p.Measure())
				restoredIDs = append(restoredIDs, p.ID)
			}
		}
		if restored == 0 {
			continue
		}
		if err := applyDelta(ctx, r, u, restored); err != nil {
			return nil, err
		}
		if _, seen := perBatch[u.BatchID]; !seen {
			batchOrder = append(batchOrder, u.BatchID)
		}
		perBatch[u.BatchID] = perBatch[u.BatchID].Add(measure)
		total = total.Add(measure)
		res.units = append(res.units, u)
		res.pieceIDs = append(res.pieceIDs, restoredIDs...)
		res.tx.Items = append(res.tx.Items, model.TransactionItem{
			ID:          uuid.New(),
			StockUnitID: u.ID,
			ItemType:    u.Category,
			Quantity:    restored,
			Measure:     measure,
			PieceIDs:    restoredIDs,
		})
	}

	for _, batchID := range batchOrder {
		if err := r.Batches.AdjustCurrent(ctx, batchID, perBatch[batchID]); err != nil {
			return nil, err
		}
	}
	if err := r.Ledger.AppendEvents(ctx, events); err != nil {
		return nil, err
	}
	res.tx.QuantityChange = total
	return res, nil
}

// retireCreated deletes every piece created by orig. All of them must still be
// in stock: a cut or split whose output was partly consumed cannot be undone.
func retireCreated(ctx context.Context, r repository.Repos, orig *model.Transaction, txID uuid.UUID, actor *uuid.UUID, owner uuid.UUID) ([]uuid.UUID, decimal.Decimal, []model.LifecycleEvent, error) {
	pieces, err := r.Pieces.LockCreatedBy(ctx, orig.ID)
	if err != nil {
		return nil, decimal.Zero, nil, err
	}
	now := time.Now().UTC()
	measure := decimal.Zero
	ids := make([]uuid.UUID, 0, len(pieces))
	events := make([]model.LifecycleEvent, 0, len(pieces))
	for _, p := range pieces {
		if !p.Countable() || p.StockUnitID != owner {
			return nil, decimal.Zero, nil, apierror.Validation(opRevert, "pieces created by the transaction were already consumed").
				With("transaction_id", orig.ID).With("piece_id", p.ID).With("status", p.Status)
		}
		from := p.Status
		p.DeletedAt = &now
		p.DeletedByTransactionID = &txID
		if err := r.Pieces.Update(ctx, p); err != nil {
			return nil, decimal.Zero, nil, err
		}
		events = append(events, pieceEvent(p, txID, actor, model.EventDeleted, &from))
		measure = measure.Add(p.Measure())
		ids = append(ids, p.ID)
	}
	return ids, measure, events, nil
}

func revertCut(ctx context.Context, r repository.Repos, orig *model.Transaction, txID uuid.UUID, actor *uuid.UUID) (*opResult, error) {
	var snap cutSnapshot
	if err := json.Unmarshal(orig.Snapshot, &snap); err != nil {
		return nil, apierror.Validation(opRevert, "cut transaction has no readable snapshot").With("transaction_id", orig.ID)
	}
	units, err := r.Stock.LockByIDs(ctx, []uuid.UUID{snap.SourceStockID, snap.CutStockID})
	if err != nil {
		return nil, err
	}
	src, dst := units[snap.SourceStockID], units[snap.CutStockID]
	if src == nil || dst == nil || !src.Live() || !dst.Live() {
		return nil, apierror.NotFound(opRevert, "stock unit not found").
			With("source_stock_id", snap.SourceStockID).With("cut_stock_id", snap.CutStockID)
	}

	ids, measure, events, err := retireCreated(ctx, r, orig, txID, actor, dst.ID)
	if err != nil {
		return nil, err
	}
	if err := applyDelta(ctx, r, dst, -len(ids)); err != nil {
		return nil, err
	}
	if err := applyDelta(ctx, r, src, 1); err != nil {
		return nil, err
	}
	if snap.Offcut.IsPositive() {
		if err := r.Batches.AdjustCurrent(ctx, src.BatchID, snap.Offcut); err != nil {
			return nil, err
		}
	}
	if err := r.Ledger.AppendEvents(ctx, events); err != nil {
		return nil, err
	}
	return &opResult{
		tx: &model.Transaction{
			QuantityChange: snap.Offcut,
			Items: []model.TransactionItem{
				{ID: uuid.New(), StockUnitID: src.ID, ItemType: src.Category, Quantity: 1, Measure: snap.RollLength},
				{ID: uuid.New(), StockUnitID: dst.ID, ItemType: dst.Category, Quantity: -len(ids), Measure: measure.Neg(), PieceIDs: ids},
			},
		},
		units:    []*model.StockUnit{src, dst},
		pieceIDs: ids,
	}, nil
}

func revertSplit(ctx context.Context, r repository.Repos, orig *model.Transaction, txID uuid.UUID, actor *uuid.UUID) (*opResult, error) {
	var snap splitSnapshot
	if err := json.Unmarshal(orig.Snapshot, &snap); err != nil {
		return nil, apierror.Validation(opRevert, "split transaction has no readable snapshot").With("transaction_id", orig.ID)
	}
	units, err := r.Stock.LockByIDs(ctx, []uuid.UUID{snap.SourceStockID, snap.SpareStockID})
	if err != nil {
		return nil, err
	}
	src, dst := units[snap.SourceStockID], units[snap.SpareStockID]
	if src == nil || dst == nil || !src.Live() || !dst.Live() {
		return nil, apierror.NotFound(opRevert, "stock unit not found").
			With("source_stock_id", snap.SourceStockID).With("spare_stock_id", snap.SpareStockID)
	}

	ids, measure, events, err := retireCreated(ctx, r, orig, txID, actor, dst.ID)
	if err != nil {
		return nil, err
	}
	if err := applyDelta(ctx, r, dst, -len(ids)); err != nil {
		return nil, err
	}
	if err := applyDelta(ctx, r, src, 1); err != nil {
		return nil, err
	}
	if err := r.Ledger.AppendEvents(ctx, events); err != nil {
		return nil, err
	}
	return &opResult{
		tx: &model.Transaction{
			QuantityChange: decimal.Zero,
			Items: []model.TransactionItem{
				{ID: uuid.New(), StockUnitID: src.ID, ItemType: src.Category, Quantity: 1, Measure: measure},
				{ID: uuid.New(), StockUnitID: dst.ID, ItemType: dst.Category, Quantity: -len(ids), Measure: measure.Neg(), PieceIDs: ids},
			},
		},
		units:    []*model.StockUnit{src, dst},
		pieceIDs: ids,
	}, nil
}
