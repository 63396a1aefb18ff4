package service

import (
	"context"
	"testing"
	"time"

	"tarkostock/internal/apierror"
	"tarkostock/internal/dto"
	"tarkostock/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ledgerScenario produces a roll batch, cuts it, dispatches a piece and
// reverts the dispatch. It returns the transactions in order.
func ledgerScenario(t *testing.T, f *fixture) (prod, cut, disp, rev *dto.OperationResponse) {
	t.Helper()
	prod = f.produceRolls(t, "B-500", 1, "500")
	var err error
	cut, err = f.svc.Cut(context.Background(), f.actor, dto.CutRequest{
		StockID:    stockOf(t, prod, model.CategoryFullRoll).ID,
		CutLengths: []decimal.Decimal{meters("100"), meters("400")},
	})
	require.NoError(t, err)
	disp, err = f.svc.Dispatch(context.Background(), f.actor, dto.DispatchRequest{
		CustomerID: f.customer,
		Items:      []dto.DispatchItem{{StockID: stockOf(t, cut, model.CategoryCutRoll).ID, ItemType: "CUT_ROLL", Quantity: 1}},
	})
	require.NoError(t, err)
	rev, err = f.svc.Revert(context.Background(), f.actor, disp.Transaction.ID, dto.RevertRequest{})
	require.NoError(t, err)
	return prod, cut, disp, rev
}

func TestListTransactions_NewestFirstWithFilters(t *testing.T) {
	f := newFixture(t)
	prod, cut, disp, rev := ledgerScenario(t, f)
	other := f.produceBundles(t, "S-1", 1, 0)
	ctx := context.Background()

	all, err := f.ledger.ListTransactions(ctx, dto.TransactionFilter{Page: 1, Limit: 50})
	require.NoError(t, err)
	require.EqualValues(t, 5, all.Total)
	assert.Equal(t, other.Transaction.ID, all.Data[0].ID)
	assert.Equal(t, prod.Transaction.ID, all.Data[4].ID)

	byBatch, err := f.ledger.ListTransactions(ctx, dto.TransactionFilter{BatchID: prod.Batch.ID.String(), Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.EqualValues(t, 4, byBatch.Total)

	byType, err := f.ledger.ListTransactions(ctx, dto.TransactionFilter{Type: "ADJUSTMENT", Page: 1, Limit: 50})
	require.NoError(t, err)
	require.EqualValues(t, 1, byType.Total)
	assert.Equal(t, rev.Transaction.ID, byType.Data[0].ID)

	byCustomer, err := f.ledger.ListTransactions(ctx, dto.TransactionFilter{CustomerID: f.customer.String(), Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.EqualValues(t, 2, byCustomer.Total)

	cutUnit := stockOf(t, cut, model.CategoryCutRoll).ID
	byStock, err := f.ledger.ListTransactions(ctx, dto.TransactionFilter{StockUnitID: cutUnit.String(), Page: 1, Limit: 50})
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(byStock.Data))
	for _, tx := range byStock.Data {
		ids = append(ids, tx.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{cut.Transaction.ID, disp.Transaction.ID, rev.Transaction.ID}, ids)

	page, err := f.ledger.ListTransactions(ctx, dto.TransactionFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.Total)
	require.Len(t, page.Data, 2)
	assert.Equal(t, disp.Transaction.ID, page.Data[0].ID)
	assert.Equal(t, cut.Transaction.ID, page.Data[1].ID)
}

func TestListTransactions_DateRange(t *testing.T) {
	f := newFixture(t)
	f.produceRolls(t, "B-1", 1, "100")
	today := time.Now().UTC().Format("2006-01-02")
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")

	in, err := f.ledger.ListTransactions(context.Background(), dto.TransactionFilter{From: today, To: today, Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.EqualValues(t, 1, in.Total)

	out, err := f.ledger.ListTransactions(context.Background(), dto.TransactionFilter{To: yesterday, Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.Zero(t, out.Total)

	_, err = f.ledger.ListTransactions(context.Background(), dto.TransactionFilter{From: "19-10-2026", Page: 1, Limit: 50})
	require.Error(t, err)
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
}

func TestGetTransaction(t *testing.T) {
	f := newFixture(t)
	_, cut, _, _ := ledgerScenario(t, f)

	tx, err := f.ledger.GetTransaction(context.Background(), cut.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.TxCutRoll), tx.Type)
	assert.Len(t, tx.Items, 2)
	assert.NotEmpty(t, tx.Snapshot)

	_, err = f.ledger.GetTransaction(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))
}

func TestPieceHistory(t *testing.T) {
	f := newFixture(t)
	_, cut, disp, rev := ledgerScenario(t, f)
	pieceID := cut.PieceIDs[0]

	h, err := f.ledger.PieceHistory(context.Background(), pieceID)
	require.NoError(t, err)
	assert.Equal(t, cut.Transaction.ID, h.CreatedByTransactionID)
	assert.Equal(t, string(model.PieceInStock), h.Status)
	require.Len(t, h.Events, 3)

	assert.Equal(t, string(model.EventCreated), h.Events[0].Event)
	assert.Nil(t, h.Events[0].FromStatus)
	assert.Equal(t, cut.Transaction.ID, h.Events[0].TransactionID)
	assert.Equal(t, string(model.EventDispatched), h.Events[1].Event)
	assert.Equal(t, disp.Transaction.ID, h.Events[1].TransactionID)
	assert.Equal(t, string(model.EventRestored), h.Events[2].Event)
	require.NotNil(t, h.Events[2].FromStatus)
	assert.Equal(t, string(model.PieceDispatched), *h.Events[2].FromStatus)
	assert.Equal(t, rev.Transaction.ID, h.Events[2].TransactionID)
	require.NotNil(t, h.Events[2].ActorID)
	assert.Equal(t, f.actor, *h.Events[2].ActorID)

	_, err = f.ledger.PieceHistory(context.Background(), uuid.New())
	assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))
}

func TestListStock(t *testing.T) {
	f := newFixture(t)
	rolls := f.produceRolls(t, "B-1", 1, "100")
	_, err := f.svc.Cut(context.Background(), f.actor, dto.CutRequest{
		StockID:    stockOf(t, rolls, model.CategoryFullRoll).ID,
		CutLengths: []decimal.Decimal{meters("50")},
	})
	require.NoError(t, err)
	f.produceBundles(t, "S-1", 2, 1)
	ctx := context.Background()

	def, err := f.ledger.ListStock(ctx, dto.StockFilter{Page: 1, Limit: 100})
	require.NoError(t, err)
	assert.EqualValues(t, 3, def.Total)

	withEmpty, err := f.ledger.ListStock(ctx, dto.StockFilter{IncludeEmpty: true, Page: 1, Limit: 100})
	require.NoError(t, err)
	assert.EqualValues(t, 4, withEmpty.Total)

	spares, err := f.ledger.ListStock(ctx, dto.StockFilter{Category: "SPARE", Page: 1, Limit: 100})
	require.NoError(t, err)
	require.EqualValues(t, 1, spares.Total)
	assert.Equal(t, "S-1", spares.Data[0].BatchCode)

	byVariant, err := f.ledger.ListStock(ctx, dto.StockFilter{ProductVariantID: f.roll.String(), Page: 1, Limit: 100})
	require.NoError(t, err)
	assert.EqualValues(t, 1, byVariant.Total)

	byBatch, err := f.ledger.ListStock(ctx, dto.StockFilter{BatchID: rolls.Batch.ID.String(), IncludeEmpty: true, Page: 1, Limit: 100})
	require.NoError(t, err)
	assert.EqualValues(t, 2, byBatch.Total)

	_, err = f.ledger.ListStock(ctx, dto.StockFilter{BatchID: "not-a-uuid", Page: 1, Limit: 100})
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
}

func TestGetBatch(t *testing.T) {
	f := newFixture(t)
	prod := f.produceBundles(t, "S-1", 2, 3)

	b, err := f.ledger.GetBatch(context.Background(), prod.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, "S-1", b.BatchCode)
	assert.Len(t, b.Stock, 2)
	assertMeasure(t, "23", b.CurrentQuantity)

	_, err = f.ledger.GetBatch(context.Background(), uuid.New())
	assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))
}
