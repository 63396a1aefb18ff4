package service

import (
	"context"
	"testing"

	"tarkostock/internal/apierror"
	"tarkostock/internal/dto"
	"tarkostock/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevert_DispatchRestoresSamePieces(t *testing.T) {
	f := newFixture(t)
	prod := f.produceRolls(t, "B-500", 1, "500")
	cut, err := f.svc.Cut(context.Background(), f.actor, dto.CutRequest{
		StockID:    stockOf(t, prod, model.CategoryFullRoll).ID,
		CutLengths: []decimal.Decimal{meters("100"), meters("150"), meters("200")},
	})
	require.NoError(t, err)
	cutUnit := stockOf(t, cut, model.CategoryCutRoll)
	pinned := []uuid.UUID{cut.PieceIDs[2], cut.PieceIDs[0]}
	disp, err := f.svc.Dispatch(context.Background(), f.actor, dto.DispatchRequest{
		CustomerID: f.customer,
		Items:      []dto.DispatchItem{{StockID: cutUnit.ID, ItemType: "CUT_ROLL", Quantity: 2, PieceIDs: pinned}},
	})
	require.NoError(t, err)
	assertMeasure(t, "150", f.batch(t, prod.Batch.ID).CurrentQuantity)

	reason := "wrong customer"
	rev, err := f.svc.Revert(context.Background(), f.actor, disp.Transaction.ID, dto.RevertRequest{Reason: &reason})
	require.NoError(t, err)

	tx := rev.Transaction
	assert.Equal(t, string(model.TxAdjustment), tx.Type)
	require.NotNil(t, tx.ReversesTransactionID)
	assert.Equal(t, disp.Transaction.ID, *tx.ReversesTransactionID)
	assertMeasure(t, "300", tx.QuantityChange)
	require.NotNil(t, tx.Reason)
	assert.Equal(t, reason, *tx.Reason)
	assert.ElementsMatch(t, pinned, rev.PieceIDs)

	for _, id := range cut.PieceIDs {
		p := f.piece(t, id)
		assert.Equal(t, model.PieceInStock, p.Status)
		assert.Equal(t, cut.Transaction.ID, p.CreatedByTransactionID)
	}
	assert.Equal(t, 3, f.unit(t, cutUnit.ID).Quantity)
	assertMeasure(t, "450", f.batch(t, prod.Batch.ID).CurrentQuantity)
	f.requireConsistent(t)
}

func TestRevert_ScalarDispatch(t *testing.T) {
	f := newFixture(t)
	prod := f.produceBundles(t, "S-1", 4, 0)
	bundle := stockOf(t, prod, model.CategoryBundle)
	disp, err := f.svc.Dispatch(context.Background(), f.actor, dto.DispatchRequest{
		CustomerID: f.customer,
		Items:      []dto.DispatchItem{{StockID: bundle.ID, ItemType: "BUNDLE", Quantity: 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StockSoldOut, f.unit(t, bundle.ID).Status)

	rev, err := f.svc.Revert(context.Background(), f.actor, disp.Transaction.ID, dto.RevertRequest{})
	require.NoError(t, err)

	assertMeasure(t, "40", rev.Transaction.QuantityChange)
	u := f.unit(t, bundle.ID)
	assert.Equal(t, 4, u.Quantity)
	assert.Equal(t, model.StockInStock, u.Status)
	assertMeasure(t, "40", f.batch(t, prod.Batch.ID).CurrentQuantity)
	f.requireConsistent(t)
}

func TestRevert_Scrap(t *testing.T) {
	f := newFixture(t)
	prod := f.produceBundles(t, "S-1", 0, 3)
	spare := stockOf(t, prod, model.CategorySpare)
	scrap, err := f.svc.Scrap(context.Background(), f.actor, dto.ScrapRequest{
		Reason: "kinked",
		Items:  []dto.ScrapItem{{StockID: spare.ID, QuantityToScrap: 2}},
	})
	require.NoError(t, err)

	_, err = f.svc.Revert(context.Background(), f.actor, scrap.Transaction.ID, dto.RevertRequest{})
	require.NoError(t, err)

	for _, id := range prod.PieceIDs {
		assert.Equal(t, model.PieceInStock, f.piece(t, id).Status)
	}
	assert.Equal(t, 3, f.unit(t, spare.ID).Quantity)
	f.requireConsistent(t)
}

func TestRevert_CutRestoresRollAndOffcut(t *testing.T) {
	f := newFixture(t)
	prod := f.produceRolls(t, "B-500", 1, "500")
	full := stockOf(t, prod, model.CategoryFullRoll)
	cut, err := f.svc.Cut(context.Background(), f.actor, dto.CutRequest{
		StockID:    full.ID,
		CutLengths: []decimal.Decimal{meters("100"), meters("150"), meters("200")},
	})
	require.NoError(t, err)

	rev, err := f.svc.Revert(context.Background(), f.actor, cut.Transaction.ID, dto.RevertRequest{})
	require.NoError(t, err)

	assertMeasure(t, "50", rev.Transaction.QuantityChange)
	assert.ElementsMatch(t, cut.PieceIDs, rev.PieceIDs)
	u := f.unit(t, full.ID)
	assert.Equal(t, 1, u.Quantity)
	assert.Equal(t, model.StockInStock, u.Status)
	assert.Equal(t, 0, f.unit(t, stockOf(t, cut, model.CategoryCutRoll).ID).Quantity)
	for _, id := range cut.PieceIDs {
		p := f.piece(t, id)
		assert.False(t, p.Live())
		require.NotNil(t, p.DeletedByTransactionID)
		assert.Equal(t, rev.Transaction.ID, *p.DeletedByTransactionID)
		assert.Equal(t, cut.Transaction.ID, p.CreatedByTransactionID)
	}
	assertMeasure(t, "500", f.batch(t, prod.Batch.ID).CurrentQuantity)
	f.requireConsistent(t)
}

func TestRevert_CutAfterPartialConsumptionFails(t *testing.T) {
	f := newFixture(t)
	prod := f.produceRolls(t, "B-500", 1, "500")
	cut, err := f.svc.Cut(context.Background(), f.actor, dto.CutRequest{
		StockID:    stockOf(t, prod, model.CategoryFullRoll).ID,
		CutLengths: []decimal.Decimal{meters("250"), meters("250")},
	})
	require.NoError(t, err)
	_, err = f.svc.Dispatch(context.Background(), f.actor, dto.DispatchRequest{
		CustomerID: f.customer,
		Items:      []dto.DispatchItem{{StockID: stockOf(t, cut, model.CategoryCutRoll).ID, ItemType: "CUT_ROLL", Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = f.svc.Revert(context.Background(), f.actor, cut.Transaction.ID, dto.RevertRequest{})
	require.Error(t, err)
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))

	assert.True(t, f.piece(t, cut.PieceIDs[1]).Live())
	assert.Equal(t, 1, f.unit(t, stockOf(t, cut, model.CategoryCutRoll).ID).Quantity)
	f.requireConsistent(t)
}

func TestRevert_SplitBundle(t *testing.T) {
	f := newFixture(t)
	prod := f.produceBundles(t, "S-1", 1, 2)
	bundle := stockOf(t, prod, model.CategoryBundle)
	split, err := f.svc.SplitBundle(context.Background(), f.actor, dto.SplitBundleRequest{StockID: bundle.ID, PiecesToSplit: []int{bundleSize}})
	require.NoError(t, err)
	assert.Equal(t, 12, stockOf(t, split, model.CategorySpare).Quantity)

	rev, err := f.svc.Revert(context.Background(), f.actor, split.Transaction.ID, dto.RevertRequest{})
	require.NoError(t, err)

	assert.True(t, rev.Transaction.QuantityChange.IsZero())
	assert.Equal(t, 1, f.unit(t, bundle.ID).Quantity)
	assert.Equal(t, 2, f.unit(t, stockOf(t, split, model.CategorySpare).ID).Quantity)
	for _, id := range prod.PieceIDs {
		assert.True(t, f.piece(t, id).Countable())
	}
	f.requireConsistent(t)
}

func TestRevert_AtMostOnce(t *testing.T) {
	f := newFixture(t)
	prod := f.produceRolls(t, "B-1", 2, "100")
	disp, err := f.svc.Dispatch(context.Background(), f.actor, dto.DispatchRequest{
		CustomerID: f.customer,
		Items:      []dto.DispatchItem{{StockID: stockOf(t, prod, model.CategoryFullRoll).ID, ItemType: "FULL_ROLL", Quantity: 1}},
	})
	require.NoError(t, err)

	first, err := f.svc.Revert(context.Background(), f.actor, disp.Transaction.ID, dto.RevertRequest{})
	require.NoError(t, err)
	_, err = f.svc.Revert(context.Background(), f.actor, disp.Transaction.ID, dto.RevertRequest{})
	require.Error(t, err)
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
	var typed *apierror.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, first.Transaction.ID, typed.Details["reverted_by"])

	assertMeasure(t, "200", f.batch(t, prod.Batch.ID).CurrentQuantity)
	f.requireConsistent(t)
}

func TestRevert_Rejections(t *testing.T) {
	f := newFixture(t)
	prod := f.produceBundles(t, "S-1", 0, bundleSize)
	combine, err := f.svc.CombineSpares(context.Background(), f.actor, dto.CombineSparesRequest{BatchID: prod.Batch.ID, SparePieceIDs: prod.PieceIDs})
	require.NoError(t, err)

	tests := []struct {
		name string
		id   uuid.UUID
		kind apierror.Kind
	}{
		{"production", prod.Transaction.ID, apierror.KindValidation},
		{"combine", combine.Transaction.ID, apierror.KindValidation},
		{"unknown", uuid.New(), apierror.KindNotFound},
		{"nil id", uuid.Nil, apierror.KindValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Revert(context.Background(), f.actor, tc.id, dto.RevertRequest{})
			require.Error(t, err)
			assert.Equal(t, tc.kind, apierror.KindOf(err))
		})
	}
}

func TestRevert_AdjustmentItselfIsNotRevertible(t *testing.T) {
	f := newFixture(t)
	prod := f.produceRolls(t, "B-1", 1, "100")
	disp, err := f.svc.Dispatch(context.Background(), f.actor, dto.DispatchRequest{
		CustomerID: f.customer,
		Items:      []dto.DispatchItem{{StockID: stockOf(t, prod, model.CategoryFullRoll).ID, ItemType: "FULL_ROLL", Quantity: 1}},
	})
	require.NoError(t, err)
	rev, err := f.svc.Revert(context.Background(), f.actor, disp.Transaction.ID, dto.RevertRequest{})
	require.NoError(t, err)

	_, err = f.svc.Revert(context.Background(), f.actor, rev.Transaction.ID, dto.RevertRequest{})
	require.Error(t, err)
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
}
