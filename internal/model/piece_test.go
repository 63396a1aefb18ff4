package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPiece_ValidateNew(t *testing.T) {
	creator := uuid.New()
	assert.NoError(t, (&Piece{PieceCount: 1, CreatedByTransactionID: creator}).ValidateNew())
	assert.ErrorIs(t, (&Piece{PieceCount: 2, CreatedByTransactionID: creator}).ValidateNew(), ErrPieceCount)
	assert.ErrorIs(t, (&Piece{PieceCount: 0, CreatedByTransactionID: creator}).ValidateNew(), ErrPieceCount)
	assert.ErrorIs(t, (&Piece{PieceCount: 1}).ValidateNew(), ErrMissingCreator)
}

func TestGuardCreatorTransaction(t *testing.T) {
	id := uuid.New()
	assert.NoError(t, GuardCreatorTransaction(id, id))
	assert.ErrorIs(t, GuardCreatorTransaction(id, uuid.New()), ErrCreatorImmutable)
	assert.ErrorIs(t, GuardCreatorTransaction(id, uuid.Nil), ErrCreatorImmutable)
}

func TestPiece_CountableAndMeasure(t *testing.T) {
	length := decimal.RequireFromString("12.5")
	p := &Piece{PieceCount: 1, Status: PieceInStock, Length: &length}
	assert.True(t, p.Countable())
	assert.True(t, p.Measure().Equal(length))

	spare := &Piece{PieceCount: 1, Status: PieceCombined}
	assert.False(t, spare.Countable())
	assert.True(t, spare.Measure().Equal(decimal.NewFromInt(1)))
}

func TestStockUnit_NextStatus(t *testing.T) {
	tests := []struct {
		name   string
		status StockStatus
		qty    int
		delta  int
		want   StockStatus
	}{
		{"emptied", StockPartial, 0, -1, StockSoldOut},
		{"consumed", StockInStock, 3, -1, StockPartial},
		{"refilled", StockSoldOut, 2, 2, StockInStock},
		{"reserved stays reserved", StockReserved, 2, -1, StockReserved},
		{"partial stays partial", StockPartial, 4, 1, StockPartial},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u := &StockUnit{Status: tc.status}
			assert.Equal(t, tc.want, u.NextStatus(tc.qty, tc.delta))
		})
	}
}

func TestStockUnit_Measure(t *testing.T) {
	length := decimal.NewFromInt(100)
	size := 10
	assert.True(t, (&StockUnit{Category: CategoryFullRoll, LengthPerUnit: &length}).Measure(3).Equal(decimal.NewFromInt(300)))
	assert.True(t, (&StockUnit{Category: CategoryBundle, PiecesPerBundle: &size}).Measure(2).Equal(decimal.NewFromInt(20)))
	assert.True(t, (&StockUnit{Category: CategoryFullRoll}).Measure(3).IsZero())
	assert.True(t, CategoryCutRoll.Splittable())
	assert.False(t, CategoryBundle.Splittable())
	assert.False(t, StockCategory("PALLET").Valid())
}

func TestVariant_MissingParameters(t *testing.T) {
	pt := &ProductType{RequiredParameters: []string{"OD", "PN", "PE"}}
	v := &ProductVariant{Parameters: map[string]interface{}{"OD": "32", "PN": ""}}
	assert.Equal(t, []string{"PN", "PE"}, v.MissingParameters(pt))
}
