package service

import (
	"context"
	"testing"

	"tarkostock/internal/dto"
	"tarkostock/internal/model"
	"tarkostock/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

const bundleSize = 10

// fixture is a memory-backed service stack with a seeded catalog:
// one roll variant, one bundle variant of bundleSize pieces and one customer.
type fixture struct {
	store    *repository.MemoryStore
	svc      LifecycleService
	ledger   LedgerService
	checker  ConsistencyService
	roll     uuid.UUID
	bundle   uuid.UUID
	customer uuid.UUID
	actor    uuid.UUID
}

func newFixture(t require.TestingT) *fixture {
	store := repository.NewMemoryStore()
	f := &fixture{
		store:    store,
		svc:      NewLifecycleService(store, nil, Options{ConflictRetries: 2}),
		ledger:   NewLedgerService(store),
		checker:  NewConsistencyService(store),
		roll:     uuid.New(),
		bundle:   uuid.New(),
		customer: uuid.New(),
		actor:    uuid.New(),
	}
	size := bundleSize
	err := store.InTx(context.Background(), func(r repository.Repos) error {
		hdpe := &model.ProductType{ID: uuid.New(), Name: "HDPE Pipe", Kind: model.ProductKindRoll,
			RequiredParameters: datatypes.JSONSlice[string]{"OD", "PN"}}
		sprinkler := &model.ProductType{ID: uuid.New(), Name: "Sprinkler Pipe", Kind: model.ProductKindBundle,
			RequiredParameters: datatypes.JSONSlice[string]{"OD"}}
		brand := &model.Brand{ID: uuid.New(), Name: "Tarko"}
		for _, pt := range []*model.ProductType{hdpe, sprinkler} {
			if err := r.Catalog.CreateProductType(context.Background(), pt); err != nil {
				return err
			}
		}
		if err := r.Catalog.CreateBrand(context.Background(), brand); err != nil {
			return err
		}
		variants := []*model.ProductVariant{
			{ID: f.roll, ProductTypeID: hdpe.ID, BrandID: brand.ID, Active: true,
				Parameters: datatypes.JSONMap{"OD": "32", "PN": "6"}},
			{ID: f.bundle, ProductTypeID: sprinkler.ID, BrandID: brand.ID, Active: true,
				Parameters: datatypes.JSONMap{"OD": "16"}, PiecesPerBundle: &size},
		}
		for _, v := range variants {
			if err := r.Catalog.CreateVariant(context.Background(), v); err != nil {
				return err
			}
		}
		return r.Catalog.CreateCustomer(context.Background(), &model.Customer{ID: f.customer, Name: "Demo Farms", Active: true})
	})
	require.NoError(t, err)
	return f
}

func meters(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func (f *fixture) produceRolls(t require.TestingT, code string, count int, length string) *dto.OperationResponse {
	resp, err := f.svc.Produce(context.Background(), f.actor, dto.ProduceRequest{
		ProductVariantID: f.roll,
		BatchCode:        code,
		Rolls:            []dto.RollLine{{Count: count, Length: meters(length)}},
	})
	require.NoError(t, err)
	return resp
}

func (f *fixture) produceBundles(t require.TestingT, code string, bundles, spares int) *dto.OperationResponse {
	req := dto.ProduceRequest{ProductVariantID: f.bundle, BatchCode: code, SparePieces: spares}
	if bundles > 0 {
		req.Bundles = []dto.BundleLine{{Count: bundles, PiecesPerBundle: bundleSize}}
	}
	resp, err := f.svc.Produce(context.Background(), f.actor, req)
	require.NoError(t, err)
	return resp
}

func (f *fixture) unit(t require.TestingT, id uuid.UUID) *model.StockUnit {
	u, err := f.store.Reader().Stock.FindByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (f *fixture) batch(t require.TestingT, id uuid.UUID) *model.Batch {
	b, err := f.store.Reader().Batches.FindByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) piece(t require.TestingT, id uuid.UUID) *model.Piece {
	p, err := f.store.Reader().Pieces.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

// requireConsistent runs the validator and fails on any violation.
func (f *fixture) requireConsistent(t require.TestingT) {
	report, err := f.checker.Validate(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Violations)
	require.True(t, report.Consistent)
}

func stockOf(t *testing.T, resp *dto.OperationResponse, category model.StockCategory) dto.StockUnitResponse {
	t.Helper()
	for _, u := range resp.Stock {
		if u.Category == string(category) {
			return u
		}
	}
	t.Fatalf("no %s unit in response", category)
	return dto.StockUnitResponse{}
}
