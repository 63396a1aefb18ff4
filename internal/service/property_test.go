package service

import (
	"context"
	"testing"

	"tarkostock/internal/apierror"
	"tarkostock/internal/dto"
	"tarkostock/internal/model"
	"tarkostock/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

// TestLifecycle_RandomSequencesStayConsistent drives random operation
// sequences and checks after every step that the validator finds nothing and
// that a rejected operation left the store untouched.
func TestLifecycle_RandomSequencesStayConsistent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(rt)
		ctx := context.Background()
		var committed []uuid.UUID

		f.produceRolls(rt, "R-0", rapid.IntRange(1, 3).Draw(rt, "rolls"), "100")
		f.produceBundles(rt, "S-0", rapid.IntRange(1, 3).Draw(rt, "bundles"), rapid.IntRange(0, 12).Draw(rt, "spares"))

		steps := rapid.IntRange(1, 25).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			before := ledgerSize(rt, f)
			var (
				resp *dto.OperationResponse
				err  error
			)
			switch rapid.SampledFrom([]string{"cut", "split", "combine", "dispatch", "scrap", "revert"}).Draw(rt, "op") {
			case "cut":
				u := pickUnit(rt, f, model.CategoryFullRoll)
				if u == nil {
					continue
				}
				n := rapid.IntRange(1, 3).Draw(rt, "cuts")
				lengths := make([]decimal.Decimal, n)
				for j := range lengths {
					lengths[j] = decimal.NewFromInt(int64(rapid.IntRange(1, 60).Draw(rt, "length")))
				}
				resp, err = f.svc.Cut(ctx, f.actor, dto.CutRequest{StockID: u.ID, CutLengths: lengths})
			case "split":
				u := pickUnit(rt, f, model.CategoryBundle)
				if u == nil {
					continue
				}
				a := rapid.IntRange(1, bundleSize).Draw(rt, "split")
				groups := []int{a}
				if a < bundleSize {
					groups = append(groups, bundleSize-a)
				}
				resp, err = f.svc.SplitBundle(ctx, f.actor, dto.SplitBundleRequest{StockID: u.ID, PiecesToSplit: groups})
			case "combine":
				u := pickUnit(rt, f, model.CategorySpare)
				if u == nil {
					continue
				}
				pieces, lerr := f.store.Reader().Pieces.ListByStockUnit(ctx, u.ID)
				if lerr != nil {
					rt.Fatalf("list pieces: %v", lerr)
				}
				var ids []uuid.UUID
				for _, p := range pieces {
					if p.Countable() && len(ids) < bundleSize {
						ids = append(ids, p.ID)
					}
				}
				if len(ids) == 0 {
					continue
				}
				resp, err = f.svc.CombineSpares(ctx, f.actor, dto.CombineSparesRequest{BatchID: u.BatchID, SparePieceIDs: ids})
			case "dispatch", "scrap":
				u := pickUnit(rt, f, "")
				if u == nil {
					continue
				}
				qty := rapid.IntRange(1, u.Quantity+1).Draw(rt, "qty")
				if rapid.Bool().Draw(rt, "scrap") {
					resp, err = f.svc.Scrap(ctx, f.actor, dto.ScrapRequest{Reason: "damaged",
						Items: []dto.ScrapItem{{StockID: u.ID, QuantityToScrap: qty}}})
				} else {
					resp, err = f.svc.Dispatch(ctx, f.actor, dto.DispatchRequest{CustomerID: f.customer,
						Items: []dto.DispatchItem{{StockID: u.ID, ItemType: string(u.Category), Quantity: qty}}})
				}
			case "revert":
				if len(committed) == 0 {
					continue
				}
				id := rapid.SampledFrom(committed).Draw(rt, "target")
				resp, err = f.svc.Revert(ctx, f.actor, id, dto.RevertRequest{})
			}

			switch {
			case err == nil:
				committed = append(committed, resp.Transaction.ID)
			case apierror.Is(err, apierror.KindValidation), apierror.Is(err, apierror.KindNotFound):
				if after := ledgerSize(rt, f); after != before {
					rt.Fatalf("rejected operation wrote to the ledger: %d -> %d", before, after)
				}
			default:
				rt.Fatalf("unexpected error: %v", err)
			}
			f.requireConsistent(rt)
		}
	})
}

func ledgerSize(rt *rapid.T, f *fixture) int64 {
	_, total, err := f.store.Reader().Ledger.List(context.Background(), repository.TransactionFilter{})
	if err != nil {
		rt.Fatalf("list ledger: %v", err)
	}
	return total
}

// pickUnit draws one live non-empty unit, optionally of one category.
func pickUnit(rt *rapid.T, f *fixture, category model.StockCategory) *model.StockUnit {
	filter := repository.StockFilter{Pagination: repository.Pagination{Limit: 500}}
	if category != "" {
		filter.Category = &category
	}
	units, _, err := f.store.Reader().Stock.List(context.Background(), filter)
	if err != nil {
		rt.Fatalf("list stock: %v", err)
	}
	if len(units) == 0 {
		return nil
	}
	return &units[rapid.IntRange(0, len(units)-1).Draw(rt, "unit")]
}
