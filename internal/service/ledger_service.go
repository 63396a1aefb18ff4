package service

import (
	"context"
	"time"

	"tarkostock/internal/apierror"
	"tarkostock/internal/dto"
	"tarkostock/internal/model"
	"tarkostock/internal/repository"

	"github.com/google/uuid"
)

// LedgerService serves read-only queries over the ledger, stock and batches.
// It never writes.
type LedgerService interface {
	ListTransactions(ctx context.Context, filter dto.TransactionFilter) (*dto.TransactionListResponse, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*dto.TransactionResponse, error)
	PieceHistory(ctx context.Context, pieceID uuid.UUID) (*dto.PieceHistoryResponse, error)
	ListStock(ctx context.Context, filter dto.StockFilter) (*dto.StockListResponse, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*dto.BatchResponse, error)
}

type ledgerService struct {
	store repository.Store
}

func NewLedgerService(store repository.Store) LedgerService {
	return &ledgerService{store: store}
}

func (s *ledgerService) ListTransactions(ctx context.Context, f dto.TransactionFilter) (*dto.TransactionListResponse, error) {
	filter, err := transactionFilter(f)
	if err != nil {
		return nil, err
	}
	ts, total, err := s.store.Reader().Ledger.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	resp := &dto.TransactionListResponse{Data: make([]dto.TransactionResponse, 0, len(ts)), Total: total, Page: f.Page, Limit: f.Limit}
	for i := range ts {
		resp.Data = append(resp.Data, transactionToResponse(&ts[i]))
	}
	return resp, nil
}

func (s *ledgerService) GetTransaction(ctx context.Context, id uuid.UUID) (*dto.TransactionResponse, error) {
	t, err := s.store.Reader().Ledger.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "ledger.get", "transaction not found", "transaction_id", id)
	}
	resp := transactionToResponse(t)
	return &resp, nil
}

func (s *ledgerService) PieceHistory(ctx context.Context, pieceID uuid.UUID) (*dto.PieceHistoryResponse, error) {
	r := s.store.Reader()
	p, err := r.Pieces.FindByID(ctx, pieceID)
	if err != nil {
		return nil, notFoundAs(err, "ledger.piece_history", "piece not found", "piece_id", pieceID)
	}
	events, err := r.Ledger.PieceHistory(ctx, pieceID)
	if err != nil {
		return nil, err
	}
	resp := &dto.PieceHistoryResponse{
		PieceID:                p.ID,
		StockUnitID:            p.StockUnitID,
		Status:                 string(p.Status),
		Length:                 p.Length,
		CreatedByTransactionID: p.CreatedByTransactionID,
		DeletedByTransactionID: p.DeletedByTransactionID,
		Version:                p.Version,
		Events:                 make([]dto.LifecycleEventResponse, 0, len(events)),
	}
	for _, e := range events {
		resp.Events = append(resp.Events, eventToResponse(e))
	}
	return resp, nil
}

func (s *ledgerService) ListStock(ctx context.Context, f dto.StockFilter) (*dto.StockListResponse, error) {
	filter, err := stockFilter(f)
	if err != nil {
		return nil, err
	}
	units, total, err := s.store.Reader().Stock.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	resp := &dto.StockListResponse{Data: make([]dto.StockUnitResponse, 0, len(units)), Total: total, Page: f.Page, Limit: f.Limit}
	for i := range units {
		resp.Data = append(resp.Data, stockUnitToResponse(&units[i]))
	}
	return resp, nil
}

func (s *ledgerService) GetBatch(ctx context.Context, id uuid.UUID) (*dto.BatchResponse, error) {
	r := s.store.Reader()
	b, err := r.Batches.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "ledger.get_batch", "batch not found", "batch_id", id)
	}
	units, err := r.Stock.ListByBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	live := units[:0]
	for _, u := range units {
		if u.Live() {
			live = append(live, u)
		}
	}
	resp := batchToResponse(b, live)
	return &resp, nil
}

// transactionFilter turns query parameters into a structured ledger predicate.
func transactionFilter(f dto.TransactionFilter) (repository.TransactionFilter, error) {
	const op = "ledger.list"
	out := repository.TransactionFilter{Pagination: repository.Pagination{Page: f.Page, Limit: f.Limit}}
	if f.Type != "" {
		t := model.TransactionType(f.Type)
		out.Type = &t
	}
	var err error
	if out.BatchID, err = optionalID(op, "batch_id", f.BatchID); err != nil {
		return out, err
	}
	if out.CustomerID, err = optionalID(op, "customer_id", f.CustomerID); err != nil {
		return out, err
	}
	if out.StockUnitID, err = optionalID(op, "stock_id", f.StockUnitID); err != nil {
		return out, err
	}
	if f.From != "" {
		from, err := time.Parse("2006-01-02", f.From)
		if err != nil {
			return out, apierror.Validation(op, "from must be YYYY-MM-DD").With("from", f.From)
		}
		out.From = &from
	}
	if f.To != "" {
		to, err := time.Parse("2006-01-02", f.To)
		if err != nil {
			return out, apierror.Validation(op, "to must be YYYY-MM-DD").With("to", f.To)
		}
		end := to.AddDate(0, 0, 1)
		out.To = &end
	}
	return out, nil
}

func stockFilter(f dto.StockFilter) (repository.StockFilter, error) {
	const op = "stock.list"
	out := repository.StockFilter{
		IncludeEmpty: f.IncludeEmpty,
		Pagination:   repository.Pagination{Page: f.Page, Limit: f.Limit},
	}
	var err error
	if out.BatchID, err = optionalID(op, "batch_id", f.BatchID); err != nil {
		return out, err
	}
	if out.ProductVariantID, err = optionalID(op, "product_variant_id", f.ProductVariantID); err != nil {
		return out, err
	}
	if f.Category != "" {
		c := model.StockCategory(f.Category)
		if !c.Valid() {
			return out, apierror.Validation(op, "unknown category").With("category", f.Category)
		}
		out.Category = &c
	}
	if f.Status != "" {
		st := model.StockStatus(f.Status)
		out.Status = &st
	}
	return out, nil
}

func optionalID(op, field, raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apierror.Validation(op, field+" must be a uuid").With(field, raw)
	}
	return &id, nil
}
