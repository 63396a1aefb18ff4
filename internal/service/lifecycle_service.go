package service

import (
	"context"
	"encoding/json"
	"time"

	"tarkostock/internal/apierror"
	"tarkostock/internal/dto"
	"tarkostock/internal/model"
	"tarkostock/internal/repository"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
)

// LifecycleService is the entry point of every stock-changing operation.
// Each call is one atomic unit spanning stock units, pieces and the ledger.
type LifecycleService interface {
	Produce(ctx context.Context, actorID uuid.UUID, req dto.ProduceRequest) (*dto.OperationResponse, error)
	Cut(ctx context.Context, actorID uuid.UUID, req dto.CutRequest) (*dto.OperationResponse, error)
	SplitBundle(ctx context.Context, actorID uuid.UUID, req dto.SplitBundleRequest) (*dto.OperationResponse, error)
	CombineSpares(ctx context.Context, actorID uuid.UUID, req dto.CombineSparesRequest) (*dto.OperationResponse, error)
	Dispatch(ctx context.Context, actorID uuid.UUID, req dto.DispatchRequest) (*dto.OperationResponse, error)
	Scrap(ctx context.Context, actorID uuid.UUID, req dto.ScrapRequest) (*dto.OperationResponse, error)
	Revert(ctx context.Context, actorID uuid.UUID, transactionID uuid.UUID, req dto.RevertRequest) (*dto.OperationResponse, error)
}

// EventPublisher receives every committed ledger transaction. Publishing is
// best-effort and never affects the outcome of the operation.
type EventPublisher interface {
	PublishTransaction(ctx context.Context, t *model.Transaction) error
}

// Options bounds store calls and conflict retries.
type Options struct {
	// Timeout bounds one attempt of an operation, store calls included.
	Timeout time.Duration
	// ConflictRetries is how many times a conflicting attempt is re-run with fresh reads.
	ConflictRetries int
	// RetryInterval is the first backoff interval between attempts.
	RetryInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.ConflictRetries < 0 {
		o.ConflictRetries = 0
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 20 * time.Millisecond
	}
	return o
}

type lifecycleService struct {
	store     repository.Store
	publisher EventPublisher
	opts      Options
	tracer    trace.Tracer
}

func NewLifecycleService(store repository.Store, publisher EventPublisher, opts Options) LifecycleService {
	return &lifecycleService{
		store:     store,
		publisher: publisher,
		opts:      opts.withDefaults(),
		tracer:    otel.Tracer("tarkostock/service"),
	}
}

// unitOfWork is one attempt of an operation. It must derive everything from
// the repositories it is handed: a conflicting attempt is discarded and re-run.
type unitOfWork func(ctx context.Context, r repository.Repos, txID uuid.UUID) (*opResult, error)

type opResult struct {
	tx       *model.Transaction
	batch    *model.Batch
	units    []*model.StockUnit
	pieceIDs []uuid.UUID
}

// execute runs fn inside one store transaction bounded by opts.Timeout and
// retries it on conflict with exponential backoff.
func (s *lifecycleService) execute(ctx context.Context, op string, attrs []attribute.KeyValue, fn unitOfWork) (*dto.OperationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle."+op, trace.WithAttributes(attrs...))
	defer span.End()

	attempt := 0
	operation := func() (*opResult, error) {
		attempt++
		actx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		txID := uuid.New()
		var res *opResult
		err := s.store.InTx(actx, func(r repository.Repos) error {
			var err error
			res, err = fn(actx, r, txID)
			return err
		})
		if err == nil {
			return res, nil
		}
		err = apierror.Map(op, err)
		if apierror.Is(err, apierror.KindConflict) {
			log.Debug().Str("op", op).Int("attempt", attempt).Err(err).Msg("lifecycle: conflict, retrying")
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInterval
	b.MaxInterval = time.Second
	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.opts.ConflictRetries+1)),
	)
	if err != nil {
		err = apierror.Map(op, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apierror.KindOf(err)))
		log.Warn().Str("op", op).Str("kind", string(apierror.KindOf(err))).Err(err).Msg("lifecycle: operation rejected")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("transaction.id", res.tx.ID.String()),
		attribute.Int("attempts", attempt),
	)
	log.Info().
		Str("op", op).
		Str("transaction_id", res.tx.ID.String()).
		Str("type", string(res.tx.Type)).
		Str("quantity_change", res.tx.QuantityChange.String()).
		Msg("lifecycle: committed")

	s.publish(ctx, res.tx)
	return res.response(), nil
}

func (s *lifecycleService) publish(ctx context.Context, t *model.Transaction) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTransaction(ctx, t); err != nil {
		log.Warn().Err(err).Str("transaction_id", t.ID.String()).Msg("lifecycle: failed to publish ledger event")
	}
}

func (r *opResult) response() *dto.OperationResponse {
	resp := &dto.OperationResponse{
		Transaction: transactionToResponse(r.tx),
		Stock:       make([]dto.StockUnitResponse, 0, len(r.units)),
		PieceIDs:    r.pieceIDs,
	}
	if r.batch != nil {
		b := batchToResponse(r.batch, nil)
		resp.Batch = &b
	}
	for _, u := range r.units {
		resp.Stock = append(resp.Stock, stockUnitToResponse(u))
	}
	return resp
}

// ── shared helpers ───────────────────────────────────────────────────────────

func actorRef(actorID uuid.UUID) *uuid.UUID {
	if actorID == uuid.Nil {
		return nil
	}
	return &actorID
}

func snapshot(v interface{}) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func pieceEvent(p *model.Piece, txID uuid.UUID, actor *uuid.UUID, event model.LifecycleEventType, from *model.PieceStatus) model.LifecycleEvent {
	return model.LifecycleEvent{
		ID:            uuid.New(),
		PieceID:       p.ID,
		StockUnitID:   p.StockUnitID,
		TransactionID: txID,
		Event:         event,
		FromStatus:    from,
		ToStatus:      p.Status,
		ActorID:       actor,
	}
}

// newPieces builds n fresh IN_STOCK pieces owned by unit and created by txID.
func newPieces(unitID, txID uuid.UUID, lengths []*model.Piece) []*model.Piece {
	for _, p := range lengths {
		p.ID = uuid.New()
		p.StockUnitID = unitID
		p.PieceCount = 1
		p.Status = model.PieceInStock
		p.CreatedByTransactionID = txID
		p.Version = 1
	}
	return lengths
}

// transition moves p to status and records the event. The creator reference
// is never touched.
func transition(ctx context.Context, r repository.Repos, p *model.Piece, to model.PieceStatus, event model.LifecycleEventType, txID uuid.UUID, actor *uuid.UUID, events *[]model.LifecycleEvent) error {
	from := p.Status
	p.Status = to
	if err := r.Pieces.Update(ctx, p); err != nil {
		return err
	}
	*events = append(*events, pieceEvent(p, txID, actor, event, &from))
	return nil
}

// applyDelta changes a unit's quantity, derives its status and writes it.
func applyDelta(ctx context.Context, r repository.Repos, u *model.StockUnit, delta int) error {
	next := u.Quantity + delta
	if next < 0 {
		return apierror.Validation("stock.apply", "quantity would drop below zero").
			With("stock_id", u.ID).With("available", u.Quantity).With("requested", -delta)
	}
	u.Status = u.NextStatus(next, delta)
	u.Quantity = next
	return r.Stock.Update(ctx, u)
}

// lockUnit locks one live unit or reports it as not found.
func lockUnit(ctx context.Context, r repository.Repos, op string, id uuid.UUID) (*model.StockUnit, error) {
	units, err := r.Stock.LockByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	u, ok := units[id]
	if !ok || !u.Live() {
		return nil, apierror.NotFound(op, "stock unit not found").With("stock_id", id)
	}
	return u, nil
}

// splittableUnit returns the batch's unit of category, creating it empty when absent.
func splittableUnit(ctx context.Context, r repository.Repos, batchID uuid.UUID, category model.StockCategory) (*model.StockUnit, error) {
	u, err := r.Stock.LockSplittable(ctx, batchID, category)
	if err != nil || u != nil {
		return u, err
	}
	u = &model.StockUnit{
		ID:            uuid.New(),
		BatchID:       batchID,
		Category:      category,
		Quantity:      0,
		UnitOfMeasure: category.UnitOfMeasure(),
		Status:        model.StockSoldOut,
		Version:       1,
	}
	if err := r.Stock.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func consumable(op string, u *model.StockUnit) error {
	if u.Status == model.StockReserved {
		return apierror.Validation(op, "stock unit is reserved").With("stock_id", u.ID)
	}
	return nil
}

func notFoundAs(err error, op, msg, key string, id uuid.UUID) error {
	if apierror.Is(err, apierror.KindNotFound) {
		return apierror.NotFound(op, msg).With(key, id)
	}
	return err
}
