package infra

import (
	"context"
	"encoding/json"
	"time"

	"tarkostock/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// LedgerEventsQueue is the redis list that receives committed ledger transactions.
const LedgerEventsQueue = "events:ledger"

// LedgerEvent is the message pushed for every committed transaction.
type LedgerEvent struct {
	TransactionID         uuid.UUID       `json:"transaction_id"`
	Type                  string          `json:"type"`
	BatchID               *uuid.UUID      `json:"batch_id,omitempty"`
	CustomerID            *uuid.UUID      `json:"customer_id,omitempty"`
	QuantityChange        decimal.Decimal `json:"quantity_change"`
	ReversesTransactionID *uuid.UUID      `json:"reverses_transaction_id,omitempty"`
	StockUnitIDs          []uuid.UUID     `json:"stock_ids"`
	CreatedAt             time.Time       `json:"created_at"`
}

// RedisPublisher pushes ledger events to redis through a circuit breaker.
type RedisPublisher struct {
	rdb   *redis.Client
	cb    *CircuitBreaker
	queue string
	// maxLen caps the list so an absent consumer cannot grow it without bound.
	maxLen int64
}

func NewRedisPublisher(rdb *redis.Client, cb *CircuitBreaker) *RedisPublisher {
	if cb == nil {
		cb = NewCircuitBreaker(DefaultCBConfig())
	}
	return &RedisPublisher{rdb: rdb, cb: cb, queue: LedgerEventsQueue, maxLen: 100_000}
}

// PublishTransaction implements service.EventPublisher.
func (p *RedisPublisher) PublishTransaction(ctx context.Context, t *model.Transaction) error {
	data, err := json.Marshal(newLedgerEvent(t))
	if err != nil {
		return err
	}
	return p.cb.Execute(func() error {
		pipe := p.rdb.TxPipeline()
		pipe.LPush(ctx, p.queue, data)
		pipe.LTrim(ctx, p.queue, 0, p.maxLen-1)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Breaker exposes the breaker state for the health endpoint.
func (p *RedisPublisher) Breaker() *CircuitBreaker { return p.cb }

func newLedgerEvent(t *model.Transaction) LedgerEvent {
	ev := LedgerEvent{
		TransactionID:         t.ID,
		Type:                  string(t.Type),
		BatchID:               t.BatchID,
		CustomerID:            t.CustomerID,
		QuantityChange:        t.QuantityChange,
		ReversesTransactionID: t.ReversesTransactionID,
		StockUnitIDs:          []uuid.UUID{},
		CreatedAt:             t.CreatedAt,
	}
	seen := make(map[uuid.UUID]bool, len(t.Items))
	for _, it := range t.Items {
		if !seen[it.StockUnitID] {
			seen[it.StockUnitID] = true
			ev.StockUnitIDs = append(ev.StockUnitIDs, it.StockUnitID)
		}
	}
	return ev
}
