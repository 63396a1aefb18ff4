package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Violation kinds reported by the consistency validator.
const (
	ViolationQuantityMismatch = "quantity_mismatch"
	ViolationPieceCount       = "piece_count"
	ViolationNegativeQuantity = "negative_quantity"
	ViolationBatchMismatch    = "batch_reconciliation"
)

type Violation struct {
	Kind        string     `json:"kind"`
	BatchID     *uuid.UUID `json:"batch_id,omitempty"`
	StockUnitID *uuid.UUID `json:"stock_id,omitempty"`
	PieceID     *uuid.UUID `json:"piece_id,omitempty"`
	Expected    string     `json:"expected"`
	Actual      string     `json:"actual"`
}

type ConsistencyReport struct {
	CheckedAt  time.Time   `json:"checked_at"`
	Batches    int         `json:"batches"`
	StockUnits int         `json:"stock_units"`
	Pieces     int         `json:"pieces"`
	Violations []Violation `json:"violations"`
	Consistent bool        `json:"consistent"`
}

// SweepResponse acknowledges an enqueued background sweep.
type SweepResponse struct {
	Queued bool   `json:"queued"`
	JobID  string `json:"job_id,omitempty"`
}

// DeadLetter is one sweep job that exhausted its attempts.
type DeadLetter struct {
	JobType  string          `json:"job_type"`
	Payload  json.RawMessage `json:"payload"`
	Reason   string          `json:"reason"`
	FailedAt time.Time       `json:"failed_at"`
	Attempts int             `json:"attempts"`
}

// DeadLetterList answers GET /v1/consistency/dead-letters, newest first.
type DeadLetterList struct {
	Queue   string       `json:"queue"`
	Count   int64        `json:"count"`
	Entries []DeadLetter `json:"entries"`
}
