package worker

import (
	"context"
	"encoding/json"
	"time"

	"tarkostock/internal/dto"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DLQPrefix prefixes the dead letter list of each job queue: dlq:{queue}.
const DLQPrefix = "dlq:"

// deadLetterCap bounds each dead letter list.
const deadLetterCap = 1000

// DeadLetters parks jobs that exhausted MaxJobAttempts (or could not be
// decoded) for manual inspection.
type DeadLetters struct {
	rdb   *redis.Client
	queue string
}

func NewDeadLetters(rdb *redis.Client, queue string) *DeadLetters {
	return &DeadLetters{rdb: rdb, queue: queue}
}

func (d *DeadLetters) key() string { return DLQPrefix + d.queue }

// Park pushes a failed job. Best-effort: failures are logged, not returned,
// so the worker loop never stalls on a broken DLQ.
func (d *DeadLetters) Park(ctx context.Context, jobType string, payload json.RawMessage, reason string, attempts int) {
	data, err := json.Marshal(dto.DeadLetter{
		JobType:  jobType,
		Payload:  payload,
		Reason:   reason,
		FailedAt: time.Now().UTC(),
		Attempts: attempts,
	})
	if err != nil {
		log.Error().Err(err).Str("queue", d.queue).Msg("dlq: failed to marshal entry")
		return
	}

	pipe := d.rdb.TxPipeline()
	pipe.LPush(ctx, d.key(), data)
	pipe.LTrim(ctx, d.key(), 0, deadLetterCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("dlq_key", d.key()).Msg("dlq: failed to park job")
		return
	}

	log.Warn().
		Str("queue", d.queue).
		Str("job_type", jobType).
		Str("reason", reason).
		Int("attempts", attempts).
		Msg("dlq: job parked")
}

// List returns the list length and up to limit of the newest entries.
// Entries that no longer decode are skipped.
func (d *DeadLetters) List(ctx context.Context, limit int64) (*dto.DeadLetterList, error) {
	if limit <= 0 {
		limit = 50
	}
	count, err := d.rdb.LLen(ctx, d.key()).Result()
	if err != nil {
		return nil, err
	}
	raw, err := d.rdb.LRange(ctx, d.key(), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := &dto.DeadLetterList{Queue: d.queue, Count: count, Entries: make([]dto.DeadLetter, 0, len(raw))}
	for _, r := range raw {
		var e dto.DeadLetter
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		out.Entries = append(out.Entries, e)
	}
	return out, nil
}
