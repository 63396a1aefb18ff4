package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueConsistency = "jobs:consistency"

	JobConsistencySweep = "consistency_sweep"

	// MaxJobAttempts is how many times a job runs before it is moved to the DLQ.
	MaxJobAttempts = 3
)

// Job is the generic envelope for all async tasks.
type Job struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueSweep pushes a consistency sweep job and returns its id.
func (d *Dispatcher) EnqueueSweep(ctx context.Context, trigger string) (string, error) {
	return d.enqueue(ctx, QueueConsistency, JobConsistencySweep, SweepPayload{Trigger: trigger})
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	job := Job{ID: uuid.NewString(), Type: jobType, Payload: data, EnqueuedAt: time.Now().UTC()}
	if err := push(ctx, d.rdb, queue, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

func push(ctx context.Context, rdb *redis.Client, queue string, job Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return rdb.LPush(ctx, queue, encoded).Err()
}

// JobHandler runs one job. A returned error makes the job eligible for retry.
type JobHandler interface {
	Process(ctx context.Context, job Job) error
}

// WorkerHandlers maps job types to their handlers.
type WorkerHandlers struct {
	Sweep JobHandler
}

func (h *WorkerHandlers) lookup(jobType string) JobHandler {
	switch jobType {
	case JobConsistencySweep:
		return h.Sweep
	}
	return nil
}

// Pool tracks the worker goroutines so shutdown can wait for in-flight jobs.
type Pool struct {
	wg sync.WaitGroup
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() { p.wg.Wait() }

// StartWorkerPool launches numWorkers goroutines consuming the job queues.
// Each goroutine blocks on BRPOP while idle.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, handlers *WorkerHandlers, numWorkers int) *Pool {
	p := &Pool{}
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			runWorker(ctx, rdb, handlers, id)
		}(i)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
	return p
}

func runWorker(ctx context.Context, rdb *redis.Client, handlers *WorkerHandlers, id int) {
	queues := []string{QueueConsistency}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop: waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			processJob(ctx, rdb, handlers, result[0], result[1])
		}
	}
}

// processJob decodes and runs one job. Failures are re-queued until
// MaxJobAttempts, then parked in the DLQ.
func processJob(ctx context.Context, rdb *redis.Client, handlers *WorkerHandlers, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		quoted, _ := json.Marshal(raw)
		NewDeadLetters(rdb, queue).Park(ctx, "", quoted, "undecodable job: "+err.Error(), 0)
		return
	}

	h := handlers.lookup(job.Type)
	if h == nil {
		NewDeadLetters(rdb, queue).Park(ctx, job.Type, job.Payload, "no handler for job type", job.Attempts)
		return
	}

	logger := log.With().Str("job_id", job.ID).Str("type", job.Type).Str("queue", queue).Logger()
	logger.Info().Int("attempt", job.Attempts+1).Msg("processing job")

	err := h.Process(ctx, job)
	if err == nil {
		return
	}
	job.Attempts++
	if job.Attempts >= MaxJobAttempts {
		NewDeadLetters(rdb, queue).Park(ctx, job.Type, job.Payload, err.Error(), job.Attempts)
		return
	}
	logger.Warn().Err(err).Int("attempts", job.Attempts).Msg("job failed, re-queued")
	if pushErr := push(ctx, rdb, queue, job); pushErr != nil {
		logger.Error().Err(pushErr).Msg("failed to re-queue job")
	}
}
