package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tarkostock/internal/apierror"
	"tarkostock/internal/dto"
	"tarkostock/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	reportKeyPrefix = "consistency:report:"
	// LatestReport is the report id that always resolves to the newest sweep.
	LatestReport = "latest"

	reportTTL = 7 * 24 * time.Hour
)

// SweepPayload is the job payload sent to QueueConsistency.
type SweepPayload struct {
	Trigger string `json:"trigger"` // schedule | manual
}

// SweepWorker runs the consistency validator and stores its report.
type SweepWorker struct {
	svc     service.ConsistencyService
	reports *ReportStore
}

func NewSweepWorker(svc service.ConsistencyService, reports *ReportStore) *SweepWorker {
	return &SweepWorker{svc: svc, reports: reports}
}

// Process implements JobHandler.
func (w *SweepWorker) Process(ctx context.Context, job Job) error {
	var payload SweepPayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("sweep_worker: invalid payload, running anyway")
		}
	}

	report, err := w.svc.Sweep(ctx)
	if err != nil {
		return err
	}
	if err := w.reports.Save(ctx, job.ID, report); err != nil {
		return err
	}
	log.Info().
		Str("job_id", job.ID).
		Str("trigger", payload.Trigger).
		Bool("consistent", report.Consistent).
		Msg("sweep_worker: report stored")
	return nil
}

// ReportStore keeps sweep reports in redis.
type ReportStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewReportStore(rdb *redis.Client) *ReportStore {
	return &ReportStore{rdb: rdb, ttl: reportTTL}
}

// Save stores the report under its job id and as the latest report.
func (s *ReportStore) Save(ctx context.Context, jobID string, report *dto.ConsistencyReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, reportKeyPrefix+jobID, data, s.ttl)
	pipe.Set(ctx, reportKeyPrefix+LatestReport, data, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Load returns the report stored for jobID, or LatestReport.
func (s *ReportStore) Load(ctx context.Context, jobID string) (*dto.ConsistencyReport, error) {
	data, err := s.rdb.Get(ctx, reportKeyPrefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apierror.NotFound("consistency.report", "no report for this sweep yet").With("job_id", jobID)
	}
	if err != nil {
		return nil, apierror.Storage("consistency.report", err)
	}
	var report dto.ConsistencyReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
