package service

import (
	"context"
	"strconv"
	"time"

	"tarkostock/internal/dto"
	"tarkostock/internal/model"
	"tarkostock/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConsistencyService reconciles aggregate counters against the piece store.
// Validate never writes.
type ConsistencyService interface {
	Validate(ctx context.Context) (*dto.ConsistencyReport, error)
	// Sweep runs Validate and logs the outcome; it is the background job entry point.
	Sweep(ctx context.Context) (*dto.ConsistencyReport, error)
}

type consistencyService struct {
	store  repository.Store
	tracer trace.Tracer
}

func NewConsistencyService(store repository.Store) ConsistencyService {
	return &consistencyService{store: store, tracer: otel.Tracer("tarkostock/service")}
}

// Validate scans every batch, soft-deleted ones included, and reports:
//   - splittable units whose quantity differs from their IN_STOCK live pieces
//   - pieces whose piece count is not exactly 1
//   - negative unit quantities and batch quantities outside [0, initial]
//   - live batches whose current quantity differs from the measure of their stock
func (s *consistencyService) Validate(ctx context.Context) (*dto.ConsistencyReport, error) {
	ctx, span := s.tracer.Start(ctx, "consistency.validate")
	defer span.End()

	report := &dto.ConsistencyReport{CheckedAt: time.Now().UTC(), Violations: []dto.Violation{}}
	err := s.store.Snapshot(ctx, func(r repository.Repos) error {
		batches, err := r.Batches.ListAll(ctx)
		if err != nil {
			return err
		}
		for i := range batches {
			if err := s.checkBatch(ctx, r, &batches[i], report); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	report.Consistent = len(report.Violations) == 0
	span.SetAttributes(attribute.Int("violations", len(report.Violations)))
	return report, nil
}

func (s *consistencyService) checkBatch(ctx context.Context, r repository.Repos, b *model.Batch, report *dto.ConsistencyReport) error {
	report.Batches++
	batchID := b.ID
	if b.CurrentQuantity.IsNegative() || b.CurrentQuantity.GreaterThan(b.InitialQuantity) {
		report.Violations = append(report.Violations, dto.Violation{
			Kind:     dto.ViolationNegativeQuantity,
			BatchID:  &batchID,
			Expected: "0.." + b.InitialQuantity.String(),
			Actual:   b.CurrentQuantity.String(),
		})
	}

	units, err := r.Stock.ListByBatch(ctx, b.ID)
	if err != nil {
		return err
	}
	expected := decimal.Zero
	for i := range units {
		u := &units[i]
		report.StockUnits++
		unitID := u.ID
		if u.Quantity < 0 {
			report.Violations = append(report.Violations, dto.Violation{
				Kind:        dto.ViolationNegativeQuantity,
				BatchID:     &batchID,
				StockUnitID: &unitID,
				Expected:    ">= 0",
				Actual:      strconv.Itoa(u.Quantity),
			})
		}

		pieces, err := r.Pieces.ListByStockUnit(ctx, u.ID)
		if err != nil {
			return err
		}
		inStock := 0
		measure := decimal.Zero
		for j := range pieces {
			p := &pieces[j]
			report.Pieces++
			if p.PieceCount != 1 {
				pieceID := p.ID
				report.Violations = append(report.Violations, dto.Violation{
					Kind:        dto.ViolationPieceCount,
					BatchID:     &batchID,
					StockUnitID: &unitID,
					PieceID:     &pieceID,
					Expected:    "1",
					Actual:      strconv.Itoa(p.PieceCount),
				})
			}
			if p.Countable() {
				inStock++
				measure = measure.Add(p.Measure())
			}
		}

		if !u.Live() {
			continue
		}
		if u.Category.Splittable() {
			if u.Quantity != inStock {
				report.Violations = append(report.Violations, dto.Violation{
					Kind:        dto.ViolationQuantityMismatch,
					BatchID:     &batchID,
					StockUnitID: &unitID,
					Expected:    strconv.Itoa(inStock),
					Actual:      strconv.Itoa(u.Quantity),
				})
			}
			expected = expected.Add(measure)
		} else {
			expected = expected.Add(u.Measure(u.Quantity))
		}
	}

	if b.Live() && !expected.Equal(b.CurrentQuantity) {
		report.Violations = append(report.Violations, dto.Violation{
			Kind:     dto.ViolationBatchMismatch,
			BatchID:  &batchID,
			Expected: expected.String(),
			Actual:   b.CurrentQuantity.String(),
		})
	}
	return nil
}

func (s *consistencyService) Sweep(ctx context.Context) (*dto.ConsistencyReport, error) {
	report, err := s.Validate(ctx)
	if err != nil {
		return nil, err
	}
	if report.Consistent {
		log.Info().
			Int("batches", report.Batches).
			Int("stock_units", report.StockUnits).
			Int("pieces", report.Pieces).
			Msg("consistency: sweep clean")
		return report, nil
	}
	log.Error().
		Int("violations", len(report.Violations)).
		Strs("subjects", violationIDs(report)).
		Msg("consistency: sweep found violations")
	return report, nil
}

// violationIDs summarizes a report as kind:id pairs for log lines.
func violationIDs(report *dto.ConsistencyReport) []string {
	var ids []string
	for _, v := range report.Violations {
		var id *uuid.UUID
		switch {
		case v.PieceID != nil:
			id = v.PieceID
		case v.StockUnitID != nil:
			id = v.StockUnitID
		default:
			id = v.BatchID
		}
		if id != nil {
			ids = append(ids, v.Kind+":"+id.String())
		}
	}
	return ids
}
