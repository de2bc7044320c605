// Package samples provides the business logic for sample recording,
// order attribution, and conversion metrics.
//
// Attribution decisions are computed by the pure attribution engine; this
// service loads the inputs, applies the decision with a compare-and-set
// write, and emits notifications and metrics around it.
package samples

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/samplefront/samplefront/internal/analytics"
	"github.com/samplefront/samplefront/internal/attribution"
	"github.com/samplefront/samplefront/internal/clock"
	"github.com/samplefront/samplefront/internal/model"
	"github.com/samplefront/samplefront/internal/storage"
	"github.com/samplefront/samplefront/internal/telemetry"
)

// Service encapsulates sample and attribution business logic.
type Service struct {
	db     *storage.DB
	clock  clock.Clock
	epoch  time.Time
	logger *slog.Logger

	samplesRecorded    metric.Int64Counter
	attributionsTotal  metric.Int64Counter
	daysToConversion   metric.Int64Histogram
	attributionRevenue metric.Int64Counter
}

// New creates a sample Service. epoch is the earliest accepted date_given.
func New(db *storage.DB, clk clock.Clock, epoch time.Time, logger *slog.Logger) *Service {
	meter := telemetry.Meter("samplefront/samples")
	recorded, _ := meter.Int64Counter("samplefront.samples.recorded",
		metric.WithDescription("Samples recorded"),
	)
	attributions, _ := meter.Int64Counter("samplefront.attributions.total",
		metric.WithDescription("Attribution attempts by outcome"),
	)
	days, _ := meter.Int64Histogram("samplefront.attributions.days_to_conversion",
		metric.WithDescription("Days from sample to attributed order"),
		metric.WithUnit("d"),
	)
	revenue, _ := meter.Int64Counter("samplefront.attributions.revenue",
		metric.WithDescription("Attributed order value in minor units"),
	)
	return &Service{
		db:                 db,
		clock:              clk,
		epoch:              epoch,
		logger:             logger,
		samplesRecorded:    recorded,
		attributionsTotal:  attributions,
		daysToConversion:   days,
		attributionRevenue: revenue,
	}
}

// Record validates and persists a new sample usage.
func (s *Service) Record(ctx context.Context, sample model.SampleUsage) (model.SampleUsage, error) {
	if err := sample.Validate(s.clock.Now(), s.epoch); err != nil {
		return model.SampleUsage{}, err
	}
	created, err := s.db.CreateSample(ctx, sample)
	if err != nil {
		return model.SampleUsage{}, err
	}
	s.samplesRecorded.Add(ctx, 1)
	s.logger.Info("sample recorded",
		"sample_id", created.ID,
		"customer_id", created.CustomerID,
		"product_id", created.ProductID,
	)
	return created, nil
}

// Sample returns one sample by id.
func (s *Service) Sample(ctx context.Context, id uuid.UUID) (model.SampleUsage, error) {
	return s.db.GetSample(ctx, id)
}

// SamplesByCustomer lists a customer's samples, newest first.
func (s *Service) SamplesByCustomer(ctx context.Context, customerID uuid.UUID) ([]model.SampleUsage, error) {
	return s.db.ListSamplesByCustomer(ctx, customerID)
}

// AttributeOrder runs attribution for one order: it selects the most recent
// unattributed same-customer sample given within the attribution window
// before the order, and links it with a compare-and-set write. The returned
// outcome reports success or the reason attribution was skipped; only
// infrastructure failures surface as errors.
func (s *Service) AttributeOrder(ctx context.Context, orderID uuid.UUID) (model.AttributionOutcome, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("samplefront.order_id", orderID.String()))

	order, err := s.db.GetOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return s.countOutcome(ctx, model.Failure(model.ReasonNotFound)), nil
	}
	if err != nil {
		return model.AttributionOutcome{}, err
	}

	candidates, err := s.db.ListSamplesByCustomer(ctx, order.CustomerID)
	if err != nil {
		return model.AttributionOutcome{}, err
	}

	outcome := attribution.Attribute(order, candidates, s.clock.Now())
	if !outcome.Success {
		return s.countOutcome(ctx, outcome), nil
	}

	// The snapshot may be stale: another attribution can win between the
	// read above and this write. The CAS update is authoritative.
	won, err := s.db.MarkSampleAttributed(ctx, *outcome.SampleID, order.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return s.countOutcome(ctx, model.Failure(model.ReasonNotFound)), nil
	}
	if err != nil {
		return model.AttributionOutcome{}, err
	}
	if !won {
		return s.countOutcome(ctx, model.Failure(model.ReasonAlreadyAttributed)), nil
	}

	s.daysToConversion.Record(ctx, int64(outcome.DaysToConversion))
	s.attributionRevenue.Add(ctx, outcome.Amount)
	s.logger.Info("order attributed",
		"order_id", order.ID,
		"sample_id", *outcome.SampleID,
		"days_to_conversion", outcome.DaysToConversion,
		"amount", outcome.Amount,
	)
	if err := s.db.Notify(ctx, storage.ChannelAttributions, order.ID.String()); err != nil {
		s.logger.Warn("attribution notify failed", "error", err)
	}
	return s.countOutcome(ctx, outcome), nil
}

// SweepResult summarizes one attribution sweep pass.
type SweepResult struct {
	Examined   int
	Attributed int
}

// Sweep attributes up to limit completed orders that have no linked sample
// yet. Orders whose outcome is a permanent failure (outside window, no
// candidates) are simply left unlinked; they drop out of future sweeps only
// once a window can no longer open, so the pass is cheap and idempotent.
func (s *Service) Sweep(ctx context.Context, limit int) (SweepResult, error) {
	orders, err := s.db.ListUnattributedCompletedOrders(ctx, limit)
	if err != nil {
		return SweepResult{}, err
	}

	res := SweepResult{Examined: len(orders)}
	for _, order := range orders {
		outcome, err := s.AttributeOrder(ctx, order.ID)
		if err != nil {
			return res, fmt.Errorf("sweep order %s: %w", order.ID, err)
		}
		if outcome.Success {
			res.Attributed++
		}
	}
	return res, nil
}

// Metrics holds the conversion summary plus the grouped breakdowns.
type Metrics struct {
	Summary    analytics.Summary
	ByProduct  []analytics.GroupStats
	BySalesRep []analytics.GroupStats
	ByWeek     []analytics.GroupStats
}

// ConversionMetrics computes the full analytics report over samples given
// inside [since, until). Zero bounds mean unbounded.
func (s *Service) ConversionMetrics(ctx context.Context, since, until time.Time) (Metrics, error) {
	samples, err := s.db.ListSamples(ctx, since, until)
	if err != nil {
		return Metrics{}, err
	}
	orders, err := s.db.ListOrders(ctx)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{
		Summary:    analytics.Summarize(samples, orders),
		ByProduct:  analytics.ByProduct(samples, orders),
		BySalesRep: analytics.BySalesRep(samples, orders),
		ByWeek:     analytics.ByWeek(samples, orders),
	}, nil
}

func (s *Service) countOutcome(ctx context.Context, outcome model.AttributionOutcome) model.AttributionOutcome {
	result := "success"
	if !outcome.Success {
		result = string(outcome.Reason)
	}
	s.attributionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	return outcome
}
