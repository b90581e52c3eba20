package bill

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	drafts     metric.Int64Counter
	saves      metric.Int64Counter
	finalized  metric.Int64Counter
	failures   metric.Int64Counter
	grandTotal metric.Float64Histogram
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	var (
		m   metrics
		err error
	)
	if m.drafts, err = meter.Int64Counter("billing.bills.drafts",
		metric.WithDescription("Draft bills created"),
	); err != nil {
		return nil, errors.Wrap(err, "drafts counter")
	}
	if m.saves, err = meter.Int64Counter("billing.bills.saves",
		metric.WithDescription("Draft bill saves"),
	); err != nil {
		return nil, errors.Wrap(err, "saves counter")
	}
	if m.finalized, err = meter.Int64Counter("billing.bills.finalized",
		metric.WithDescription("Bills finalized"),
	); err != nil {
		return nil, errors.Wrap(err, "finalized counter")
	}
	if m.failures, err = meter.Int64Counter("billing.bills.save_failures",
		metric.WithDescription("Bill persistence failures"),
	); err != nil {
		return nil, errors.Wrap(err, "failures counter")
	}
	if m.grandTotal, err = meter.Float64Histogram("billing.bills.grand_total",
		metric.WithDescription("Grand total of finalized bills"),
		metric.WithUnit("{INR}"),
	); err != nil {
		return nil, errors.Wrap(err, "grand total histogram")
	}
	return &m, nil
}

func (m *metrics) saveFailed(ctx context.Context, op string) {
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
