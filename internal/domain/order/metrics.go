package order

import (
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type serviceMetrics struct {
	created       metric.Int64Counter
	reconciled    metric.Int64Counter
	replays       metric.Int64Counter
	rejected      metric.Int64Counter
	statusChanges metric.Int64Counter
}

func newServiceMetrics(mp metric.MeterProvider) (*serviceMetrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter("fruitsmith/order")

	var (
		m   serviceMetrics
		err error
	)
	if m.created, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders persisted in Pending status"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created")
	}
	if m.reconciled, err = meter.Int64Counter("orders.reconciled",
		metric.WithDescription("Orders moved to Processing by a verified payment"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.reconciled")
	}
	if m.replays, err = meter.Int64Counter("orders.reconcile_replays",
		metric.WithDescription("Verify-payment calls answered from an already reconciled order"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.reconcile_replays")
	}
	if m.rejected, err = meter.Int64Counter("orders.payments_rejected",
		metric.WithDescription("Payments the gateway did not confirm"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.payments_rejected")
	}
	if m.statusChanges, err = meter.Int64Counter("orders.status_changes",
		metric.WithDescription("Status transitions applied by admins or owners"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.status_changes")
	}
	return &m, nil
}
