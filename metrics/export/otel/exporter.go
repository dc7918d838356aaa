package otel

import (
	"context"
	"errors"
	"fmt"

	goVerify "github.com/MrEthical07/goVerify"
	"github.com/MrEthical07/goVerify/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is anything that can report engine metrics. *goVerify.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() goVerify.MetricsSnapshot
	AuditDropped() uint64
}

type observedCounter struct {
	id         goVerify.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      goVerify.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter publishes engine metrics through asynchronous OTel instruments.
// Every collection cycle reads one snapshot from the source.
type Exporter struct {
	source       Source
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter
}

// NewExporter creates the instruments on meter and registers the collection
// callback. Call Close to unregister.
func NewExporter(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &Exporter{
		source:     source,
		counters:   make([]observedCounter, 0, len(internaldefs.CounterDefs)),
		histograms: make([]observedHistogram, 0, len(internaldefs.HistogramDefs)),
	}

	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*9+1)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		countName := def.Name + "_count"
		countIns, err := meter.Int64ObservableGauge(countName, metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", countName, err)
		}
		h.count = countIns
		observables = append(observables, countIns)
		exporter.histograms = append(exporter.histograms, h)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i := range cumulative {
			observer.ObserveInt64(h.buckets[i], int64(cumulative[i]))
		}
		observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
