package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inferloop/tsforecast/pkg/constants"
)

// TrainingMetrics exposes training progress on a private Prometheus registry.
// Every method is a no-op on a nil receiver so callers can run without metrics.
type TrainingMetrics struct {
	registry *prometheus.Registry

	epochsTotal           prometheus.Counter
	trainLoss             prometheus.Gauge
	valLoss               prometheus.Gauge
	bestValLoss           prometheus.Gauge
	earlyStopsTotal       prometheus.Counter
	checkpointWritesTotal prometheus.Counter
	epochDuration         prometheus.Histogram
	windowsTotal          *prometheus.CounterVec
}

// NewTrainingMetrics creates and registers the training metrics under namespace
// (constants.MetricsNamespace when empty).
func NewTrainingMetrics(namespace string) (*TrainingMetrics, error) {
	if namespace == "" {
		namespace = constants.MetricsNamespace
	}

	tm := &TrainingMetrics{
		registry: prometheus.NewRegistry(),
		epochsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "epochs_total",
			Help:      "Total number of completed training epochs",
		}),
		trainLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "train_loss",
			Help:      "Mean training loss of the last epoch",
		}),
		valLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "val_loss",
			Help:      "Mean validation loss of the last epoch",
		}),
		bestValLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_val_loss",
			Help:      "Lowest validation loss seen in the current run",
		}),
		earlyStopsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "early_stops_total",
			Help:      "Total number of runs stopped by early stopping",
		}),
		checkpointWritesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_writes_total",
			Help:      "Total number of best-model checkpoints written",
		}),
		epochDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "epoch_duration_seconds",
			Help:      "Wall time of one training epoch including validation",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		windowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_total",
			Help:      "Total number of windows processed by split",
		}, []string{"split"}),
	}

	collectors := []prometheus.Collector{
		tm.epochsTotal, tm.trainLoss, tm.valLoss, tm.bestValLoss,
		tm.earlyStopsTotal, tm.checkpointWritesTotal, tm.epochDuration, tm.windowsTotal,
	}
	for _, c := range collectors {
		if err := tm.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return tm, nil
}

// Registry returns the underlying registry.
func (tm *TrainingMetrics) Registry() *prometheus.Registry {
	if tm == nil {
		return nil
	}
	return tm.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (tm *TrainingMetrics) Handler() http.Handler {
	if tm == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(tm.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordEpoch records one finished epoch.
func (tm *TrainingMetrics) RecordEpoch(trainLoss, valLoss float64, duration time.Duration) {
	if tm == nil {
		return
	}
	tm.epochsTotal.Inc()
	tm.trainLoss.Set(trainLoss)
	tm.valLoss.Set(valLoss)
	tm.epochDuration.Observe(duration.Seconds())
}

// RecordBest records a new best validation loss.
func (tm *TrainingMetrics) RecordBest(valLoss float64) {
	if tm == nil {
		return
	}
	tm.bestValLoss.Set(valLoss)
}

// RecordCheckpointWrite counts a checkpoint write.
func (tm *TrainingMetrics) RecordCheckpointWrite() {
	if tm == nil {
		return
	}
	tm.checkpointWritesTotal.Inc()
}

// RecordEarlyStop counts a run ended by early stopping.
func (tm *TrainingMetrics) RecordEarlyStop() {
	if tm == nil {
		return
	}
	tm.earlyStopsTotal.Inc()
}

// RecordWindows adds n processed windows to split.
func (tm *TrainingMetrics) RecordWindows(split string, n int) {
	if tm == nil {
		return
	}
	tm.windowsTotal.WithLabelValues(split).Add(float64(n))
}
