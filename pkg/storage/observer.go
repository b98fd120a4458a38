package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for backend operations.
type Observer interface {
	Observe(backend, operation string, duration time.Duration, err error)
}

// PrometheusObserver exports backend metrics to Prometheus.
type PrometheusObserver struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewPrometheusObserver registers the storage latency and error metrics.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "paperclip_storage"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Latency of storage backend operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend", "operation"})

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_errors_total",
		Help:      "Count of failed storage backend operations.",
	}, []string{"backend", "operation"})

	if err := reg.Register(duration); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register storage metric: %w", err)
		}
		duration = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	if err := reg.Register(failures); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register storage metric: %w", err)
		}
		failures = are.ExistingCollector.(*prometheus.CounterVec)
	}

	return &PrometheusObserver{duration: duration, errors: failures}, nil
}

// Observe records one operation. A missing object is not counted as a
// failure.
func (o *PrometheusObserver) Observe(backend, operation string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil && !errors.Is(err, ErrNotFound) {
		o.errors.WithLabelValues(backend, operation).Inc()
	}
}

// Instrument wraps b so every operation is reported to obs under name.
func Instrument(b Backend, obs Observer, name string) Backend {
	if obs == nil {
		return b
	}
	return &instrumented{inner: b, obs: obs, name: name}
}

type instrumented struct {
	inner Backend
	obs   Observer
	name  string
}

func (i *instrumented) Write(ctx context.Context, t Target, r io.Reader) error {
	start := time.Now()
	err := i.inner.Write(ctx, t, r)
	i.obs.Observe(i.name, "write", time.Since(start), err)
	return err
}

func (i *instrumented) Read(ctx context.Context, t Target) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := i.inner.Read(ctx, t)
	i.obs.Observe(i.name, "read", time.Since(start), err)
	return rc, err
}

func (i *instrumented) Exists(ctx context.Context, t Target) (bool, error) {
	start := time.Now()
	ok, err := i.inner.Exists(ctx, t)
	i.obs.Observe(i.name, "exists", time.Since(start), err)
	return ok, err
}

func (i *instrumented) Delete(ctx context.Context, targets ...Target) error {
	start := time.Now()
	err := i.inner.Delete(ctx, targets...)
	i.obs.Observe(i.name, "delete", time.Since(start), err)
	return err
}
