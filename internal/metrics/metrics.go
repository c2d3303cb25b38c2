// Package metrics exports work queue and publisher counters to Prometheus
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rpedde/nrf24-mqtt/pkg/workqueue"
	"k8s.io/klog/v2"
)

const namespace = "nrf24"

// Metrics holds the collectors for one daemon instance
type Metrics struct {
	registry *prometheus.Registry

	workers    *prometheus.GaugeVec
	queued     prometheus.Gauge
	maxQueued  prometheus.Gauge
	initErrors prometheus.Gauge
	items      *prometheus.CounterVec

	published      prometheus.Counter
	publishFailed  prometheus.Counter
	dropped        prometheus.Counter
	publishLatency prometheus.Histogram

	mu   sync.Mutex
	last workqueue.Stats
}

// New creates collectors registered on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		workers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "workers",
			Help:      "Number of publisher workers by state",
		}, []string{"state"}),
		queued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Readings waiting for a worker",
		}),
		maxQueued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth_max",
			Help:      "Highest queue depth during the last reporting interval",
		}),
		initErrors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "init_errors",
			Help:      "Workers whose initialization failed",
		}),
		items: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items_total",
			Help:      "Queue items by outcome",
		}, []string{"result"}),
		published: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "published_total",
			Help:      "Readings published to the broker",
		}),
		publishFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "publish_failures_total",
			Help:      "Readings that could not be published",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "dropped_total",
			Help:      "Readings refused because the publisher was shutting down",
		}),
		publishLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "publish_latency_seconds",
			Help:      "Time to publish one reading, retries included",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Update sets gauges from s and advances counters by the change since the
// previous call
func (m *Metrics) Update(s workqueue.Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workers.WithLabelValues("total").Set(float64(s.Total))
	m.workers.WithLabelValues("waiting").Set(float64(s.Waiting))
	m.workers.WithLabelValues("busy").Set(float64(s.Busy))
	m.queued.Set(float64(s.Queued))
	m.maxQueued.Set(float64(s.MaxQueued))
	m.initErrors.Set(float64(s.InitErrors))

	m.addDelta("dispatched", s.Dispatched, m.last.Dispatched)
	m.addDelta("failed", s.Failed, m.last.Failed)
	m.addDelta("canceled", s.Canceled, m.last.Canceled)
	m.addDelta("rejected", s.Rejected, m.last.Rejected)
	m.addDelta("abandoned", s.Abandoned, m.last.Abandoned)

	m.last = s
}

func (m *Metrics) addDelta(result string, now, prev uint64) {
	if now > prev {
		m.items.WithLabelValues(result).Add(float64(now - prev))
	}
}

// ObservePublish records one publish attempt chain
func (m *Metrics) ObservePublish(d time.Duration, err error) {
	m.publishLatency.Observe(d.Seconds())
	if err != nil {
		m.publishFailed.Inc()
		return
	}
	m.published.Inc()
}

// Dropped records a reading the publisher refused
func (m *Metrics) Dropped() {
	m.dropped.Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		klog.InfoS("Serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
