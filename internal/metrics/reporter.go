package metrics

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"github.com/rpedde/nrf24-mqtt/pkg/workqueue"
	"k8s.io/klog/v2"
)

// StatsSource is anything with a work queue snapshot
type StatsSource interface {
	Stats() workqueue.Stats
}

// Reporter periodically reads queue stats, logs them and feeds Metrics.
// Stats resets the high-water mark, so a Reporter should be its only caller.
type Reporter struct {
	source   StatsSource
	metrics  *Metrics
	interval time.Duration
	clock    quartz.Clock
}

// NewReporter creates a reporter polling source every interval
func NewReporter(source StatsSource, m *Metrics, interval time.Duration, clock quartz.Clock) *Reporter {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Reporter{
		source:   source,
		metrics:  m,
		interval: interval,
		clock:    clock,
	}
}

// Report takes one snapshot and returns it
func (r *Reporter) Report() workqueue.Stats {
	s := r.source.Stats()
	if r.metrics != nil {
		r.metrics.Update(s)
	}

	klog.V(1).InfoS("Queue stats",
		"total", s.Total,
		"waiting", s.Waiting,
		"busy", s.Busy,
		"queued", s.Queued,
		"maxQueued", s.MaxQueued,
		"dispatched", s.Dispatched,
		"failed", s.Failed,
		"rejected", s.Rejected,
	)
	return s
}

// Start begins reporting every interval until ctx is done. The returned
// channel is closed when the reporter has stopped.
func (r *Reporter) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if r.interval <= 0 {
		close(done)
		return done
	}

	ticker := r.clock.NewTicker(r.interval, "reporter")
	go func() {
		defer close(done)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Report()
			}
		}
	}()
	return done
}
