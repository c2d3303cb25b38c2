// Package publisher publishes sensor readings to an MQTT broker from a pool
// of workers, each holding its own broker connection.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpedde/nrf24-mqtt/internal/retry"
	"github.com/rpedde/nrf24-mqtt/internal/sensor"
	"github.com/rpedde/nrf24-mqtt/pkg/workqueue"
	"k8s.io/klog/v2"
)

// ErrNoConnection is returned when a worker has no broker client
var ErrNoConnection = errors.New("worker has no broker connection")

// Recorder receives publish outcomes
type Recorder interface {
	ObservePublish(d time.Duration, err error)
	Dropped()
}

// Config defines configuration for a Publisher
type Config struct {
	Workers         int
	MaskSignals     bool
	DetectDeadlocks bool

	QoS    byte
	Retain bool
	Topics sensor.Topics

	// ConnectTimeout bounds each connect attempt (0 means no limit)
	ConnectTimeout time.Duration

	Dial  Dialer
	Retry *retry.Executor

	// Recorder is optional
	Recorder Recorder
}

// Publisher queues readings and publishes them from its workers
type Publisher struct {
	config Config
	queue  *workqueue.Queue[sensor.Reading]
}

// New connects every worker to the broker and returns a running publisher.
// It fails if any worker cannot connect.
func New(config Config) (*Publisher, error) {
	if config.Dial == nil {
		return nil, fmt.Errorf("%w: dialer is required", workqueue.ErrInvalidConfig)
	}
	if config.Retry == nil {
		config.Retry = retry.NewExecutor(retry.NewBackoff(1, 0))
	}

	p := &Publisher{config: config}

	queue, err := workqueue.New(&workqueue.Config[sensor.Reading]{
		Workers:         config.Workers,
		MaskSignals:     config.MaskSignals,
		DetectDeadlocks: config.DetectDeadlocks,
		Init:            p.connect,
		Deinit:          p.disconnect,
		Dispatch:        p.publish,
		ErrorHandler:    p.handleError,
		OnAbandon:       p.abandon,
	})
	if err != nil {
		return nil, err
	}

	p.queue = queue
	return p, nil
}

func (p *Publisher) connect(w *workqueue.Worker[sensor.Reading]) error {
	client := p.config.Dial(w.ID())

	err := p.config.Retry.Do(context.Background(), "connect", func(ctx context.Context) error {
		if p.config.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.config.ConnectTimeout)
			defer cancel()
		}
		return client.Connect(ctx)
	})
	if err != nil {
		klog.ErrorS(err, "Could not connect to broker", "worker", w.ID())
		return err
	}

	klog.V(2).InfoS("Connected to broker", "worker", w.ID())
	w.SetValue(client)
	return nil
}

func (p *Publisher) disconnect(w *workqueue.Worker[sensor.Reading]) {
	if client, ok := w.Value().(Client); ok {
		client.Disconnect()
		klog.V(2).InfoS("Disconnected from broker", "worker", w.ID())
	}
}

func (p *Publisher) publish(ctx context.Context, w *workqueue.Worker[sensor.Reading], r sensor.Reading) error {
	client, ok := w.Value().(Client)
	if !ok {
		return ErrNoConnection
	}

	topic := p.config.Topics.Topic(r)
	value := r.Value()

	start := time.Now()
	err := p.config.Retry.Do(ctx, "publish", func(ctx context.Context) error {
		return client.Publish(ctx, topic, p.config.QoS, p.config.Retain, value)
	})
	if p.config.Recorder != nil {
		p.config.Recorder.ObservePublish(time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	klog.V(3).InfoS("Published reading", "worker", w.ID(), "topic", topic, "value", value)
	return nil
}

func (p *Publisher) handleError(err error) error {
	klog.ErrorS(err, "Dropping reading")
	return nil
}

func (p *Publisher) abandon(r sensor.Reading) {
	klog.V(2).InfoS("Reading abandoned at shutdown", "reading", r.String())
}

// Submit queues a reading for publication. After Close has started it
// returns workqueue.ErrRejected and the reading is counted as dropped.
func (p *Publisher) Submit(r sensor.Reading) error {
	if _, err := p.queue.Enqueue(r); err != nil {
		if p.config.Recorder != nil {
			p.config.Recorder.Dropped()
		}
		return err
	}
	return nil
}

// Stats returns the underlying queue stats and resets its high-water mark
func (p *Publisher) Stats() workqueue.Stats {
	return p.queue.Stats()
}

// Close stops the publisher. With abandon false, every queued reading is
// published first.
func (p *Publisher) Close(abandon bool) error {
	klog.V(1).InfoS("Stopping publisher", "abandon", abandon)
	return p.queue.Destroy(abandon)
}
