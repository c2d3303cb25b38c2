// Command nrf24-mqtt publishes nRF24 sensor readings to an MQTT broker
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/coder/quartz"
	"github.com/rpedde/nrf24-mqtt/internal/config"
	"github.com/rpedde/nrf24-mqtt/internal/metrics"
	"github.com/rpedde/nrf24-mqtt/internal/publisher"
	"github.com/rpedde/nrf24-mqtt/internal/radio"
	"github.com/rpedde/nrf24-mqtt/internal/retry"
	"github.com/rpedde/nrf24-mqtt/internal/sensor"
	"github.com/rpedde/nrf24-mqtt/pkg/workqueue"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	configFile := flag.String("c", config.DefaultPath, "config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	defer klog.Flush()

	if _, err := maxprocs.Set(maxprocs.Logger(klog.V(2).Infof)); err != nil {
		klog.Warningf("Could not set GOMAXPROCS: %v", err)
	}

	if err := run(*configFile); err != nil {
		klog.ErrorS(err, "Exiting")
		klog.FlushAndExit(klog.ExitFlushTimeout, 1)
	}
}

func run(path string) error {
	klog.V(1).InfoS("Loading config", "path", path)
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg.Dump()

	configureDeadlockDetection(cfg)

	m := metrics.New()
	executor := retry.NewExecutor(
		retry.NewBackoff(cfg.Retry.MaxAttempts, cfg.Retry.InitialDelay,
			retry.WithMaxDelay(cfg.Retry.MaxDelay), retry.WithJitter(0.1)),
		retry.WithOnRetry(func(op string, attempt int, err error) {
			klog.Warningf("%s attempt %d failed: %v", op, attempt, err)
		}),
	)

	klog.V(1).InfoS("Starting mqtt workers", "workers", cfg.Workers)
	pub, err := publisher.New(publisher.Config{
		Workers:         cfg.Workers,
		MaskSignals:     cfg.MaskSignals,
		DetectDeadlocks: cfg.DeadlockDetection,
		QoS:             cfg.MQTT.QoS,
		Retain:          cfg.MQTT.Retain,
		Topics:          sensor.Topics{Prefix: cfg.MQTT.TopicPrefix, Names: cfg.Sensors},
		ConnectTimeout:  cfg.MQTT.ConnectTimeout,
		Dial:            publisher.PahoDialer(cfg.MQTT),
		Retry:           executor,
		Recorder:        m,
	})
	if err != nil {
		return fmt.Errorf("starting publisher: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	reporter := metrics.NewReporter(pub, m, cfg.StatsInterval, quartz.NewReal())
	reporterDone := reporter.Start(gctx)
	g.Go(func() error {
		<-reporterDone
		return nil
	})

	if cfg.MetricsListen != "" {
		g.Go(func() error {
			return m.Serve(gctx, cfg.MetricsListen)
		})
	}

	source, err := newSource(gctx, cfg)
	if err != nil {
		stop()
		_ = g.Wait()
		return errors.Join(err, pub.Close(true))
	}

	g.Go(func() error {
		err := source.Run(gctx, pub.Submit)
		// the daemon lives as long as its source
		stop()
		if errors.Is(err, workqueue.ErrRejected) {
			return nil
		}
		return err
	})

	runErr := g.Wait()
	closeErr := pub.Close(cfg.Abandon)

	s := reporter.Report()
	klog.InfoS("Publisher stopped", "dispatched", s.Dispatched, "failed", s.Failed,
		"rejected", s.Rejected, "abandoned", s.Abandoned)

	return errors.Join(runErr, closeErr)
}

// newSource builds the configured reading source. A device source is closed
// when ctx is done so a blocked read returns.
func newSource(ctx context.Context, cfg *config.Config) (radio.Source, error) {
	switch cfg.Source {
	case config.SourceFrames:
		f, err := os.Open(cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("opening frame device: %w", err)
		}
		go func() {
			<-ctx.Done()
			f.Close()
		}()
		return &radio.FrameReader{Reader: f}, nil
	default:
		return &radio.Simulator{
			Address:  cfg.Simulator.Address,
			Count:    cfg.Simulator.Count,
			Interval: cfg.Simulator.Interval,
		}, nil
	}
}

func configureDeadlockDetection(cfg *config.Config) {
	deadlock.Opts.Disable = !cfg.DeadlockDetection
	if !cfg.DeadlockDetection {
		return
	}

	deadlock.Opts.DeadlockTimeout = cfg.DeadlockTimeout
	deadlock.Opts.OnPotentialDeadlock = func() {
		buf := make([]byte, 1<<16)
		n := runtime.Stack(buf, true)
		klog.Errorf("Potential deadlock detected, goroutine dump:\n%s", buf[:n])
		klog.FlushAndExit(klog.ExitFlushTimeout, 2)
	}
	klog.V(1).InfoS("Deadlock detection enabled", "timeout", cfg.DeadlockTimeout)
}
