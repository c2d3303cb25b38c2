// Package radio produces sensor readings for the publisher
package radio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rpedde/nrf24-mqtt/internal/sensor"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"
)

// EmitFunc receives each reading a source produces. Returning an error
// stops the source.
type EmitFunc func(r sensor.Reading) error

// Source produces readings until it runs out, fails, or ctx is done
type Source interface {
	Run(ctx context.Context, emit EmitFunc) error
}

// Simulator emits a read-only switch reading that toggles on every message
type Simulator struct {
	Address  sensor.Address
	Count    int
	Interval time.Duration
}

// Run emits Count readings, at most one per Interval
func (s *Simulator) Run(ctx context.Context, emit EmitFunc) error {
	limit := rate.Inf
	if s.Interval > 0 {
		limit = rate.Every(s.Interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	klog.V(1).InfoS("Starting simulator", "address", s.Address.String(), "count", s.Count, "interval", s.Interval)

	for remaining := s.Count - 1; remaining >= 0; remaining-- {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		r := sensor.NewUint8Reading(s.Address, sensor.TypeROSwitch, sensor.ModelNone, 0, uint8(remaining%2))
		if err := emit(r); err != nil {
			return err
		}
	}

	klog.V(1).InfoS("Simulator finished", "count", s.Count)
	return nil
}

// FrameReader decodes fixed-size frames from a byte stream
type FrameReader struct {
	Reader io.Reader
}

// Run reads frames until EOF or ctx is done. A truncated trailing frame is
// logged and ignored. Reads are not interrupted by ctx; close the reader to
// unblock one.
func (f *FrameReader) Run(ctx context.Context, emit EmitFunc) error {
	buf := make([]byte, sensor.FrameSize)
	frames := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		_, err := io.ReadFull(f.Reader, buf)
		switch {
		case errors.Is(err, io.EOF):
			klog.V(1).InfoS("Frame source closed", "frames", frames)
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			klog.Warningf("Discarding truncated frame after %d frames", frames)
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		r, err := sensor.Decode(buf)
		if err != nil {
			klog.Warningf("Skipping bad frame: %v", err)
			continue
		}

		frames++
		klog.V(4).InfoS("Received frame", "reading", r.String())
		if err := emit(r); err != nil {
			return err
		}
	}
}
