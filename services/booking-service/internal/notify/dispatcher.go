// Package notify delivers appointment events to external transports after
// the booking transaction has committed. Delivery is best effort: the
// request path only enqueues.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var (
	ErrQueueFull = errors.New("notify: queue full")
	ErrClosed    = errors.New("notify: dispatcher closed")
)

type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

type Config struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
	MaxTries    uint
}

type Dispatcher struct {
	logger *slog.Logger
	sinks  []Sink
	cfg    Config

	mu     sync.RWMutex
	closed bool
	queue  chan Event
}

func NewDispatcher(logger *slog.Logger, cfg Config, sinks ...Sink) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 3
	}
	return &Dispatcher{
		logger: logger,
		sinks:  sinks,
		cfg:    cfg,
		queue:  make(chan Event, cfg.QueueSize),
	}
}

// Dispatch enqueues ev without blocking.
func (d *Dispatcher) Dispatch(_ context.Context, ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers until ctx is done, then drains what is already queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range d.queue {
				d.deliver(ev)
			}
		}()
	}

	<-ctx.Done()
	d.mu.Lock()
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	wg.Wait()
	return nil
}

func (d *Dispatcher) deliver(ev Event) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			return struct{}{}, sink.Send(ctx, ev)
		},
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(d.cfg.MaxTries),
		)
		cancel()
		if err != nil {
			d.logger.Warn("notification delivery failed",
				"err", err,
				"sink", sink.Name(),
				"event_type", ev.EventType,
				"appointment_id", ev.AppointmentID,
			)
			continue
		}
		d.logger.Debug("notification delivered", "sink", sink.Name(), "event_type", ev.EventType, "appointment_id", ev.AppointmentID)
	}
}

// LogSink writes events to the logger; it is the fallback when no broker is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Send(ctx context.Context, ev Event) error {
	s.Logger.InfoContext(ctx, "notification",
		"event_type", ev.EventType,
		"business_id", ev.TenantID,
		"appointment_id", ev.AppointmentID,
		"staff_id", ev.StaffID,
		"start_time", ev.StartTime,
	)
	return nil
}
