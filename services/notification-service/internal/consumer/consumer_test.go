package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/notification-service/internal/delivery"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

type memInbox struct {
	mu      sync.Mutex
	seen    map[string]bool
	forgot  []string
	failErr error
}

func newMemInbox() *memInbox { return &memInbox{seen: map[string]bool{}} }

func (m *memInbox) Record(_ context.Context, id, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return false, m.failErr
	}
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

func (m *memInbox) Forget(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, id)
	m.forgot = append(m.forgot, id)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

const bookedJSON = `{"event_id":"evt-1","event_type":"booking.appointment.booked.v1","business_id":"biz-1","appointment_id":"appt-1","start_time":"2030-03-11T09:00:00Z","status":"confirmed"}`

func fastConfig() Config {
	return Config{MaxTries: 2, InitialBackoff: time.Millisecond, RedeliverAfter: time.Millisecond}
}

func TestProcessorDedupsByEventID(t *testing.T) {
	inbox := newMemInbox()
	calls := 0
	p := NewProcessor(inbox, func(context.Context, delivery.Event) error { calls++; return nil }, discardLogger(), fastConfig())

	for i := 0; i < 2; i++ {
		if err := p.Handle(context.Background(), "", []byte(bookedJSON)); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected handler once, got %d", calls)
	}
}

func TestProcessorDropsUndecodable(t *testing.T) {
	p := NewProcessor(newMemInbox(), func(context.Context, delivery.Event) error {
		t.Fatal("handler should not run")
		return nil
	}, discardLogger(), fastConfig())
	if err := p.Handle(context.Background(), "x", []byte(`{"event_type":"other"}`)); err != nil {
		t.Fatalf("expected drop, got %v", err)
	}
}

func TestProcessorRetriesThenForgets(t *testing.T) {
	inbox := newMemInbox()
	calls := 0
	boom := errors.New("db down")
	p := NewProcessor(inbox, func(context.Context, delivery.Event) error { calls++; return boom }, discardLogger(), fastConfig())

	if err := p.Handle(context.Background(), "evt-1", []byte(bookedJSON)); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 tries, got %d", calls)
	}
	if len(inbox.forgot) != 1 || inbox.seen["evt-1"] {
		t.Fatalf("expected inbox record to be forgotten: %+v", inbox)
	}
}

func TestProcessorInboxErrorRedelivers(t *testing.T) {
	inbox := newMemInbox()
	inbox.failErr = errors.New("conn reset")
	p := NewProcessor(inbox, func(context.Context, delivery.Event) error { return nil }, discardLogger(), fastConfig())
	if err := p.Handle(context.Background(), "evt-1", []byte(bookedJSON)); err == nil {
		t.Fatal("expected error")
	}
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
	done      chan struct{}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	close(r.done)
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestKafkaConsumerCommitsAfterHandling(t *testing.T) {
	reader := &fakeReader{
		done: make(chan struct{}),
		msgs: []kafka.Message{
			{Offset: 1, Value: []byte(bookedJSON)},
			{Offset: 2, Value: []byte(bookedJSON)},
			{Offset: 3, Value: []byte(`garbage`)},
		},
	}
	failures := 1
	var handled []string
	p := NewProcessor(newMemInbox(), func(_ context.Context, ev delivery.Event) error {
		if failures > 0 {
			failures--
			return errors.New("transient")
		}
		handled = append(handled, ev.AppointmentID)
		return nil
	}, discardLogger(), Config{MaxTries: 1, InitialBackoff: time.Millisecond, RedeliverAfter: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- NewKafkaConsumer(reader, p, discardLogger()).Run(ctx) }()
	<-reader.done
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(handled) != 1 {
		t.Fatalf("expected one handled event (second is a duplicate), got %v", handled)
	}
	if len(reader.committed) != 3 || reader.committed[0] != 1 || reader.committed[2] != 3 {
		t.Fatalf("unexpected commits %v", reader.committed)
	}
	if !reader.closed {
		t.Fatal("expected reader to be closed")
	}
}

type fakeAck struct {
	acked, nacked, requeued int
}

func (a *fakeAck) Ack(uint64, bool) error { a.acked++; return nil }
func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	if requeue {
		a.requeued++
	}
	return nil
}
func (a *fakeAck) Reject(uint64, bool) error { return nil }

func TestAMQPDeliveryAckAndNack(t *testing.T) {
	fail := true
	p := NewProcessor(newMemInbox(), func(context.Context, delivery.Event) error {
		if fail {
			return errors.New("smtp down")
		}
		return nil
	}, discardLogger(), Config{MaxTries: 1, InitialBackoff: time.Millisecond, RedeliverAfter: time.Millisecond})
	c := NewAMQPConsumer(AMQPConfig{Queue: "booking.notifications"}, p, discardLogger())

	ack := &fakeAck{}
	d := amqp.Delivery{Acknowledger: ack, MessageId: "evt-9", Body: []byte(bookedJSON), Headers: amqp.Table{"event_id": "evt-9"}}

	c.handleDelivery(context.Background(), d)
	if ack.requeued != 1 || ack.acked != 0 {
		t.Fatalf("expected requeue, got %+v", ack)
	}

	fail = false
	c.handleDelivery(context.Background(), d)
	if ack.acked != 1 {
		t.Fatalf("expected ack after redelivery, got %+v", ack)
	}
}

func TestAMQPDrainStopsOnClosedChannel(t *testing.T) {
	c := NewAMQPConsumer(AMQPConfig{}, NewProcessor(newMemInbox(), nil, discardLogger(), Config{}), discardLogger())
	ch := make(chan amqp.Delivery)
	close(ch)
	if err := c.drain(context.Background(), ch); err == nil {
		t.Fatal("expected error for closed channel")
	}
}
