package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/domain/money"
	"github.com/drfirst/go-intake/internal/domain/pricing"
	"github.com/drfirst/go-intake/internal/infrastructure/redpanda"
	"github.com/drfirst/go-intake/pkg/circuitbreaker"
	"github.com/drfirst/go-intake/pkg/idempotency"
)

// memoryInbox is an in-memory Deduplicator with the inbox's status rules.
type memoryInbox struct {
	mu     sync.Mutex
	done   map[string]json.RawMessage
	failed map[string]bool
}

func newMemoryInbox() *memoryInbox {
	return &memoryInbox{done: map[string]json.RawMessage{}, failed: map[string]bool{}}
}

func (m *memoryInbox) Process(ctx context.Context, key, handler string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error) {
	m.mu.Lock()
	if r, ok := m.done[key]; ok {
		m.mu.Unlock()
		return &idempotency.ProcessResult{Result: r}, nil
	}
	if m.failed[key] {
		m.mu.Unlock()
		return nil, idempotency.ErrPreviouslyFailed
	}
	m.mu.Unlock()

	res, err := fn(ctx, payload)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		if idempotency.IsPermanent(err) {
			m.failed[key] = true
		}
		return nil, err
	}
	m.done[key] = res
	return &idempotency.ProcessResult{IsNew: true, Result: res}, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	records []*redpanda.Record
	failFor map[string]error
}

func (p *recordingPublisher) ProduceBatch(ctx context.Context, records []*redpanda.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range records {
		if err := p.failFor[r.Key]; err != nil {
			return err
		}
	}
	p.records = append(p.records, records...)
	return nil
}

func (p *recordingPublisher) byPharmacy() map[string]PharmacyOrder {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := map[string]PharmacyOrder{}
	for _, r := range p.records {
		var po PharmacyOrder
		json.Unmarshal(r.Value, &po)
		out[r.Key] = po
	}
	return out
}

func testOrder() *intake.Order {
	return &intake.Order{
		ID:            "order-1",
		SessionID:     "sess-1",
		Delivery:      intake.Delivery{Method: intake.DeliveryPickup},
		PaymentMethod: intake.PaymentCard,
		Quote: pricing.Quote{
			Lines: []pricing.Line{
				{ProductID: "p1", PharmacyID: "ph2", Quantity: 4, UnitPrice: 1250, Total: 5000},
				{ProductID: "p2", PharmacyID: "ph1", Quantity: 1, UnitPrice: 8995, Total: 8995},
				{ProductID: "p3", PharmacyID: "ph2", Quantity: 2, UnitPrice: 1000, Total: 2000},
			},
		},
		SubmittedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func message(t *testing.T, order *intake.Order) *redpanda.ConsumedMessage {
	t.Helper()
	b, err := json.Marshal(order)
	if err != nil {
		t.Fatal(err)
	}
	return &redpanda.ConsumedMessage{Topic: redpanda.TopicIntakeSubmitted, Key: []byte(order.ID), Value: b}
}

func newTestService(t *testing.T, pub *recordingPublisher) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Pool.Workers = 2
	cfg.Pool.MaxRetries = 1
	cfg.Pool.RetryDelay = time.Millisecond

	breakers := circuitbreaker.NewManager(func(name string) circuitbreaker.Config {
		c := circuitbreaker.DefaultConfig(name)
		c.FailureThreshold = 2
		c.Timeout = time.Hour
		return c
	}, nil)

	svc, err := NewService(cfg, Deps{Inbox: newMemoryInbox(), Publisher: pub, Breakers: breakers})
	if err != nil {
		t.Fatal(err)
	}
	svc.Start()
	t.Cleanup(func() { svc.Stop() })
	return svc
}

func TestSplit(t *testing.T) {
	parts, err := Split(testOrder())
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 2 || parts[0].PharmacyID != "ph1" || parts[1].PharmacyID != "ph2" {
		t.Fatalf("parts = %+v", parts)
	}
	if parts[1].Subtotal != money.Cents(7000) || len(parts[1].Lines) != 2 {
		t.Errorf("ph2 = %+v", parts[1])
	}
	if parts[0].OrderID != "order-1" || parts[0].PaymentMethod != intake.PaymentCard {
		t.Errorf("ph1 = %+v", parts[0])
	}

	o := testOrder()
	o.Quote.Lines[0].PharmacyID = ""
	if _, err := Split(o); !errors.Is(err, ErrNoPharmacy) {
		t.Errorf("Split() error = %v, want ErrNoPharmacy", err)
	}
}

func TestHandleForwardsOncePerPharmacy(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(t, pub)
	msg := message(t, testOrder())

	if err := svc.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	got := pub.byPharmacy()
	if len(got) != 2 || got["ph2"].Subtotal != 7000 || got["ph1"].Subtotal != 8995 {
		t.Fatalf("forwarded = %+v", got)
	}
	for _, r := range pub.records {
		if r.Topic != redpanda.TopicPharmacyOrders || r.Headers["idempotency-key"] == "" {
			t.Errorf("record = %+v", r)
		}
	}

	// Redelivery is absorbed by the inbox.
	if err := svc.Handle(context.Background(), msg); err != nil {
		t.Fatalf("second Handle() error = %v", err)
	}
	if len(pub.records) != 2 {
		t.Errorf("records after redelivery = %d, want 2", len(pub.records))
	}
}

func TestHandlePoisonMessageIsAcknowledged(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(t, pub)

	msg := &redpanda.ConsumedMessage{Topic: redpanda.TopicIntakeSubmitted, Key: []byte("bad"), Value: []byte(`{"quote":`)}
	if err := svc.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle() error = %v, want nil for undecodable order", err)
	}
	if err := svc.Handle(context.Background(), msg); err != nil {
		t.Fatalf("redelivered poison message: %v", err)
	}
	if len(pub.records) != 0 {
		t.Errorf("records = %d", len(pub.records))
	}
}

func TestHandleBrokerFailureIsRetriedLater(t *testing.T) {
	pub := &recordingPublisher{failFor: map[string]error{"ph2": errors.New("leader not available")}}
	svc := newTestService(t, pub)

	err := svc.Handle(context.Background(), message(t, testOrder()))
	if err == nil {
		t.Fatal("expected error so the message stays uncommitted")
	}
	got := pub.byPharmacy()
	if _, ok := got["ph1"]; !ok || len(got) != 1 {
		t.Errorf("forwarded = %+v", got)
	}

	// The ph2 breaker opened after two failed attempts.
	health := svc.deps.Breakers.Health()
	var ph2 circuitbreaker.HealthStatus
	for _, h := range health {
		if h.Name == "pharmacy-ph2" {
			ph2 = h
		}
	}
	if ph2.State != circuitbreaker.StateOpen {
		t.Errorf("ph2 breaker = %+v", ph2)
	}
}
