// Package fulfillment turns submitted intake orders into per-pharmacy orders.
//
// The worker consumes intake.submitted, deduplicates each order through the
// inbox, forwards one record per dispensing pharmacy to pharmacy.orders behind
// a per-pharmacy circuit breaker and renders the doctor's intake report.
package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/domain/money"
	"github.com/drfirst/go-intake/internal/domain/pricing"
	"github.com/drfirst/go-intake/internal/infrastructure/redpanda"
	"github.com/drfirst/go-intake/internal/report"
	"github.com/drfirst/go-intake/pkg/circuitbreaker"
	"github.com/drfirst/go-intake/pkg/idempotency"
	"github.com/drfirst/go-intake/pkg/workerpool"
)

// HandlerName identifies this consumer in the inbox.
const HandlerName = "fulfillment.forward_order"

// ErrNoPharmacy is returned for order lines without a dispensing pharmacy.
var ErrNoPharmacy = errors.New("order line has no pharmacy")

// PharmacyOrder is the part of an order one pharmacy dispenses.
type PharmacyOrder struct {
	OrderID       string               `json:"order_id"`
	SessionID     string               `json:"session_id"`
	PharmacyID    string               `json:"pharmacy_id"`
	Delivery      intake.Delivery      `json:"delivery"`
	PaymentMethod intake.PaymentMethod `json:"payment_method"`
	Lines         []pricing.Line       `json:"lines"`
	Subtotal      money.Amount         `json:"subtotal"`
	SubmittedAt   time.Time            `json:"submitted_at"`
}

// Split groups the order lines by pharmacy, sorted by pharmacy ID.
func Split(order *intake.Order) ([]PharmacyOrder, error) {
	byPharmacy := make(map[string]*PharmacyOrder)
	for _, l := range order.Quote.Lines {
		if l.PharmacyID == "" {
			return nil, fmt.Errorf("%w: product %s", ErrNoPharmacy, l.ProductID)
		}
		po, ok := byPharmacy[l.PharmacyID]
		if !ok {
			po = &PharmacyOrder{
				OrderID:       order.ID,
				SessionID:     order.SessionID,
				PharmacyID:    l.PharmacyID,
				Delivery:      order.Delivery,
				PaymentMethod: order.PaymentMethod,
				SubmittedAt:   order.SubmittedAt,
			}
			byPharmacy[l.PharmacyID] = po
		}
		po.Lines = append(po.Lines, l)
		po.Subtotal += l.Total
	}

	out := make([]PharmacyOrder, 0, len(byPharmacy))
	for _, po := range byPharmacy {
		out = append(out, *po)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PharmacyID < out[j].PharmacyID })
	return out, nil
}

// Deduplicator runs a handler at most once per key. *idempotency.Inbox satisfies it.
type Deduplicator interface {
	Process(ctx context.Context, key, handlerName string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error)
}

// Publisher sends records and waits for their acknowledgement. *redpanda.Producer satisfies it.
type Publisher interface {
	ProduceBatch(ctx context.Context, records []*redpanda.Record) error
}

// Config holds configuration for the service
type Config struct {
	// Topic receives the pharmacy orders
	Topic string
	// Pool configures the forwarding workers
	Pool workerpool.Config
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Topic: redpanda.TopicPharmacyOrders,
		Pool:  workerpool.DefaultConfig(),
	}
}

// Deps are the collaborators of a Service. Renderer and Sink are optional;
// without them no report is produced.
type Deps struct {
	Inbox     Deduplicator
	Publisher Publisher
	Breakers  *circuitbreaker.Manager
	Renderer  *report.Renderer
	Sink      report.Sink
	Logger    *zap.Logger
}

// Result is stored in the inbox once an order was forwarded.
type Result struct {
	OrderID    string   `json:"order_id"`
	Pharmacies []string `json:"pharmacies"`
	Report     string   `json:"report,omitempty"`
}

// Service forwards submitted orders.
type Service struct {
	config Config
	deps   Deps
	pool   *workerpool.Pool[PharmacyOrder]
	logger *zap.Logger
	tracer trace.Tracer
}

// NewService creates a fulfillment service
func NewService(cfg Config, deps Deps) (*Service, error) {
	if deps.Inbox == nil || deps.Publisher == nil {
		return nil, errors.New("inbox and publisher are required")
	}
	if deps.Breakers == nil {
		deps.Breakers = circuitbreaker.NewManager(nil, deps.Logger)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	s := &Service{
		config: cfg,
		deps:   deps,
		logger: deps.Logger,
		tracer: otel.Tracer("fulfillment"),
	}

	poolCfg := cfg.Pool
	poolCfg.Retryable = func(err error) bool {
		return !errors.Is(err, circuitbreaker.ErrOpen) && !idempotency.IsPermanent(err)
	}
	pool, err := workerpool.New(poolCfg, s.forward, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	s.pool = pool
	return s, nil
}

// Start launches the forwarding workers.
func (s *Service) Start() { s.pool.Start() }

// Stop drains the forwarding workers.
func (s *Service) Stop() error { return s.pool.Stop() }

// Handle processes one intake.submitted message. Duplicates and permanently
// failed orders are acknowledged; any other error leaves the message for redelivery.
func (s *Service) Handle(ctx context.Context, msg *redpanda.ConsumedMessage) error {
	key := idempotency.Key(msg.Topic, string(msg.Key))

	res, err := s.deps.Inbox.Process(ctx, key, HandlerName, msg.Value, s.process)
	switch {
	case err == nil:
		if !res.IsNew && !res.WasRecovered {
			s.logger.Info("order already forwarded", zap.String("order_id", string(msg.Key)))
		}
		return nil
	case errors.Is(err, idempotency.ErrDuplicateMessage):
		return nil
	case idempotency.IsPermanent(err), errors.Is(err, idempotency.ErrPreviouslyFailed):
		s.logger.Error("dropping order that cannot be forwarded",
			zap.String("order_id", string(msg.Key)),
			zap.Error(err))
		return nil
	default:
		return err
	}
}

func (s *Service) process(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var order intake.Order
	if err := json.Unmarshal(payload, &order); err != nil {
		return nil, idempotency.Permanent(fmt.Errorf("decode order: %w", err))
	}

	ctx, span := s.tracer.Start(ctx, "fulfill_order",
		trace.WithAttributes(attribute.String("order_id", order.ID)))
	defer span.End()

	parts, err := Split(&order)
	if err != nil {
		return nil, idempotency.Permanent(err)
	}

	// Pharmacies are forwarded in parallel; each task retries on its own.
	results := make([]*workerpool.Result, len(parts))
	errs := make([]error, len(parts))
	var wg sync.WaitGroup
	for i := range parts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.pool.SubmitWait(ctx, &workerpool.Task[PharmacyOrder]{
				ID:      order.ID + "/" + parts[i].PharmacyID,
				Payload: parts[i],
				Context: ctx,
			})
		}(i)
	}
	wg.Wait()

	result := Result{OrderID: order.ID}
	var failed []error
	for i, res := range results {
		switch {
		case errs[i] != nil:
			failed = append(failed, errs[i])
		case res.Error != nil:
			failed = append(failed, res.Error)
		default:
			result.Pharmacies = append(result.Pharmacies, parts[i].PharmacyID)
		}
	}
	if len(failed) > 0 {
		span.RecordError(failed[0])
		return nil, fmt.Errorf("%d of %d pharmacy orders failed: %w", len(failed), len(parts), errors.Join(failed...))
	}

	result.Report = s.writeReport(ctx, &order)

	s.logger.Info("order forwarded",
		zap.String("order_id", order.ID),
		zap.Strings("pharmacies", result.Pharmacies),
		zap.Bool("fallback_prices", order.Quote.HasFallbackPrices()))
	return json.Marshal(result)
}

// forward sends one pharmacy order behind that pharmacy's breaker.
func (s *Service) forward(ctx context.Context, task *workerpool.Task[PharmacyOrder]) error {
	po := task.Payload
	cb, err := s.deps.Breakers.Get("pharmacy-" + po.PharmacyID)
	if err != nil {
		return err
	}

	value, err := json.Marshal(po)
	if err != nil {
		return idempotency.Permanent(err)
	}
	record := &redpanda.Record{
		Topic: s.config.Topic,
		Key:   po.PharmacyID,
		Value: value,
		Headers: map[string]string{
			"order-id":        po.OrderID,
			"idempotency-key": idempotency.Key(po.OrderID, po.PharmacyID),
		},
	}

	_, err = circuitbreaker.Do(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.deps.Publisher.ProduceBatch(ctx, []*redpanda.Record{record})
	})
	return err
}

// writeReport renders and stores the intake report. Failures are logged only;
// the pharmacy orders are already out.
func (s *Service) writeReport(ctx context.Context, order *intake.Order) string {
	if s.deps.Renderer == nil || s.deps.Sink == nil {
		return ""
	}
	pdf, err := s.deps.Renderer.Render(order)
	if err != nil {
		s.logger.Warn("failed to render intake report", zap.String("order_id", order.ID), zap.Error(err))
		return ""
	}
	name := report.FileName(order)
	if err := s.deps.Sink.Store(ctx, name, pdf); err != nil {
		s.logger.Warn("failed to store intake report", zap.String("order_id", order.ID), zap.Error(err))
		return ""
	}
	return name
}

// Stats exposes the worker pool statistics.
func (s *Service) Stats() workerpool.Stats { return s.pool.Stats() }

// Healthy reports whether the forwarding queue keeps up.
func (s *Service) Healthy() bool { return s.pool.IsHealthy() }
