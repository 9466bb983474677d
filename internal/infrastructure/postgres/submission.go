package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/infrastructure/redpanda"
)

// ErrDuplicateOrder is returned when a session already submitted an order
// and the stored order could not be read back.
var ErrDuplicateOrder = intake.ErrOrderExists

// Outbox event types written by SubmissionStore.
const (
	EventOrderSubmitted = "IntakeOrderSubmitted"
	EventIntakeRejected = "IntakeRejected"
)

// SubmissionStoreConfig names the topics the outbox rows are relayed to.
type SubmissionStoreConfig struct {
	SubmittedTopic string
	RejectedTopic  string
}

// DefaultSubmissionStoreConfig returns the standard topics.
func DefaultSubmissionStoreConfig() SubmissionStoreConfig {
	return SubmissionStoreConfig{
		SubmittedTopic: redpanda.TopicIntakeSubmitted,
		RejectedTopic:  redpanda.TopicIntakeRejected,
	}
}

// SubmissionStore persists checked-out orders and rejected intakes. Each call
// commits the domain rows and the matching outbox entry in one transaction.
type SubmissionStore struct {
	pool   *pgxpool.Pool
	config SubmissionStoreConfig
	logger *zap.Logger
	tracer trace.Tracer
}

var (
	_ intake.Submitter = (*SubmissionStore)(nil)
	_ intake.Notifier  = (*SubmissionStore)(nil)
)

// NewSubmissionStore creates a submission store
func NewSubmissionStore(pool *pgxpool.Pool, cfg SubmissionStoreConfig, logger *zap.Logger) *SubmissionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionStore{pool: pool, config: cfg, logger: logger, tracer: otel.Tracer("submission-store")}
}

// Submit stores the order, its lines, the session transition log and an
// outbox entry for the fulfillment worker.
func (s *SubmissionStore) Submit(ctx context.Context, order *intake.Order) (*intake.Confirmation, error) {
	ctx, span := s.tracer.Start(ctx, "submission_store_submit",
		trace.WithAttributes(
			attribute.String("order_id", order.ID),
			attribute.String("session_id", order.SessionID),
		))
	defer span.End()

	payload, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}
	answers, err := json.Marshal(order.Answers)
	if err != nil {
		return nil, fmt.Errorf("marshal answers: %w", err)
	}
	flags, err := json.Marshal(order.Flags)
	if err != nil {
		return nil, fmt.Errorf("marshal flags: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var acceptedAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, session_id, treatment, skip_questionnaire, delivery_method, payment_method,
		                    subtotal, prescription_fee, shipping_fee, grand_total, answers, flags, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`,
		order.ID, order.SessionID, string(order.Treatment), order.SkipQuestionnaire,
		string(order.Delivery.Method), string(order.PaymentMethod),
		order.Quote.Subtotal.Cents(), order.Quote.PrescriptionFee.Cents(),
		order.Quote.ShippingFee.Cents(), order.Quote.GrandTotal.Cents(),
		answers, flags, order.SubmittedAt,
	).Scan(&acceptedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, s.storedOrder(ctx, order.SessionID)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for _, l := range order.Quote.Lines {
		batch.Queue(`
			INSERT INTO order_lines (order_id, product_id, pharmacy_id, name, kind, quantity, unit,
			                         unit_price, total, fallback)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, order.ID, l.ProductID, l.PharmacyID, l.Name, string(l.Kind), l.Quantity, l.Unit,
			l.UnitPrice.Cents(), l.Total.Cents(), l.Fallback)
	}
	for _, e := range order.Events {
		action, err := json.Marshal(e.Action)
		if err != nil {
			return nil, fmt.Errorf("marshal event action: %w", err)
		}
		batch.Queue(`
			INSERT INTO intake_events (id, session_id, event_type, action, from_step, to_step,
			                           from_index, to_index, version, timestamp, correlation_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (session_id, version) DO NOTHING
		`, e.ID, e.SessionID, string(e.EventType), action, string(e.FromStep), string(e.ToStep),
			e.FromIndex, e.ToIndex, e.Version, e.Timestamp, e.CorrelationID)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("insert order details: %w", err)
	}

	if err := Enqueue(ctx, tx, &Event{
		AggregateID:   order.ID,
		AggregateType: "intake_order",
		Type:          EventOrderSubmitted,
		Payload:       payload,
		Topic:         s.config.SubmittedTopic,
		Key:           order.ID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("order stored",
		zap.String("order_id", order.ID),
		zap.String("session_id", order.SessionID),
		zap.Int("lines", len(order.Quote.Lines)))

	return &intake.Confirmation{OrderID: order.ID, AcceptedAt: acceptedAt}, nil
}

// storedOrder reports the order an earlier attempt committed for sessionID.
func (s *SubmissionStore) storedOrder(ctx context.Context, sessionID string) error {
	e := &intake.OrderExistsError{}
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, created_at FROM orders WHERE session_id = $1`, sessionID,
	).Scan(&e.OrderID, &e.AcceptedAt)
	if err != nil {
		s.logger.Warn("stored order lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		return ErrDuplicateOrder
	}
	s.logger.Info("order already stored", zap.String("session_id", sessionID), zap.String("order_id", e.OrderID))
	return e
}

// IntakeRejected records a disqualified intake as an outbox entry only; no
// medical answers beyond the screening block are kept.
func (s *SubmissionStore) IntakeRejected(ctx context.Context, r intake.Rejection) error {
	ctx, span := s.tracer.Start(ctx, "submission_store_rejected",
		trace.WithAttributes(attribute.String("session_id", r.SessionID)))
	defer span.End()

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal rejection: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := Enqueue(ctx, tx, &Event{
		AggregateID:   r.SessionID,
		AggregateType: "intake_session",
		Type:          EventIntakeRejected,
		Payload:       payload,
		Topic:         s.config.RejectedTopic,
		Key:           r.SessionID,
	}); err != nil {
		span.RecordError(err)
		return err
	}
	return tx.Commit(ctx)
}
