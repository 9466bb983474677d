// Package postgres stores the catalog, submitted orders and the outbox that
// carries order and rejection events to Redpanda.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/infrastructure/redpanda"
)

// Event is one outbox row: a message written in the same transaction as the
// order it describes and published later by the relay.
type Event struct {
	ID            int64
	AggregateID   string
	AggregateType string
	Type          string
	Payload       json.RawMessage
	Topic         string
	Key           string
	CreatedAt     time.Time
	Attempts      int
	LastError     *string
}

// Enqueue inserts e within tx. It becomes visible to the relay on commit.
func Enqueue(ctx context.Context, tx pgx.Tx, e *Event) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO outbox (aggregate_id, aggregate_type, event_type, payload, kafka_topic, kafka_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, e.AggregateID, e.AggregateType, e.Type, e.Payload, e.Topic, e.Key).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue %s event: %w", e.Type, err)
	}
	return nil
}

// OutboxConfig holds configuration for the relay.
type OutboxConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// MaxRetries is the number of failed publishes after which an event is dead-lettered.
	MaxRetries      int
	DeadLetterTopic string
	// RetryBackoff is the delay after the first failure; it doubles per attempt up to MaxBackoff.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
}

// DefaultOutboxConfig returns the relay defaults.
func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		BatchSize:       100,
		PollInterval:    250 * time.Millisecond,
		MaxRetries:      5,
		DeadLetterTopic: redpanda.TopicDeadLetter,
		RetryBackoff:    time.Second,
		MaxBackoff:      5 * time.Minute,
	}
}

// OutboxPublisher publishes one message. *redpanda.Producer satisfies it.
type OutboxPublisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Outbox relays committed events to the broker. Rows are claimed with
// FOR UPDATE SKIP LOCKED, so several relays can run side by side.
type Outbox struct {
	pool      *pgxpool.Pool
	config    OutboxConfig
	publisher OutboxPublisher
	logger    *zap.Logger
	tracer    trace.Tracer
	onPending func(pending int64)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOutbox creates a relay reading from pool.
func NewOutbox(pool *pgxpool.Pool, publisher OutboxPublisher, cfg OutboxConfig, logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Outbox{
		pool:      pool,
		config:    cfg,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("outbox"),
		onPending: func(int64) {},
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// OnPending registers a callback receiving the backlog size after each poll.
func (o *Outbox) OnPending(fn func(pending int64)) {
	if fn != nil {
		o.onPending = fn
	}
}

// Start runs the relay in the background.
func (o *Outbox) Start() {
	go o.run()
	o.logger.Info("outbox relay started",
		zap.Int("batch_size", o.config.BatchSize),
		zap.Duration("poll_interval", o.config.PollInterval))
}

// Stop waits for the batch in flight and stops the relay.
func (o *Outbox) Stop() {
	o.cancel()
	<-o.done
	o.logger.Info("outbox relay stopped")
}

func (o *Outbox) run() {
	defer close(o.done)

	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
		}
		// A full batch means there is more waiting.
		for o.ctx.Err() == nil {
			n, err := o.relayBatch(o.ctx)
			if err != nil {
				o.logger.Error("outbox batch failed", zap.Error(err))
				break
			}
			if n < o.config.BatchSize {
				break
			}
		}
		if pending, err := o.pending(o.ctx); err == nil {
			o.onPending(pending)
		}
	}
}

// outcome is what happened to one claimed event.
type outcome int

const (
	published outcome = iota
	retry
	deadLettered
)

// relayBatch claims up to BatchSize due events, publishes them and records
// the results in the same transaction. It returns the number claimed.
func (o *Outbox) relayBatch(ctx context.Context) (int, error) {
	ctx, span := o.tracer.Start(ctx, "outbox_relay_batch")
	defer span.End()

	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(context.Background())

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, payload,
		       kafka_topic, kafka_key, created_at, retry_count, last_error
		FROM outbox
		WHERE processed_at IS NULL AND next_attempt_at <= NOW()
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, o.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim events: %w", err)
	}
	events, err := pgx.CollectRows(rows, scanEvent)
	if err != nil {
		return 0, fmt.Errorf("scan events: %w", err)
	}
	span.SetAttributes(attribute.Int("outbox.batch_size", len(events)))
	if len(events) == 0 {
		return 0, nil
	}

	var done []int64
	for _, e := range events {
		switch res, publishErr := o.relay(ctx, e); res {
		case published, deadLettered:
			done = append(done, e.ID)
		case retry:
			delay := backoff(o.config.RetryBackoff, o.config.MaxBackoff, e.Attempts)
			if _, err := tx.Exec(ctx, `
				UPDATE outbox
				SET retry_count = retry_count + 1, last_error = $1, next_attempt_at = $2, updated_at = NOW()
				WHERE id = $3
			`, publishErr.Error(), time.Now().Add(delay), e.ID); err != nil {
				return 0, fmt.Errorf("record failed publish of %d: %w", e.ID, err)
			}
		}
	}

	if len(done) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE outbox SET processed_at = NOW(), updated_at = NOW() WHERE id = ANY($1)`, done); err != nil {
			return 0, fmt.Errorf("mark processed: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		// Published events will be sent again; consumers deduplicate by key.
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(events), nil
}

// relay publishes e, or its dead letter envelope once its retries are used up.
func (o *Outbox) relay(ctx context.Context, e *Event) (outcome, error) {
	ctx, span := o.tracer.Start(ctx, "outbox_relay_event",
		trace.WithAttributes(
			attribute.Int64("outbox.id", e.ID),
			attribute.String("outbox.event_type", e.Type),
			attribute.String("outbox.aggregate_id", e.AggregateID),
		))
	defer span.End()

	err := o.publisher.Publish(ctx, e.Topic, e.Key, e.Payload)
	if err == nil {
		return published, nil
	}
	span.RecordError(err)
	if e.Attempts+1 < o.config.MaxRetries {
		o.logger.Warn("publish failed, will retry",
			zap.Int64("id", e.ID),
			zap.String("event_type", e.Type),
			zap.Int("attempt", e.Attempts+1),
			zap.Error(err))
		return retry, err
	}

	msg := err.Error()
	e.LastError = &msg
	envelope, err := deadLetterFor(e)
	if err != nil {
		return retry, err
	}
	if err := o.publisher.Publish(ctx, o.config.DeadLetterTopic, e.Key, envelope); err != nil {
		o.logger.Error("dead letter publish failed", zap.Int64("id", e.ID), zap.Error(err))
		return retry, err
	}
	o.logger.Warn("event dead-lettered",
		zap.Int64("id", e.ID),
		zap.String("event_type", e.Type),
		zap.String("aggregate_id", e.AggregateID))
	return deadLettered, nil
}

func scanEvent(row pgx.CollectableRow) (*Event, error) {
	e := &Event{}
	err := row.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.Type, &e.Payload,
		&e.Topic, &e.Key, &e.CreatedAt, &e.Attempts, &e.LastError)
	return e, err
}

// backoff returns the delay before retry number attempts+1.
func backoff(base, ceiling time.Duration, attempts int) time.Duration {
	d := base
	for range attempts {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return min(d, ceiling)
}

// DeadLetter is the envelope published for events that exhausted their retries.
type DeadLetter struct {
	OriginalTopic string          `json:"original_topic"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	RetryCount    int             `json:"retry_count"`
	LastError     *string         `json:"last_error"`
	CreatedAt     time.Time       `json:"created_at"`
}

func deadLetterFor(e *Event) ([]byte, error) {
	return json.Marshal(DeadLetter{
		OriginalTopic: e.Topic,
		EventType:     e.Type,
		AggregateID:   e.AggregateID,
		Payload:       e.Payload,
		RetryCount:    e.Attempts + 1,
		LastError:     e.LastError,
		CreatedAt:     e.CreatedAt,
	})
}

func (o *Outbox) pending(ctx context.Context) (int64, error) {
	var n int64
	err := o.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE processed_at IS NULL`).Scan(&n)
	return n, err
}

// CleanupProcessed deletes events processed more than olderThan ago.
func (o *Outbox) CleanupProcessed(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := o.pool.Exec(ctx,
		`DELETE FROM outbox WHERE processed_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}

// OutboxStats describes the relay backlog.
type OutboxStats struct {
	Pending       int64      `json:"pending"`
	Retrying      int64      `json:"retrying"`
	Published24h  int64      `json:"published_24h"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
}

// GetStats returns current outbox statistics.
func (o *Outbox) GetStats(ctx context.Context) (*OutboxStats, error) {
	s := &OutboxStats{}
	err := o.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE processed_at IS NULL),
			COUNT(*) FILTER (WHERE processed_at IS NULL AND retry_count > 0),
			COUNT(*) FILTER (WHERE processed_at > NOW() - INTERVAL '24 hours'),
			MIN(created_at) FILTER (WHERE processed_at IS NULL)
		FROM outbox
	`).Scan(&s.Pending, &s.Retrying, &s.Published24h, &s.OldestPending)
	if err != nil {
		return nil, err
	}
	return s, nil
}
