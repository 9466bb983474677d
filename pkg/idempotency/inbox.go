// Package idempotency provides the inbox pattern for exactly-once message
// processing. Keys are derived from the order and the pharmacy it is sent to,
// so a redelivered order never reaches a pharmacy twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Status is the processing state of an inbox row.
type Status string

const (
	StatusStarted     Status = "STARTED"
	StatusFinished    Status = "FINISHED"
	StatusRecoverable Status = "RECOVERABLE"
	StatusFailed      Status = "FAILED"
)

var (
	// ErrDuplicateMessage is returned when a key was claimed concurrently by another worker.
	ErrDuplicateMessage = errors.New("duplicate message: already processed")
	// ErrMessageInProgress is returned while another worker holds a fresh claim on the key.
	ErrMessageInProgress = errors.New("message in progress by another handler")
	// ErrPreviouslyFailed is returned for keys whose handler failed permanently.
	ErrPreviouslyFailed = errors.New("message previously failed permanently")
)

// DB is the subset of *pgxpool.Pool the inbox needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// InboxConfig holds configuration for the inbox
type InboxConfig struct {
	// TTL is how long a key is remembered. It must outlive the broker's
	// offset retention, or a rewound consumer could forward an order again.
	TTL time.Duration
	// CleanupInterval is how often expired rows are deleted
	CleanupInterval time.Duration
	// ClaimTimeout is when a STARTED claim is considered abandoned by a crashed worker
	ClaimTimeout time.Duration
	// MaxAttempts turns a key FAILED after this many recoverable failures. Zero means unlimited.
	MaxAttempts int
}

// DefaultInboxConfig returns defaults for the fulfillment worker.
func DefaultInboxConfig() InboxConfig {
	return InboxConfig{
		TTL:             30 * 24 * time.Hour,
		CleanupInterval: time.Hour,
		ClaimTimeout:    5 * time.Minute,
		MaxAttempts:     10,
	}
}

// Entry is one inbox row.
type Entry struct {
	Key       string
	Handler   string
	Status    Status
	Attempts  int
	Result    json.RawMessage
	LastError string
	UpdatedAt time.Time
}

// ProcessResult describes how Process handled a key.
type ProcessResult struct {
	IsNew        bool // first attempt for this key
	WasRecovered bool // an earlier attempt failed or was abandoned
	Attempts     int
	Result       json.RawMessage
}

// ProcessFunc is the function signature for idempotent handlers
type ProcessFunc func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Inbox runs handlers at most once per key, backed by the inbox table.
type Inbox struct {
	db     DB
	config InboxConfig
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewInbox creates an inbox on db, usually a *pgxpool.Pool.
func NewInbox(db DB, cfg InboxConfig, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Inbox{
		db:     db,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("inbox"),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Process claims key and runs fn. A key that already FINISHED returns its
// stored result without calling fn; a FAILED key returns ErrPreviouslyFailed.
func (i *Inbox) Process(ctx context.Context, key, handlerName string, payload json.RawMessage, fn ProcessFunc) (*ProcessResult, error) {
	ctx, span := i.tracer.Start(ctx, "inbox_process",
		trace.WithAttributes(
			attribute.String("idempotency_key", key),
			attribute.String("handler", handlerName),
		))
	defer span.End()

	attempts, claimed, err := i.claim(ctx, key, handlerName, payload)
	if err != nil {
		return nil, fmt.Errorf("claim inbox key: %w", err)
	}
	if !claimed {
		entry, err := i.get(ctx, key)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Cleaned up between claim and read.
				return nil, ErrDuplicateMessage
			}
			return nil, fmt.Errorf("read inbox key: %w", err)
		}
		res, err := settled(entry)
		span.SetAttributes(attribute.String("inbox.status", string(entry.Status)))
		return res, err
	}
	span.SetAttributes(attribute.Int("inbox.attempts", attempts))

	result, handlerErr := fn(ctx, payload)
	if handlerErr != nil {
		status := i.failureStatus(handlerErr, attempts)
		if err := i.finish(ctx, key, status, nil, handlerErr.Error()); err != nil {
			i.logger.Error("failed to record handler failure",
				zap.String("idempotency_key", key),
				zap.Error(err))
		}
		if status == StatusFailed && !IsPermanent(handlerErr) {
			i.logger.Warn("giving up on message",
				zap.String("idempotency_key", key),
				zap.Int("attempts", attempts),
				zap.Error(handlerErr))
		}
		span.RecordError(handlerErr)
		return nil, handlerErr
	}

	if err := i.finish(ctx, key, StatusFinished, result, ""); err != nil {
		// The side effects happened; a redelivery will see STARTED and wait for the claim timeout.
		i.logger.Error("failed to mark finished", zap.String("idempotency_key", key), zap.Error(err))
	}
	return &ProcessResult{
		IsNew:        attempts == 1,
		WasRecovered: attempts > 1,
		Attempts:     attempts,
		Result:       result,
	}, nil
}

// settled maps an entry that could not be claimed to the Process outcome.
func settled(e *Entry) (*ProcessResult, error) {
	switch e.Status {
	case StatusFinished:
		return &ProcessResult{Attempts: e.Attempts, Result: e.Result}, nil
	case StatusFailed:
		return nil, fmt.Errorf("%w: %s", ErrPreviouslyFailed, e.Key)
	case StatusStarted:
		return nil, ErrMessageInProgress
	}
	// RECOVERABLE but not claimed: another worker won the race.
	return nil, ErrDuplicateMessage
}

func (i *Inbox) failureStatus(err error, attempts int) Status {
	if IsPermanent(err) {
		return StatusFailed
	}
	if i.config.MaxAttempts > 0 && attempts >= i.config.MaxAttempts {
		return StatusFailed
	}
	return StatusRecoverable
}

// claim inserts the key as STARTED, or takes over a RECOVERABLE row or an
// abandoned STARTED row, in a single statement.
func (i *Inbox) claim(ctx context.Context, key, handlerName string, payload json.RawMessage) (attempts int, claimed bool, err error) {
	const query = `
		INSERT INTO inbox (idempotency_key, handler_name, status, payload, attempts, expires_at)
		VALUES ($1, $2, 'STARTED', $3, 1, $4)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status = 'STARTED', attempts = inbox.attempts + 1, updated_at = NOW()
		WHERE inbox.status = 'RECOVERABLE'
		   OR (inbox.status = 'STARTED' AND inbox.updated_at < $5)
		RETURNING attempts
	`
	stale := i.now().Add(-i.config.ClaimTimeout)
	err = i.db.QueryRow(ctx, query, key, handlerName, payload, i.now().Add(i.config.TTL), stale).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return attempts, true, nil
}

func (i *Inbox) get(ctx context.Context, key string) (*Entry, error) {
	const query = `
		SELECT idempotency_key, handler_name, status, attempts, result, COALESCE(last_error, ''), updated_at
		FROM inbox
		WHERE idempotency_key = $1
	`
	e := &Entry{}
	err := i.db.QueryRow(ctx, query, key).Scan(
		&e.Key, &e.Handler, &e.Status, &e.Attempts, &e.Result, &e.LastError, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (i *Inbox) finish(ctx context.Context, key string, status Status, result json.RawMessage, errMsg string) error {
	const query = `
		UPDATE inbox
		SET status = $1, result = $2, last_error = NULLIF($3, ''), updated_at = NOW()
		WHERE idempotency_key = $4
	`
	_, err := i.db.Exec(ctx, query, status, result, errMsg, key)
	return err
}

// Key derives a deterministic idempotency key from its parts, for example
// the order ID and the pharmacy ID of one forwarded pharmacy order.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// StartCleanup starts deleting expired rows in the background.
func (i *Inbox) StartCleanup() {
	go i.cleanupLoop()
	i.logger.Info("inbox cleanup started", zap.Duration("interval", i.config.CleanupInterval))
}

// Stop stops the cleanup loop.
func (i *Inbox) Stop() {
	i.cancel()
	<-i.done
	i.logger.Info("inbox stopped")
}

func (i *Inbox) cleanupLoop() {
	defer close(i.done)

	ticker := time.NewTicker(i.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.ctx.Done():
			return
		case <-ticker.C:
			n, err := i.Cleanup(i.ctx)
			if err != nil {
				i.logger.Error("inbox cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				i.logger.Info("inbox cleanup completed", zap.Int64("deleted", n))
			}
		}
	}
}

// Cleanup deletes expired rows and returns how many were removed.
func (i *Inbox) Cleanup(ctx context.Context) (int64, error) {
	tag, err := i.db.Exec(ctx, `DELETE FROM inbox WHERE expires_at < $1`, i.now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RecoverStaleEntries releases claims older than the claim timeout, typically
// left by a worker that crashed. Run it once on startup.
func (i *Inbox) RecoverStaleEntries(ctx context.Context) (int64, error) {
	const query = `
		UPDATE inbox
		SET status = 'RECOVERABLE', updated_at = NOW()
		WHERE status = 'STARTED' AND updated_at < $1
	`
	tag, err := i.db.Exec(ctx, query, i.now().Add(-i.config.ClaimTimeout))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// permanentError marks a handler failure that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the inbox records it as FAILED instead of RECOVERABLE.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// InboxStats counts rows per status.
type InboxStats struct {
	Total       int64 `json:"total"`
	Started     int64 `json:"started"`
	Finished    int64 `json:"finished"`
	Recoverable int64 `json:"recoverable"`
	Failed      int64 `json:"failed"`
}

// GetStats returns the current row counts.
func (i *Inbox) GetStats(ctx context.Context) (*InboxStats, error) {
	const query = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'STARTED'),
			COUNT(*) FILTER (WHERE status = 'FINISHED'),
			COUNT(*) FILTER (WHERE status = 'RECOVERABLE'),
			COUNT(*) FILTER (WHERE status = 'FAILED')
		FROM inbox
	`
	s := &InboxStats{}
	if err := i.db.QueryRow(ctx, query).Scan(&s.Total, &s.Started, &s.Finished, &s.Recoverable, &s.Failed); err != nil {
		return nil, err
	}
	return s, nil
}
