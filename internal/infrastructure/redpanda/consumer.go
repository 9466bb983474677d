package redpanda

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ConsumerConfig holds configuration for the consumer. Offsets are always
// committed manually, after the handler accepted a record.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// SessionTimeout bounds how long a silent member keeps its partitions.
	SessionTimeout time.Duration
	// MaxPollRecords caps one poll across all partitions.
	MaxPollRecords int
	FetchMaxBytes  int32
	// FromStart makes a new group read each topic from the beginning.
	FromStart bool
	// RetryBackoff is the pause before a partition whose record failed is read again.
	RetryBackoff time.Duration
}

// DefaultConsumerConfig returns defaults for the fulfillment worker.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers:        []string{"localhost:9092"},
		GroupID:        "intake-fulfillment",
		Topics:         []string{TopicIntakeSubmitted},
		SessionTimeout: 30 * time.Second,
		MaxPollRecords: 100,
		FetchMaxBytes:  8 << 20,
		FromStart:      true,
		RetryBackoff:   2 * time.Second,
	}
}

// MessageHandler handles one record. A nil error commits it.
type MessageHandler func(ctx context.Context, msg *ConsumedMessage) error

// ConsumedMessage is a record as seen by handlers.
type ConsumedMessage struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

func newConsumedMessage(r *kgo.Record) *ConsumedMessage {
	msg := &ConsumedMessage{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       r.Key,
		Value:     r.Value,
		Headers:   make(map[string]string, len(r.Headers)),
		Timestamp: r.Timestamp,
	}
	for _, h := range r.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}

// Consumer reads submitted orders. Records of one partition are handled in
// order, and a failed record blocks its partition until it succeeds, so an
// offset is never committed past an order that was not forwarded.
type Consumer struct {
	client     *kgo.Client
	config     ConsumerConfig
	logger     *zap.Logger
	tracer     trace.Tracer
	handler    MessageHandler
	onConsumed func(topic string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	read       atomic.Int64
	bytes      atomic.Int64
	failures   atomic.Int64
	lastCommit atomic.Int64 // unix nanos
}

// NewConsumer creates a consumer that joins cfg.GroupID.
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	if handler == nil {
		return nil, errors.New("message handler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	reset := kgo.NewOffset().AtEnd()
	if cfg.FromStart {
		reset = kgo.NewOffset().AtStart()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.ConsumeResetOffset(reset),
		kgo.SessionTimeout(cfg.SessionTimeout),
		kgo.FetchMaxBytes(cfg.FetchMaxBytes),
		kgo.DisableAutoCommit(),
		// Partitions cannot move while a polled batch is still being handled.
		kgo.BlockRebalanceOnPoll(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			logger.Info("partitions assigned", zap.Any("partitions", assigned))
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			logger.Info("partitions revoked", zap.Any("partitions", revoked))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create consumer client: %w", err)
	}

	c := newConsumer(cfg, handler, logger)
	c.client = client
	return c, nil
}

func newConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:     cfg,
		logger:     logger,
		tracer:     otel.Tracer("redpanda-consumer"),
		handler:    handler,
		onConsumed: func(string) {},
		ctx:        ctx,
		cancel:     cancel,
	}
}

// OnConsumed registers a callback run once per handled record.
func (c *Consumer) OnConsumed(fn func(topic string)) {
	if fn != nil {
		c.onConsumed = fn
	}
}

// Start begins polling in the background.
func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop waits for the batch in flight and leaves the group.
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()
	c.client.Close()
	return nil
}

func (c *Consumer) run() {
	defer c.wg.Done()

	for c.ctx.Err() == nil {
		fetches := c.client.PollRecords(c.ctx, c.config.MaxPollRecords)
		if fetches.IsClientClosed() {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.failures.Add(1)
			c.logger.Error("fetch failed",
				zap.String("topic", topic),
				zap.Int32("partition", partition),
				zap.Error(err))
		})

		rewind := map[string]map[int32]kgo.EpochOffset{}
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			done, failed := c.handlePartition(c.ctx, p.Records)
			if done != nil {
				c.commit(done)
			}
			if failed != nil {
				if rewind[failed.Topic] == nil {
					rewind[failed.Topic] = map[int32]kgo.EpochOffset{}
				}
				rewind[failed.Topic][failed.Partition] = kgo.EpochOffset{Epoch: failed.LeaderEpoch, Offset: failed.Offset}
			}
		})

		if len(rewind) > 0 {
			// Already fetched records behind the failure must be read again.
			c.client.SetOffsets(rewind)
		}
		c.client.AllowRebalance()

		if len(rewind) > 0 {
			select {
			case <-c.ctx.Done():
			case <-time.After(c.config.RetryBackoff):
			}
		}
	}
}

// handlePartition runs the handler over the records of one partition in
// order. It returns the last accepted record and the first failed one;
// records after a failure are not handled.
func (c *Consumer) handlePartition(ctx context.Context, records []*kgo.Record) (done, failed *kgo.Record) {
	for _, r := range records {
		if ctx.Err() != nil {
			return done, r
		}
		if err := c.handle(ctx, r); err != nil {
			return done, r
		}
		done = r
	}
	return done, nil
}

func (c *Consumer) handle(ctx context.Context, r *kgo.Record) error {
	ctx, span := c.tracer.Start(extractTraceContext(ctx, r), "consume "+r.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", r.Topic),
			attribute.Int64("messaging.kafka.partition", int64(r.Partition)),
			attribute.Int64("messaging.kafka.offset", r.Offset),
			attribute.String("messaging.kafka.message.key", string(r.Key)),
		))
	defer span.End()

	if err := c.handler(ctx, newConsumedMessage(r)); err != nil {
		c.failures.Add(1)
		span.RecordError(err)
		c.logger.Warn("record not handled, partition will retry",
			zap.String("topic", r.Topic),
			zap.Int32("partition", r.Partition),
			zap.Int64("offset", r.Offset),
			zap.Error(err))
		return err
	}

	c.read.Add(1)
	c.bytes.Add(int64(len(r.Value)))
	c.onConsumed(r.Topic)
	return nil
}

func (c *Consumer) commit(r *kgo.Record) {
	// Use a fresh context so a shutdown does not drop the commit of handled work.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.client.CommitRecords(ctx, r); err != nil {
		c.failures.Add(1)
		c.logger.Error("commit failed",
			zap.String("topic", r.Topic),
			zap.Int32("partition", r.Partition),
			zap.Int64("offset", r.Offset),
			zap.Error(err))
		return
	}
	c.lastCommit.Store(time.Now().UnixNano())
}

// ConsumerStats are counters since start.
type ConsumerStats struct {
	MessagesRead   int64     `json:"messages_read"`
	BytesRead      int64     `json:"bytes_read"`
	ErrorCount     int64     `json:"error_count"`
	LastCommitTime time.Time `json:"last_commit_time,omitzero"`
}

// Stats returns the current counters.
func (c *Consumer) Stats() ConsumerStats {
	s := ConsumerStats{
		MessagesRead: c.read.Load(),
		BytesRead:    c.bytes.Load(),
		ErrorCount:   c.failures.Load(),
	}
	if ns := c.lastCommit.Load(); ns > 0 {
		s.LastCommitTime = time.Unix(0, ns)
	}
	return s
}
