package redpanda

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ProducerConfig holds configuration for the producer. Writes are always
// idempotent and acknowledged by all in-sync replicas.
type ProducerConfig struct {
	Brokers       []string
	BatchMaxBytes int32
	Linger        time.Duration
	// MaxBufferedRecords bounds memory while brokers are slow; Publish blocks beyond it.
	MaxBufferedRecords int
	// Compression is one of none, lz4, snappy, gzip or zstd.
	Compression string
	// RecordRetries is how often one record is retried before Publish fails.
	RecordRetries int
}

// DefaultProducerConfig returns defaults for order traffic: small batches and
// a short linger.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:            []string{"localhost:9092"},
		BatchMaxBytes:      1 << 20,
		Linger:             5 * time.Millisecond,
		MaxBufferedRecords: 10_000,
		Compression:        "lz4",
		RecordRetries:      3,
	}
}

func compressionCodec(name string) (kgo.CompressionCodec, error) {
	switch name {
	case "", "none":
		return kgo.NoCompression(), nil
	case "lz4":
		return kgo.Lz4Compression(), nil
	case "snappy":
		return kgo.SnappyCompression(), nil
	case "gzip":
		return kgo.GzipCompression(), nil
	case "zstd":
		return kgo.ZstdCompression(), nil
	}
	return kgo.CompressionCodec{}, fmt.Errorf("unknown compression %q", name)
}

// Producer writes records and waits for their acknowledgement.
type Producer struct {
	client     *kgo.Client
	logger     *zap.Logger
	tracer     trace.Tracer
	onProduced func(topic string)

	sent   atomic.Int64
	bytes  atomic.Int64
	failed atomic.Int64
}

// NewProducer creates a producer for cfg.Brokers.
func NewProducer(cfg ProducerConfig, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchMaxBytes(cfg.BatchMaxBytes),
		kgo.ProducerLinger(cfg.Linger),
		kgo.ProducerBatchCompression(codec),
		kgo.MaxBufferedRecords(cfg.MaxBufferedRecords),
		kgo.RecordRetries(cfg.RecordRetries),
		kgo.RetryBackoffFn(func(attempt int) time.Duration {
			return min(100*time.Millisecond<<min(attempt, 6), 5*time.Second)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create producer client: %w", err)
	}

	return &Producer{
		client:     client,
		logger:     logger,
		tracer:     otel.Tracer("redpanda-producer"),
		onProduced: func(string) {},
	}, nil
}

// OnProduced registers a callback run once per acknowledged record.
func (p *Producer) OnProduced(fn func(topic string)) {
	if fn != nil {
		p.onProduced = fn
	}
}

// Record is a message to produce.
type Record struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

func (r *Record) toKgo() *kgo.Record {
	out := &kgo.Record{Topic: r.Topic, Key: []byte(r.Key), Value: r.Value}
	for k, v := range r.Headers {
		out.Headers = append(out.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return out
}

// Publish sends one record and waits for the acknowledgement. It is what the
// outbox relay uses.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	return p.ProduceBatch(ctx, []*Record{{Topic: topic, Key: key, Value: value}})
}

// ProduceBatch sends records and waits for every acknowledgement. The error
// joins all failed records.
func (p *Producer) ProduceBatch(ctx context.Context, records []*Record) error {
	ctx, span := p.tracer.Start(ctx, "produce",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(records))))
	defer span.End()

	batch := make([]*kgo.Record, len(records))
	for i, r := range records {
		batch[i] = r.toKgo()
		injectTraceHeaders(ctx, batch[i])
	}

	var errs []error
	for _, res := range p.client.ProduceSync(ctx, batch...) {
		if res.Err != nil {
			p.failed.Add(1)
			errs = append(errs, fmt.Errorf("%s/%s: %w", res.Record.Topic, res.Record.Key, res.Err))
			continue
		}
		p.sent.Add(1)
		p.bytes.Add(int64(len(res.Record.Value)))
		p.onProduced(res.Record.Topic)
		p.logger.Debug("record produced",
			zap.String("topic", res.Record.Topic),
			zap.Int32("partition", res.Record.Partition),
			zap.Int64("offset", res.Record.Offset))
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		p.logger.Error("produce failed", zap.Int("failed", len(errs)), zap.Error(err))
		return err
	}
	return nil
}

// Flush blocks until buffered records are acknowledged or ctx ends.
func (p *Producer) Flush(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush producer: %w", err)
	}
	return nil
}

// Close flushes for up to 30 seconds and closes the client.
func (p *Producer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.Flush(ctx); err != nil {
		p.logger.Warn("closing with unflushed records", zap.Error(err))
	}
	p.client.Close()
	return nil
}

// ProducerStats are counters since start.
type ProducerStats struct {
	MessagesSent int64 `json:"messages_sent"`
	BytesSent    int64 `json:"bytes_sent"`
	ErrorCount   int64 `json:"error_count"`
}

// Stats returns the current counters.
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent: p.sent.Load(),
		BytesSent:    p.bytes.Load(),
		ErrorCount:   p.failed.Load(),
	}
}
