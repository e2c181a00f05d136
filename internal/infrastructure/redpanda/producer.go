// Package redpanda publishes and reads audit entries on a Kafka-compatible
// broker with franz-go.
package redpanda

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ProducerConfig holds configuration for the Redpanda producer
type ProducerConfig struct {
	// Brokers is a list of broker addresses
	Brokers []string
	// BatchMaxBytes is the maximum batch size
	BatchMaxBytes int32
	// LingerMS is the time to wait before sending a batch
	LingerMS int64
	// MaxBufferedRecords is the maximum number of records to buffer
	MaxBufferedRecords int
	// Compression is the compression codec to use
	Compression string
	// RequiredAcks sets the required acks level (-1 for all, 1 for leader)
	RequiredAcks int16
	// MaxRetries is the maximum number of retries for failed sends
	MaxRetries int
	// RetryBackoffMS is the backoff time between retries
	RetryBackoffMS int64
}

// DefaultProducerConfig returns defaults for a low-volume, durable audit stream.
func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:            brokers,
		BatchMaxBytes:      1 << 20,
		LingerMS:           10,
		MaxBufferedRecords: 10_000,
		Compression:        "lz4",
		RequiredAcks:       -1,
		MaxRetries:         3,
		RetryBackoffMS:     100,
	}
}

func (c ProducerConfig) options() []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(c.Brokers...),
		kgo.ProducerBatchMaxBytes(c.BatchMaxBytes),
		kgo.ProducerLinger(time.Duration(c.LingerMS) * time.Millisecond),
		kgo.MaxBufferedRecords(c.MaxBufferedRecords),
		kgo.RecordRetries(c.MaxRetries),
		kgo.RetryBackoffFn(func(attempt int) time.Duration {
			return time.Duration(c.RetryBackoffMS) * time.Millisecond * time.Duration(attempt+1)
		}),
	}

	switch c.RequiredAcks {
	case -1:
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	case 0:
		// idempotent writes require all-ISR acks
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	case 1:
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	}

	switch c.Compression {
	case "lz4":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "snappy":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "gzip":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
	case "zstd":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	}
	return opts
}

// Producer publishes records and waits for their acknowledgement.
type Producer struct {
	client *kgo.Client
	logger *zap.Logger
	tracer trace.Tracer

	mu            sync.RWMutex
	messagesSent  int64
	bytesSent     int64
	errorCount    int64
	lastFlushTime time.Time
}

// NewProducer creates a new Redpanda producer
func NewProducer(cfg ProducerConfig, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}

	client, err := kgo.NewClient(cfg.options()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Producer{
		client:        client,
		logger:        logger,
		tracer:        otel.Tracer("redpanda-producer"),
		lastFlushTime: time.Now(),
	}, nil
}

// ProduceMessage sends a single message and blocks until it is acknowledged.
func (p *Producer) ProduceMessage(ctx context.Context, topic, key string, value []byte) error {
	ctx, span := p.tracer.Start(ctx, "produce_message",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("topic", topic),
			attribute.String("key", key),
			attribute.Int("value_size", len(value)),
		))
	defer span.End()

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}
	injectTraceHeaders(ctx, record)

	res := p.client.ProduceSync(ctx, record)
	r, err := res.First()
	if err != nil {
		p.incrementErrorCount()
		p.logger.Error("failed to produce message",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Error(err))
		span.RecordError(err)
		return fmt.Errorf("produce to %s: %w", topic, err)
	}

	p.incrementMetrics(len(r.Value))
	p.logger.Debug("message produced",
		zap.String("topic", r.Topic),
		zap.Int32("partition", r.Partition),
		zap.Int64("offset", r.Offset))
	return nil
}

// Flush blocks until all buffered records are sent
func (p *Producer) Flush(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}

	p.mu.Lock()
	p.lastFlushTime = time.Now()
	p.mu.Unlock()
	return nil
}

// Close flushes and closes the producer
func (p *Producer) Close(ctx context.Context) error {
	err := p.Flush(ctx)
	if err != nil {
		p.logger.Warn("error flushing on close", zap.Error(err))
	}
	p.client.Close()
	return err
}

// Stats returns current producer statistics
func (p *Producer) Stats() ProducerStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProducerStats{
		MessagesSent:  p.messagesSent,
		BytesSent:     p.bytesSent,
		ErrorCount:    p.errorCount,
		LastFlushTime: p.lastFlushTime,
	}
}

// ProducerStats holds producer statistics
type ProducerStats struct {
	MessagesSent  int64
	BytesSent     int64
	ErrorCount    int64
	LastFlushTime time.Time
}

func (p *Producer) incrementMetrics(bytes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messagesSent++
	p.bytesSent += int64(bytes)
}

func (p *Producer) incrementErrorCount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorCount++
}
