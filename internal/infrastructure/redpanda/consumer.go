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

// ConsumerConfig holds configuration for the Redpanda consumer
type ConsumerConfig struct {
	// Brokers is a list of broker addresses
	Brokers []string
	// GroupID is the consumer group ID
	GroupID string
	// Topics is the list of topics to consume
	Topics []string
	// SessionTimeoutMS is the session timeout
	SessionTimeoutMS int64
	// HeartbeatIntervalMS is the heartbeat interval
	HeartbeatIntervalMS int64
	// StartOffset is the initial offset when the group has none (earliest or latest)
	StartOffset string
}

// DefaultConsumerConfig returns defaults for tailing topics with a consumer group.
func DefaultConsumerConfig(brokers []string, groupID string, topics ...string) ConsumerConfig {
	return ConsumerConfig{
		Brokers:             brokers,
		GroupID:             groupID,
		Topics:              topics,
		SessionTimeoutMS:    30000,
		HeartbeatIntervalMS: 3000,
		StartOffset:         "latest",
	}
}

func (c ConsumerConfig) validate() error {
	switch {
	case len(c.Brokers) == 0:
		return errors.New("at least one broker is required")
	case c.GroupID == "":
		return errors.New("consumer group is required")
	case len(c.Topics) == 0:
		return errors.New("at least one topic is required")
	}
	return nil
}

// MessageHandler is called for each consumed message
type MessageHandler func(ctx context.Context, msg *ConsumedMessage) error

// ConsumedMessage represents a consumed Kafka message
type ConsumedMessage struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

func newConsumedMessage(record *kgo.Record) *ConsumedMessage {
	msg := &ConsumedMessage{
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
		Key:       record.Key,
		Value:     record.Value,
		Headers:   make(map[string]string, len(record.Headers)),
		Timestamp: record.Timestamp,
	}
	for _, h := range record.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}

// Consumer reads records with a consumer group and commits each one after
// its handler succeeds.
type Consumer struct {
	client  *kgo.Client
	logger  *zap.Logger
	tracer  trace.Tracer
	handler MessageHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.RWMutex
	messagesRead int64
	errorCount   int64
}

// NewConsumer creates a new Redpanda consumer
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if handler == nil {
		return nil, errors.New("message handler is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.SessionTimeout(time.Duration(cfg.SessionTimeoutMS) * time.Millisecond),
		kgo.HeartbeatInterval(time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(func(ctx context.Context, client *kgo.Client, assigned map[string][]int32) {
			logger.Info("partitions assigned", zap.Any("partitions", assigned))
		}),
		kgo.OnPartitionsRevoked(func(ctx context.Context, client *kgo.Client, revoked map[string][]int32) {
			logger.Info("partitions revoked", zap.Any("partitions", revoked))
		}),
	}

	switch cfg.StartOffset {
	case "earliest":
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	case "latest":
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		client:  client,
		logger:  logger,
		tracer:  otel.Tracer("redpanda-consumer"),
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins consuming messages
func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.consumeLoop()
}

// Stop waits for the record in flight and closes the client.
func (c *Consumer) Stop(ctx context.Context) error {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.client.Close()
		return ctx.Err()
	}
	c.client.Close()
	return nil
}

func (c *Consumer) consumeLoop() {
	defer c.wg.Done()

	for {
		fetches := c.client.PollFetches(c.ctx)
		if fetches.IsClientClosed() || c.ctx.Err() != nil {
			return
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("fetch error",
				zap.String("topic", topic),
				zap.Int32("partition", partition),
				zap.Error(err))
			c.incrementErrorCount()
		})

		fetches.EachRecord(c.processRecord)
	}
}

func (c *Consumer) processRecord(record *kgo.Record) {
	ctx := extractTraceContext(c.ctx, record)
	ctx, span := c.tracer.Start(ctx, "process_message",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("topic", record.Topic),
			attribute.Int64("partition", int64(record.Partition)),
			attribute.Int64("offset", record.Offset),
		))
	defer span.End()

	if err := c.handler(ctx, newConsumedMessage(record)); err != nil {
		c.logger.Error("message handler failed",
			zap.String("topic", record.Topic),
			zap.Int32("partition", record.Partition),
			zap.Int64("offset", record.Offset),
			zap.Error(err))
		span.RecordError(err)
		c.incrementErrorCount()
		return
	}

	c.mu.Lock()
	c.messagesRead++
	c.mu.Unlock()

	if err := c.client.CommitRecords(ctx, record); err != nil {
		c.logger.Error("failed to commit offset",
			zap.String("topic", record.Topic),
			zap.Int64("offset", record.Offset),
			zap.Error(err))
		span.RecordError(err)
	}
}

// Stats returns current consumer statistics
func (c *Consumer) Stats() ConsumerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConsumerStats{MessagesRead: c.messagesRead, ErrorCount: c.errorCount}
}

// ConsumerStats holds consumer statistics
type ConsumerStats struct {
	MessagesRead int64
	ErrorCount   int64
}

func (c *Consumer) incrementErrorCount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCount++
}
