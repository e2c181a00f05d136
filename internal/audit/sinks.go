package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// LogSink writes entries to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(_ context.Context, e Entry) error {
	s.logger.Info(LogMessage, zap.Any("audit", e))
	return nil
}

// Publisher produces one keyed message.
type Publisher interface {
	ProduceMessage(ctx context.Context, topic, key string, value []byte) error
}

// KafkaSink publishes entries as JSON keyed by conversation id.
type KafkaSink struct {
	publisher Publisher
	topic     string
}

func NewKafkaSink(publisher Publisher, topic string) (*KafkaSink, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("audit topic is required")
	}
	return &KafkaSink{publisher: publisher, topic: topic}, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, e Entry) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	if err := s.publisher.ProduceMessage(ctx, s.topic, e.ConversationID, value); err != nil {
		return fmt.Errorf("publish audit entry: %w", err)
	}
	return nil
}
