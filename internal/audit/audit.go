// Package audit records every tool call proposed by the model.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drfirst/fhir-chat/internal/observability/metrics"
	"github.com/drfirst/fhir-chat/pkg/workerpool"
)

// MaxSampleLength caps string response samples, in characters.
const MaxSampleLength = 500

// LogMessage is the log message of every audit entry.
const LogMessage = "mcp_tool_call"

// Entry is one audited tool call.
type Entry struct {
	ID             string                 `json:"id"`
	Timestamp      time.Time              `json:"timestamp"`
	ConversationID string                 `json:"conversationId"`
	UserRole       string                 `json:"userRole"`
	Tool           string                 `json:"tool"`
	Args           map[string]interface{} `json:"args"`
	Status         int                    `json:"status"`
	Outcome        string                 `json:"outcome"`
	ResponseSample interface{}            `json:"responseSample,omitempty"`
}

// Sanitize drops the access token from the arguments and truncates string
// samples. Raw JSON and byte samples are treated as strings.
func Sanitize(e Entry) Entry {
	if e.Args != nil {
		args := make(map[string]interface{}, len(e.Args))
		for k, v := range e.Args {
			if k == "token" {
				continue
			}
			args[k] = v
		}
		e.Args = args
	}
	switch s := e.ResponseSample.(type) {
	case string:
		e.ResponseSample = truncate(s)
	case json.RawMessage:
		e.ResponseSample = truncate(string(s))
	case []byte:
		e.ResponseSample = truncate(string(s))
	}
	return e
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxSampleLength {
		return s
	}
	return string(r[:MaxSampleLength])
}

// Recorder accepts audit entries. Implementations must not block the caller
// on delivery and must not report delivery failures to it.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, e Entry)

func (f RecorderFunc) Record(ctx context.Context, e Entry) { f(ctx, e) }

// Sink delivers entries to one destination.
type Sink interface {
	Name() string
	Write(ctx context.Context, e Entry) error
}

type delivery struct {
	sink  Sink
	entry Entry
}

// AsyncRecorder fans entries out to sinks on a worker pool.
type AsyncRecorder struct {
	pool    *workerpool.Pool
	sinks   []Sink
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewAsyncRecorder starts a pool delivering to sinks. m may be nil.
func NewAsyncRecorder(cfg workerpool.Config, sinks []Sink, m *metrics.Metrics, logger *zap.Logger) (*AsyncRecorder, error) {
	if len(sinks) == 0 {
		return nil, fmt.Errorf("at least one audit sink is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &AsyncRecorder{
		sinks:   sinks,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
	pool, err := workerpool.New(cfg, r.deliver, logger.Named("audit"))
	if err != nil {
		return nil, err
	}
	r.pool = pool
	pool.Start()
	return r, nil
}

// Record sanitizes e, stamps it and queues it for every sink.
func (r *AsyncRecorder) Record(_ context.Context, e Entry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now().UTC()
	}
	e = Sanitize(e)

	for _, s := range r.sinks {
		if err := r.pool.Submit(&workerpool.Task{ID: e.ID, Payload: delivery{sink: s, entry: e}}); err != nil {
			r.metrics.ObserveAudit(s.Name(), err)
			r.logger.Warn("audit entry dropped",
				zap.String("sink", s.Name()),
				zap.String("tool", e.Tool),
				zap.Error(err))
		}
	}
}

func (r *AsyncRecorder) deliver(ctx context.Context, task *workerpool.Task) error {
	d, ok := task.Payload.(delivery)
	if !ok {
		return nil
	}
	err := d.sink.Write(ctx, d.entry)
	r.metrics.ObserveAudit(d.sink.Name(), err)
	return err
}

// Stats exposes the delivery pool counters.
func (r *AsyncRecorder) Stats() workerpool.Stats {
	return r.pool.Stats()
}

// Close waits for queued entries to be delivered.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	return r.pool.Stop(ctx)
}
