package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Severity ranks an audit event.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Event is the consumer-visible audit record.
type Event struct {
	EventType string         `json:"event_type"`
	UserID    *int64         `json:"user_id,omitempty"`
	IP        string         `json:"ip"`
	UserAgent string         `json:"user_agent"`
	RequestID string         `json:"request_id,omitempty"`
	Severity  Severity       `json:"severity"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink consumes audit events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) error { return nil }

var (
	highKeywords   = []string{"delete", "ban", "suspend", "forced", "breach"}
	mediumKeywords = []string{"login", "password", "admin", "approve", "reject"}
)

// Classify derives severity from the event type and, for request-level
// events, the response status. The higher of the two wins.
func Classify(eventType string, status int) Severity {
	byType := SeverityLow
	name := strings.ToLower(eventType)
	switch {
	case containsAny(name, highKeywords):
		byType = SeverityHigh
	case containsAny(name, mediumKeywords):
		byType = SeverityMedium
	}

	byStatus := SeverityLow
	switch {
	case status >= 500:
		byStatus = SeverityHigh
	case status == 429, status == 401, status == 403:
		byStatus = SeverityMedium
	}

	if byStatus.rank() > byType.rank() {
		return byStatus
	}
	return byType
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// RequestMeta carries the request attributes copied into every event.
type RequestMeta struct {
	IP        string
	UserAgent string
	RequestID string
}

type metaKey struct{}

// WithRequest attaches request metadata to ctx.
func WithRequest(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

// RequestFrom returns the metadata stored by WithRequest.
func RequestFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(metaKey{}).(RequestMeta)
	return meta
}

// Recorder stamps events and forwards them to a Sink. Emission failures are
// logged and never returned: audit must not undo the operation it records.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder wraps sink. A nil sink discards events.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, logger: logger, now: time.Now}
}

// Record emits eventType for userID (0 when unknown) with optional details.
func (r *Recorder) Record(ctx context.Context, eventType string, userID int64, details map[string]any) {
	r.RecordStatus(ctx, eventType, userID, 0, details)
}

// RecordStatus is Record for request outcomes where the HTTP status affects severity.
func (r *Recorder) RecordStatus(ctx context.Context, eventType string, userID int64, status int, details map[string]any) {
	if r == nil {
		return
	}
	meta := RequestFrom(ctx)
	event := Event{
		EventType: eventType,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		RequestID: meta.RequestID,
		Severity:  Classify(eventType, status),
		Details:   details,
		Timestamp: r.now().UTC(),
	}
	if event.Details == nil {
		event.Details = map[string]any{}
	}
	if status != 0 {
		event.Details["status"] = status
	}
	if userID != 0 {
		id := userID
		event.UserID = &id
	}
	// Detach from request cancellation so a closed connection still records.
	if err := r.sink.Emit(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Warn("audit emit failed", slog.String("event_type", eventType), slog.Any("error", err))
	}
}

// LogSink writes events as structured log lines.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink builds a sink on logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, e Event) error {
	attrs := []slog.Attr{
		slog.String("event_type", e.EventType),
		slog.String("severity", string(e.Severity)),
		slog.String("ip", e.IP),
		slog.String("user_agent", e.UserAgent),
		slog.Any("details", e.Details),
	}
	if e.UserID != nil {
		attrs = append(attrs, slog.Int64("user_id", *e.UserID))
	}
	if e.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", e.RequestID))
	}
	level := slog.LevelInfo
	if e.Severity == SeverityHigh {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "audit", attrs...)
	return nil
}

// JSONWriterSink writes one JSON document per line.
type JSONWriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data = append(data, '\n')
	_, err = s.w.Write(data)
	return err
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Emit(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns a snapshot of recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Types returns the recorded event types in order.
func (s *MemorySink) Types() []string {
	events := s.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.EventType
	}
	return out
}

// MultiSink fans out to every sink and reports the first error.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, e Event) error {
	var first error
	for _, s := range m {
		if err := s.Emit(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
