package authcore

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// AuditEvent is one security-relevant occurrence. Events are emitted
// asynchronously; sinks must tolerate delivery after the triggering
// call has returned.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    string            `json:"action"`
	UserID    string            `json:"user_id,omitempty"`
	AdminID   string            `json:"admin_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// AuditSink receives events from the dispatcher goroutine. Emit must
// not panic; slow sinks only delay (or drop, depending on
// [AuditConfig.DropIfFull]) later events, never the request path.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a Go channel, mainly for tests and
// in-process consumers.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// StoreSink persists events through an [AuditStore]. Append failures
// are logged and swallowed; audit must never fail the operation it
// describes.
type StoreSink struct {
	store  AuditStore
	logger *slog.Logger
}

func NewStoreSink(store AuditStore, logger *slog.Logger) *StoreSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSink{
		store:  store,
		logger: logger,
	}
}

func (s *StoreSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Append(ctx, event); err != nil {
		s.logger.Warn("audit append failed",
			slog.String("action", event.Action),
			slog.String("error", err.Error()),
		)
	}
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []AuditSink

func (s MultiSink) Emit(ctx context.Context, event AuditEvent) {
	for _, sink := range s {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}
