// Package diagnostics is the outbound channel for faults and audit-worthy
// events. The core only reports; deciding whether a category is fatal is up
// to the sink, and the core itself never exits.
package diagnostics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
	"github.com/S1riyS/tnfs/pkg/logging"
)

type Event struct {
	Category string
	Code     string
	Message  string
	Details  string
}

// FromError builds an event from the first fault in err's chain. Errors that
// carry no fault are reported as unknown store errors.
func FromError(err error) Event {
	if f, ok := kerrors.As(err); ok {
		return Event{Category: f.Category, Code: f.Code, Message: f.Message, Details: f.Details}
	}
	return Event{Category: kerrors.CategoryStore, Message: kerrors.Message(""), Details: err.Error()}
}

type Sink interface {
	Report(ctx context.Context, event Event)
}

// LogSink writes events to the context logger.
type LogSink struct{}

func (LogSink) Report(ctx context.Context, event Event) {
	const op = "diagnostics.LogSink.Report"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Warn(event.Message,
		slog.String("category", event.Category),
		slog.String("code", event.Code),
		slog.String("details", event.Details),
	)
}

// Recorder keeps every reported event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Report(_ context.Context, event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
