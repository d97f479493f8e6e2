package audit

import (
	"context"
	"log/slog"
	"time"
)

// Recorder accepts audit events from domain services and forwards them to
// a Publisher from a background worker. Record never blocks the caller:
// when the inbox is full the event is dropped with a warning.
type Recorder struct {
	publisher Publisher
	logger    *slog.Logger
	inbox     chan Event
	done      chan struct{}
}

func NewRecorder(publisher Publisher, logger *slog.Logger) *Recorder {
	return &Recorder{
		publisher: publisher,
		logger:    logger,
		inbox:     make(chan Event, 256),
		done:      make(chan struct{}),
	}
}

// Record enqueues an event for delivery.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case r.inbox <- ev:
	default:
		r.logger.WarnContext(ctx, "audit inbox full, dropping event",
			"action", ev.Action, "resource", ev.Resource)
	}
}

// Run drains the inbox until ctx is cancelled, then flushes what remains.
func (r *Recorder) Run(ctx context.Context) error {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return ctx.Err()
		case ev := <-r.inbox:
			r.publish(ev)
		}
	}
}

// Wait blocks until the worker has exited.
func (r *Recorder) Wait() {
	<-r.done
}

func (r *Recorder) flush() {
	for {
		select {
		case ev := <-r.inbox:
			r.publish(ev)
		default:
			return
		}
	}
}

func (r *Recorder) publish(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.publisher.Publish(ctx, ev); err != nil {
		r.logger.Error("publish audit event", "action", ev.Action, "error", err)
	}
}
