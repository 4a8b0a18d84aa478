package remitter

import (
	"context"

	"github.com/terminal-bench/remitter/pkg/messaging"
)

// EventSink receives ledger events. Implementations must not call back into
// the ledger; sinks are invoked while the ledger lock is held.
type EventSink interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// MultiSink fans one event out to several sinks
func MultiSink(sinks ...EventSink) EventSink {
	return multiSink(sinks)
}

type multiSink []EventSink

func (m multiSink) Publish(ctx context.Context, subject string, data interface{}) error {
	var firstErr error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, subject, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// emit wraps the payload in the event envelope and hands it to the sink.
// Publish failures do not fail ledger operations.
func (l *Ledger) emit(ctx context.Context, subject string, data interface{}) {
	if l.events == nil {
		return
	}
	ev, err := messaging.NewEvent(subject, l.nonce, data)
	if err != nil {
		return
	}
	_ = l.events.Publish(ctx, subject, ev)
}
