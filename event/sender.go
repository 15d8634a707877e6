package event

import (
	"context"

	"github.com/xaionaro-go/videoinput/logger"
)

// Sender delivers events to an external observer. SendEvent is called on
// the frame-request path, so it must not block.
type Sender interface {
	SendEvent(ctx context.Context, ev Event)
}

type SenderFunc func(ctx context.Context, ev Event)

var _ Sender = SenderFunc(nil)

func (fn SenderFunc) SendEvent(ctx context.Context, ev Event) {
	fn(ctx, ev)
}

// ChanSender forwards events into a channel. If the channel is full the
// event is dropped with a warning.
type ChanSender chan<- Event

var _ Sender = ChanSender(nil)

func (ch ChanSender) SendEvent(ctx context.Context, ev Event) {
	select {
	case ch <- ev:
	default:
		logger.Warnf(ctx, "the events channel is full, dropping %s", ev)
	}
}

// LogSender just logs the events.
type LogSender struct{}

var _ Sender = LogSender{}

func (LogSender) SendEvent(ctx context.Context, ev Event) {
	logger.Infof(ctx, "event: %s", ev)
}

// MultiSender sends each event to every non-nil sender, in order.
type MultiSender []Sender

var _ Sender = MultiSender(nil)

func (s MultiSender) SendEvent(ctx context.Context, ev Event) {
	for _, sender := range s {
		if sender == nil {
			continue
		}
		sender.SendEvent(ctx, ev)
	}
}
