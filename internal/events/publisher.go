package events

import "context"

// Publisher delivers expense change notifications.
type Publisher interface {
	Publish(ctx context.Context, ev ExpenseEvent) error
	Close() error
}

// Noop discards every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, ExpenseEvent) error { return nil }

func (Noop) Close() error { return nil }
