package dialer

import (
	"context"

	"github.com/acme/autodialer/internal/events"
)

// StartNoticeTitle and StartNotice are presented to the Confirmer before a
// run begins.
const (
	StartNoticeTitle = "Start Automated Calling"
	StartNotice      = "This will start automated calling. Ensure you have:\n\n" +
		"• Proper consent from all recipients\n" +
		"• Compliance with local regulations\n" +
		"• Valid business purpose\n" +
		"• Respect for Do Not Call lists\n\n" +
		"Misuse may result in legal consequences."
)

// Notice titles surfaced through the Notifier.
const (
	NoticeQueueComplete = "Queue Complete"
	NoticeRunStopped    = "Automated Calling Stopped"
)

// Confirmer asks the operator to acknowledge the legal notice.
type Confirmer interface {
	Confirm(ctx context.Context, title, notice string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, title, notice string) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, title, notice string) (bool, error) {
	return f(ctx, title, notice)
}

// Notifier surfaces alert-style notices to the operator.
type Notifier interface {
	Notify(title, message string)
}

// NotifyFunc adapts a function to Notifier.
type NotifyFunc func(title, message string)

// Notify implements Notifier.
func (f NotifyFunc) Notify(title, message string) { f(title, message) }

// EventPublisher receives one event per applied dispatch outcome.
type EventPublisher interface {
	PublishDispatch(ctx context.Context, evt events.DispatchEvent) error
}

// RunLease guards a run against other processes sharing the same store.
type RunLease interface {
	Acquire(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string) {}
