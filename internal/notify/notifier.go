// Package notify delivers operator alerts (liquidations, failed challenges)
// to Telegram and Discord. Alerts are queued and sent by a background worker
// so a slow webhook never delays risk evaluation.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrQueueFull is returned by Notify when the alert queue is saturated.
var ErrQueueFull = errors.New("notify: queue full")

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

type alert struct {
	event   string
	title   string
	message string
}

// Notifier fans alerts out to its Senders. Only events in the allowed set are
// queued; an empty set allows every event.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	queue   chan alert
	logger  *slog.Logger
}

// NewNotifier creates a Notifier with a queue of queueSize alerts.
func NewNotifier(senders []Sender, events []string, queueSize int, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		queue:   make(chan alert, queueSize),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify queues an alert if its event type is allowed. It never blocks.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	select {
	case n.queue <- alert{event: event, title: title, message: message}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run sends queued alerts until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-n.queue:
			if err := n.dispatch(ctx, a.title, a.message); err != nil {
				n.logger.WarnContext(ctx, "alert delivery incomplete",
					slog.String("event", a.event),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// dispatch sends to every sender. A failing sender does not prevent delivery
// to the rest; failures are returned combined.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
