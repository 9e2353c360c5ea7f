// Package notify delivers rendered alert text to subscribers over one
// or more channels. Delivery is best effort: failures are logged and
// surfaced to the caller, but a failing channel never blocks the rest,
// and nothing is retried. A late alert is worth less than no alert.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is a single delivery channel for alert text.
type Sender interface {
	// SendMessage delivers text to one recipient. userID is the
	// channel-specific recipient id (a Telegram chat id for the bot).
	SendMessage(ctx context.Context, userID int64, text string) error
	// Name returns a short identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier fans a message out to every configured sender.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// New creates a Notifier that delivers through the given senders.
func New(logger *slog.Logger, senders ...Sender) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Send delivers text to one recipient through all senders. Failures are
// collected into the returned error; one failing channel does not
// prevent delivery on the others.
func (n *Notifier) Send(ctx context.Context, userID int64, text string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.SendMessage(ctx, userID, text); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
