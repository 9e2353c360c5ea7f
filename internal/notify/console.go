package notify

import (
	"context"
	"log/slog"
)

// ConsoleSender writes rendered alerts to the log instead of a chat.
// Scan mode and local runs without a bot token use it as the only
// channel.
type ConsoleSender struct {
	logger *slog.Logger
}

var _ Sender = (*ConsoleSender)(nil)

// NewConsoleSender creates a sender that logs each message.
func NewConsoleSender(logger *slog.Logger) *ConsoleSender {
	return &ConsoleSender{
		logger: logger.With(slog.String("component", "console")),
	}
}

// SendMessage logs the text at info level. It never fails.
func (c *ConsoleSender) SendMessage(ctx context.Context, userID int64, text string) error {
	c.logger.InfoContext(ctx, "alert",
		slog.Int64("user_id", userID),
		slog.String("text", text),
	)
	return nil
}

// Name returns the sender identifier.
func (c *ConsoleSender) Name() string { return "console" }
