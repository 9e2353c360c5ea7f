package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramQueueSize = 256
	// Bot API allows roughly thirty messages per second across chats.
	// One send per interval keeps bursts inside that limit.
	telegramSendInterval = 100 * time.Millisecond
)

type outgoing struct {
	chatID int64
	text   string
}

// TelegramSender delivers messages through the Telegram Bot API. Sends
// go through a buffered queue drained by a background worker with a
// fixed pacing interval, so a burst of alerts cannot trip the API rate
// limit and SendMessage never blocks a detection cycle.
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	queue  chan outgoing
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

var _ Sender = (*TelegramSender)(nil)

// NewTelegramSender authenticates the bot token and starts the send
// worker. The token is checked with a getMe call so a bad token fails
// at startup instead of on the first alert.
func NewTelegramSender(token string, logger *slog.Logger) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	bot.Debug = false

	me, err := bot.GetMe()
	if err != nil {
		return nil, fmt.Errorf("telegram: verify token: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &TelegramSender{
		bot:    bot,
		queue:  make(chan outgoing, telegramQueueSize),
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger.With(slog.String("component", "telegram")),
	}
	go t.sendLoop(ctx)

	t.logger.Info("telegram sender ready", slog.String("bot", me.UserName))
	return t, nil
}

// SendMessage queues text for delivery to the given chat. When the
// queue is full the message is dropped and an error returned; blocking
// here would stall the monitoring loop behind a slow API.
func (t *TelegramSender) SendMessage(ctx context.Context, userID int64, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case t.queue <- outgoing{chatID: userID, text: text}:
		return nil
	default:
		return fmt.Errorf("telegram: queue full, dropped message for chat %d", userID)
	}
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string { return "telegram" }

// Close stops the worker after draining already queued messages.
func (t *TelegramSender) Close() {
	t.cancel()
	<-t.done
}

func (t *TelegramSender) sendLoop(ctx context.Context) {
	defer close(t.done)
	for {
		select {
		case <-ctx.Done():
			// Deliver what is already queued before exiting.
			for {
				select {
				case msg := <-t.queue:
					t.deliver(msg)
				default:
					return
				}
			}
		case msg := <-t.queue:
			t.deliver(msg)
			select {
			case <-ctx.Done():
			case <-time.After(telegramSendInterval):
			}
		}
	}
}

func (t *TelegramSender) deliver(msg outgoing) {
	m := tgbotapi.NewMessage(msg.chatID, msg.text)
	m.ParseMode = tgbotapi.ModeMarkdown
	m.DisableWebPagePreview = true

	if _, err := t.bot.Send(m); err != nil {
		t.logger.Error("send failed",
			slog.Int64("chat_id", msg.chatID),
			slog.String("error", err.Error()),
		)
		return
	}
	t.logger.Debug("message delivered",
		slog.Int64("chat_id", msg.chatID),
		slog.Int("queue_len", len(t.queue)),
	)
}
