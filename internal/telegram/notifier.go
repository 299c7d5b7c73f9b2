// Package telegram forwards classroom notifications to a Telegram chat and
// lets the teacher work the hand queue from that chat with /hands and /ack.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"handsup/backend/internal/localization"
	"handsup/backend/internal/models"
	"handsup/backend/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const queueSize = 32

// Sender sends one message. *tgbotapi.BotAPI implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// HandQueue is the teacher side of the hand-raise queue. *session.Hands
// implements it.
type HandQueue interface {
	Queue() []models.Participant
	AcknowledgeHand(ctx context.Context, participantID string) error
}

// DefaultKeys are the notification keys forwarded when Notifier.Keys is empty.
var DefaultKeys = []string{session.MsgHandsWaiting, session.MsgRoomCreated, session.MsgRoomEnded, session.MsgRoomEndedPartial}

// Notifier forwards notifications to one chat.
type Notifier struct {
	Bot       Sender
	ChatID    int64
	Localizer *localization.Localizer
	Lang      string
	Keys      []string
	// Hands enables the chat commands when set.
	Hands HandQueue

	outbox chan session.Notification
}

// NewNotifier authorizes the bot token against the Bot API.
func NewNotifier(token string, chatID int64, loc *localization.Localizer, lang string) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return newNotifier(bot, chatID, loc, lang), nil
}

// NewNotifierWithEndpoint is NewNotifier against a custom Bot API server.
// endpoint is a format string like "https://api.telegram.org/bot%s/%s".
func NewNotifierWithEndpoint(token, endpoint string, chatID int64, loc *localization.Localizer, lang string) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return newNotifier(bot, chatID, loc, lang), nil
}

func newNotifier(bot *tgbotapi.BotAPI, chatID int64, loc *localization.Localizer, lang string) *Notifier {
	bot.Debug = false
	slog.Info("telegram bot authorized", "bot", bot.Self.UserName, "chat", chatID)
	return NewWithSender(bot, chatID, loc, lang)
}

// NewWithSender builds a Notifier on an existing sender.
func NewWithSender(bot Sender, chatID int64, loc *localization.Localizer, lang string) *Notifier {
	if loc == nil {
		loc = localization.Default()
	}
	return &Notifier{
		Bot:       bot,
		ChatID:    chatID,
		Localizer: loc,
		Lang:      lang,
		outbox:    make(chan session.Notification, queueSize),
	}
}

func (n *Notifier) forwards(key string) bool {
	keys := n.Keys
	if len(keys) == 0 {
		keys = DefaultKeys
	}
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// Notify queues a notification. It never blocks; when the queue is full the
// notification is dropped.
func (n *Notifier) Notify(note session.Notification) {
	if !n.forwards(note.Key) {
		return
	}
	select {
	case n.outbox <- note:
	default:
		slog.Warn("telegram queue full, notification dropped", "key", note.Key)
	}
}

// Run sends queued notifications until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case note := <-n.outbox:
			n.send(n.Localizer.Format(n.Lang, note.Key, note.Args...))
		}
	}
}

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.ChatID, text)
	if _, err := n.Bot.Send(msg); err != nil {
		slog.Warn("telegram send failed", "chat", n.ChatID, "err", err)
	}
}

// HandleUpdate answers the chat commands. Messages from other chats are
// ignored.
func (n *Notifier) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() || msg.Chat.ID != n.ChatID || n.Hands == nil {
		return
	}

	switch msg.Command() {
	case "hands":
		n.send(n.describeQueue())
	case "ack":
		n.send(n.acknowledge(ctx, strings.TrimSpace(msg.CommandArguments())))
	}
}

func (n *Notifier) describeQueue() string {
	queue := n.Hands.Queue()
	if len(queue) == 0 {
		return n.Localizer.Format(n.Lang, "telegram.queue_empty")
	}
	var b strings.Builder
	b.WriteString(n.Localizer.Format(n.Lang, session.MsgHandsWaiting, len(queue)))
	for i, p := range queue {
		fmt.Fprintf(&b, "\n%d. %s", i+1, p.Name)
	}
	return b.String()
}

// acknowledge lowers the hand at a 1-based queue position or with a
// participant id.
func (n *Notifier) acknowledge(ctx context.Context, arg string) string {
	queue := n.Hands.Queue()
	target := arg
	if pos, err := strconv.Atoi(arg); err == nil {
		if pos < 1 || pos > len(queue) {
			return n.Localizer.Format(n.Lang, "telegram.ack_usage")
		}
		target = queue[pos-1].ID
	}
	if target == "" {
		return n.Localizer.Format(n.Lang, "telegram.ack_usage")
	}

	name := target
	for _, p := range queue {
		if p.ID == target {
			name = p.Name
		}
	}
	if err := n.Hands.AcknowledgeHand(ctx, target); err != nil {
		slog.Warn("acknowledge from telegram failed", "participant", target, "err", err)
		return n.Localizer.Format(n.Lang, "error.storage")
	}
	return n.Localizer.Format(n.Lang, "telegram.acknowledged", name)
}
