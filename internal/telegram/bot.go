package telegram

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Listen long-polls for updates and answers chat commands until ctx is done.
// It needs a Notifier built by NewNotifier or NewNotifierWithEndpoint.
func (n *Notifier) Listen(ctx context.Context) {
	bot, ok := n.Bot.(*tgbotapi.BotAPI)
	if !ok {
		slog.Warn("telegram commands need a Bot API client")
		return
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)
	defer bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			n.HandleUpdate(ctx, update)
		}
	}
}
