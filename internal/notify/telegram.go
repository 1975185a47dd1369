package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"

	"github.com/hamed0406/uptimemon/internal/domain"
)

// Telegram sends via the Bot API (config: bot_token, chat_id; api_url overrides the server).
type Telegram struct{}

func NewTelegram() *Telegram { return &Telegram{} }

func (t *Telegram) Send(ctx context.Context, ch domain.NotificationChannel, p Payload) error {
	token := ch.ConfigString("bot_token")
	chatID := chatIDFrom(ch.Config["chat_id"])
	if token == "" || chatID == nil {
		return fmt.Errorf("telegram: %w: bot_token and chat_id", errMissingConfig)
	}

	opts := []bot.Option{bot.WithSkipGetMe()}
	if u := ch.ConfigString("api_url"); u != "" {
		opts = append(opts, bot.WithServerURL(u))
	}
	b, err := bot.New(token, opts...)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   p.Title() + "\n" + p.Text(),
	}); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// chatIDFrom accepts numeric ids (as numbers or strings) and @channel names.
func chatIDFrom(v any) any {
	switch id := v.(type) {
	case int:
		return int64(id)
	case int64:
		return id
	case float64:
		return int64(id)
	case string:
		if id == "" {
			return nil
		}
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			return n
		}
		return id
	}
	return nil
}
