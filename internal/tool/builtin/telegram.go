package builtin

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"aep/internal/tool"
	"aep/pkg/logx"
)

// TelegramConfig configures the telegram_send tool.
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// RegisterTelegram adds the "telegram_send" tool, which posts the event's
// subject/body as a message to the configured chat. The bot is created
// lazily on first use so that a bad token surfaces as a dispatch failure,
// not a startup failure.
func RegisterTelegram(reg *tool.Registry, cfg TelegramConfig, log logx.Logger) {
	var (
		once    sync.Once
		bot     *tele.Bot
		initErr error
	)

	reg.Register("telegram_send", func(ctx context.Context, params map[string]any) (map[string]any, error) {
		if strings.TrimSpace(cfg.Token) == "" || cfg.ChatID == 0 {
			return map[string]any{"status": "error"}, fmt.Errorf("telegram_send: token/chat_id not configured")
		}
		once.Do(func() {
			bot, initErr = tele.NewBot(tele.Settings{Token: cfg.Token})
		})
		if initErr != nil {
			return map[string]any{"status": "error"}, fmt.Errorf("telegram_send: %w", initErr)
		}

		event, _ := params[tool.EventNameParam].(string)
		text := messageText(params)
		if text == "" {
			text = fmt.Sprintf("event %s fired at %s", event, time.Now().Format(time.RFC3339))
		}

		if _, err := bot.Send(tele.ChatID(cfg.ChatID), text); err != nil {
			return map[string]any{"status": "error"}, fmt.Errorf("telegram_send: %w", err)
		}
		log.Debug("telegram message sent", logx.String("event", event), logx.Int("bytes", len(text)))
		return map[string]any{"status": "sent"}, nil
	})
}

func messageText(params map[string]any) string {
	subject, _ := params["subject"].(string)
	body, _ := params["body"].(string)
	switch {
	case subject != "" && body != "":
		return subject + "\n\n" + body
	case subject != "":
		return subject
	default:
		return body
	}
}
