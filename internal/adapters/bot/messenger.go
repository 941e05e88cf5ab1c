package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Durarara1312/weatherbot/internal/adapters/telegram"
	"github.com/Durarara1312/weatherbot/internal/domain"
	"github.com/Durarara1312/weatherbot/internal/infra/metrics"
)

// Messenger отправляет сообщения через Bot API.
type Messenger struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

var _ domain.Messenger = (*Messenger)(nil)

// NewMessenger создаёт отправителя.
func NewMessenger(bot *tgbotapi.BotAPI, log zerolog.Logger) *Messenger {
	return &Messenger{bot: bot, log: log}
}

// Send отправляет текст, разбивая его по лимиту Telegram.
// Блокировку бота получателем транслирует в domain.ErrRecipientUnreachable.
func (m *Messenger) Send(_ context.Context, chatID int64, text string) error {
	parts := telegram.SplitMessage(text)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		start := time.Now()
		_, err := m.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			if isUnreachable(err) {
				return domain.ErrRecipientUnreachable
			}
			return err
		}
	}
	return nil
}

// SendDocument отправляет файл с диска как документ.
func (m *Messenger) SendDocument(_ context.Context, chatID int64, path string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	start := time.Now()
	_, err := m.bot.Send(doc)
	metrics.ObserveNetworkRequest("telegram_bot", "send_document", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
		if isUnreachable(err) {
			return domain.ErrRecipientUnreachable
		}
		return err
	}
	return nil
}

func isUnreachable(err error) bool {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr.Code == 403
	}
	return strings.Contains(err.Error(), "Forbidden")
}
