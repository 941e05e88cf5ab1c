package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Durarara1312/weatherbot/internal/adapters/telegram"
	"github.com/Durarara1312/weatherbot/internal/domain"
	"github.com/Durarara1312/weatherbot/internal/i18n"
	"github.com/Durarara1312/weatherbot/internal/infra/metrics"
	"github.com/Durarara1312/weatherbot/internal/units"
	"github.com/Durarara1312/weatherbot/internal/usecase/broadcast"
	"github.com/Durarara1312/weatherbot/internal/usecase/dialog"
	"github.com/Durarara1312/weatherbot/internal/usecase/report"
	"github.com/Durarara1312/weatherbot/internal/usecase/stats"
)

const (
	defaultForecastHours = 24
	maxForecastHours     = 120
	usersPerPage         = 10
)

// Handler обслуживает вебхук бота.
type Handler struct {
	bot         *tgbotapi.BotAPI
	log         zerolog.Logger
	subs        domain.SubscriptionRepo
	settings    domain.SettingsRepo
	stats       domain.StatsRepo
	messenger   domain.Messenger
	dialogUC    *dialog.Service
	reportUC    *report.Service
	statsUC     *stats.Service
	broadcastUC *broadcast.Service
	loc         *i18n.Localizer
	adminChatID int64
}

// NewHandler создаёт обработчик.
func NewHandler(
	bot *tgbotapi.BotAPI,
	log zerolog.Logger,
	subs domain.SubscriptionRepo,
	settings domain.SettingsRepo,
	statsRepo domain.StatsRepo,
	messenger domain.Messenger,
	dialogUC *dialog.Service,
	reportUC *report.Service,
	statsUC *stats.Service,
	broadcastUC *broadcast.Service,
	loc *i18n.Localizer,
	adminChatID int64,
) *Handler {
	return &Handler{
		bot:         bot,
		log:         log,
		subs:        subs,
		settings:    settings,
		stats:       statsRepo,
		messenger:   messenger,
		dialogUC:    dialogUC,
		reportUC:    reportUC,
		statsUC:     statsUC,
		broadcastUC: broadcastUC,
		loc:         loc,
		adminChatID: adminChatID,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	h.log.Debug().Str("update", describeUpdate(upd)).Msg("входящий апдейт")
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	sub := h.subscription(chatID, msg.From)

	if err := h.stats.IncTotalRequests(chatID); err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось обновить счётчик запросов")
	}

	if !strings.HasPrefix(text, "/") {
		h.handleFreeText(ctx, sub, text)
		return
	}

	command, args := splitCommand(text)
	// команда отменяет незавершённый диалог
	if err := h.dialogUC.Abandon(ctx, chatID); err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось сбросить состояние диалога")
	}

	switch command {
	case "/start":
		h.handleStart(ctx, msg)
	case "/help":
		h.reply(chatID, h.loc.Text(sub.Language, "help_message", nil), mainKeyboard(h.loc, sub.Language))
	case "/menu":
		h.reply(chatID, h.loc.Text(sub.Language, "menu_title", nil), mainKeyboard(h.loc, sub.Language))
	case "/weather":
		h.handleWeather(ctx, sub)
	case "/forecast":
		h.handleForecast(ctx, sub, args)
	case "/subscribe":
		h.runDialogStart(ctx, sub, h.dialogUC.StartSubscribe)
	case "/unsubscribe":
		h.handleUnsubscribe(sub)
	case "/city":
		h.runDialogStart(ctx, sub, h.dialogUC.StartChangeCity)
	case "/time":
		h.runDialogStart(ctx, sub, h.dialogUC.StartChangeTime)
	case "/units":
		h.reply(chatID, h.loc.Text(sub.Language, "units_menu_title", nil), unitsKeyboard(h.loc, sub.Language))
	case "/language":
		h.reply(chatID, h.loc.Text(sub.Language, "language_menu_title", nil), languageKeyboard())
	case "/stats":
		h.handleStats(sub)
	case "/feedback":
		h.runDialogStart(ctx, sub, h.dialogUC.StartFeedback)
	case "/adminstats", "/broadcast", "/users", "/export", "/filter", "/sendmessage":
		h.handleAdminCommand(ctx, sub, command, args)
	default:
		h.reply(chatID, h.loc.Text(sub.Language, "unknown_command", nil), nil)
	}
}

func (h *Handler) handleFreeText(ctx context.Context, sub domain.Subscription, text string) {
	result, consumed, err := h.dialogUC.HandleText(ctx, sub, text)
	if err != nil {
		h.log.Error().Err(err).Int64("chat", sub.ChatID).Msg("не удалось обработать сообщение диалога")
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "internal_error", nil), nil)
		return
	}
	if !consumed {
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "unknown_command", nil), nil)
		return
	}
	h.reply(sub.ChatID, result.Reply, nil)
	if result.AdminForward != "" && h.adminChatID != 0 {
		if err := h.messenger.Send(ctx, h.adminChatID, result.AdminForward); err != nil {
			h.log.Error().Err(err).Msg("не удалось переслать отзыв администратору")
		}
	}
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	lang := normalizeLang(msg.From.LanguageCode)
	username := msg.From.UserName
	patch := domain.SubscriptionPatch{Language: &lang, Username: &username}
	sub, err := h.subs.Upsert(msg.Chat.ID, patch)
	if err != nil {
		h.log.Error().Err(err).Int64("chat", msg.Chat.ID).Msg("не удалось сохранить профиль")
		h.reply(msg.Chat.ID, h.loc.Text(lang, "internal_error", nil), nil)
		return
	}
	name := msg.From.FirstName
	if name == "" {
		name = username
	}
	if name == "" {
		name = strconv.FormatInt(msg.Chat.ID, 10)
	}
	text := h.loc.Text(sub.Language, "start_message", map[string]string{"name": name})
	h.reply(msg.Chat.ID, text, mainKeyboard(h.loc, sub.Language))
}

func (h *Handler) handleWeather(ctx context.Context, sub domain.Subscription) {
	if sub.City == "" {
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "not_subscribed", nil), nil)
		return
	}
	h.countWeatherRequest(sub.ChatID)
	text, _, err := h.reportUC.BuildCurrent(ctx, sub.ChatID, sub.City, sub.Language)
	if err != nil {
		h.replyWeatherError(sub, err)
		return
	}
	h.reply(sub.ChatID, text, nil)
}

func (h *Handler) handleForecast(ctx context.Context, sub domain.Subscription, args string) {
	if sub.City == "" {
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "not_subscribed", nil), nil)
		return
	}
	hours := defaultForecastHours
	if args != "" {
		parsed, err := strconv.Atoi(args)
		if err == nil && parsed >= 1 && parsed <= maxForecastHours {
			hours = parsed
		}
	}
	h.countWeatherRequest(sub.ChatID)
	text, err := h.reportUC.BuildForecast(ctx, sub.ChatID, sub.City, sub.Language, hours)
	if err != nil {
		if errors.Is(err, domain.ErrForecastUnavailable) {
			h.reply(sub.ChatID, h.loc.Text(sub.Language, "forecast_unavailable", nil), nil)
			return
		}
		h.replyWeatherError(sub, err)
		return
	}
	h.reply(sub.ChatID, text, nil)
}

func (h *Handler) countWeatherRequest(chatID int64) {
	metrics.IncWeatherRequest(chatID)
	if err := h.stats.IncWeatherRequests(chatID); err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось обновить счётчик погоды")
	}
}

func (h *Handler) replyWeatherError(sub domain.Subscription, err error) {
	if errors.Is(err, domain.ErrCityNotFound) {
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "city_not_found", nil), nil)
		return
	}
	h.log.Error().Err(err).Int64("chat", sub.ChatID).Str("city", sub.City).Msg("не удалось получить погоду")
	h.reply(sub.ChatID, h.loc.Text(sub.Language, "weather_error", nil), nil)
}

func (h *Handler) handleUnsubscribe(sub domain.Subscription) {
	if sub.Status != domain.StatusActive {
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "not_subscribed", nil), nil)
		return
	}
	if err := h.subs.SetStatus(sub.ChatID, domain.StatusInactive); err != nil {
		h.log.Error().Err(err).Int64("chat", sub.ChatID).Msg("не удалось отключить подписку")
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "internal_error", nil), nil)
		return
	}
	h.reply(sub.ChatID, h.loc.Text(sub.Language, "unsubscribed", nil), nil)
}

func (h *Handler) handleStats(sub domain.Subscription) {
	text, err := h.statsUC.UserSummary(sub, time.Now())
	if err != nil {
		h.log.Error().Err(err).Int64("chat", sub.ChatID).Msg("не удалось собрать статистику")
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "internal_error", nil), nil)
		return
	}
	h.reply(sub.ChatID, text, nil)
}

func (h *Handler) runDialogStart(ctx context.Context, sub domain.Subscription, start func(context.Context, domain.Subscription) (string, error)) {
	reply, err := start(ctx, sub)
	if err != nil {
		h.log.Error().Err(err).Int64("chat", sub.ChatID).Msg("не удалось начать диалог")
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "internal_error", nil), nil)
		return
	}
	h.reply(sub.ChatID, reply, nil)
}

func (h *Handler) handleAdminCommand(ctx context.Context, sub domain.Subscription, command, args string) {
	if sub.ChatID != h.adminChatID || h.adminChatID == 0 {
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "admin_only_command", nil), nil)
		return
	}
	switch command {
	case "/adminstats":
		text, err := h.statsUC.AdminSummary(sub.Language, time.Now())
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось собрать админскую сводку")
			h.reply(sub.ChatID, h.loc.Text(sub.Language, "internal_error", nil), nil)
			return
		}
		h.reply(sub.ChatID, text, nil)
	case "/broadcast":
		if args == "" {
			h.reply(sub.ChatID, h.loc.Text(sub.Language, "broadcast_usage", nil), nil)
			return
		}
		if err := h.broadcastUC.Enqueue(ctx, sub.ChatID, args); err != nil {
			h.log.Error().Err(err).Msg("не удалось поставить рассылку в очередь")
			h.reply(sub.ChatID, h.loc.Text(sub.Language, "internal_error", nil), nil)
			return
		}
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "broadcast_enqueued", nil), nil)
	case "/users":
		h.sendUsersPage(sub.ChatID, 1)
	case "/export":
		h.handleExport(ctx, sub)
	case "/filter":
		text, err := h.statsUC.FilterSummary(sub.Language, args)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось применить фильтр")
			h.reply(sub.ChatID, h.loc.Text(sub.Language, "internal_error", nil), nil)
			return
		}
		h.reply(sub.ChatID, text, nil)
	case "/sendmessage":
		h.handleSendMessage(ctx, sub, args)
	}
}

func (h *Handler) handleExport(ctx context.Context, sub domain.Subscription) {
	path, err := h.statsUC.ExportCSV()
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось построить выгрузку")
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "export_failed", nil), nil)
		return
	}
	defer os.Remove(path)
	if err := h.messenger.SendDocument(ctx, sub.ChatID, path); err != nil {
		h.log.Error().Err(err).Msg("не удалось отправить выгрузку")
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "export_failed", nil), nil)
	}
}

func (h *Handler) handleSendMessage(ctx context.Context, sub domain.Subscription, args string) {
	parts := strings.SplitN(args, " ", 2)
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "sendmessage_usage", nil), nil)
		return
	}
	target, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "sendmessage_usage", nil), nil)
		return
	}
	if err := h.messenger.Send(ctx, target, strings.TrimSpace(parts[1])); err != nil {
		h.log.Error().Err(err).Int64("target", target).Msg("не удалось отправить сообщение пользователю")
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "internal_error", nil), nil)
		return
	}
	h.reply(sub.ChatID, h.loc.Text(sub.Language, "sendmessage_done", nil), nil)
}

func (h *Handler) sendUsersPage(chatID int64, page int) {
	text, hasPrev, hasNext, err := h.statsUC.UsersPage(page, usersPerPage)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось получить список пользователей")
		h.reply(chatID, h.loc.Text("ru", "internal_error", nil), nil)
		return
	}
	h.reply(chatID, text, usersKeyboard(page, hasPrev, hasNext))
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	sub := h.subscription(chatID, cb.From)
	data := cb.Data

	if err := h.stats.IncTotalRequests(chatID); err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось обновить счётчик запросов")
	}
	if isMenuAction(data) {
		// меню заменяет предыдущее сообщение, ошибка удаления не критична
		h.deleteMessage(chatID, cb.Message.MessageID)
	}

	switch {
	case data == cbWeatherNow:
		h.handleWeather(ctx, sub)
	case data == cbForecast:
		h.handleForecast(ctx, sub, "")
	case data == cbSubscribe:
		h.runDialogStart(ctx, sub, h.dialogUC.StartSubscribe)
	case data == cbUnsubscribe:
		h.handleUnsubscribe(sub)
	case data == cbChangeCity:
		h.runDialogStart(ctx, sub, h.dialogUC.StartChangeCity)
	case data == cbChangeTime:
		h.runDialogStart(ctx, sub, h.dialogUC.StartChangeTime)
	case data == cbFeedback:
		h.runDialogStart(ctx, sub, h.dialogUC.StartFeedback)
	case data == cbStats:
		h.handleStats(sub)
	case data == cbHelp:
		h.reply(chatID, h.loc.Text(sub.Language, "help_message", nil), mainKeyboard(h.loc, sub.Language))
	case data == cbUnitsMenu:
		h.reply(chatID, h.loc.Text(sub.Language, "units_menu_title", nil), unitsKeyboard(h.loc, sub.Language))
	case data == cbUnitsTemperature:
		h.reply(chatID, h.loc.Text(sub.Language, "units_temperature_title", nil), temperatureKeyboard(sub.Language))
	case data == cbUnitsPressure:
		h.reply(chatID, h.loc.Text(sub.Language, "units_pressure_title", nil), pressureKeyboard(sub.Language))
	case data == cbUnitsWind:
		h.reply(chatID, h.loc.Text(sub.Language, "units_wind_title", nil), windKeyboard(sub.Language))
	case strings.HasPrefix(data, cbSetTempPrefix):
		h.applyUnit(sub, strings.TrimPrefix(data, cbSetTempPrefix), temperatureUnits, h.settings.SetTemperatureUnit)
	case strings.HasPrefix(data, cbSetPressurePrefix):
		h.applyUnit(sub, strings.TrimPrefix(data, cbSetPressurePrefix), pressureUnits, h.settings.SetPressureUnit)
	case strings.HasPrefix(data, cbSetWindPrefix):
		h.applyUnit(sub, strings.TrimPrefix(data, cbSetWindPrefix), windUnits, h.settings.SetWindSpeedUnit)
	case data == cbLanguageMenu:
		h.reply(chatID, h.loc.Text(sub.Language, "language_menu_title", nil), languageKeyboard())
	case strings.HasPrefix(data, cbSetLangPrefix):
		h.applyLanguage(sub, strings.TrimPrefix(data, cbSetLangPrefix))
	case strings.HasPrefix(data, cbUsersPagePrefix):
		if chatID == h.adminChatID && h.adminChatID != 0 {
			page, err := strconv.Atoi(strings.TrimPrefix(data, cbUsersPagePrefix))
			if err == nil && page >= 1 {
				h.sendUsersPage(chatID, page)
			}
		}
	default:
		h.log.Warn().Str("data", data).Int64("chat", chatID).Msg("неизвестное callback-действие")
	}

	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", strconv.FormatInt(cb.From.ID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

// isMenuAction сообщает, заменяет ли callback предыдущее меню.
func isMenuAction(data string) bool {
	switch data {
	case cbUnitsMenu, cbUnitsTemperature, cbUnitsPressure, cbUnitsWind, cbLanguageMenu:
		return true
	}
	return strings.HasPrefix(data, cbUsersPagePrefix)
}

func (h *Handler) deleteMessage(chatID int64, messageID int) {
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	metrics.ObserveNetworkRequest("telegram_bot", "delete_message", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		h.log.Debug().Err(err).Int64("chat", chatID).Msg("не удалось удалить сообщение меню")
	}
}

var (
	temperatureUnits = map[string]struct{}{units.TempCelsius: {}, units.TempFahrenheit: {}, units.TempKelvin: {}}
	pressureUnits    = map[string]struct{}{units.PressureMmHg: {}, units.PressureHPa: {}, units.PressurePSI: {}}
	windUnits        = map[string]struct{}{units.WindMS: {}, units.WindKMH: {}}
)

func (h *Handler) applyUnit(sub domain.Subscription, code string, allowed map[string]struct{}, set func(int64, string) error) {
	if _, ok := allowed[code]; !ok {
		return
	}
	if err := set(sub.ChatID, code); err != nil {
		h.log.Error().Err(err).Int64("chat", sub.ChatID).Str("unit", code).Msg("не удалось сохранить единицу измерения")
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "internal_error", nil), nil)
		return
	}
	h.reply(sub.ChatID, h.loc.Text(sub.Language, "unit_updated", nil), nil)
}

func (h *Handler) applyLanguage(sub domain.Subscription, code string) {
	if code != "ru" && code != "en" {
		return
	}
	if _, err := h.subs.Upsert(sub.ChatID, domain.SubscriptionPatch{Language: &code}); err != nil {
		h.log.Error().Err(err).Int64("chat", sub.ChatID).Msg("не удалось сохранить язык")
		h.reply(sub.ChatID, h.loc.Text(sub.Language, "internal_error", nil), nil)
		return
	}
	h.reply(sub.ChatID, h.loc.Text(code, "language_updated", nil), mainKeyboard(h.loc, code))
}

// subscription возвращает сохранённую подписку или профиль по умолчанию
// для пользователя, который ещё не писал боту.
func (h *Handler) subscription(chatID int64, from *tgbotapi.User) domain.Subscription {
	sub, err := h.subs.Get(chatID)
	if err == nil {
		if sub.Language == "" {
			sub.Language = normalizeLang(languageOf(from))
		}
		return sub
	}
	if !errors.Is(err, domain.ErrNotFound) {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось прочитать подписку")
	}
	sub = domain.Subscription{
		ChatID:   chatID,
		Language: normalizeLang(languageOf(from)),
		Status:   domain.StatusInactive,
	}
	if from != nil {
		sub.Username = from.UserName
	}
	return sub
}

func languageOf(from *tgbotapi.User) string {
	if from == nil {
		return ""
	}
	return from.LanguageCode
}

func normalizeLang(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if strings.HasPrefix(code, "ru") {
		return "ru"
	}
	return "en"
}

func splitCommand(text string) (string, string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", ""
	}
	command := fields[0]
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	args := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
	return command, args
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

// помощь для логов: короткое описание апдейта
func describeUpdate(upd tgbotapi.Update) string {
	switch {
	case upd.Message != nil:
		return fmt.Sprintf("message chat=%d", upd.Message.Chat.ID)
	case upd.CallbackQuery != nil:
		return fmt.Sprintf("callback data=%s", upd.CallbackQuery.Data)
	default:
		return "unsupported"
	}
}
