package bot

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Durarara1312/weatherbot/internal/i18n"
	"github.com/Durarara1312/weatherbot/internal/units"
)

// Закрытый набор callback-действий. Всё, что не входит в него,
// игнорируется обработчиком.
const (
	cbWeatherNow   = "weather_now"
	cbForecast     = "forecast"
	cbSubscribe    = "subscribe"
	cbUnsubscribe  = "unsubscribe"
	cbChangeCity   = "change_city"
	cbChangeTime   = "change_time"
	cbUnitsMenu    = "units_menu"
	cbLanguageMenu = "language_menu"
	cbStats        = "stats"
	cbFeedback     = "feedback"
	cbHelp         = "help"

	cbUnitsTemperature = "units_temp"
	cbUnitsPressure    = "units_pressure"
	cbUnitsWind        = "units_wind"

	cbSetTempPrefix     = "set_temp:"
	cbSetPressurePrefix = "set_pressure:"
	cbSetWindPrefix     = "set_wind:"
	cbSetLangPrefix     = "set_lang:"
	cbUsersPagePrefix   = "users_page:"
)

func mainKeyboard(loc *i18n.Localizer, lang string) *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(loc.Text(lang, "btn_weather", nil), cbWeatherNow),
			tgbotapi.NewInlineKeyboardButtonData(loc.Text(lang, "btn_forecast", nil), cbForecast),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(loc.Text(lang, "btn_subscribe", nil), cbSubscribe),
			tgbotapi.NewInlineKeyboardButtonData(loc.Text(lang, "btn_unsubscribe", nil), cbUnsubscribe),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(loc.Text(lang, "btn_change_city", nil), cbChangeCity),
			tgbotapi.NewInlineKeyboardButtonData(loc.Text(lang, "btn_change_time", nil), cbChangeTime),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(loc.Text(lang, "btn_units", nil), cbUnitsMenu),
			tgbotapi.NewInlineKeyboardButtonData(loc.Text(lang, "btn_language", nil), cbLanguageMenu),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(loc.Text(lang, "btn_stats", nil), cbStats),
			tgbotapi.NewInlineKeyboardButtonData(loc.Text(lang, "btn_feedback", nil), cbFeedback),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(loc.Text(lang, "btn_help", nil), cbHelp),
		),
	)
	return &markup
}

func unitsKeyboard(loc *i18n.Localizer, lang string) *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🌡 "+units.Label(units.TempCelsius, lang), cbUnitsTemperature),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔽 "+units.Label(units.PressureMmHg, lang), cbUnitsPressure),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💨 "+units.Label(units.WindMS, lang), cbUnitsWind),
		),
	)
	return &markup
}

func temperatureKeyboard(lang string) *tgbotapi.InlineKeyboardMarkup {
	return unitChoiceKeyboard(cbSetTempPrefix, lang, units.TempCelsius, units.TempFahrenheit, units.TempKelvin)
}

func pressureKeyboard(lang string) *tgbotapi.InlineKeyboardMarkup {
	return unitChoiceKeyboard(cbSetPressurePrefix, lang, units.PressureMmHg, units.PressureHPa, units.PressurePSI)
}

func windKeyboard(lang string) *tgbotapi.InlineKeyboardMarkup {
	return unitChoiceKeyboard(cbSetWindPrefix, lang, units.WindMS, units.WindKMH)
}

func unitChoiceKeyboard(prefix, lang string, codes ...string) *tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(codes))
	for _, code := range codes {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(units.Label(code, lang), prefix+code))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(row...))
	return &markup
}

func languageKeyboard() *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🇷🇺 Русский", cbSetLangPrefix+"ru"),
			tgbotapi.NewInlineKeyboardButtonData("🇬🇧 English", cbSetLangPrefix+"en"),
		),
	)
	return &markup
}

func usersKeyboard(page int, hasPrev, hasNext bool) *tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	if hasPrev {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️", cbUsersPagePrefix+strconv.Itoa(page-1)))
	}
	if hasNext {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("➡️", cbUsersPagePrefix+strconv.Itoa(page+1)))
	}
	if len(row) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(row...))
	return &markup
}
