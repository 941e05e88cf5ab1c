package bot

import (
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Durarara1312/weatherbot/internal/i18n"
)

func i18nForTest(t *testing.T) *i18n.Localizer {
	t.Helper()
	loc, err := i18n.New()
	if err != nil {
		t.Fatalf("не удалось загрузить локали: %v", err)
	}
	return loc
}

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in      string
		command string
		args    string
	}{
		{"/start", "/start", ""},
		{"/forecast 6", "/forecast", "6"},
		{"/broadcast@weather_bot всем привет", "/broadcast", "всем привет"},
		{"/sendmessage 42  текст сообщения", "/sendmessage", "42  текст сообщения"},
	}
	for _, c := range cases {
		command, args := splitCommand(c.in)
		if command != c.command || args != c.args {
			t.Fatalf("%q: ожидали (%q, %q), получили (%q, %q)", c.in, c.command, c.args, command, args)
		}
	}
}

func TestNormalizeLang(t *testing.T) {
	cases := map[string]string{
		"ru":    "ru",
		"ru-RU": "ru",
		"en":    "en",
		"de":    "en",
		"":      "en",
	}
	for in, want := range cases {
		if got := normalizeLang(in); got != want {
			t.Fatalf("normalizeLang(%q) = %q, ожидали %q", in, got, want)
		}
	}
}

func TestIsUnreachable(t *testing.T) {
	blocked := &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
	if !isUnreachable(blocked) {
		t.Fatal("ошибка 403 должна означать недоступного получателя")
	}
	if isUnreachable(&tgbotapi.Error{Code: 429, Message: "Too Many Requests"}) {
		t.Fatal("429 не должна означать недоступного получателя")
	}
	if isUnreachable(errors.New("dial tcp: timeout")) {
		t.Fatal("сетевая ошибка не должна означать недоступного получателя")
	}
}

func TestUsersKeyboard(t *testing.T) {
	if kb := usersKeyboard(1, false, false); kb != nil {
		t.Fatal("единственная страница не должна иметь стрелок")
	}
	kb := usersKeyboard(2, true, true)
	if kb == nil || len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 2 {
		t.Fatalf("средняя страница должна иметь две стрелки: %+v", kb)
	}
	if *kb.InlineKeyboard[0][0].CallbackData != cbUsersPagePrefix+"1" {
		t.Fatalf("стрелка назад должна вести на страницу 1: %v", *kb.InlineKeyboard[0][0].CallbackData)
	}
	if *kb.InlineKeyboard[0][1].CallbackData != cbUsersPagePrefix+"3" {
		t.Fatalf("стрелка вперёд должна вести на страницу 3: %v", *kb.InlineKeyboard[0][1].CallbackData)
	}
}

func TestKeyboardsEmitOnlyKnownActions(t *testing.T) {
	known := map[string]struct{}{
		cbWeatherNow: {}, cbForecast: {}, cbSubscribe: {}, cbUnsubscribe: {},
		cbChangeCity: {}, cbChangeTime: {}, cbUnitsMenu: {}, cbLanguageMenu: {},
		cbStats: {}, cbFeedback: {}, cbHelp: {},
		cbUnitsTemperature: {}, cbUnitsPressure: {}, cbUnitsWind: {},
	}
	prefixes := []string{cbSetTempPrefix, cbSetPressurePrefix, cbSetWindPrefix, cbSetLangPrefix, cbUsersPagePrefix}

	loc := i18nForTest(t)
	keyboards := []*tgbotapi.InlineKeyboardMarkup{
		mainKeyboard(loc, "ru"),
		unitsKeyboard(loc, "en"),
		temperatureKeyboard("ru"),
		pressureKeyboard("en"),
		windKeyboard("ru"),
		languageKeyboard(),
		usersKeyboard(2, true, true),
	}
	for _, kb := range keyboards {
		for _, row := range kb.InlineKeyboard {
			for _, button := range row {
				data := *button.CallbackData
				if _, ok := known[data]; ok {
					continue
				}
				matched := false
				for _, prefix := range prefixes {
					if strings.HasPrefix(data, prefix) {
						matched = true
						break
					}
				}
				if !matched {
					t.Fatalf("кнопка эмитит неизвестное действие %q", data)
				}
			}
		}
	}
}

func TestUnitChoiceKeyboard(t *testing.T) {
	kb := temperatureKeyboard("ru")
	if len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 3 {
		t.Fatalf("ожидали один ряд из трёх кнопок: %+v", kb)
	}
	if *kb.InlineKeyboard[0][0].CallbackData != cbSetTempPrefix+"celsius" {
		t.Fatalf("первая кнопка должна выбирать цельсий: %v", *kb.InlineKeyboard[0][0].CallbackData)
	}
}
