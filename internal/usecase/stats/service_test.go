package stats

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Durarara1312/weatherbot/internal/domain"
	"github.com/Durarara1312/weatherbot/internal/i18n"
)

type stubSubs struct {
	all      []domain.Subscription
	filtered map[string][]domain.Subscription
	lastFilter map[string]string
}

func (s *stubSubs) Upsert(int64, domain.SubscriptionPatch) (domain.Subscription, error) {
	return domain.Subscription{}, nil
}
func (s *stubSubs) Get(int64) (domain.Subscription, error) {
	return domain.Subscription{}, domain.ErrNotFound
}
func (s *stubSubs) SetStatus(int64, domain.SubscriptionStatus) error { return nil }
func (s *stubSubs) Delete(int64) error                               { return nil }
func (s *stubSubs) ListScheduled() ([]domain.Subscription, error)    { return nil, nil }
func (s *stubSubs) ListActive() ([]domain.Subscription, error)       { return s.all, nil }
func (s *stubSubs) ListAll(limit, offset int) ([]domain.Subscription, error) {
	if offset >= len(s.all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.all) {
		end = len(s.all)
	}
	return s.all[offset:end], nil
}
func (s *stubSubs) CountAll() (int, error) { return len(s.all), nil }
func (s *stubSubs) Filter(fields map[string]string) ([]domain.Subscription, error) {
	s.lastFilter = fields
	if len(fields) == 0 {
		return s.all, nil
	}
	return s.filtered[fields["city"]], nil
}

type stubStats struct {
	stats       domain.UserStats
	subscribers int
	newWeek     int
	requests    int64
	cities      []domain.CityCount
}

func (s *stubStats) IncTotalRequests(int64) error   { return nil }
func (s *stubStats) IncWeatherRequests(int64) error { return nil }
func (s *stubStats) IncCityChanges(int64) error     { return nil }
func (s *stubStats) IncTimeChanges(int64) error     { return nil }
func (s *stubStats) GetStats(int64) (domain.UserStats, error) { return s.stats, nil }
func (s *stubStats) CountSubscribers() (int, error)           { return s.subscribers, nil }
func (s *stubStats) CountNewSince(time.Time) (int, error)     { return s.newWeek, nil }
func (s *stubStats) CityCounts() ([]domain.CityCount, error)  { return s.cities, nil }
func (s *stubStats) SumTotalRequests() (int64, error)         { return s.requests, nil }

type stubHistory struct {
	entries []domain.WeatherHistoryEntry
}

func (h *stubHistory) RecordWeather(domain.WeatherHistoryEntry) error { return nil }
func (h *stubHistory) ListWeatherSince(int64, time.Time) ([]domain.WeatherHistoryEntry, error) {
	return h.entries, nil
}

type stubSettings struct {
	settings domain.UserSettings
}

func (s *stubSettings) GetSettings(chatID int64) (domain.UserSettings, error) {
	if s.settings.ChatID == 0 {
		return domain.DefaultSettings(chatID), nil
	}
	return s.settings, nil
}
func (s *stubSettings) SetTemperatureUnit(int64, string) error { return nil }
func (s *stubSettings) SetPressureUnit(int64, string) error    { return nil }
func (s *stubSettings) SetWindSpeedUnit(int64, string) error   { return nil }

func entry(temp float64, description string) domain.WeatherHistoryEntry {
	return domain.WeatherHistoryEntry{Temperature: temp, Description: description}
}

func TestUserSummary(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	history := &stubHistory{entries: []domain.WeatherHistoryEntry{
		entry(10, "light rain"),
		entry(20, "clear sky"),
		entry(30, "clear sky"),
	}}
	counters := &stubStats{stats: domain.UserStats{ChatID: 7, TotalRequests: 42, WeatherRequests: 30, CityChanges: 2, TimeChanges: 1}}
	svc := NewService(&stubSubs{}, counters, history, &stubSettings{}, i18n.MustNew())

	sub := domain.Subscription{
		ChatID:    7,
		Language:  "en",
		StartDate: now.AddDate(0, 0, -22),
	}
	text, err := svc.UserSummary(sub, now)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	for _, want := range []string{"3 weeks", "Total requests: 42", "Average temperature: 20.0", "Maximum: 30.0", "Minimum: 10.0", "Rainy records: 1", "Clear records: 2"} {
		if !strings.Contains(text, want) {
			t.Fatalf("ожидали %q в сводке:\n%s", want, text)
		}
	}
}

func TestUserSummaryEmpty(t *testing.T) {
	svc := NewService(&stubSubs{}, &stubStats{}, &stubHistory{}, &stubSettings{}, i18n.MustNew())
	text, err := svc.UserSummary(domain.Subscription{ChatID: 7, Language: "en"}, time.Now())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(text, "No statistics yet") {
		t.Fatalf("ожидали заглушку для пустой статистики: %q", text)
	}
}

func TestAdminSummary(t *testing.T) {
	counters := &stubStats{
		subscribers: 120,
		newWeek:     5,
		requests:    999,
		cities: []domain.CityCount{
			{City: "Москва", Count: 40},
			{City: "Казань", Count: 12},
		},
	}
	svc := NewService(&stubSubs{}, counters, &stubHistory{}, &stubSettings{}, i18n.MustNew())
	text, err := svc.AdminSummary("ru", time.Now())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	for _, want := range []string{"120", "5", "999", "• Москва: 40", "• Казань: 12"} {
		if !strings.Contains(text, want) {
			t.Fatalf("ожидали %q в сводке:\n%s", want, text)
		}
	}
	if strings.Index(text, "Москва") > strings.Index(text, "Казань") {
		t.Fatalf("города должны идти по убыванию подписчиков:\n%s", text)
	}
}

func TestExportCSV(t *testing.T) {
	subs := &stubSubs{all: []domain.Subscription{
		{ChatID: 1, Username: "alex", City: "London", DailyTime: "08:30", Language: "en", Status: domain.StatusActive},
		{ChatID: 2, City: "Казань", Language: "ru", Status: domain.StatusInactive},
	}}
	svc := NewService(subs, &stubStats{}, &stubHistory{}, &stubSettings{}, i18n.MustNew())

	path, err := svc.ExportCSV()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("не удалось прочитать файл: %v", err)
	}
	if len(data) < 3 || data[0] != 0xEF || data[1] != 0xBB || data[2] != 0xBF {
		t.Fatalf("файл должен начинаться с BOM")
	}
	content := string(data[3:])
	if !strings.HasPrefix(content, "chat_id,username,city") {
		t.Fatalf("ожидали заголовок CSV:\n%s", content)
	}
	if !strings.Contains(content, "alex") || !strings.Contains(content, "Казань") {
		t.Fatalf("ожидали строки подписчиков:\n%s", content)
	}
	if !strings.Contains(content, "hPa") || !strings.Contains(content, "гПа") {
		t.Fatalf("подписи единиц должны соответствовать языку пользователя:\n%s", content)
	}
}

func TestFilterSummary(t *testing.T) {
	subs := &stubSubs{filtered: map[string][]domain.Subscription{
		"London": {{ChatID: 1, Username: "alex", City: "London", DailyTime: "08:30", Status: domain.StatusActive}},
	}}
	svc := NewService(subs, &stubStats{}, &stubHistory{}, &stubSettings{}, i18n.MustNew())

	text, err := svc.FilterSummary("en", "city=London&status=active")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(text, "Subscriptions found: 1") || !strings.Contains(text, "alex") {
		t.Fatalf("ожидали результат фильтра:\n%s", text)
	}
	if subs.lastFilter["city"] != "London" || subs.lastFilter["status"] != "active" {
		t.Fatalf("фильтр разобран неверно: %v", subs.lastFilter)
	}

	text, err = svc.FilterSummary("en", "")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(text, "Usage:") {
		t.Fatalf("пустой фильтр должен возвращать подсказку: %q", text)
	}
}

func TestUsersPage(t *testing.T) {
	var all []domain.Subscription
	for i := int64(1); i <= 25; i++ {
		all = append(all, domain.Subscription{ChatID: i, Status: domain.StatusActive})
	}
	svc := NewService(&stubSubs{all: all}, &stubStats{}, &stubHistory{}, &stubSettings{}, i18n.MustNew())

	text, hasPrev, hasNext, err := svc.UsersPage(2, 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !hasPrev || !hasNext {
		t.Fatalf("средняя страница должна иметь обе стрелки")
	}
	if !strings.Contains(text, "стр. 2/3") {
		t.Fatalf("ожидали номер страницы:\n%s", text)
	}
	if !strings.Contains(text, "11 |") || strings.Contains(text, "10 |") {
		t.Fatalf("ожидали записи второй страницы:\n%s", text)
	}
}
