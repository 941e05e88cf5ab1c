package stats

import (
	"encoding/csv"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Durarara1312/weatherbot/internal/domain"
	"github.com/Durarara1312/weatherbot/internal/i18n"
	"github.com/Durarara1312/weatherbot/internal/units"
)

const historyWindow = 30 * 24 * time.Hour

// Service собирает пользовательскую статистику и админские агрегаты.
type Service struct {
	subs     domain.SubscriptionRepo
	stats    domain.StatsRepo
	history  domain.HistoryRepo
	settings domain.SettingsRepo
	loc      *i18n.Localizer
}

// NewService создаёт сервис статистики.
func NewService(subs domain.SubscriptionRepo, stats domain.StatsRepo, history domain.HistoryRepo, settings domain.SettingsRepo, loc *i18n.Localizer) *Service {
	return &Service{subs: subs, stats: stats, history: history, settings: settings, loc: loc}
}

// UserSummary строит сообщение /stats: счётчики и температура за 30 дней.
func (s *Service) UserSummary(sub domain.Subscription, now time.Time) (string, error) {
	counters, err := s.stats.GetStats(sub.ChatID)
	if err != nil {
		return "", fmt.Errorf("чтение счётчиков: %w", err)
	}
	entries, err := s.history.ListWeatherSince(sub.ChatID, now.Add(-historyWindow))
	if err != nil {
		return "", fmt.Errorf("чтение истории: %w", err)
	}
	if counters.TotalRequests == 0 && len(entries) == 0 {
		return s.loc.Text(sub.Language, "stats_empty", nil), nil
	}

	weeks := 0
	if !sub.StartDate.IsZero() {
		weeks = int(now.Sub(sub.StartDate).Hours() / (24 * 7))
		if weeks < 0 {
			weeks = 0
		}
	}

	settings, err := s.settings.GetSettings(sub.ChatID)
	if err != nil {
		settings = domain.DefaultSettings(sub.ChatID)
	}

	avg, max, min := "—", "—", "—"
	rainy, clear := 0, 0
	if len(entries) > 0 {
		sum := 0.0
		maxT := entries[0].Temperature
		minT := entries[0].Temperature
		for _, e := range entries {
			sum += e.Temperature
			if e.Temperature > maxT {
				maxT = e.Temperature
			}
			if e.Temperature < minT {
				minT = e.Temperature
			}
			description := strings.ToLower(e.Description)
			if strings.Contains(description, "rain") {
				rainy++
			}
			if strings.Contains(description, "clear") {
				clear++
			}
		}
		unit := settings.TemperatureUnit
		avg = fmt.Sprintf("%.1f", units.Temperature(sum/float64(len(entries)), unit))
		max = fmt.Sprintf("%.1f", units.Temperature(maxT, unit))
		min = fmt.Sprintf("%.1f", units.Temperature(minT, unit))
	}

	params := map[string]string{
		"weeks":        strconv.Itoa(weeks),
		"total":        strconv.FormatInt(counters.TotalRequests, 10),
		"weather":      strconv.FormatInt(counters.WeatherRequests, 10),
		"city_changes": strconv.FormatInt(counters.CityChanges, 10),
		"time_changes": strconv.FormatInt(counters.TimeChanges, 10),
		"avg":          avg,
		"max":          max,
		"min":          min,
		"tunit":        units.Label(settings.TemperatureUnit, sub.Language),
		"rainy":        strconv.Itoa(rainy),
		"clear":        strconv.Itoa(clear),
	}
	return s.loc.Text(sub.Language, "stats_message", params), nil
}

// AdminSummary строит сводку для администратора.
func (s *Service) AdminSummary(lang string, now time.Time) (string, error) {
	total, err := s.stats.CountSubscribers()
	if err != nil {
		return "", fmt.Errorf("подсчёт подписчиков: %w", err)
	}
	newWeek, err := s.stats.CountNewSince(now.AddDate(0, 0, -7))
	if err != nil {
		return "", fmt.Errorf("подсчёт новых: %w", err)
	}
	requests, err := s.stats.SumTotalRequests()
	if err != nil {
		return "", fmt.Errorf("сумма запросов: %w", err)
	}
	counts, err := s.stats.CityCounts()
	if err != nil {
		return "", fmt.Errorf("подсчёт городов: %w", err)
	}

	var cities strings.Builder
	for _, c := range counts {
		cities.WriteString(fmt.Sprintf("• %s: %d\n", c.City, c.Count))
	}
	cityLines := strings.TrimRight(cities.String(), "\n")
	if cityLines == "" {
		cityLines = "—"
	}

	params := map[string]string{
		"total":    strconv.Itoa(total),
		"new_week": strconv.Itoa(newWeek),
		"requests": strconv.FormatInt(requests, 10),
		"cities":   cityLines,
	}
	return s.loc.Text(lang, "admin_stats", params), nil
}

// ExportCSV выгружает всех подписчиков во временный CSV-файл с BOM
// и возвращает путь к нему. Файл удаляет вызывающая сторона после отправки.
func (s *Service) ExportCSV() (string, error) {
	subs, err := s.subs.Filter(nil)
	if err != nil {
		return "", fmt.Errorf("выборка подписчиков: %w", err)
	}

	file, err := os.CreateTemp("", "subscribers-*.csv")
	if err != nil {
		return "", fmt.Errorf("создание файла: %w", err)
	}
	defer file.Close()

	// BOM нужен, чтобы Excel распознал UTF-8
	if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("запись BOM: %w", err)
	}

	writer := csv.NewWriter(file)
	header := []string{"chat_id", "username", "city", "daily_time", "timezone", "language", "status", "subscription_start", "temperature_unit", "pressure_unit", "wind_speed_unit"}
	if err := writer.Write(header); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("запись заголовка: %w", err)
	}
	for _, sub := range subs {
		settings, err := s.settings.GetSettings(sub.ChatID)
		if err != nil {
			settings = domain.DefaultSettings(sub.ChatID)
		}
		startDate := ""
		if !sub.StartDate.IsZero() {
			startDate = sub.StartDate.Format("2006-01-02")
		}
		row := []string{
			strconv.FormatInt(sub.ChatID, 10),
			sub.Username,
			sub.City,
			sub.DailyTime,
			sub.Timezone,
			sub.Language,
			string(sub.Status),
			startDate,
			units.Label(settings.TemperatureUnit, sub.Language),
			units.Label(settings.PressureUnit, sub.Language),
			units.Label(settings.WindSpeedUnit, sub.Language),
		}
		if err := writer.Write(row); err != nil {
			os.Remove(file.Name())
			return "", fmt.Errorf("запись строки: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("сброс буфера: %w", err)
	}
	return file.Name(), nil
}

// ParseFilterQuery разбирает строку вида city=X&status=active.
func ParseFilterQuery(raw string) (map[string]string, error) {
	values, err := url.ParseQuery(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("разбор фильтра: %w", err)
	}
	fields := make(map[string]string, len(values))
	for key, list := range values {
		if len(list) == 0 || strings.TrimSpace(list[0]) == "" {
			continue
		}
		fields[key] = list[0]
	}
	return fields, nil
}

// FilterSummary возвращает подписки, подходящие под фильтр равенства полей.
func (s *Service) FilterSummary(lang, query string) (string, error) {
	fields, err := ParseFilterQuery(query)
	if err != nil || len(fields) == 0 {
		return s.loc.Text(lang, "filter_usage", nil), nil
	}
	subs, err := s.subs.Filter(fields)
	if err != nil {
		return "", fmt.Errorf("фильтрация: %w", err)
	}
	if len(subs) == 0 {
		return s.loc.Text(lang, "filter_empty", nil), nil
	}

	var b strings.Builder
	b.WriteString(s.loc.Text(lang, "filter_header", map[string]string{"count": strconv.Itoa(len(subs))}))
	b.WriteString("\n")
	for _, sub := range subs {
		b.WriteString(formatSubscriptionLine(sub))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// UsersPage возвращает страницу списка пользователей для админа.
func (s *Service) UsersPage(page, perPage int) (string, bool, bool, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	total, err := s.subs.CountAll()
	if err != nil {
		return "", false, false, fmt.Errorf("подсчёт пользователей: %w", err)
	}
	subs, err := s.subs.ListAll(perPage, (page-1)*perPage)
	if err != nil {
		return "", false, false, fmt.Errorf("выборка пользователей: %w", err)
	}

	pages := (total + perPage - 1) / perPage
	if pages < 1 {
		pages = 1
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("👥 Пользователи (стр. %d/%d, всего %d):\n", page, pages, total))
	for _, sub := range subs {
		b.WriteString(formatSubscriptionLine(sub))
	}
	return strings.TrimRight(b.String(), "\n"), page > 1, page < pages, nil
}

func formatSubscriptionLine(sub domain.Subscription) string {
	name := sub.Username
	if name == "" {
		name = strconv.FormatInt(sub.ChatID, 10)
	}
	city := sub.City
	if city == "" {
		city = "—"
	}
	at := sub.DailyTime
	if at == "" {
		at = "—"
	}
	return fmt.Sprintf("%d | %s | %s | %s | %s\n", sub.ChatID, name, city, at, sub.Status)
}
