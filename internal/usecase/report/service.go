package report

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Durarara1312/weatherbot/internal/adapters/telegram"
	"github.com/Durarara1312/weatherbot/internal/domain"
	"github.com/Durarara1312/weatherbot/internal/i18n"
	"github.com/Durarara1312/weatherbot/internal/units"
)

// Service строит локализованные тексты погоды с учётом единиц пользователя.
type Service struct {
	provider domain.WeatherProvider
	settings domain.SettingsRepo
	loc      *i18n.Localizer
}

// NewService создаёт сервис.
func NewService(provider domain.WeatherProvider, settings domain.SettingsRepo, loc *i18n.Localizer) *Service {
	return &Service{provider: provider, settings: settings, loc: loc}
}

// BuildCurrent возвращает текст текущей погоды и сырой срез для журнала.
func (s *Service) BuildCurrent(ctx context.Context, chatID int64, city, lang string) (string, domain.Snapshot, error) {
	snap, err := s.provider.Current(ctx, city)
	if err != nil {
		return "", domain.Snapshot{}, err
	}
	settings, err := s.settings.GetSettings(chatID)
	if err != nil {
		settings = domain.DefaultSettings(chatID)
	}
	return s.Render(lang, settings, snap), snap, nil
}

// BuildForecast возвращает текст прогноза через hours часов.
func (s *Service) BuildForecast(ctx context.Context, chatID int64, city, lang string, hours int) (string, error) {
	snap, err := s.provider.Forecast(ctx, city, time.Now().Add(time.Duration(hours)*time.Hour))
	if err != nil {
		return "", err
	}
	settings, err := s.settings.GetSettings(chatID)
	if err != nil {
		settings = domain.DefaultSettings(chatID)
	}
	header := s.loc.Text(lang, "forecast_header", map[string]string{
		"city":  telegram.EscapeMarkdown(snap.City),
		"hours": strconv.Itoa(hours),
	})
	return header + "\n\n" + s.Render(lang, settings, snap), nil
}

// Render формирует текст отчёта по готовому срезу погоды.
// Свободные поля (город, описание) экранируются для Markdown.
func (s *Service) Render(lang string, settings domain.UserSettings, snap domain.Snapshot) string {
	description := s.loc.Description(lang, snap.DescriptionKey, snap.Description)
	params := map[string]string{
		"city":        telegram.EscapeMarkdown(snap.City),
		"description": telegram.EscapeMarkdown(description),
		"temp":        formatValue(units.Temperature(snap.TemperatureC, settings.TemperatureUnit)),
		"feels":       formatValue(units.Temperature(snap.FeelsLikeC, settings.TemperatureUnit)),
		"tunit":       units.Label(settings.TemperatureUnit, lang),
		"humidity":    strconv.Itoa(snap.HumidityPct),
		"pressure":    formatValue(units.Pressure(snap.PressureHPa, settings.PressureUnit)),
		"punit":       units.Label(settings.PressureUnit, lang),
		"wind":        formatValue(units.WindSpeed(snap.WindSpeedMS, settings.WindSpeedUnit)),
		"wunit":       units.Label(settings.WindSpeedUnit, lang),
		"clouds":      strconv.Itoa(snap.CloudinessPct),
		"visibility":  formatValue(snap.VisibilityKM),
		"sunrise":     snap.Sunrise.Format("15:04"),
		"sunset":      snap.Sunset.Format("15:04"),
	}
	return s.loc.Text(lang, "weather_report", params)
}

func formatValue(v float64) string {
	return fmt.Sprintf("%.1f", v)
}
