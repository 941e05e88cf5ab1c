package domain

import (
	"context"
	"errors"
	"time"
)

// ErrCityNotFound возвращается провайдером погоды, если город не распознан.
var ErrCityNotFound = errors.New("city not found")

// ErrForecastUnavailable возвращается, если на запрошенное время нет прогноза.
var ErrForecastUnavailable = errors.New("forecast unavailable")

// Snapshot — срез погоды в канонических единицах: °C, гПа, м/с, км.
type Snapshot struct {
	City           string
	TemperatureC   float64
	FeelsLikeC     float64
	HumidityPct    int
	PressureHPa    float64
	WindSpeedMS    float64
	CloudinessPct  int
	VisibilityKM   float64
	Sunrise        time.Time
	Sunset         time.Time
	DescriptionKey string
	Description    string
	At             time.Time
}

// WeatherProvider отдаёт текущую погоду и прогноз по названию города.
type WeatherProvider interface {
	Current(ctx context.Context, city string) (Snapshot, error)
	Forecast(ctx context.Context, city string, at time.Time) (Snapshot, error)
}
