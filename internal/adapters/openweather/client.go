package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Durarara1312/weatherbot/internal/domain"
	"github.com/Durarara1312/weatherbot/internal/infra/metrics"
)

const requestTimeout = 10 * time.Second

// Client получает погоду из OpenWeatherMap.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	baseURL    string
	apiKey     string
}

var _ domain.WeatherProvider = (*Client)(nil)

// NewClient создаёт клиент OpenWeatherMap.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openweather",
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// неизвестный город — ошибка пользователя, не провайдера
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, domain.ErrCityNotFound)
			},
		}),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

type weatherPayload struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
		Pressure  float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
	Visibility int `json:"visibility"`
	Weather    []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
}

type currentResponse struct {
	weatherPayload
	Name string `json:"name"`
	Sys  struct {
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
	} `json:"sys"`
}

type forecastResponse struct {
	City struct {
		Name    string `json:"name"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"city"`
	List []weatherPayload `json:"list"`
}

// Current возвращает текущую погоду в городе.
func (c *Client) Current(ctx context.Context, city string) (domain.Snapshot, error) {
	var resp currentResponse
	if err := c.fetch(ctx, "/weather", city, &resp); err != nil {
		return domain.Snapshot{}, err
	}
	snap := toSnapshot(resp.weatherPayload)
	snap.City = resp.Name
	if snap.City == "" {
		snap.City = city
	}
	snap.Sunrise = time.Unix(resp.Sys.Sunrise, 0)
	snap.Sunset = time.Unix(resp.Sys.Sunset, 0)
	return snap, nil
}

// Forecast возвращает прогноз, ближайший к запрошенному времени.
// Прогноз идёт с шагом 3 часа; допускается отклонение до 90 минут.
func (c *Client) Forecast(ctx context.Context, city string, at time.Time) (domain.Snapshot, error) {
	var resp forecastResponse
	if err := c.fetch(ctx, "/forecast", city, &resp); err != nil {
		return domain.Snapshot{}, err
	}

	const maxDrift = 90 * time.Minute
	best := -1
	bestDrift := maxDrift + time.Second
	for i, entry := range resp.List {
		drift := at.Sub(time.Unix(entry.Dt, 0))
		if drift < 0 {
			drift = -drift
		}
		if drift < bestDrift {
			best = i
			bestDrift = drift
		}
	}
	if best < 0 || bestDrift > maxDrift {
		return domain.Snapshot{}, domain.ErrForecastUnavailable
	}

	snap := toSnapshot(resp.List[best])
	snap.City = resp.City.Name
	if snap.City == "" {
		snap.City = city
	}
	snap.Sunrise = time.Unix(resp.City.Sunrise, 0)
	snap.Sunset = time.Unix(resp.City.Sunset, 0)
	return snap, nil
}

func (c *Client) fetch(ctx context.Context, path, city string, out any) error {
	operation := strings.TrimPrefix(path, "/")
	result, err := c.breaker.Execute(func() (any, error) {
		query := url.Values{}
		query.Set("q", city)
		query.Set("appid", c.apiKey)
		query.Set("units", "metric")
		endpoint := c.baseURL + path + "?" + query.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		start := time.Now()
		resp, err := c.httpClient.Do(req)
		metrics.ObserveNetworkRequest("openweather", operation, city, start, err)
		if err != nil {
			return nil, fmt.Errorf("execute request: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, domain.ErrCityNotFound
		case resp.StatusCode != http.StatusOK:
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("openweather: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return err
	}
	data, _ := result.([]byte)
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func toSnapshot(payload weatherPayload) domain.Snapshot {
	snap := domain.Snapshot{
		TemperatureC:  payload.Main.Temp,
		FeelsLikeC:    payload.Main.FeelsLike,
		HumidityPct:   payload.Main.Humidity,
		PressureHPa:   payload.Main.Pressure,
		WindSpeedMS:   payload.Wind.Speed,
		CloudinessPct: payload.Clouds.All,
		VisibilityKM:  float64(payload.Visibility) / 1000,
		At:            time.Unix(payload.Dt, 0),
	}
	if len(payload.Weather) > 0 {
		snap.DescriptionKey = strings.ToLower(payload.Weather[0].Main)
		snap.Description = payload.Weather[0].Description
	}
	return snap
}
