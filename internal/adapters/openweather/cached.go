package openweather

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Durarara1312/weatherbot/internal/domain"
)

// SnapshotCache — контракт кэша для погодных срезов.
type SnapshotCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedProvider кэширует текущую погоду по городу, чтобы не ходить
// к провайдеру на каждый запрос. Прогнозы не кэшируются: запрошенное
// время у каждого пользователя своё. Ошибки кэша не фатальны,
// запрос уходит напрямую к провайдеру.
type CachedProvider struct {
	inner domain.WeatherProvider
	cache SnapshotCache
	ttl   time.Duration
	log   zerolog.Logger
}

var _ domain.WeatherProvider = (*CachedProvider)(nil)

// NewCachedProvider оборачивает провайдера кэшем.
func NewCachedProvider(inner domain.WeatherProvider, cache SnapshotCache, ttl time.Duration, log zerolog.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedProvider{inner: inner, cache: cache, ttl: ttl, log: log}
}

// Current возвращает текущую погоду, по возможности из кэша.
func (p *CachedProvider) Current(ctx context.Context, city string) (domain.Snapshot, error) {
	key := cacheKey(city)
	data, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		p.log.Warn().Err(err).Str("city", city).Msg("weather cache: ошибка чтения")
	}
	if ok {
		var snap domain.Snapshot
		if err := json.Unmarshal(data, &snap); err == nil {
			return snap, nil
		}
		p.log.Warn().Str("city", city).Msg("weather cache: повреждённая запись")
	}

	snap, err := p.inner.Current(ctx, city)
	if err != nil {
		return domain.Snapshot{}, err
	}
	payload, err := json.Marshal(snap)
	if err == nil {
		if err := p.cache.Set(ctx, key, payload, p.ttl); err != nil {
			p.log.Warn().Err(err).Str("city", city).Msg("weather cache: ошибка записи")
		}
	}
	return snap, nil
}

// Forecast всегда идёт к провайдеру напрямую.
func (p *CachedProvider) Forecast(ctx context.Context, city string, at time.Time) (domain.Snapshot, error) {
	return p.inner.Forecast(ctx, city, at)
}

func cacheKey(city string) string {
	return "weather:" + strings.ToLower(strings.TrimSpace(city))
}
