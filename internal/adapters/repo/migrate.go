package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Durarara1312/weatherbot/internal/infra/metrics"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS subscriptions (
	chat_id BIGINT PRIMARY KEY,
	city TEXT,
	daily_time TEXT,
	tz TEXT,
	subscription_start DATE NOT NULL DEFAULT CURRENT_DATE,
	language TEXT NOT NULL DEFAULT 'en',
	status TEXT NOT NULL DEFAULT 'inactive',
	username TEXT
)`,
	`CREATE TABLE IF NOT EXISTS user_settings (
	chat_id BIGINT PRIMARY KEY,
	temperature_unit TEXT NOT NULL DEFAULT 'celsius',
	pressure_unit TEXT NOT NULL DEFAULT 'hpa',
	wind_speed_unit TEXT NOT NULL DEFAULT 'ms'
)`,
	`CREATE TABLE IF NOT EXISTS user_stats (
	chat_id BIGINT PRIMARY KEY,
	total_requests BIGINT NOT NULL DEFAULT 0,
	weather_requests BIGINT NOT NULL DEFAULT 0,
	city_changes BIGINT NOT NULL DEFAULT 0,
	time_changes BIGINT NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS weather_history (
	id BIGSERIAL PRIMARY KEY,
	chat_id BIGINT NOT NULL,
	city TEXT NOT NULL,
	temperature DOUBLE PRECISION NOT NULL,
	humidity INT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS weather_history_chat_recorded_idx
	ON weather_history (chat_id, recorded_at)`,
}

// Migrate идемпотентно создаёт схему БД.
func (p *Postgres) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		start := time.Now()
		_, err := p.pool.Exec(ctx, stmt)
		metrics.ObserveNetworkRequest("postgres", fmt.Sprintf("migrate_%d", i), "schema", start, err)
		if err != nil {
			return fmt.Errorf("миграция %d: %w", i, err)
		}
	}
	return nil
}
