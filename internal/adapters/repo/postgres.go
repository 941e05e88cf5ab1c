package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Durarara1312/weatherbot/internal/domain"
	"github.com/Durarara1312/weatherbot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.SubscriptionRepo = (*Postgres)(nil)
	_ domain.SettingsRepo     = (*Postgres)(nil)
	_ domain.StatsRepo        = (*Postgres)(nil)
	_ domain.HistoryRepo      = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func patchValue(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

// Upsert создаёт или частично обновляет подписку. Пустые поля патча
// не трогают сохранённые значения.
func (p *Postgres) Upsert(chatID int64, patch domain.SubscriptionPatch) (domain.Subscription, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var status string
	if patch.Status != nil {
		status = string(*patch.Status)
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO subscriptions (chat_id, city, daily_time, tz, language, status, username)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), NULLIF($4,''), COALESCE(NULLIF($5,''),'en'), COALESCE(NULLIF($6,''),'inactive'), NULLIF($7,''))
ON CONFLICT (chat_id) DO UPDATE SET
	city = COALESCE(NULLIF($2,''), subscriptions.city),
	daily_time = COALESCE(NULLIF($3,''), subscriptions.daily_time),
	tz = COALESCE(NULLIF($4,''), subscriptions.tz),
	language = COALESCE(NULLIF($5,''), subscriptions.language),
	status = COALESCE(NULLIF($6,''), subscriptions.status),
	username = COALESCE(NULLIF($7,''), subscriptions.username)
RETURNING chat_id, city, daily_time, tz, subscription_start, language, status, username
`, chatID, patchValue(patch.City), patchValue(patch.DailyTime), patchValue(patch.Timezone), patchValue(patch.Language), status, patchValue(patch.Username))
	sub, err := scanSubscription(row)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_upsert", "subscriptions", start, err)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("upsert подписки: %w", err)
	}
	return sub, nil
}

// Get возвращает подписку по идентификатору чата.
func (p *Postgres) Get(chatID int64) (domain.Subscription, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT chat_id, city, daily_time, tz, subscription_start, language, status, username
FROM subscriptions WHERE chat_id=$1
`, chatID)
	sub, err := scanSubscription(row)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_get", "subscriptions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Subscription{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}

// SetStatus меняет статус подписки. Отсутствующая запись — не ошибка.
func (p *Postgres) SetStatus(chatID int64, status domain.SubscriptionStatus) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE subscriptions SET status=$2 WHERE chat_id=$1`, chatID, string(status))
	metrics.ObserveNetworkRequest("postgres", "subscriptions_set_status", "subscriptions", start, err)
	return err
}

// Delete удаляет подписку и связанные с ней данные пользователя.
func (p *Postgres) Delete(chatID int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM subscriptions WHERE chat_id=$1`, chatID)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_delete", "subscriptions", start, err)
	return err
}

// ListScheduled возвращает активные подписки с заданными городом и временем.
func (p *Postgres) ListScheduled() ([]domain.Subscription, error) {
	return p.list(`
SELECT chat_id, city, daily_time, tz, subscription_start, language, status, username
FROM subscriptions
WHERE status='active' AND city IS NOT NULL AND daily_time IS NOT NULL
`, "subscriptions_list_scheduled")
}

// ListActive возвращает все активные подписки.
func (p *Postgres) ListActive() ([]domain.Subscription, error) {
	return p.list(`
SELECT chat_id, city, daily_time, tz, subscription_start, language, status, username
FROM subscriptions WHERE status='active'
`, "subscriptions_list_active")
}

// ListAll возвращает страницу подписок в порядке регистрации.
func (p *Postgres) ListAll(limit, offset int) ([]domain.Subscription, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT chat_id, city, daily_time, tz, subscription_start, language, status, username
FROM subscriptions ORDER BY subscription_start, chat_id LIMIT $1 OFFSET $2
`, limit, offset)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_list_all", "subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// CountAll возвращает количество всех известных боту пользователей.
func (p *Postgres) CountAll() (int, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	var count int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions`).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_count", "subscriptions", start, err)
	return count, err
}

// допустимые поля фильтра /filter
var filterColumns = map[string]string{
	"city":     "city",
	"status":   "status",
	"language": "language",
	"time":     "daily_time",
}

// Filter возвращает подписки, у которых все указанные поля равны значениям.
// Неизвестные поля фильтра игнорируются.
func (p *Postgres) Filter(fields map[string]string) ([]domain.Subscription, error) {
	conditions := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for field, value := range fields {
		column, ok := filterColumns[field]
		if !ok {
			continue
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	query := `
SELECT chat_id, city, daily_time, tz, subscription_start, language, status, username
FROM subscriptions`
	if len(conditions) > 0 {
		query += "\nWHERE " + strings.Join(conditions, " AND ")
	}

	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_filter", "subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (p *Postgres) list(query, operation string) ([]domain.Subscription, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, query)
	metrics.ObserveNetworkRequest("postgres", operation, "subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (domain.Subscription, error) {
	var (
		sub       domain.Subscription
		city      sql.NullString
		dailyTime sql.NullString
		tz        sql.NullString
		username  sql.NullString
	)
	err := row.Scan(&sub.ChatID, &city, &dailyTime, &tz, &sub.StartDate, &sub.Language, &sub.Status, &username)
	if err != nil {
		return domain.Subscription{}, err
	}
	if city.Valid {
		sub.City = city.String
	}
	if dailyTime.Valid {
		sub.DailyTime = dailyTime.String
	}
	if tz.Valid {
		sub.Timezone = tz.String
	}
	if username.Valid {
		sub.Username = username.String
	}
	return sub, nil
}

func collectSubscriptions(rows pgx.Rows) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// GetSettings возвращает единицы пользователя или значения по умолчанию.
func (p *Postgres) GetSettings(chatID int64) (domain.UserSettings, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var settings domain.UserSettings
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT chat_id, temperature_unit, pressure_unit, wind_speed_unit
FROM user_settings WHERE chat_id=$1
`, chatID).Scan(&settings.ChatID, &settings.TemperatureUnit, &settings.PressureUnit, &settings.WindSpeedUnit)
	metrics.ObserveNetworkRequest("postgres", "settings_get", "user_settings", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultSettings(chatID), nil
	}
	if err != nil {
		return domain.UserSettings{}, err
	}
	return settings, nil
}

// SetTemperatureUnit сохраняет единицу температуры.
func (p *Postgres) SetTemperatureUnit(chatID int64, unit string) error {
	return p.setUnit(chatID, "temperature_unit", unit)
}

// SetPressureUnit сохраняет единицу давления.
func (p *Postgres) SetPressureUnit(chatID int64, unit string) error {
	return p.setUnit(chatID, "pressure_unit", unit)
}

// SetWindSpeedUnit сохраняет единицу скорости ветра.
func (p *Postgres) SetWindSpeedUnit(chatID int64, unit string) error {
	return p.setUnit(chatID, "wind_speed_unit", unit)
}

func (p *Postgres) setUnit(chatID int64, column, unit string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	defaults := domain.DefaultSettings(chatID)
	query := fmt.Sprintf(`
INSERT INTO user_settings (chat_id, temperature_unit, pressure_unit, wind_speed_unit)
VALUES ($1, $2, $3, $4)
ON CONFLICT (chat_id) DO UPDATE SET %s = EXCLUDED.%s
`, column, column)
	values := map[string]string{
		"temperature_unit": defaults.TemperatureUnit,
		"pressure_unit":    defaults.PressureUnit,
		"wind_speed_unit":  defaults.WindSpeedUnit,
	}
	values[column] = unit

	start := time.Now()
	_, err := p.pool.Exec(ctx, query, chatID, values["temperature_unit"], values["pressure_unit"], values["wind_speed_unit"])
	metrics.ObserveNetworkRequest("postgres", "settings_set_"+column, "user_settings", start, err)
	return err
}

// IncTotalRequests увеличивает общий счётчик запросов пользователя.
func (p *Postgres) IncTotalRequests(chatID int64) error {
	return p.incCounter(chatID, "total_requests")
}

// IncWeatherRequests увеличивает счётчик запросов погоды.
func (p *Postgres) IncWeatherRequests(chatID int64) error {
	return p.incCounter(chatID, "weather_requests")
}

// IncCityChanges увеличивает счётчик смен города.
func (p *Postgres) IncCityChanges(chatID int64) error {
	return p.incCounter(chatID, "city_changes")
}

// IncTimeChanges увеличивает счётчик смен времени.
func (p *Postgres) IncTimeChanges(chatID int64) error {
	return p.incCounter(chatID, "time_changes")
}

func (p *Postgres) incCounter(chatID int64, column string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	query := fmt.Sprintf(`
INSERT INTO user_stats (chat_id, %s) VALUES ($1, 1)
ON CONFLICT (chat_id) DO UPDATE SET %s = user_stats.%s + 1
`, column, column, column)

	start := time.Now()
	_, err := p.pool.Exec(ctx, query, chatID)
	metrics.ObserveNetworkRequest("postgres", "stats_inc_"+column, "user_stats", start, err)
	return err
}

// GetStats возвращает счётчики пользователя. Отсутствие записи — нули.
func (p *Postgres) GetStats(chatID int64) (domain.UserStats, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var stats domain.UserStats
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT chat_id, total_requests, weather_requests, city_changes, time_changes
FROM user_stats WHERE chat_id=$1
`, chatID).Scan(&stats.ChatID, &stats.TotalRequests, &stats.WeatherRequests, &stats.CityChanges, &stats.TimeChanges)
	metrics.ObserveNetworkRequest("postgres", "stats_get", "user_stats", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserStats{ChatID: chatID}, nil
	}
	if err != nil {
		return domain.UserStats{}, err
	}
	return stats, nil
}

// CountSubscribers возвращает общее число пользователей бота.
func (p *Postgres) CountSubscribers() (int, error) {
	return p.CountAll()
}

// CountNewSince возвращает число пользователей, появившихся после указанной даты.
func (p *Postgres) CountNewSince(since time.Time) (int, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	var count int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE subscription_start >= $1`, since).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_count_new", "subscriptions", start, err)
	return count, err
}

// CityCounts возвращает количество активных подписчиков по городам
// в порядке убывания.
func (p *Postgres) CityCounts() ([]domain.CityCount, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT city, COUNT(*) AS cnt
FROM subscriptions
WHERE status='active' AND city IS NOT NULL
GROUP BY city ORDER BY cnt DESC, city
`)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_city_counts", "subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []domain.CityCount
	for rows.Next() {
		var c domain.CityCount
		if err := rows.Scan(&c.City, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// SumTotalRequests возвращает суммарное количество запросов всех пользователей.
func (p *Postgres) SumTotalRequests() (int64, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	var sum int64
	err := p.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total_requests), 0) FROM user_stats`).Scan(&sum)
	metrics.ObserveNetworkRequest("postgres", "stats_sum_total", "user_stats", start, err)
	return sum, err
}

// RecordWeather добавляет запись в журнал доставленной погоды.
func (p *Postgres) RecordWeather(entry domain.WeatherHistoryEntry) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	recordedAt := entry.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO weather_history (chat_id, city, temperature, humidity, description, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, entry.ChatID, entry.City, entry.Temperature, entry.Humidity, entry.Description, recordedAt)
	metrics.ObserveNetworkRequest("postgres", "history_insert", "weather_history", start, err)
	return err
}

// ListWeatherSince возвращает журнал погоды пользователя с указанной даты.
func (p *Postgres) ListWeatherSince(chatID int64, since time.Time) ([]domain.WeatherHistoryEntry, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT chat_id, city, temperature, humidity, description, recorded_at
FROM weather_history
WHERE chat_id=$1 AND recorded_at >= $2
ORDER BY recorded_at
`, chatID, since)
	metrics.ObserveNetworkRequest("postgres", "history_list", "weather_history", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.WeatherHistoryEntry
	for rows.Next() {
		var e domain.WeatherHistoryEntry
		if err := rows.Scan(&e.ChatID, &e.City, &e.Temperature, &e.Humidity, &e.Description, &e.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
