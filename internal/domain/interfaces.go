package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound возвращается, когда запись отсутствует в хранилище.
var ErrNotFound = errors.New("not found")

// ErrRecipientUnreachable означает, что получатель заблокировал бота
// или чат больше не существует.
var ErrRecipientUnreachable = errors.New("recipient unreachable")

// SubscriptionRepo управляет подписками.
type SubscriptionRepo interface {
	Upsert(chatID int64, patch SubscriptionPatch) (Subscription, error)
	Get(chatID int64) (Subscription, error)
	SetStatus(chatID int64, status SubscriptionStatus) error
	Delete(chatID int64) error
	ListScheduled() ([]Subscription, error)
	ListActive() ([]Subscription, error)
	ListAll(limit, offset int) ([]Subscription, error)
	CountAll() (int, error)
	Filter(fields map[string]string) ([]Subscription, error)
}

// SettingsRepo управляет единицами измерения пользователей.
// Get возвращает значения по умолчанию, если запись отсутствует.
type SettingsRepo interface {
	GetSettings(chatID int64) (UserSettings, error)
	SetTemperatureUnit(chatID int64, unit string) error
	SetPressureUnit(chatID int64, unit string) error
	SetWindSpeedUnit(chatID int64, unit string) error
}

// StatsRepo управляет счётчиками пользователей и агрегатами для админа.
type StatsRepo interface {
	IncTotalRequests(chatID int64) error
	IncWeatherRequests(chatID int64) error
	IncCityChanges(chatID int64) error
	IncTimeChanges(chatID int64) error
	GetStats(chatID int64) (UserStats, error)
	CountSubscribers() (int, error)
	CountNewSince(since time.Time) (int, error)
	CityCounts() ([]CityCount, error)
	SumTotalRequests() (int64, error)
}

// HistoryRepo хранит журнал доставленной погоды.
type HistoryRepo interface {
	RecordWeather(entry WeatherHistoryEntry) error
	ListWeatherSince(chatID int64, since time.Time) ([]WeatherHistoryEntry, error)
}

// StateRepo хранит состояния диалогов. Get возвращает IdleState,
// если состояние отсутствует или истёк его TTL.
type StateRepo interface {
	Get(ctx context.Context, chatID int64) (ConversationState, error)
	Set(ctx context.Context, chatID int64, state ConversationState) error
	Clear(ctx context.Context, chatID int64) error
}

// Messenger отправляет сообщения пользователям.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, path string) error
}
