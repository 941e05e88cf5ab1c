package domain

import "time"

// SubscriptionStatus описывает состояние подписки на ежедневную рассылку.
type SubscriptionStatus string

const (
	// StatusActive — рассылка включена, город и время заданы.
	StatusActive SubscriptionStatus = "active"
	// StatusInactive — пользователь известен боту, но рассылка выключена.
	StatusInactive SubscriptionStatus = "inactive"
)

// Subscription описывает пользователя и его подписку на погоду.
type Subscription struct {
	ChatID    int64
	City      string
	DailyTime string
	Timezone  string
	StartDate time.Time
	Language  string
	Status    SubscriptionStatus
	Username  string
}

// SubscriptionPatch задаёт частичное обновление подписки.
// Нулевые указатели означают «поле не трогать».
type SubscriptionPatch struct {
	City      *string
	DailyTime *string
	Timezone  *string
	Language  *string
	Status    *SubscriptionStatus
	Username  *string
}

// UserSettings хранит единицы измерения пользователя.
type UserSettings struct {
	ChatID          int64
	TemperatureUnit string
	PressureUnit    string
	WindSpeedUnit   string
}

// DefaultSettings возвращает единицы по умолчанию.
func DefaultSettings(chatID int64) UserSettings {
	return UserSettings{
		ChatID:          chatID,
		TemperatureUnit: "celsius",
		PressureUnit:    "hpa",
		WindSpeedUnit:   "ms",
	}
}

// UserStats хранит монотонные счётчики активности пользователя.
type UserStats struct {
	ChatID          int64
	TotalRequests   int64
	WeatherRequests int64
	CityChanges     int64
	TimeChanges     int64
}

// WeatherHistoryEntry — одна запись журнала доставленной погоды.
type WeatherHistoryEntry struct {
	ChatID      int64
	City        string
	Temperature float64
	Humidity    int
	Description string
	RecordedAt  time.Time
}

// CityCount — количество подписчиков в городе.
type CityCount struct {
	City  string
	Count int
}
