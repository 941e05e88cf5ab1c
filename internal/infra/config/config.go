package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"Europe/Moscow"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Telegram struct {
		Token       string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL  string `envconfig:"TG_WEBHOOK_URL"`
		AdminChatID int64  `envconfig:"TG_ADMIN_CHAT_ID"`
	} `envconfig:""`

	Weather struct {
		APIKey  string `envconfig:"OPENWEATHER_API_KEY"`
		BaseURL string `envconfig:"OPENWEATHER_BASE_URL" default:"https://api.openweathermap.org/data/2.5"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQPURL string `envconfig:"AMQP_URL"`

	Queues struct {
		Broadcast string `envconfig:"BROADCAST_QUEUE_KEY" default:"broadcast_jobs"`
	} `envconfig:""`

	Limits struct {
		DeliveryTimeout  int `envconfig:"DELIVERY_TIMEOUT_SEC" default:"30"`
		BroadcastWorkers int `envconfig:"BROADCAST_WORKERS" default:"8"`
		WeatherCacheTTL  int `envconfig:"WEATHER_CACHE_TTL_MIN" default:"10"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
