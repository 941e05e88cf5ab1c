package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/Durarara1312/weatherbot/internal/adapters/bot"
	"github.com/Durarara1312/weatherbot/internal/adapters/openweather"
	"github.com/Durarara1312/weatherbot/internal/adapters/repo"
	"github.com/Durarara1312/weatherbot/internal/i18n"
	"github.com/Durarara1312/weatherbot/internal/infra/cache"
	"github.com/Durarara1312/weatherbot/internal/infra/config"
	"github.com/Durarara1312/weatherbot/internal/infra/db"
	"github.com/Durarara1312/weatherbot/internal/infra/log"
	"github.com/Durarara1312/weatherbot/internal/infra/metrics"
	"github.com/Durarara1312/weatherbot/internal/infra/queue"
	"github.com/Durarara1312/weatherbot/internal/usecase/broadcast"
	"github.com/Durarara1312/weatherbot/internal/usecase/delivery"
	"github.com/Durarara1312/weatherbot/internal/usecase/report"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось применить миграции")
	}

	broadcastQueue, err := queue.NewRabbitBroadcastQueue(cfg.AMQPURL, cfg.Queues.Broadcast)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к очереди")
	}
	defer broadcastQueue.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать бота")
	}
	messenger := bot.NewMessenger(botAPI, logger)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	provider := openweather.NewCachedProvider(
		openweather.NewClient(cfg.Weather.BaseURL, cfg.Weather.APIKey),
		cache.NewRedis(redisClient),
		time.Duration(cfg.Limits.WeatherCacheTTL)*time.Minute,
		logger,
	)
	loc := i18n.MustNew()
	reportUC := report.NewService(provider, repoAdapter, loc)
	deliveryUC := delivery.NewService(
		repoAdapter,
		repoAdapter,
		reportUC,
		messenger,
		loc,
		logger,
		time.Duration(cfg.Limits.DeliveryTimeout)*time.Second,
	)
	broadcastUC := broadcast.NewService(broadcastQueue, repoAdapter, messenger, loc, logger, cfg.Limits.BroadcastWorkers)

	metrics.MustRegister(prometheus.DefaultRegisterer)
	metrics.StartServer(ctx, logger, cfg.MetricsAddr)

	go func() {
		if err := broadcastUC.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("scheduler: обработчик рассылок остановлен")
		}
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	logger.Info().Msg("scheduler: запущен")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановка")
			return
		case now := <-ticker.C:
			if _, err := deliveryUC.RunTick(ctx, now); err != nil {
				logger.Error().Err(err).Msg("scheduler: ошибка тика")
			}
		}
	}
}
