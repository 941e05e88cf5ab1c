package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/Durarara1312/weatherbot/internal/adapters/bot"
	"github.com/Durarara1312/weatherbot/internal/adapters/openweather"
	"github.com/Durarara1312/weatherbot/internal/adapters/repo"
	"github.com/Durarara1312/weatherbot/internal/adapters/statestore"
	"github.com/Durarara1312/weatherbot/internal/domain"
	"github.com/Durarara1312/weatherbot/internal/i18n"
	"github.com/Durarara1312/weatherbot/internal/infra/cache"
	"github.com/Durarara1312/weatherbot/internal/infra/config"
	"github.com/Durarara1312/weatherbot/internal/infra/db"
	httpinfra "github.com/Durarara1312/weatherbot/internal/infra/http"
	"github.com/Durarara1312/weatherbot/internal/infra/log"
	"github.com/Durarara1312/weatherbot/internal/infra/metrics"
	"github.com/Durarara1312/weatherbot/internal/infra/queue"
	"github.com/Durarara1312/weatherbot/internal/usecase/broadcast"
	"github.com/Durarara1312/weatherbot/internal/usecase/dialog"
	"github.com/Durarara1312/weatherbot/internal/usecase/report"
	"github.com/Durarara1312/weatherbot/internal/usecase/stats"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("не удалось применить миграции")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	states := statestore.NewRedisStates(redisClient)

	broadcastQueue, err := queue.NewRabbitBroadcastQueue(cfg.AMQPURL, cfg.Queues.Broadcast)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к очереди")
	}
	defer broadcastQueue.Close()

	weatherCache := cache.NewRedis(redisClient)
	provider := openweather.NewCachedProvider(
		openweather.NewClient(cfg.Weather.BaseURL, cfg.Weather.APIKey),
		weatherCache,
		time.Duration(cfg.Limits.WeatherCacheTTL)*time.Minute,
		logger,
	)
	loc := i18n.MustNew()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	messenger := bot.NewMessenger(botAPI, logger)

	reportUC := report.NewService(provider, repoAdapter, loc)
	dialogUC := dialog.NewService(repoAdapter, repoAdapter, states, provider, loc)
	statsUC := stats.NewService(repoAdapter, repoAdapter, repoAdapter, repoAdapter, loc)
	broadcastUC := broadcast.NewService(broadcastQueue, repoAdapter, messenger, loc, logger, cfg.Limits.BroadcastWorkers)

	handler := bot.NewHandler(botAPI, logger, repoAdapter, repoAdapter, repoAdapter, messenger, dialogUC, reportUC, statsUC, broadcastUC, loc, cfg.Telegram.AdminChatID)

	metrics.MustRegister(prometheus.DefaultRegisterer)
	metrics.StartServer(ctx, logger, cfg.MetricsAddr)

	if cfg.Telegram.WebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("некорректный адрес вебхука")
		}
		if _, err := botAPI.Request(wh); err != nil {
			logger.Fatal().Err(err).Msg("не удалось установить вебхук")
		}
	}

	srv := httpinfra.NewServer(logger)
	srv.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handler.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка бота")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

var _ domain.SubscriptionRepo = (*repo.Postgres)(nil)
var _ domain.SettingsRepo = (*repo.Postgres)(nil)
var _ domain.StatsRepo = (*repo.Postgres)(nil)
var _ domain.HistoryRepo = (*repo.Postgres)(nil)
var _ domain.StateRepo = (*statestore.RedisStates)(nil)
var _ domain.BroadcastQueue = (*queue.RabbitBroadcastQueue)(nil)
