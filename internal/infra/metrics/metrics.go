package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	DeliveryTicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "delivery_ticks_total",
		Help: "Количество минутных тиков планировщика",
	})
	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deliveries_total",
		Help: "Результаты доставки ежедневной погоды",
	}, []string{"status"})
	DeliveryTickSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "delivery_tick_seconds",
		Help:    "Время обработки одного тика рассылки",
		Buckets: prometheus.DefBuckets,
	})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 25, 30, 45, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	WeatherRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "weather_requests_total",
		Help: "Общее количество запросов погоды",
	})

	WeatherRequestsByUser = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_requests_by_user_total",
		Help: "Количество запросов погоды по пользователям",
	}, []string{"user_id"})

	BroadcastMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_messages_total",
		Help: "Результаты доставки массовой рассылки",
	}, []string{"status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		DeliveryTicksTotal,
		DeliveriesTotal,
		DeliveryTickSeconds,
		BotSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
		WeatherRequestsTotal,
		WeatherRequestsByUser,
		BroadcastMessagesTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncWeatherRequest увеличивает счётчики запросов погоды.
func IncWeatherRequest(chatID int64) {
	WeatherRequestsTotal.Inc()
	WeatherRequestsByUser.WithLabelValues(strconv.FormatInt(chatID, 10)).Inc()
}

// ObserveDelivery записывает результат доставки ежедневной погоды.
func ObserveDelivery(status string) {
	DeliveriesTotal.WithLabelValues(status).Inc()
}
