package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Durarara1312/weatherbot/internal/domain"
	"github.com/Durarara1312/weatherbot/internal/i18n"
	"github.com/Durarara1312/weatherbot/internal/infra/metrics"
	"github.com/Durarara1312/weatherbot/internal/usecase/report"
)

// Service рассылает ежедневную погоду. Каждый тик независим:
// состояние между тиками не переносится, пропущенные минуты не навёрстываются.
type Service struct {
	subs        domain.SubscriptionRepo
	history     domain.HistoryRepo
	reports     *report.Service
	messenger   domain.Messenger
	loc         *i18n.Localizer
	log         zerolog.Logger
	userTimeout time.Duration
}

// TickReport — итог одного минутного тика.
type TickReport struct {
	Matched   int
	Delivered int
	Skipped   int
	Removed   int
}

// NewService создаёт сервис рассылки.
func NewService(subs domain.SubscriptionRepo, history domain.HistoryRepo, reports *report.Service, messenger domain.Messenger, loc *i18n.Localizer, log zerolog.Logger, userTimeout time.Duration) *Service {
	if userTimeout <= 0 {
		userTimeout = 30 * time.Second
	}
	return &Service{
		subs:        subs,
		history:     history,
		reports:     reports,
		messenger:   messenger,
		loc:         loc,
		log:         log,
		userTimeout: userTimeout,
	}
}

// RunTick обрабатывает одну минуту: выбирает подписки с совпавшим временем
// и доставляет погоду каждому пользователю в отдельной горутине.
// Ошибка одного пользователя никогда не прерывает остальных.
func (s *Service) RunTick(ctx context.Context, now time.Time) (TickReport, error) {
	metrics.DeliveryTicksTotal.Inc()
	started := time.Now()
	defer func() {
		metrics.DeliveryTickSeconds.Observe(time.Since(started).Seconds())
	}()

	nowHHMM := now.Format("15:04")

	subs, err := s.subs.ListScheduled()
	if err != nil {
		return TickReport{}, err
	}

	var due []domain.Subscription
	for _, sub := range subs {
		normalized, err := domain.NormalizeClock(sub.DailyTime)
		if err != nil {
			s.log.Warn().Int64("chat", sub.ChatID).Str("time", sub.DailyTime).Msg("scheduler: некорректное время подписки")
			continue
		}
		if normalized == nowHHMM {
			due = append(due, sub)
		}
	}

	var (
		mu     sync.Mutex
		tick   = TickReport{Matched: len(due)}
		wg     sync.WaitGroup
		record = func(update func(*TickReport)) {
			mu.Lock()
			update(&tick)
			mu.Unlock()
		}
	)

	for _, sub := range due {
		wg.Add(1)
		go func(sub domain.Subscription) {
			defer wg.Done()
			userCtx, cancel := context.WithTimeout(ctx, s.userTimeout)
			defer cancel()

			switch s.deliver(userCtx, sub) {
			case outcomeDelivered:
				metrics.ObserveDelivery("delivered")
				record(func(t *TickReport) { t.Delivered++ })
			case outcomeRemoved:
				metrics.ObserveDelivery("removed")
				record(func(t *TickReport) { t.Removed++ })
			default:
				metrics.ObserveDelivery("skipped")
				record(func(t *TickReport) { t.Skipped++ })
			}
		}(sub)
	}
	wg.Wait()

	s.log.Info().
		Str("minute", nowHHMM).
		Int("matched", tick.Matched).
		Int("delivered", tick.Delivered).
		Int("skipped", tick.Skipped).
		Int("removed", tick.Removed).
		Msg("scheduler: тик завершён")
	return tick, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeDelivered
	outcomeRemoved
)

func (s *Service) deliver(ctx context.Context, sub domain.Subscription) outcome {
	text, snap, err := s.reports.BuildCurrent(ctx, sub.ChatID, sub.City, sub.Language)
	if err != nil {
		s.log.Error().Err(err).Int64("chat", sub.ChatID).Str("city", sub.City).Msg("scheduler: не удалось получить погоду")
		failure := s.loc.Text(sub.Language, "weather_error", nil)
		if sendErr := s.messenger.Send(ctx, sub.ChatID, failure); sendErr != nil && errors.Is(sendErr, domain.ErrRecipientUnreachable) {
			return s.removeUnreachable(sub)
		}
		return outcomeSkipped
	}

	message := s.loc.Text(sub.Language, "daily_weather_header", nil) + "\n\n" + text
	if err := s.messenger.Send(ctx, sub.ChatID, message); err != nil {
		if errors.Is(err, domain.ErrRecipientUnreachable) {
			return s.removeUnreachable(sub)
		}
		s.log.Error().Err(err).Int64("chat", sub.ChatID).Msg("scheduler: не удалось отправить сообщение")
		return outcomeSkipped
	}

	entry := domain.WeatherHistoryEntry{
		ChatID:      sub.ChatID,
		City:        snap.City,
		Temperature: snap.TemperatureC,
		Humidity:    snap.HumidityPct,
		Description: snap.Description,
		RecordedAt:  time.Now().UTC(),
	}
	if err := s.history.RecordWeather(entry); err != nil {
		// доставка уже состоялась, журнал не критичен
		s.log.Error().Err(err).Int64("chat", sub.ChatID).Msg("scheduler: не удалось записать историю")
	}
	return outcomeDelivered
}

// removeUnreachable удаляет подписку пользователя, заблокировавшего бота.
func (s *Service) removeUnreachable(sub domain.Subscription) outcome {
	if err := s.subs.Delete(sub.ChatID); err != nil {
		s.log.Error().Err(err).Int64("chat", sub.ChatID).Msg("scheduler: не удалось удалить подписку")
		return outcomeSkipped
	}
	s.log.Info().Int64("chat", sub.ChatID).Msg("scheduler: подписка удалена, получатель недоступен")
	return outcomeRemoved
}
