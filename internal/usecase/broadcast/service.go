package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Durarara1312/weatherbot/internal/domain"
	"github.com/Durarara1312/weatherbot/internal/i18n"
	"github.com/Durarara1312/weatherbot/internal/infra/metrics"
)

// Service ставит задачи массовой рассылки в очередь и выполняет их.
type Service struct {
	queue     domain.BroadcastQueue
	subs      domain.SubscriptionRepo
	messenger domain.Messenger
	loc       *i18n.Localizer
	log       zerolog.Logger
	workers   int
}

// Report — итог одной рассылки.
type Report struct {
	Delivered int
	Failed    int
}

// NewService создаёт сервис рассылки.
func NewService(queue domain.BroadcastQueue, subs domain.SubscriptionRepo, messenger domain.Messenger, loc *i18n.Localizer, log zerolog.Logger, workers int) *Service {
	if workers <= 0 {
		workers = 8
	}
	return &Service{queue: queue, subs: subs, messenger: messenger, loc: loc, log: log, workers: workers}
}

// Enqueue публикует задачу рассылки от имени администратора.
func (s *Service) Enqueue(ctx context.Context, requestedBy int64, text string) error {
	job := domain.BroadcastJob{
		ID:          uuid.NewString(),
		Text:        text,
		RequestedBy: requestedBy,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("постановка рассылки: %w", err)
	}
	return nil
}

// Run блокирующе обрабатывает задачи рассылки до отмены контекста.
func (s *Service) Run(ctx context.Context) error {
	for {
		job, err := s.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("чтение очереди: %w", err)
		}
		report := s.Process(ctx, job)
		s.notifyRequester(ctx, job, report)
	}
}

// Process рассылает текст всем активным подписчикам пулом воркеров.
// Ошибка одного получателя не прерывает рассылку.
func (s *Service) Process(ctx context.Context, job domain.BroadcastJob) Report {
	subs, err := s.subs.ListActive()
	if err != nil {
		s.log.Error().Err(err).Str("job", job.ID).Msg("broadcast: не удалось получить подписчиков")
		return Report{}
	}

	var (
		mu     sync.Mutex
		report Report
		wg     sync.WaitGroup
		tasks  = make(chan domain.Subscription)
	)

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range tasks {
				err := s.messenger.Send(ctx, sub.ChatID, job.Text)
				if err != nil {
					if errors.Is(err, domain.ErrRecipientUnreachable) {
						if delErr := s.subs.Delete(sub.ChatID); delErr != nil {
							s.log.Error().Err(delErr).Int64("chat", sub.ChatID).Msg("broadcast: не удалось удалить подписку")
						}
					} else {
						s.log.Error().Err(err).Int64("chat", sub.ChatID).Msg("broadcast: не удалось отправить сообщение")
					}
					metrics.BroadcastMessagesTotal.WithLabelValues("error").Inc()
					mu.Lock()
					report.Failed++
					mu.Unlock()
					continue
				}
				metrics.BroadcastMessagesTotal.WithLabelValues("success").Inc()
				mu.Lock()
				report.Delivered++
				mu.Unlock()
			}
		}()
	}

	for _, sub := range subs {
		tasks <- sub
	}
	close(tasks)
	wg.Wait()

	s.log.Info().
		Str("job", job.ID).
		Int("delivered", report.Delivered).
		Int("failed", report.Failed).
		Msg("broadcast: рассылка завершена")
	return report
}

func (s *Service) notifyRequester(ctx context.Context, job domain.BroadcastJob, report Report) {
	if job.RequestedBy == 0 {
		return
	}
	text := s.loc.Text("ru", "broadcast_report", map[string]string{
		"delivered": strconv.Itoa(report.Delivered),
		"failed":    strconv.Itoa(report.Failed),
	})
	if err := s.messenger.Send(ctx, job.RequestedBy, text); err != nil {
		s.log.Error().Err(err).Int64("chat", job.RequestedBy).Msg("broadcast: не удалось отправить отчёт")
	}
}
