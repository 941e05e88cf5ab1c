package dialog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Durarara1312/weatherbot/internal/domain"
	"github.com/Durarara1312/weatherbot/internal/i18n"
)

// Service реализует пошаговые диалоги: подписка, смена города и времени,
// приём отзывов. Состояние хранится в StateRepo и мутируется только здесь.
type Service struct {
	subs     domain.SubscriptionRepo
	stats    domain.StatsRepo
	states   domain.StateRepo
	provider domain.WeatherProvider
	loc      *i18n.Localizer

	locks [lockStripes]sync.Mutex
}

// Число полос фиксировано, чтобы набор мьютексов не рос вместе с
// числом пользователей. Коллизия полос лишь сериализует два чата.
const lockStripes = 64

// Result — ответ пользователю и, при наличии, пересылка администратору.
type Result struct {
	Reply        string
	AdminForward string
}

// NewService создаёт сервис диалогов.
func NewService(subs domain.SubscriptionRepo, stats domain.StatsRepo, states domain.StateRepo, provider domain.WeatherProvider, loc *i18n.Localizer) *Service {
	return &Service{
		subs:     subs,
		stats:    stats,
		states:   states,
		provider: provider,
		loc:      loc,
	}
}

// userLock сериализует обработку сообщений одного пользователя,
// чтобы чтение и запись состояния не гонялись между апдейтами.
func (s *Service) userLock(chatID int64) *sync.Mutex {
	return &s.locks[uint64(chatID)%lockStripes]
}

// StartSubscribe запускает оформление подписки. Неактивная подписка
// с сохранёнными городом и временем включается без диалога.
func (s *Service) StartSubscribe(ctx context.Context, sub domain.Subscription) (string, error) {
	if sub.Status == domain.StatusActive {
		return s.loc.Text(sub.Language, "already_subscribed", nil), nil
	}
	if sub.City != "" && sub.DailyTime != "" {
		if err := s.subs.SetStatus(sub.ChatID, domain.StatusActive); err != nil {
			return "", fmt.Errorf("включение подписки: %w", err)
		}
		return s.loc.Text(sub.Language, "reactivated", map[string]string{"city": sub.City, "time": sub.DailyTime}), nil
	}
	state := domain.ConversationState{Step: domain.StepAwaitingCity, Purpose: domain.PurposeSubscribe}
	if err := s.states.Set(ctx, sub.ChatID, state); err != nil {
		return "", fmt.Errorf("сохранение состояния: %w", err)
	}
	return s.loc.Text(sub.Language, "ask_city", nil), nil
}

// StartChangeCity запускает смену города активной подписки.
func (s *Service) StartChangeCity(ctx context.Context, sub domain.Subscription) (string, error) {
	if sub.Status != domain.StatusActive {
		return s.loc.Text(sub.Language, "not_subscribed", nil), nil
	}
	state := domain.ConversationState{Step: domain.StepAwaitingCity, Purpose: domain.PurposeChangeCity}
	if err := s.states.Set(ctx, sub.ChatID, state); err != nil {
		return "", fmt.Errorf("сохранение состояния: %w", err)
	}
	return s.loc.Text(sub.Language, "ask_city_change", nil), nil
}

// StartChangeTime запускает смену времени доставки активной подписки.
func (s *Service) StartChangeTime(ctx context.Context, sub domain.Subscription) (string, error) {
	if sub.Status != domain.StatusActive {
		return s.loc.Text(sub.Language, "not_subscribed", nil), nil
	}
	state := domain.ConversationState{Step: domain.StepAwaitingTime, Purpose: domain.PurposeChangeTime}
	if err := s.states.Set(ctx, sub.ChatID, state); err != nil {
		return "", fmt.Errorf("сохранение состояния: %w", err)
	}
	return s.loc.Text(sub.Language, "ask_time_change", nil), nil
}

// StartFeedback запускает приём отзыва.
func (s *Service) StartFeedback(ctx context.Context, sub domain.Subscription) (string, error) {
	state := domain.ConversationState{Step: domain.StepAwaitingFeedback}
	if err := s.states.Set(ctx, sub.ChatID, state); err != nil {
		return "", fmt.Errorf("сохранение состояния: %w", err)
	}
	return s.loc.Text(sub.Language, "feedback_prompt", nil), nil
}

// Abandon сбрасывает устаревший диалог. Вызывается перед обработкой
// любой команды.
func (s *Service) Abandon(ctx context.Context, chatID int64) error {
	return s.states.Clear(ctx, chatID)
}

// HandleText обрабатывает свободный текст. Второй результат сообщает,
// был ли текст потреблён активным диалогом.
func (s *Service) HandleText(ctx context.Context, sub domain.Subscription, text string) (Result, bool, error) {
	lock := s.userLock(sub.ChatID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.states.Get(ctx, sub.ChatID)
	if err != nil {
		return Result{}, false, fmt.Errorf("чтение состояния: %w", err)
	}

	trimmed := strings.TrimSpace(text)
	switch state.Step {
	case domain.StepAwaitingCity:
		return s.handleCity(ctx, sub, state, trimmed)
	case domain.StepAwaitingTime:
		return s.handleTime(ctx, sub, state, trimmed)
	case domain.StepAwaitingFeedback:
		return s.handleFeedback(ctx, sub, trimmed)
	default:
		return Result{}, false, nil
	}
}

func (s *Service) handleCity(ctx context.Context, sub domain.Subscription, state domain.ConversationState, city string) (Result, bool, error) {
	if city == "" {
		return Result{Reply: s.loc.Text(sub.Language, "ask_city", nil)}, true, nil
	}

	snap, err := s.provider.Current(ctx, city)
	if err != nil {
		if clearErr := s.states.Clear(ctx, sub.ChatID); clearErr != nil {
			return Result{}, true, fmt.Errorf("сброс состояния: %w", clearErr)
		}
		if errors.Is(err, domain.ErrCityNotFound) {
			return Result{Reply: s.loc.Text(sub.Language, "city_not_found", nil)}, true, nil
		}
		return Result{Reply: s.loc.Text(sub.Language, "weather_error", nil)}, true, nil
	}
	resolved := snap.City
	if resolved == "" {
		resolved = city
	}

	switch state.Purpose {
	case domain.PurposeChangeCity:
		if _, err := s.subs.Upsert(sub.ChatID, domain.SubscriptionPatch{City: &resolved}); err != nil {
			return Result{}, true, fmt.Errorf("обновление города: %w", err)
		}
		if err := s.stats.IncCityChanges(sub.ChatID); err != nil {
			return Result{}, true, fmt.Errorf("счётчик смен города: %w", err)
		}
		if err := s.states.Clear(ctx, sub.ChatID); err != nil {
			return Result{}, true, fmt.Errorf("сброс состояния: %w", err)
		}
		return Result{Reply: s.loc.Text(sub.Language, "city_updated", map[string]string{"city": resolved})}, true, nil
	default:
		next := domain.ConversationState{
			Step:        domain.StepAwaitingTime,
			Purpose:     domain.PurposeSubscribe,
			PendingCity: resolved,
		}
		if err := s.states.Set(ctx, sub.ChatID, next); err != nil {
			return Result{}, true, fmt.Errorf("сохранение состояния: %w", err)
		}
		return Result{Reply: s.loc.Text(sub.Language, "ask_time", map[string]string{"city": resolved})}, true, nil
	}
}

func (s *Service) handleTime(ctx context.Context, sub domain.Subscription, state domain.ConversationState, text string) (Result, bool, error) {
	normalized, err := domain.NormalizeClock(text)
	if err != nil {
		// некорректное время не сбрасывает диалог
		return Result{Reply: s.loc.Text(sub.Language, "invalid_time", nil)}, true, nil
	}

	switch state.Purpose {
	case domain.PurposeChangeTime:
		if _, err := s.subs.Upsert(sub.ChatID, domain.SubscriptionPatch{DailyTime: &normalized}); err != nil {
			return Result{}, true, fmt.Errorf("обновление времени: %w", err)
		}
		if err := s.stats.IncTimeChanges(sub.ChatID); err != nil {
			return Result{}, true, fmt.Errorf("счётчик смен времени: %w", err)
		}
		if err := s.states.Clear(ctx, sub.ChatID); err != nil {
			return Result{}, true, fmt.Errorf("сброс состояния: %w", err)
		}
		return Result{Reply: s.loc.Text(sub.Language, "time_updated", map[string]string{"time": normalized})}, true, nil
	default:
		active := domain.StatusActive
		patch := domain.SubscriptionPatch{
			City:      &state.PendingCity,
			DailyTime: &normalized,
			Status:    &active,
		}
		if _, err := s.subs.Upsert(sub.ChatID, patch); err != nil {
			return Result{}, true, fmt.Errorf("оформление подписки: %w", err)
		}
		if err := s.states.Clear(ctx, sub.ChatID); err != nil {
			return Result{}, true, fmt.Errorf("сброс состояния: %w", err)
		}
		params := map[string]string{"city": state.PendingCity, "time": normalized}
		return Result{Reply: s.loc.Text(sub.Language, "subscribed", params)}, true, nil
	}
}

func (s *Service) handleFeedback(ctx context.Context, sub domain.Subscription, text string) (Result, bool, error) {
	if text == "" {
		return Result{Reply: s.loc.Text(sub.Language, "feedback_prompt", nil)}, true, nil
	}
	if err := s.states.Clear(ctx, sub.ChatID); err != nil {
		return Result{}, true, fmt.Errorf("сброс состояния: %w", err)
	}
	author := sub.Username
	if author == "" {
		author = strconv.FormatInt(sub.ChatID, 10)
	}
	forward := s.loc.Text("ru", "feedback_from", map[string]string{"user": author, "text": text})
	return Result{
		Reply:        s.loc.Text(sub.Language, "feedback_thanks", nil),
		AdminForward: forward,
	}, true, nil
}
