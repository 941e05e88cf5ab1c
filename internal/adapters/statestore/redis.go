package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Durarara1312/weatherbot/internal/domain"
	"github.com/Durarara1312/weatherbot/internal/infra/metrics"
)

const stateTTL = time.Hour

// RedisStates хранит состояния диалогов в Redis и переживает рестарты бота.
type RedisStates struct {
	client *redis.Client
}

var _ domain.StateRepo = (*RedisStates)(nil)

// NewRedisStates создаёт хранилище состояний.
func NewRedisStates(client *redis.Client) *RedisStates {
	return &RedisStates{client: client}
}

func stateKey(chatID int64) string {
	return "state:" + strconv.FormatInt(chatID, 10)
}

// Get возвращает состояние диалога. Отсутствие ключа — IdleState.
func (s *RedisStates) Get(ctx context.Context, chatID int64) (domain.ConversationState, error) {
	start := time.Now()
	data, err := s.client.Get(ctx, stateKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveNetworkRequest("redis", "state_get", "state", start, nil)
		return domain.IdleState(), nil
	}
	metrics.ObserveNetworkRequest("redis", "state_get", "state", start, err)
	if err != nil {
		return domain.ConversationState{}, fmt.Errorf("чтение состояния: %w", err)
	}
	var state domain.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.ConversationState{}, fmt.Errorf("разбор состояния: %w", err)
	}
	return state, nil
}

// Set сохраняет состояние диалога с TTL.
func (s *RedisStates) Set(ctx context.Context, chatID int64, state domain.ConversationState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("сериализация состояния: %w", err)
	}
	start := time.Now()
	err = s.client.Set(ctx, stateKey(chatID), payload, stateTTL).Err()
	metrics.ObserveNetworkRequest("redis", "state_set", "state", start, err)
	return err
}

// Clear удаляет состояние диалога.
func (s *RedisStates) Clear(ctx context.Context, chatID int64) error {
	start := time.Now()
	err := s.client.Del(ctx, stateKey(chatID)).Err()
	metrics.ObserveNetworkRequest("redis", "state_clear", "state", start, err)
	return err
}
