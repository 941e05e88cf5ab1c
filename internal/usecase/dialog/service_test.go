package dialog

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Durarara1312/weatherbot/internal/domain"
	"github.com/Durarara1312/weatherbot/internal/i18n"
)

type stubSubs struct {
	subs    map[int64]domain.Subscription
	patches []domain.SubscriptionPatch
}

func newStubSubs() *stubSubs {
	return &stubSubs{subs: make(map[int64]domain.Subscription)}
}

func (s *stubSubs) Upsert(chatID int64, patch domain.SubscriptionPatch) (domain.Subscription, error) {
	s.patches = append(s.patches, patch)
	sub := s.subs[chatID]
	sub.ChatID = chatID
	if patch.City != nil {
		sub.City = *patch.City
	}
	if patch.DailyTime != nil {
		sub.DailyTime = *patch.DailyTime
	}
	if patch.Status != nil {
		sub.Status = *patch.Status
	}
	if patch.Language != nil {
		sub.Language = *patch.Language
	}
	s.subs[chatID] = sub
	return sub, nil
}

func (s *stubSubs) Get(chatID int64) (domain.Subscription, error) {
	sub, ok := s.subs[chatID]
	if !ok {
		return domain.Subscription{}, domain.ErrNotFound
	}
	return sub, nil
}

func (s *stubSubs) SetStatus(chatID int64, status domain.SubscriptionStatus) error {
	sub := s.subs[chatID]
	sub.Status = status
	s.subs[chatID] = sub
	return nil
}

func (s *stubSubs) Delete(chatID int64) error {
	delete(s.subs, chatID)
	return nil
}

func (s *stubSubs) ListScheduled() ([]domain.Subscription, error)      { return nil, nil }
func (s *stubSubs) ListActive() ([]domain.Subscription, error)         { return nil, nil }
func (s *stubSubs) ListAll(int, int) ([]domain.Subscription, error)    { return nil, nil }
func (s *stubSubs) CountAll() (int, error)                             { return len(s.subs), nil }
func (s *stubSubs) Filter(map[string]string) ([]domain.Subscription, error) { return nil, nil }

type stubStats struct {
	cityChanges int
	timeChanges int
}

func (s *stubStats) IncTotalRequests(int64) error   { return nil }
func (s *stubStats) IncWeatherRequests(int64) error { return nil }
func (s *stubStats) IncCityChanges(int64) error {
	s.cityChanges++
	return nil
}
func (s *stubStats) IncTimeChanges(int64) error {
	s.timeChanges++
	return nil
}
func (s *stubStats) GetStats(chatID int64) (domain.UserStats, error) {
	return domain.UserStats{ChatID: chatID}, nil
}
func (s *stubStats) CountSubscribers() (int, error)            { return 0, nil }
func (s *stubStats) CountNewSince(time.Time) (int, error)      { return 0, nil }
func (s *stubStats) CityCounts() ([]domain.CityCount, error)   { return nil, nil }
func (s *stubStats) SumTotalRequests() (int64, error)          { return 0, nil }

type memStates struct {
	states map[int64]domain.ConversationState
}

func newMemStates() *memStates {
	return &memStates{states: make(map[int64]domain.ConversationState)}
}

func (m *memStates) Get(_ context.Context, chatID int64) (domain.ConversationState, error) {
	state, ok := m.states[chatID]
	if !ok {
		return domain.IdleState(), nil
	}
	return state, nil
}

func (m *memStates) Set(_ context.Context, chatID int64, state domain.ConversationState) error {
	m.states[chatID] = state
	return nil
}

func (m *memStates) Clear(_ context.Context, chatID int64) error {
	delete(m.states, chatID)
	return nil
}

type stubProvider struct {
	known map[string]string
}

func (p *stubProvider) Current(_ context.Context, city string) (domain.Snapshot, error) {
	resolved, ok := p.known[strings.ToLower(city)]
	if !ok {
		return domain.Snapshot{}, domain.ErrCityNotFound
	}
	return domain.Snapshot{City: resolved, TemperatureC: 10}, nil
}

func (p *stubProvider) Forecast(context.Context, string, time.Time) (domain.Snapshot, error) {
	return domain.Snapshot{}, domain.ErrForecastUnavailable
}

func newService(subs *stubSubs, stats *stubStats, states *memStates) *Service {
	provider := &stubProvider{known: map[string]string{"казань": "Казань", "london": "London"}}
	return NewService(subs, stats, states, provider, i18n.MustNew())
}

func TestSubscribeFlow(t *testing.T) {
	ctx := context.Background()
	subs := newStubSubs()
	states := newMemStates()
	svc := newService(subs, &stubStats{}, states)

	sub := domain.Subscription{ChatID: 7, Language: "ru", Status: domain.StatusInactive}
	subs.subs[7] = sub

	reply, err := svc.StartSubscribe(ctx, sub)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply, "город") {
		t.Fatalf("ожидали запрос города, получили %q", reply)
	}

	res, consumed, err := svc.HandleText(ctx, sub, "казань")
	if err != nil || !consumed {
		t.Fatalf("ожидали обработку города: consumed=%v err=%v", consumed, err)
	}
	if !strings.Contains(res.Reply, "Казань") {
		t.Fatalf("ожидали подтверждение города, получили %q", res.Reply)
	}

	res, consumed, err = svc.HandleText(ctx, sub, "8:30")
	if err != nil || !consumed {
		t.Fatalf("ожидали обработку времени: consumed=%v err=%v", consumed, err)
	}
	if !strings.Contains(res.Reply, "08:30") {
		t.Fatalf("ожидали нормализованное время в ответе, получили %q", res.Reply)
	}

	saved := subs.subs[7]
	if saved.Status != domain.StatusActive || saved.City != "Казань" || saved.DailyTime != "08:30" {
		t.Fatalf("ожидали активную подписку, получили %+v", saved)
	}
	if state, _ := states.Get(ctx, 7); state.Step != domain.StepIdle {
		t.Fatalf("ожидали Idle после подписки, получили %+v", state)
	}
}

func TestInvalidTimeKeepsState(t *testing.T) {
	ctx := context.Background()
	subs := newStubSubs()
	states := newMemStates()
	svc := newService(subs, &stubStats{}, states)

	sub := domain.Subscription{ChatID: 7, Language: "en"}
	states.states[7] = domain.ConversationState{
		Step:        domain.StepAwaitingTime,
		Purpose:     domain.PurposeSubscribe,
		PendingCity: "London",
	}

	res, consumed, err := svc.HandleText(ctx, sub, "24:00")
	if err != nil || !consumed {
		t.Fatalf("ожидали обработку: consumed=%v err=%v", consumed, err)
	}
	if !strings.Contains(res.Reply, "HH:MM") {
		t.Fatalf("ожидали сообщение о формате, получили %q", res.Reply)
	}
	if state, _ := states.Get(ctx, 7); state.Step != domain.StepAwaitingTime || state.PendingCity != "London" {
		t.Fatalf("состояние не должно меняться: %+v", state)
	}
}

func TestUnknownCityAbortsToIdle(t *testing.T) {
	ctx := context.Background()
	subs := newStubSubs()
	states := newMemStates()
	svc := newService(subs, &stubStats{}, states)

	sub := domain.Subscription{ChatID: 7, Language: "en"}
	states.states[7] = domain.ConversationState{Step: domain.StepAwaitingCity, Purpose: domain.PurposeSubscribe}

	res, consumed, err := svc.HandleText(ctx, sub, "Atlantis")
	if err != nil || !consumed {
		t.Fatalf("ожидали обработку: consumed=%v err=%v", consumed, err)
	}
	if !strings.Contains(res.Reply, "could not find") {
		t.Fatalf("ожидали сообщение о неизвестном городе, получили %q", res.Reply)
	}
	if state, _ := states.Get(ctx, 7); state.Step != domain.StepIdle {
		t.Fatalf("ожидали Idle, получили %+v", state)
	}
}

func TestChangeCityIncrementsCounter(t *testing.T) {
	ctx := context.Background()
	subs := newStubSubs()
	stats := &stubStats{}
	states := newMemStates()
	svc := newService(subs, stats, states)

	sub := domain.Subscription{ChatID: 7, Language: "en", Status: domain.StatusActive, City: "London", DailyTime: "09:00"}
	subs.subs[7] = sub

	if _, err := svc.StartChangeCity(ctx, sub); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, _, err := svc.HandleText(ctx, sub, "казань"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.cityChanges != 1 {
		t.Fatalf("ожидали инкремент счётчика смен города, получили %d", stats.cityChanges)
	}
	if subs.subs[7].City != "Казань" {
		t.Fatalf("ожидали новый город, получили %q", subs.subs[7].City)
	}
}

func TestReactivateWithoutDialog(t *testing.T) {
	ctx := context.Background()
	subs := newStubSubs()
	states := newMemStates()
	svc := newService(subs, &stubStats{}, states)

	sub := domain.Subscription{ChatID: 7, Language: "en", Status: domain.StatusInactive, City: "London", DailyTime: "09:00"}
	subs.subs[7] = sub

	reply, err := svc.StartSubscribe(ctx, sub)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(reply, "London") || !strings.Contains(reply, "09:00") {
		t.Fatalf("ожидали реактивацию с прежними настройками, получили %q", reply)
	}
	if subs.subs[7].Status != domain.StatusActive {
		t.Fatalf("ожидали активный статус")
	}
	if state, _ := states.Get(ctx, 7); state.Step != domain.StepIdle {
		t.Fatalf("диалог не должен запускаться: %+v", state)
	}
}

func TestFeedbackForwardsToAdmin(t *testing.T) {
	ctx := context.Background()
	subs := newStubSubs()
	states := newMemStates()
	svc := newService(subs, &stubStats{}, states)

	sub := domain.Subscription{ChatID: 7, Language: "en", Username: "alex"}
	if _, err := svc.StartFeedback(ctx, sub); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	res, consumed, err := svc.HandleText(ctx, sub, "great bot")
	if err != nil || !consumed {
		t.Fatalf("ожидали обработку: consumed=%v err=%v", consumed, err)
	}
	if !strings.Contains(res.AdminForward, "alex") || !strings.Contains(res.AdminForward, "great bot") {
		t.Fatalf("ожидали пересылку отзыва админу, получили %q", res.AdminForward)
	}
}

func TestIdleTextNotConsumed(t *testing.T) {
	ctx := context.Background()
	svc := newService(newStubSubs(), &stubStats{}, newMemStates())
	_, consumed, err := svc.HandleText(ctx, domain.Subscription{ChatID: 7}, "hello")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if consumed {
		t.Fatalf("текст в Idle не должен потребляться диалогом")
	}
}

func TestUserLockBounded(t *testing.T) {
	svc := newService(newStubSubs(), &stubStats{}, newMemStates())

	seen := make(map[*sync.Mutex]struct{})
	for chatID := int64(0); chatID < 10_000; chatID++ {
		seen[svc.userLock(chatID)] = struct{}{}
	}
	if len(seen) > lockStripes {
		t.Fatalf("число мьютексов не должно расти с числом чатов: %d", len(seen))
	}
	if svc.userLock(42) != svc.userLock(42) {
		t.Fatalf("один чат должен получать один и тот же мьютекс")
	}
}
