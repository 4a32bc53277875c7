// Package memory хранилище в памяти процесса. Реализует те же методы,
// что и PostgreSQL, и применяется для локального запуска и тестов.
// Все операции выполняются под одним мьютексом, поэтому мутации
// подписки атомарны.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

// Storage хранилище в памяти.
type Storage struct {
	mu sync.Mutex

	users      map[int64]*models.User
	byExternal map[int64]int64
	nextUserID int64

	subscriptions []*models.Subscription
	payments      map[string]models.Payment

	links      map[string]*models.PaymentLink
	nextLinkID int64

	matches map[string]*models.Match
	stats   map[int64]models.WeeklyStats
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		users:      make(map[int64]*models.User),
		byExternal: make(map[int64]int64),
		payments:   make(map[string]models.Payment),
		links:      make(map[string]*models.PaymentLink),
		matches:    make(map[string]*models.Match),
		stats:      make(map[int64]models.WeeklyStats),
	}
}

func checkCtx(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
		return nil
	}
}

// GetOrCreateUser возвращает пользователя по внешнему id или создаёт его.
func (s *Storage) GetOrCreateUser(ctx context.Context, u models.User) (*models.User, bool, error) {
	const op = "storage.memory.GetOrCreateUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byExternal[u.ExternalID]; ok {
		existing := *s.users[id]
		return &existing, false, nil
	}
	s.nextUserID++
	u.ID = s.nextUserID
	stored := u
	s.users[u.ID] = &stored
	s.byExternal[u.ExternalID] = u.ID
	return &u, true, nil
}

// UserByID ищет пользователя по внутреннему id.
func (s *Storage) UserByID(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.memory.UserByID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	}
	found := *u
	return &found, nil
}

// UserByExternalID ищет пользователя по идентификатору чата.
func (s *Storage) UserByExternalID(ctx context.Context, externalID int64) (*models.User, error) {
	const op = "storage.memory.UserByExternalID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byExternal[externalID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	}
	found := *s.users[id]
	return &found, nil
}

// UserByUsername ищет пользователя по имени без учёта регистра.
func (s *Storage) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.memory.UserByUsername"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *models.User
	for _, u := range s.users {
		if username != "" && strings.EqualFold(u.Username, username) {
			if found == nil || u.ID < found.ID {
				found = u
			}
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	}
	res := *found
	return &res, nil
}

// ConsumeTrial уменьшает остаток пробных поисков, если он больше нуля.
func (s *Storage) ConsumeTrial(ctx context.Context, userID int64) (int, error) {
	const op = "storage.memory.ConsumeTrial"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return 0, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	}
	if u.TrialLeft > 0 {
		u.TrialLeft--
	}
	return u.TrialLeft, nil
}

// CountUsers возвращает число пользователей.
func (s *Storage) CountUsers(ctx context.Context) (int, error) {
	const op = "storage.memory.CountUsers"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

// ActiveSubscription возвращает подписку с end >= now или nil.
func (s *Storage) ActiveSubscription(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	const op = "storage.memory.ActiveSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.activeLocked(userID, now)
	if active == nil {
		return nil, nil
	}
	res := *active
	return &res, nil
}

func (s *Storage) activeLocked(userID int64, now time.Time) *models.Subscription {
	var active *models.Subscription
	for _, sub := range s.subscriptions {
		if sub.UserID != userID || sub.EndDate.Before(now) {
			continue
		}
		if active == nil || sub.EndDate.After(active.EndDate) {
			active = sub
		}
	}
	return active
}

// MutateActiveSubscription атомарно читает активную подписку, применяет fn
// и записывает результат вместе с записью о платеже.
func (s *Storage) MutateActiveSubscription(ctx context.Context, userID int64, now time.Time, fn models.SubscriptionMutation) (*models.Subscription, error) {
	const op = "storage.memory.MutateActiveSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	}

	var current *models.Subscription
	if active := s.activeLocked(userID, now); active != nil {
		cp := *active
		current = &cp
	}

	update, err := fn(current)
	if err != nil {
		return nil, err
	}
	if update == nil || update.Subscription == nil {
		return nil, nil
	}
	if update.Payment != nil {
		if _, applied := s.payments[update.Payment.PaymentRef]; applied {
			return nil, fmt.Errorf("%s: %w", op, models.ErrPaymentApplied)
		}
	}

	next := *update.Subscription
	next.UserID = userID
	if next.ID == 0 {
		next.ID = int64(len(s.subscriptions) + 1)
		stored := next
		s.subscriptions = append(s.subscriptions, &stored)
	} else {
		idx := slices.IndexFunc(s.subscriptions, func(sub *models.Subscription) bool { return sub.ID == next.ID })
		if idx < 0 {
			return nil, fmt.Errorf("%s: subscription %d not found", op, next.ID)
		}
		stored := next
		s.subscriptions[idx] = &stored
	}

	if update.Payment != nil {
		payment := *update.Payment
		payment.SubscriptionID = next.ID
		s.payments[payment.PaymentRef] = payment
	}
	return &next, nil
}

// ActiveSubscribers возвращает пользователей с действующей подпиской.
func (s *Storage) ActiveSubscribers(ctx context.Context, now time.Time) ([]models.User, error) {
	const op = "storage.memory.ActiveSubscribers"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]struct{})
	var users []models.User
	for _, sub := range s.subscriptions {
		if sub.EndDate.Before(now) {
			continue
		}
		if _, ok := seen[sub.UserID]; ok {
			continue
		}
		seen[sub.UserID] = struct{}{}
		users = append(users, *s.users[sub.UserID])
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// ExpiringSubscriptions возвращает подписки с окончанием в [from, to].
func (s *Storage) ExpiringSubscriptions(ctx context.Context, from, to time.Time) ([]models.ExpiringSubscription, error) {
	const op = "storage.memory.ExpiringSubscriptions"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []models.ExpiringSubscription
	for _, sub := range s.subscriptions {
		if sub.EndDate.Before(from) || sub.EndDate.After(to) {
			continue
		}
		res = append(res, models.ExpiringSubscription{User: *s.users[sub.UserID], Subscription: *sub})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Subscription.EndDate.Before(res[j].Subscription.EndDate) })
	return res, nil
}

// CountActiveSubscriptions число подписок с end >= now.
func (s *Storage) CountActiveSubscriptions(ctx context.Context, now time.Time) (int, error) {
	const op = "storage.memory.CountActiveSubscriptions"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, sub := range s.subscriptions {
		if !sub.EndDate.Before(now) {
			count++
		}
	}
	return count, nil
}

// CountSubscriptionsStartedBetween число подписок по тарифам с началом в [from, to].
func (s *Storage) CountSubscriptionsStartedBetween(ctx context.Context, from, to time.Time) (map[models.PlanKind]int, error) {
	const op = "storage.memory.CountSubscriptionsStartedBetween"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.PlanKind]int)
	for _, sub := range s.subscriptions {
		if sub.StartDate.Before(from) || sub.StartDate.After(to) {
			continue
		}
		counts[sub.Plan]++
	}
	return counts, nil
}

// UpsertWeeklyStats сохраняет статистику недели, перезаписывая прежнюю.
func (s *Storage) UpsertWeeklyStats(ctx context.Context, stats models.WeeklyStats) error {
	const op = "storage.memory.UpsertWeeklyStats"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[stats.WeekStart.Unix()] = stats
	return nil
}

// WeeklyStats читает сохранённую статистику недели.
func (s *Storage) WeeklyStats(ctx context.Context, weekStart time.Time) (*models.WeeklyStats, bool, error) {
	const op = "storage.memory.WeeklyStats"
	if err := checkCtx(ctx, op); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.stats[weekStart.Unix()]
	if !ok {
		return nil, false, nil
	}
	return &stats, true, nil
}

// CreatePaymentLink сохраняет новую ссылку. Токен уникален.
func (s *Storage) CreatePaymentLink(ctx context.Context, link models.PaymentLink) (*models.PaymentLink, error) {
	const op = "storage.memory.CreatePaymentLink"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[link.UserID]; !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	}
	if _, exists := s.links[link.Token]; exists {
		return nil, fmt.Errorf("%s: token %s already exists", op, link.Token)
	}
	s.nextLinkID++
	link.ID = s.nextLinkID
	stored := link
	s.links[link.Token] = &stored
	return &link, nil
}

// AttachCheckout сохраняет данные платежа у провайдера.
func (s *Storage) AttachCheckout(ctx context.Context, token string, checkout models.Checkout) error {
	const op = "storage.memory.AttachCheckout"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[token]
	if !ok {
		return fmt.Errorf("%s: %w", op, models.ErrPaymentLinkNotFound)
	}
	link.ProviderPaymentID = checkout.ProviderPaymentID
	link.PaymentURL = checkout.URL
	return nil
}

// PaymentLinkByToken ищет ссылку по токену.
func (s *Storage) PaymentLinkByToken(ctx context.Context, token string) (*models.PaymentLink, error) {
	const op = "storage.memory.PaymentLinkByToken"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[token]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrPaymentLinkNotFound)
	}
	res := *link
	return &res, nil
}

// SettlePaymentLink переводит ссылку в оплаченные. Возвращает nil, если
// ссылки нет или она уже оплачена.
func (s *Storage) SettlePaymentLink(ctx context.Context, token string, now time.Time) (*models.PaymentLink, error) {
	const op = "storage.memory.SettlePaymentLink"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[token]
	if !ok || link.Settled {
		return nil, nil
	}
	settledAt := now
	link.Settled = true
	link.SettledAt = &settledAt
	res := *link
	return &res, nil
}

// UnappliedSettledLinks оплаченные ссылки, платёж по которым ещё не применён к подписке.
func (s *Storage) UnappliedSettledLinks(ctx context.Context) ([]models.PaymentLink, error) {
	const op = "storage.memory.UnappliedSettledLinks"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []models.PaymentLink
	for token, link := range s.links {
		if !link.Settled {
			continue
		}
		if _, applied := s.payments[token]; applied {
			continue
		}
		res = append(res, *link)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// SaveMatch вставляет или обновляет матч, флаг Notified не сбрасывается.
func (s *Storage) SaveMatch(ctx context.Context, m models.Match) (*models.Match, error) {
	const op = "storage.memory.SaveMatch"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.matches[m.ID]; ok {
		m.Notified = existing.Notified
	}
	stored := m
	s.matches[m.ID] = &stored
	return &m, nil
}

// MarkMatchNotified выставляет флаг уведомления.
func (s *Storage) MarkMatchNotified(ctx context.Context, id string) error {
	const op = "storage.memory.MarkMatchNotified"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.matches[id]; ok {
		m.Notified = true
	}
	return nil
}

// Close ничего не делает.
func (s *Storage) Close() error {
	return nil
}
