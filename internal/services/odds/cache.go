// Package odds кэш снимка фида коэффициентов.
//
// Снимок считается свежим, пока его возраст меньше TTL. Устаревший снимок
// обновляется одним запросом к фиду на всех конкурентных вызывающих; при
// ошибке фида отдаётся прежний снимок, даже просроченный.
package odds

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/magabrotheeeer/odds-notifier/internal/lib/clock"
	"github.com/magabrotheeeer/odds-notifier/internal/lib/sl"
	"github.com/magabrotheeeer/odds-notifier/internal/metrics"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

const refreshKey = "refresh"

// Fetcher источник свежего снимка.
type Fetcher interface {
	FetchMatches(ctx context.Context) ([]models.Match, error)
}

// SnapshotStore внешнее хранилище последнего удачного снимка.
type SnapshotStore interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Cache держит последний удачный снимок фида.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	clock   clock.Clock
	log     *slog.Logger
	metrics *metrics.Metrics

	store    SnapshotStore
	storeKey string

	mu        sync.RWMutex
	matches   []models.Match
	fetchedAt time.Time
	loaded    bool

	group singleflight.Group
}

// Option настраивает кэш.
type Option func(*Cache)

// WithSnapshotStore включает сохранение снимка во внешнем хранилище под ключом key.
func WithSnapshotStore(store SnapshotStore, key string) Option {
	return func(c *Cache) {
		c.store = store
		c.storeKey = key
	}
}

// New создаёт кэш со свежестью ttl.
func New(fetcher Fetcher, ttl time.Duration, clk clock.Clock, log *slog.Logger, m *metrics.Metrics, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		clock:   clk,
		log:     log,
		metrics: m,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot возвращает снимок. Никогда не возвращает ошибку: если фид
// ни разу не ответил успешно, результат пустой.
func (c *Cache) Snapshot(ctx context.Context) []models.Match {
	if matches, fresh := c.current(); fresh {
		return matches
	}

	// Обновление не зависит от отмены первого вызывающего: его результат
	// разделяют все ожидающие.
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return nil, c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ch:
	case <-ctx.Done():
	}

	matches, _ := c.current()
	return matches
}

// Warm загружает сохранённый снимок, если в памяти ещё ничего нет.
func (c *Cache) Warm(ctx context.Context) {
	const op = "odds.Warm"
	if c.store == nil {
		return
	}

	var snap models.Snapshot
	found, err := c.store.Get(ctx, c.storeKey, &snap)
	if err != nil {
		c.log.Warn("failed to load persisted snapshot", slog.String("op", op), sl.Err(err))
		return
	}
	if !found {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return
	}
	c.matches = snap.Matches
	c.fetchedAt = snap.FetchedAt
	c.loaded = true
	c.log.Info("odds cache warmed",
		slog.String("op", op),
		slog.Int("matches", len(snap.Matches)),
		slog.Time("fetched_at", snap.FetchedAt),
	)
}

// FetchedAt момент последнего удачного обновления, нулевой если его не было.
func (c *Cache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

func (c *Cache) current() ([]models.Match, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	matches := slices.Clone(c.matches)
	if matches == nil {
		matches = []models.Match{}
	}
	fresh := c.loaded && c.clock.Now().Sub(c.fetchedAt) < c.ttl
	return matches, fresh
}

func (c *Cache) refresh(ctx context.Context) error {
	const op = "odds.refresh"
	log := c.log.With(slog.String("op", op))

	if _, fresh := c.current(); fresh {
		return nil
	}

	matches, err := c.fetcher.FetchMatches(ctx)
	if err != nil {
		c.metrics.FeedFetch(false)
		c.mu.RLock()
		loaded := c.loaded
		c.mu.RUnlock()
		if loaded {
			c.metrics.StaleServe()
		}
		log.Warn("odds feed unavailable, serving cached snapshot", sl.Err(err), slog.Bool("has_cache", loaded))
		return err
	}
	c.metrics.FeedFetch(true)

	now := c.clock.Now()
	c.mu.Lock()
	c.matches = matches
	c.fetchedAt = now
	c.loaded = true
	c.mu.Unlock()

	log.Info("odds snapshot refreshed", slog.Int("matches", len(matches)))

	if c.store != nil {
		snap := models.Snapshot{Matches: matches, FetchedAt: now}
		if err := c.store.Set(ctx, c.storeKey, snap, 0); err != nil {
			log.Warn("failed to persist snapshot", sl.Err(err))
		}
	}
	return nil
}
