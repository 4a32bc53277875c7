// Package scheduler периодические задачи сервиса: обновление фида, рассылка
// подходящих матчей, предупреждения об окончании подписки, еженедельный
// отчёт и досписание оплат. Все расписания в UTC.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/magabrotheeeer/odds-notifier/internal/config"
	"github.com/magabrotheeeer/odds-notifier/internal/lib/clock"
	"github.com/magabrotheeeer/odds-notifier/internal/lib/sl"
	"github.com/magabrotheeeer/odds-notifier/internal/metrics"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
	"github.com/magabrotheeeer/odds-notifier/internal/notification"
)

// Имена задач в логах и метриках.
const (
	JobFetch         = "fetch_odds"
	JobNotifyMatches = "notify_matches"
	JobExpiryWarning = "expiry_warning"
	JobWeeklyStats   = "weekly_stats"
	JobReconcile     = "reconcile_payments"
)

// SnapshotSource кэш фида.
type SnapshotSource interface {
	Snapshot(ctx context.Context) []models.Match
}

// Matcher отбор матчей для рассылки.
type Matcher interface {
	FindQualifying(ctx context.Context, snapshot []models.Match) ([]models.Match, error)
	MarkNotified(ctx context.Context, id string) error
}

// Repository выборки получателей.
type Repository interface {
	ActiveSubscribers(ctx context.Context, now time.Time) ([]models.User, error)
	ExpiringSubscriptions(ctx context.Context, from, to time.Time) ([]models.ExpiringSubscription, error)
}

// Notifier исходящие уведомления.
type Notifier interface {
	NotifyMatch(ctx context.Context, recipient int64, match models.Match, isNew bool) error
	NotifyText(ctx context.Context, recipient int64, text string) error
}

// StatsService расчёт еженедельной статистики.
type StatsService interface {
	Weekly(ctx context.Context) (*models.WeeklyStats, error)
}

// Reconciler досписание оплаченных, но не применённых ссылок.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// Deps зависимости планировщика.
type Deps struct {
	Odds       SnapshotSource
	Matcher    Matcher
	Repo       Repository
	Notifier   Notifier
	Stats      StatsService
	Reconciler Reconciler
}

// Scheduler планировщик задач.
type Scheduler struct {
	deps     Deps
	cfg      config.Schedule
	adminIDs []int64
	plans    models.Plans
	clock    clock.Clock
	log      *slog.Logger
	metrics  *metrics.Metrics

	cron *gocron.Scheduler
}

// New создаёт Scheduler.
func New(deps Deps, cfg config.Schedule, adminIDs []int64, plans models.Plans, clk clock.Clock, log *slog.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		deps:     deps,
		cfg:      cfg,
		adminIDs: adminIDs,
		plans:    plans,
		clock:    clk,
		log:      log,
		metrics:  m,
	}
}

// Start регистрирует задачи и запускает их. Интервальные задачи выполняются
// сразу после старта. Задача не пересекается сама с собой.
func (s *Scheduler) Start(ctx context.Context) error {
	const op = "scheduler.Start"

	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()

	jobs := []struct {
		name string
		add  func(fn func()) error
		run  func(context.Context)
	}{
		{JobFetch, every(cron, s.cfg.FetchInterval), s.RunFetch},
		{JobNotifyMatches, every(cron, s.cfg.NotifyInterval), s.RunMatchSweep},
		{JobReconcile, every(cron, s.cfg.ReconcileInterval), s.RunReconcile},
		{JobExpiryWarning, cronExpr(cron, s.cfg.ExpiryWarningCron), s.RunExpiryWarning},
		{JobWeeklyStats, cronExpr(cron, s.cfg.WeeklyStatsCron), s.RunWeeklyStats},
	}
	for _, job := range jobs {
		run := job.run
		if err := job.add(func() { run(ctx) }); err != nil {
			return fmt.Errorf("%s: job %s: %w", op, job.name, err)
		}
	}

	cron.StartAsync()
	s.cron = cron
	s.log.Info("scheduler started", slog.String("op", op), slog.Int("jobs", len(jobs)))
	return nil
}

// Stop останавливает планировщик.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func every(cron *gocron.Scheduler, d time.Duration) func(func()) error {
	return func(fn func()) error {
		if d <= 0 {
			return fmt.Errorf("interval must be positive, got %s", d)
		}
		_, err := cron.Every(d).Do(fn)
		return err
	}
}

func cronExpr(cron *gocron.Scheduler, expr string) func(func()) error {
	return func(fn func()) error {
		_, err := cron.Cron(expr).Do(fn)
		return err
	}
}

func (s *Scheduler) observe(job string, start time.Time) {
	s.metrics.ObserveJob(job, time.Since(start))
}

// RunFetch обновляет снимок фида, если он устарел.
func (s *Scheduler) RunFetch(ctx context.Context) {
	defer s.observe(JobFetch, time.Now())
	matches := s.deps.Odds.Snapshot(ctx)
	s.log.Info("odds fetch job completed", slog.String("job", JobFetch), slog.Int("matches", len(matches)))
}

// RunMatchSweep рассылает подходящие матчи подписчикам. Ошибка отправки
// одному получателю не прерывает рассылку. Матч отмечается после того,
// как отправка была попытана всем получателям. Если не дошло ни одно
// уведомление, матч не отмечается и повторяется следующим проходом.
func (s *Scheduler) RunMatchSweep(ctx context.Context) {
	defer s.observe(JobNotifyMatches, time.Now())
	log := s.log.With(slog.String("job", JobNotifyMatches))

	matches, err := s.deps.Matcher.FindQualifying(ctx, s.deps.Odds.Snapshot(ctx))
	if err != nil {
		log.Error("failed to select qualifying matches", sl.Err(err))
		return
	}
	if len(matches) == 0 {
		log.Info("no new matches with target odds")
		return
	}

	recipients, err := s.deps.Repo.ActiveSubscribers(ctx, s.clock.Now())
	if err != nil {
		log.Error("failed to load subscribers", sl.Err(err))
		return
	}

	for _, match := range matches {
		failed := 0
		for _, user := range recipients {
			if err := s.deps.Notifier.NotifyMatch(ctx, user.ExternalID, match, true); err != nil {
				failed++
				log.Error("failed to notify user",
					slog.Int64("recipient", user.ExternalID), slog.String("match_id", match.ID), sl.Err(err))
			}
		}
		if len(recipients) > 0 && failed == len(recipients) {
			log.Warn("every delivery failed, match left for the next sweep",
				slog.String("match_id", match.ID), slog.Int("recipients", len(recipients)))
			continue
		}
		if err := s.deps.Matcher.MarkNotified(ctx, match.ID); err != nil {
			log.Error("failed to mark match notified", slog.String("match_id", match.ID), sl.Err(err))
		}
		log.Info("match fan-out completed",
			slog.String("match_id", match.ID),
			slog.Int("recipients", len(recipients)),
			slog.Int("failed", failed),
		)
	}
}

// RunExpiryWarning предупреждает пользователей, у которых подписка
// заканчивается в ближайшее окно.
func (s *Scheduler) RunExpiryWarning(ctx context.Context) {
	defer s.observe(JobExpiryWarning, time.Now())
	log := s.log.With(slog.String("job", JobExpiryWarning))

	now := s.clock.Now()
	expiring, err := s.deps.Repo.ExpiringSubscriptions(ctx, now, now.Add(s.cfg.ExpiryWindow))
	if err != nil {
		log.Error("failed to load expiring subscriptions", sl.Err(err))
		return
	}

	sent := 0
	for _, e := range expiring {
		text := notification.ExpiryWarningText(s.plans.Title(e.Subscription.Plan), e.Subscription.EndDate)
		if err := s.deps.Notifier.NotifyText(ctx, e.User.ExternalID, text); err != nil {
			log.Error("failed to send expiry warning", slog.Int64("recipient", e.User.ExternalID), sl.Err(err))
			continue
		}
		sent++
	}
	log.Info("expiry warnings sent", slog.Int("expiring", len(expiring)), slog.Int("sent", sent))
}

// RunWeeklyStats считает статистику и отправляет её администраторам.
func (s *Scheduler) RunWeeklyStats(ctx context.Context) {
	defer s.observe(JobWeeklyStats, time.Now())
	log := s.log.With(slog.String("job", JobWeeklyStats))

	stats, err := s.deps.Stats.Weekly(ctx)
	if err != nil {
		log.Error("failed to compute weekly stats", sl.Err(err))
		return
	}

	text := notification.WeeklyStatsText(*stats, s.plans)
	for _, admin := range s.adminIDs {
		if err := s.deps.Notifier.NotifyText(ctx, admin, text); err != nil {
			log.Error("failed to send weekly stats", slog.Int64("admin", admin), sl.Err(err))
		}
	}
}

// RunReconcile применяет оплаченные ссылки, не дошедшие до подписки.
func (s *Scheduler) RunReconcile(ctx context.Context) {
	defer s.observe(JobReconcile, time.Now())
	if _, err := s.deps.Reconciler.Reconcile(ctx); err != nil {
		s.log.Error("reconcile failed", slog.String("job", JobReconcile), sl.Err(err))
	}
}
