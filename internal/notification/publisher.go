// Package notification публикует уведомления пользователям в RabbitMQ.
// Доставку в чат выполняет внешний транспорт, читающий очереди обменника notifications.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/magabrotheeeer/odds-notifier/internal/lib/sl"
	"github.com/magabrotheeeer/odds-notifier/internal/metrics"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
	"github.com/magabrotheeeer/odds-notifier/internal/rabbitmq"
)

// Publisher публикует уведомления. Канал AMQP не потокобезопасен,
// поэтому публикации сериализуются мьютексом.
type Publisher struct {
	mu      sync.Mutex
	ch      rabbitmq.Channel
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewPublisher создаёт Publisher.
func NewPublisher(ch rabbitmq.Channel, log *slog.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{
		ch:      ch,
		log:     log,
		metrics: m,
	}
}

// NotifyMatch отправляет карточку матча получателю.
func (p *Publisher) NotifyMatch(ctx context.Context, recipient int64, match models.Match, isNew bool) error {
	const op = "notification.NotifyMatch"
	msg := models.MatchNotification{
		Recipient: recipient,
		Match:     match,
		IsNew:     isNew,
		Text:      MatchText(match, isNew),
	}
	if err := p.publish(ctx, rabbitmq.RoutingKeyMatch, msg); err != nil {
		p.log.Error("failed to publish match notification",
			slog.String("op", op), slog.Int64("recipient", recipient), slog.String("match_id", match.ID), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// NotifyText отправляет текстовое сообщение получателю.
func (p *Publisher) NotifyText(ctx context.Context, recipient int64, text string) error {
	const op = "notification.NotifyText"
	msg := models.TextNotification{Recipient: recipient, Text: text}
	if err := p.publish(ctx, rabbitmq.RoutingKeyText, msg); err != nil {
		p.log.Error("failed to publish text notification",
			slog.String("op", op), slog.Int64("recipient", recipient), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, key string, msg any) error {
	if err := ctx.Err(); err != nil {
		p.metrics.Notification(key, false)
		return err
	}
	p.mu.Lock()
	err := rabbitmq.PublishMessage(p.ch, rabbitmq.ExchangeNotifications, key, msg)
	p.mu.Unlock()
	p.metrics.Notification(key, err == nil)
	return err
}
