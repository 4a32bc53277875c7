package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

const (
	// ExchangeNotifications исходящие уведомления пользователям.
	ExchangeNotifications = "notifications"
	// ExchangePayments события платёжного шлюза.
	ExchangePayments = "payments"

	// RoutingKeyMatch уведомление о подходящем матче.
	RoutingKeyMatch = "match"
	// RoutingKeyText текстовое уведомление.
	RoutingKeyText = "text"
	// RoutingKeySettled подтверждённая оплата.
	RoutingKeySettled = "settled"

	// QueueSettlements очередь подтверждённых оплат.
	QueueSettlements = "payments.settled"
)

// QueueConfig очередь и ключ, которым она привязана к обменнику.
type QueueConfig struct {
	Exchange   string
	QueueName  string
	RoutingKey string
}

// Queues очереди сервиса.
func Queues() []QueueConfig {
	return []QueueConfig{
		{Exchange: ExchangeNotifications, QueueName: "notifications.match", RoutingKey: RoutingKeyMatch},
		{Exchange: ExchangeNotifications, QueueName: "notifications.text", RoutingKey: RoutingKeyText},
		{Exchange: ExchangePayments, QueueName: QueueSettlements, RoutingKey: RoutingKeySettled},
	}
}

// SetupChannel открывает канал, объявляет direct-обменники и привязывает к ним очереди.
func SetupChannel(conn *amqp.Connection, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ch.Qos(10, 0, false); err != nil {
		return nil, fmt.Errorf("%s: failed to set QoS: %w", op, err)
	}

	declared := make(map[string]struct{})
	for _, q := range queues {
		if _, ok := declared[q.Exchange]; !ok {
			err = ch.ExchangeDeclare(
				q.Exchange,
				"direct", // тип
				true,
				false,
				false,
				false,
				nil,
			)
			if err != nil {
				return nil, fmt.Errorf("%s: failed to declare exchange %s: %w", op, q.Exchange, err)
			}
			declared[q.Exchange] = struct{}{}
		}

		_, err := ch.QueueDeclare(
			q.QueueName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, q.QueueName, err)
		}

		err = ch.QueueBind(
			q.QueueName,
			q.RoutingKey,
			q.Exchange,
			false,
			nil,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w", op, q.QueueName, q.RoutingKey, err)
		}
	}

	return ch, nil
}
