package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// Exchanges.
const (
	// ExchangeTasks — события задач (direct).
	ExchangeTasks Exchange = "svgtranslate.tasks"

	// ExchangeCancel — broadcast отмены (fanout): каждый процесс
	// получает копию через свою эксклюзивную очередь.
	ExchangeCancel Exchange = "svgtranslate.cancel"
)

// Queues.
const (
	QueueTasksSubmitted Queue = "tasks.submitted"
)

// Routing keys.
const (
	RoutingKeySubmitted RoutingKey = "submitted"
)

// SetupTopology объявляет обменники, очереди и привязки.
// Все объявления идемпотентны.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(
			string(ExchangeTasks), "direct",
			true, false, false, false, nil,
		); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeTasks, err)
		}

		if err := ch.ExchangeDeclare(
			string(ExchangeCancel), "fanout",
			true, false, false, false, nil,
		); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeCancel, err)
		}

		if _, err := ch.QueueDeclare(
			string(QueueTasksSubmitted),
			true, false, false, false, nil,
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueTasksSubmitted, err)
		}

		if err := ch.QueueBind(
			string(QueueTasksSubmitted),
			string(RoutingKeySubmitted),
			string(ExchangeTasks),
			false, nil,
		); err != nil {
			return fmt.Errorf("bind queue %s: %w", QueueTasksSubmitted, err)
		}

		return nil
	})
}

// DeclareBroadcastQueue объявляет эксклюзивную очередь этого процесса
// и привязывает её к fanout-обменнику отмены. Имя генерирует брокер;
// очередь исчезает вместе с соединением.
func DeclareBroadcastQueue(conn *Connection) (Queue, error) {
	var name string
	err := conn.WithChannel(func(ch *amqp.Channel) error {
		q, err := ch.QueueDeclare(
			"",    // имя выдаёт брокер
			false, // не durable
			true,  // auto-delete
			true,  // exclusive
			false, nil,
		)
		if err != nil {
			return fmt.Errorf("declare broadcast queue: %w", err)
		}

		if err := ch.QueueBind(q.Name, "", string(ExchangeCancel), false, nil); err != nil {
			return fmt.Errorf("bind broadcast queue: %w", err)
		}

		name = q.Name
		return nil
	})
	if err != nil {
		return "", err
	}
	return Queue(name), nil
}
