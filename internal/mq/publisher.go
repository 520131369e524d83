package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskSubmitted MessageType = "task.submitted"
	MessageTypeTaskCancelled MessageType = "task.cancelled"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TaskSubmittedPayload — payload события о новой задаче.
type TaskSubmittedPayload struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
}

// TaskCancelledPayload — payload запроса отмены.
type TaskCancelledPayload struct {
	TaskID string `json:"task_id"`
}

// Publisher публикует события задач в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishTaskSubmitted публикует событие о новой задаче.
func (p *Publisher) PublishTaskSubmitted(ctx context.Context, taskID, title string) error {
	msg := &Message{
		ID:        uuid.NewString(),
		Type:      MessageTypeTaskSubmitted,
		Payload:   TaskSubmittedPayload{TaskID: taskID, Title: title},
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, ExchangeTasks, RoutingKeySubmitted, msg)
}

// PublishTaskCancelled рассылает запрос отмены всем процессам.
func (p *Publisher) PublishTaskCancelled(ctx context.Context, taskID string) error {
	msg := &Message{
		ID:        uuid.NewString(),
		Type:      MessageTypeTaskCancelled,
		Payload:   TaskCancelledPayload{TaskID: taskID},
		Timestamp: time.Now(),
	}
	// Fanout игнорирует routing key.
	return p.Publish(ctx, ExchangeCancel, "", msg)
}
