package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Durarara1312/weatherbot/internal/domain"
	"github.com/Durarara1312/weatherbot/internal/infra/metrics"
)

// RabbitBroadcastQueue реализует очередь задач рассылки поверх RabbitMQ.
type RabbitBroadcastQueue struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

var _ domain.BroadcastQueue = (*RabbitBroadcastQueue)(nil)

// NewRabbitBroadcastQueue подключается к брокеру и объявляет очередь.
func NewRabbitBroadcastQueue(amqpURL, queue string) (*RabbitBroadcastQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("подключение к rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("открытие канала: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("объявление очереди: %w", err)
	}
	return &RabbitBroadcastQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует задачу рассылки.
func (q *RabbitBroadcastQueue) Enqueue(ctx context.Context, job domain.BroadcastJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди. Сообщение подтверждается
// после успешного разбора; битые сообщения отбрасываются без повтора.
func (q *RabbitBroadcastQueue) Pop(ctx context.Context) (domain.BroadcastJob, error) {
	if q.deliveries == nil {
		deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			return domain.BroadcastJob{}, fmt.Errorf("подписка на очередь: %w", err)
		}
		q.deliveries = deliveries
	}
	for {
		select {
		case <-ctx.Done():
			return domain.BroadcastJob{}, ctx.Err()
		case delivery, ok := <-q.deliveries:
			if !ok {
				return domain.BroadcastJob{}, errors.New("rabbitmq: канал доставки закрыт")
			}
			var job domain.BroadcastJob
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				_ = delivery.Nack(false, false)
				continue
			}
			if err := delivery.Ack(false); err != nil {
				return domain.BroadcastJob{}, fmt.Errorf("подтверждение задачи: %w", err)
			}
			return job, nil
		}
	}
}

// Close закрывает канал и соединение.
func (q *RabbitBroadcastQueue) Close() error {
	var errs []error
	if q.ch != nil {
		errs = append(errs, q.ch.Close())
	}
	if q.conn != nil {
		errs = append(errs, q.conn.Close())
	}
	return errors.Join(errs...)
}
