package events

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RMQueue struct {
	Connection *amqp.Connection
	Channel    *amqp.Channel
	Queue      amqp.Queue

	mu sync.Mutex
}

func NewRMQueue(url string, queueName string) (*RMQueue, error) {
	q := &RMQueue{}
	var err error
	q.Connection, err = amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	q.Channel, err = q.Connection.Channel()
	if err != nil {
		q.Connection.Close()
		return nil, err
	}
	q.Queue, err = q.Channel.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		q.Close()
		return nil, err
	}
	return q, nil
}

func (q *RMQueue) Close() {
	q.Channel.Close()
	q.Connection.Close()
}

func (q *RMQueue) Publish(ctx context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.Channel.PublishWithContext(ctx, "", q.Queue.Name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (q *RMQueue) Consume() (<-chan amqp.Delivery, error) {
	return q.Channel.Consume(q.Queue.Name, "", false, false, false, false, nil)
}
