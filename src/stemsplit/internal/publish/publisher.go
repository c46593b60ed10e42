package publish

import (
	"context"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

var _ Publisher = &QueuePublisher{}

//counterfeiter:generate . Publisher
type Publisher interface {
	Publish(msg amqp091.Publishing) error
}

// QueuePublisher publishes job messages, reconnecting its channel once when
// the broker closed it underneath us.
type QueuePublisher struct {
	rabbitMQURL string
	channel     *amqp091.Channel
	queueName   string
}

func NewQueuePublisher(rabbitMQURL string, queueName string) (*QueuePublisher, error) {
	publisher := &QueuePublisher{
		rabbitMQURL: rabbitMQURL,
		queueName:   queueName,
	}

	if err := publisher.connectChannel(); err != nil {
		return nil, cerr.Wrap(err).Error("Failed to connect to RabbitMQ")
	}

	return publisher, nil
}

func (q *QueuePublisher) connectChannel() error {
	q.channel = nil

	conn, err := amqp091.Dial(q.rabbitMQURL)
	if err != nil {
		return cerr.Wrap(err).Error("Failed to dial the RabbitMQ URL")
	}

	channel, err := conn.Channel()
	if err != nil {
		return cerr.Wrap(err).Error("Failed to create a RabbitMQ channel")
	}

	_, err = channel.QueueDeclare(
		q.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return cerr.Field("queue_name", q.queueName).
			Wrap(err).Error("Failed to declare the queue")
	}

	q.channel = channel
	return nil
}

func (q *QueuePublisher) publishWithoutRetry(msg amqp091.Publishing) error {
	msg.ContentType = "application/json"
	msg.DeliveryMode = amqp091.Persistent

	return q.channel.PublishWithContext(
		context.Background(),
		"",
		q.queueName,
		true,
		false,
		msg,
	)
}

func (q *QueuePublisher) Publish(msg amqp091.Publishing) error {
	err := q.publishWithoutRetry(msg)
	if err == nil {
		return nil
	}

	publishErr := cerr.Field("message_type", msg.Type).
		Wrap(err).Error("Failed to publish message to the RabbitMQ channel")

	if !errors.Is(err, amqp091.ErrClosed) {
		return publishErr
	}

	if err := q.connectChannel(); err != nil {
		log.WithError(err).Error("Unable to reconnect to the RabbitMQ channel")
		return publishErr
	}

	return q.publishWithoutRetry(msg)
}
