package dummy

import (
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/publish"
	"github.com/stemtools/stemsplit/src/stemsplit/internal/worker"
)

var _ publish.Publisher = &RabbitMQ{}
var _ worker.MessageChannel = &RabbitMQ{}
var _ amqp091.Acknowledger = &RabbitMQ{}

func NewRabbitMQ() *RabbitMQ {
	return &RabbitMQ{
		Unavailable:    false,
		MessageChannel: make(chan amqp091.Delivery, 100),
	}
}

// RabbitMQ acts as the publisher, the consumer channel, and the
// acknowledger at once so that published messages loop straight back
// into the worker under test.
type RabbitMQ struct {
	Unavailable    bool
	MessageChannel chan amqp091.Delivery
	AckCounter     int
	NackCounter    int
	closeOnce      sync.Once
	mutex          sync.Mutex
}

func (r *RabbitMQ) Publish(msg amqp091.Publishing) error {
	if r.Unavailable {
		return NetworkFailure
	}

	r.MessageChannel <- amqp091.Delivery{
		Acknowledger: r,
		ContentType:  msg.ContentType,
		Type:         msg.Type,
		Body:         msg.Body,
	}

	return nil
}

func (r *RabbitMQ) Consume(_ string, _ string, _ bool, _ bool, _ bool, _ bool, _ amqp091.Table) (<-chan amqp091.Delivery, error) {
	if r.Unavailable {
		return nil, NetworkFailure
	}

	return r.MessageChannel, nil
}

func (r *RabbitMQ) Close() error {
	r.closeOnce.Do(func() {
		close(r.MessageChannel)
	})
	return nil
}

func (r *RabbitMQ) Ack(_ uint64, _ bool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.AckCounter++
	return nil
}

func (r *RabbitMQ) Nack(_ uint64, _ bool, _ bool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.NackCounter++
	return nil
}

func (r *RabbitMQ) Reject(_ uint64, _ bool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.NackCounter++
	return nil
}

func (r *RabbitMQ) Acks() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.AckCounter
}

func (r *RabbitMQ) Nacks() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.NackCounter
}
