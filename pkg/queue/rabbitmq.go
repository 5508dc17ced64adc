package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeReports  = "reports"
	KeyReportUpdated = "report.updated"
	KeyReportCreated = "report.created"
)

func ConnectRabbitMQ(uri string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return conn, ch, nil
}

// DeclareExchange declares the durable direct exchange report events go to.
func DeclareExchange(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeReports, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}

// DeclareNotificationQueue declares queueName and binds it to both report
// routing keys.
func DeclareNotificationQueue(ch *amqp.Channel, queueName string) (amqp.Queue, error) {
	if err := DeclareExchange(ch); err != nil {
		return amqp.Queue{}, err
	}
	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare queue: %w", err)
	}
	for _, key := range []string{KeyReportUpdated, KeyReportCreated} {
		if err := ch.QueueBind(q.Name, key, ExchangeReports, false, nil); err != nil {
			return amqp.Queue{}, fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
	}
	return q, nil
}
