package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Consume delivers every notification on queueName to handle until ctx is
// done or the channel closes. Malformed bodies are logged and dropped.
func Consume(ctx context.Context, ch *amqp.Channel, queueName string, log zerolog.Logger, handle func(Notification)) error {
	msgs, err := ch.Consume(queueName, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			n, err := Decode(d.Body)
			if err != nil {
				log.Warn().Err(err).Msg("failed to parse notification")
				continue
			}
			log.Debug().Int64("report_id", n.ReportID).Str("type", n.Type).Msg("notification received")
			handle(n)
		}
	}
}

func Decode(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, err
	}
	if n.Type == "" || n.ReportID == 0 {
		return Notification{}, fmt.Errorf("notification missing type or report id")
	}
	return n, nil
}
