package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"sentientos/internal/model"
)

// PremiumPublisher emits tier changes for the PremiumWorker to apply.
type PremiumPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewPremiumPublisher(conn *amqp.Connection, queueName string) *PremiumPublisher {
	return &PremiumPublisher{conn: conn, queueName: queueName}
}

func (p *PremiumPublisher) Publish(ctx context.Context, event model.PremiumEvent) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal premium event failed: %w", err)
	}

	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp.Persistent,
	}); err != nil {
		return fmt.Errorf("publish premium event failed: %w", err)
	}
	return nil
}
