package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"sentientos/internal/model"
	"sentientos/internal/platform/rabbitmq"
	"sentientos/internal/repository"
)

var ErrMalformedEvent = errors.New("malformed premium event")

// PremiumWorker applies billing events to profiles. Payment itself happens
// elsewhere; this is the only writer of is_premium.
type PremiumWorker struct {
	conn      *amqp.Connection
	repo      *repository.ProfileRepository
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPremiumWorker(conn *amqp.Connection, repo *repository.ProfileRepository, queueName string) *PremiumWorker {
	return &PremiumWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
	}
}

// Apply decodes one event body and updates the profile, creating it when
// the email has never signed in.
func (w *PremiumWorker) Apply(body []byte) error {
	var event model.PremiumEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	event.Email = strings.TrimSpace(event.Email)
	if event.Email == "" {
		return fmt.Errorf("%w: missing email", ErrMalformedEvent)
	}
	return w.repo.SetPremium(event.Email, event.IsPremium)
}

func (w *PremiumWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		return err
	}
	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handle(d)
			}
		}
	}()

	return nil
}

func (w *PremiumWorker) handle(d amqp.Delivery) {
	err := w.Apply(d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrMalformedEvent):
		log.Printf("premium worker drop event: %v", err)
		_ = d.Nack(false, false)
	default:
		// One redelivery for storage errors.
		log.Printf("premium worker apply event failed: %v", err)
		_ = d.Nack(false, !d.Redelivered)
	}
}

func (w *PremiumWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
