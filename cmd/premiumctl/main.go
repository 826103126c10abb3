// Command premiumctl publishes a tier change for the billing worker:
//
//	premiumctl -email ops@example.com -premium=true
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"sentientos/internal/config"
	"sentientos/internal/model"
	"sentientos/internal/platform/rabbitmq"
)

func main() {
	email := flag.String("email", "", "profile email")
	premium := flag.Bool("premium", true, "premium flag to apply")
	flag.Parse()
	if *email == "" {
		log.Fatal("-email is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := rabbitmq.Dial(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		log.Fatalf("connect rabbitmq failed: %v", err)
	}
	defer conn.Close()

	publisher := rabbitmq.NewPremiumPublisher(conn, cfg.RabbitMQ.PremiumQueue)
	if err := publisher.Publish(ctx, model.PremiumEvent{Email: *email, IsPremium: *premium}); err != nil {
		log.Fatalf("publish failed: %v", err)
	}
	log.Printf("queued is_premium=%v for %s on %s", *premium, *email, cfg.RabbitMQ.PremiumQueue)
}
