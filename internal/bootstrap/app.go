package bootstrap

import (
	"context"
	"fmt"
	"io"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"sentientos/internal/ai"
	"sentientos/internal/app"
	"sentientos/internal/authflow"
	"sentientos/internal/cache"
	"sentientos/internal/config"
	"sentientos/internal/platform/database"
	"sentientos/internal/platform/gotrue"
	rabbitmqClient "sentientos/internal/platform/rabbitmq"
	redisClient "sentientos/internal/platform/redis"
	"sentientos/internal/repository"
	"sentientos/internal/session"
	"sentientos/internal/worker"
)

type App struct {
	Config        *config.Config
	DB            *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	PremiumWorker *worker.PremiumWorker

	Sessions session.Store
	Auth     *gotrue.Client
	Flow     *authflow.Flow
	Chat     *app.ChatService
	LLM      ai.Client

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, database.Options{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		LogLevel:     cfg.Database.LogLevel,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redisClient.Open(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
	}

	llm, err := newLLMClient(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}

	a := Assemble(cfg, db, rdb, llm)

	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmqClient.Dial(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.MQConn = conn
		a.PremiumWorker = worker.NewPremiumWorker(conn, repository.NewProfileRepository(db), cfg.RabbitMQ.PremiumQueue)
		if err := a.PremiumWorker.Start(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("start premium worker failed: %w", err)
		}
	}

	return a, nil
}

// Assemble wires services over already opened resources. rdb may be nil,
// in which case sessions live in memory and transcripts are not cached.
func Assemble(cfg *config.Config, db *gorm.DB, rdb *redis.Client, llm ai.Client) *App {
	var sessions session.Store = session.NewMemoryStore()
	var transcripts app.TranscriptCache
	if rdb != nil {
		if cfg.Session.Backend == "redis" {
			sessions = session.NewRedisStore(rdb, time.Duration(cfg.Session.TTLSeconds)*time.Second)
		}
		transcripts = cache.NewTranscriptCache(
			rdb,
			time.Duration(cfg.Redis.TranscriptTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.TranscriptDirtyTTLSeconds)*time.Second,
		)
	}

	auth := gotrue.NewClient(cfg.Auth.BackendURL, cfg.Auth.BackendKey)
	chat := app.NewChatService(
		repository.NewProfileRepository(db),
		repository.NewConversationRepository(db),
		repository.NewMessageRepository(db),
		transcripts,
		llm,
		app.Options{
			AppName: cfg.App.Name,
			Core:    ai.ChatConfig{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model},
			Premium: ai.ChatConfig{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.PremiumModel},
			Billing: app.BillingOptions{
				Recipient: cfg.Billing.PayPalEmail,
				ItemName:  cfg.Billing.ItemName,
				Amount:    cfg.Billing.Amount,
			},
		},
	)

	return &App{
		Config:    cfg,
		DB:        db,
		Redis:     rdb,
		Sessions:  sessions,
		Auth:      auth,
		Flow:      authflow.NewFlow(auth),
		Chat:      chat,
		LLM:       llm,
		StartedAt: time.Now(),
	}
}

func newLLMClient(ctx context.Context, cfg config.LLMConfig) (ai.Client, error) {
	switch cfg.Provider {
	case "gemini":
		return ai.NewGeminiClient(ctx, cfg.GeminiAPIKey)
	case "openai", "":
		return ai.NewOpenAICompatibleClient(nil), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.PremiumWorker != nil {
		a.PremiumWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if closer, ok := a.LLM.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if err := database.Close(a.DB); err != nil {
		closeErr = err
	}
	return closeErr
}
