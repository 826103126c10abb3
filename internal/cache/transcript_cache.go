package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"sentientos/internal/model"
)

// TranscriptCache keeps a conversation's messages in Redis for a short TTL.
// Writers set a dirty marker that outlives the delete, so a reader racing a
// write does not put a stale transcript back.
type TranscriptCache struct {
	client   *redisv9.Client
	ttl      time.Duration
	dirtyTTL time.Duration
}

func NewTranscriptCache(client *redisv9.Client, ttl, dirtyTTL time.Duration) *TranscriptCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if dirtyTTL <= 0 {
		dirtyTTL = 5 * time.Second
	}
	return &TranscriptCache{client: client, ttl: ttl, dirtyTTL: dirtyTTL}
}

func (c *TranscriptCache) GetTranscript(ctx context.Context, chatID string) ([]model.Message, bool, error) {
	raw, err := c.client.Get(ctx, transcriptKey(chatID)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get transcript failed: %w", err)
	}

	var messages []model.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached transcript failed: %w", err)
	}
	return messages, true, nil
}

func (c *TranscriptCache) SetTranscript(ctx context.Context, chatID string, messages []model.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal transcript failed: %w", err)
	}
	if err := c.client.Set(ctx, transcriptKey(chatID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set transcript failed: %w", err)
	}
	return nil
}

func (c *TranscriptCache) DeleteTranscript(ctx context.Context, chatID string) error {
	if err := c.client.Del(ctx, transcriptKey(chatID)).Err(); err != nil {
		return fmt.Errorf("redis delete transcript failed: %w", err)
	}
	return nil
}

func (c *TranscriptCache) MarkDirty(ctx context.Context, chatID string) error {
	if err := c.client.Set(ctx, dirtyKey(chatID), "1", c.dirtyTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *TranscriptCache) IsDirty(ctx context.Context, chatID string) (bool, error) {
	n, err := c.client.Exists(ctx, dirtyKey(chatID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return n > 0, nil
}

func transcriptKey(chatID string) string { return "sentient:transcript:" + chatID }
func dirtyKey(chatID string) string      { return "sentient:transcript:dirty:" + chatID }
