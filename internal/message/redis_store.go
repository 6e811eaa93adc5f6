package message

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/christopherjohns/socialhub/internal/models"
)

func redisKey(conversationID int64) string {
	return "conversation:" + strconv.FormatInt(conversationID, 10) + ":messages"
}

// RedisCache keeps a capped list per conversation in Redis so history
// survives restarts and is shared between instances.
type RedisCache struct {
	client  redis.Cmdable
	maxSize int64
}

// NewRedisCache creates a RedisCache that retains up to maxSize messages per
// conversation.
func NewRedisCache(client redis.Cmdable, maxSize int) *RedisCache {
	return &RedisCache{
		client:  client,
		maxSize: int64(maxSize),
	}
}

// Append pushes the message and trims the list to maxSize in one pipeline.
func (s *RedisCache) Append(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := redisKey(msg.ConversationID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -s.maxSize, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

// Recent returns up to the last n messages, oldest first. Entries that fail
// to decode are skipped.
func (s *RedisCache) Recent(ctx context.Context, conversationID int64, n int) ([]*models.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	vals, err := s.client.LRange(ctx, redisKey(conversationID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis recent: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}

	msgs := make([]*models.Message, 0, len(vals))
	for _, v := range vals {
		var m models.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			continue
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

func (s *RedisCache) DeleteConversation(ctx context.Context, conversationID int64) error {
	if err := s.client.Del(ctx, redisKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (s *RedisCache) Count(ctx context.Context, conversationID int64) (int, error) {
	n, err := s.client.LLen(ctx, redisKey(conversationID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis count: %w", err)
	}
	return int(n), nil
}
