// Package message caches the most recent messages of each conversation so a
// client joining a conversation gets its history without a database query.
package message

import (
	"context"
	"sync"

	"github.com/christopherjohns/socialhub/internal/models"
)

// Cache is the interface for message history backends.
type Cache interface {
	Append(ctx context.Context, msg *models.Message) error
	Recent(ctx context.Context, conversationID int64, n int) ([]*models.Message, error)
	DeleteConversation(ctx context.Context, conversationID int64) error
	Count(ctx context.Context, conversationID int64) (int, error)
}

// MemoryCache keeps recent messages per conversation in memory.
type MemoryCache struct {
	mu      sync.RWMutex
	convs   map[int64][]*models.Message
	maxSize int
}

// NewMemoryCache creates a cache that retains up to maxSize messages per
// conversation.
func NewMemoryCache(maxSize int) *MemoryCache {
	return &MemoryCache{
		convs:   make(map[int64][]*models.Message),
		maxSize: maxSize,
	}
}

// Append adds a message to its conversation's history.
func (s *MemoryCache) Append(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.convs[msg.ConversationID]
	msgs = append(msgs, msg)
	if len(msgs) > s.maxSize {
		msgs = msgs[len(msgs)-s.maxSize:]
	}
	s.convs[msg.ConversationID] = msgs
	return nil
}

// Recent returns up to the last n messages, oldest first. The slice is a
// copy; nil when the conversation has no cached messages.
func (s *MemoryCache) Recent(_ context.Context, conversationID int64, n int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.convs[conversationID]
	if len(msgs) == 0 || n <= 0 {
		return nil, nil
	}
	if n > len(msgs) {
		n = len(msgs)
	}
	result := make([]*models.Message, n)
	copy(result, msgs[len(msgs)-n:])
	return result, nil
}

func (s *MemoryCache) DeleteConversation(_ context.Context, conversationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, conversationID)
	return nil
}

func (s *MemoryCache) Count(_ context.Context, conversationID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs[conversationID]), nil
}
