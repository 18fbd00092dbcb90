package repo

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/resilitix/assistant/internal/agent/model"
)

// MemoryTranscriptRepository is an in-process transcript store used when no
// Redis URL is configured, and in tests. Contents are lost on restart.
type MemoryTranscriptRepository struct {
	mu       sync.RWMutex
	messages map[string][]*schema.Message
}

func NewMemoryTranscriptRepository() *MemoryTranscriptRepository {
	return &MemoryTranscriptRepository{messages: make(map[string][]*schema.Message)}
}

func (r *MemoryTranscriptRepository) AddMessage(ctx context.Context, conversationID string, message *schema.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[conversationID] = append(r.messages[conversationID], message)
	return nil
}

func (r *MemoryTranscriptRepository) LoadHistory(ctx context.Context, conversationID string) (*model.TranscriptHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.messages[conversationID]
	msgs := make([]*schema.Message, len(stored))
	copy(msgs, stored)
	return &model.TranscriptHistory{ConversationID: conversationID, Messages: msgs}, nil
}

func (r *MemoryTranscriptRepository) ClearHistory(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, conversationID)
	return nil
}

func (r *MemoryTranscriptRepository) GetMessageCount(ctx context.Context, conversationID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages[conversationID]), nil
}

var _ model.TranscriptRepository = (*MemoryTranscriptRepository)(nil)
