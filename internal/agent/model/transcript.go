package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// TranscriptRepository stores the cross-turn chat transcript for a
// conversation. Per-turn orchestration state never touches this store; only
// the user utterance and the final synthesized answer are folded in at turn
// boundaries.
type TranscriptRepository interface {
	// AddMessage appends a message to the conversation transcript.
	AddMessage(ctx context.Context, conversationID string, message *schema.Message) error

	// LoadHistory retrieves the transcript for a conversation.
	LoadHistory(ctx context.Context, conversationID string) (*TranscriptHistory, error)

	// ClearHistory removes the transcript for a conversation.
	ClearHistory(ctx context.Context, conversationID string) error

	// GetMessageCount returns the number of messages in the transcript.
	GetMessageCount(ctx context.Context, conversationID string) (int, error)
}

// TranscriptHistory represents loaded transcript data with metadata.
type TranscriptHistory struct {
	ConversationID string
	Messages       []*schema.Message
}
