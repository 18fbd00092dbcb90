package conversations

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/resilitix/assistant/internal/agent/model"
)

// Manager folds finished turns into the cross-turn transcript. Per-turn
// orchestration state never passes through here; only the user utterance and
// the final answer are kept.
type Manager struct {
	repo model.TranscriptRepository
}

func NewManager(repo model.TranscriptRepository) *Manager {
	return &Manager{repo: repo}
}

// RecordTurn appends the user utterance and the synthesized answer for one
// completed turn.
func (m *Manager) RecordTurn(ctx context.Context, conversationID, task, answer string) error {
	if err := m.repo.AddMessage(ctx, conversationID, schema.UserMessage(task)); err != nil {
		return err
	}
	return m.repo.AddMessage(ctx, conversationID, schema.AssistantMessage(answer, nil))
}

// History returns the transcript so far.
func (m *Manager) History(ctx context.Context, conversationID string) ([]*schema.Message, error) {
	history, err := m.repo.LoadHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return history.Messages, nil
}

// MessageCount returns the number of stored transcript messages.
func (m *Manager) MessageCount(ctx context.Context, conversationID string) (int, error) {
	return m.repo.GetMessageCount(ctx, conversationID)
}
