// Package llmtest provides a scripted chat model for exercising session loops
// without a live provider.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	chatmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// StubChatModel replays a fixed script of responses, one per Generate call,
// and records every input it receives.
type StubChatModel struct {
	mu        sync.Mutex
	responses []*schema.Message
	next      int

	// Calls holds the input messages of every Generate invocation, in order.
	Calls [][]*schema.Message
	// BoundTools holds the last tool set bound via WithTools.
	BoundTools []*schema.ToolInfo
	// Err, when set, is returned by every Generate call.
	Err error
}

// Script builds a stub that answers the given messages in order.
func Script(responses ...*schema.Message) *StubChatModel {
	return &StubChatModel{responses: responses}
}

// SetScript replaces the script and rewinds it. Useful when the stub must be
// wired into a component before the test case's responses are known.
func (s *StubChatModel) SetScript(responses ...*schema.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = responses
	s.next = 0
}

func (s *StubChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...chatmodel.Option) (*schema.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]*schema.Message, len(input))
	copy(copied, input)
	s.Calls = append(s.Calls, copied)

	if s.Err != nil {
		return nil, s.Err
	}
	if s.next >= len(s.responses) {
		return nil, fmt.Errorf("stub script exhausted after %d responses", len(s.responses))
	}
	resp := s.responses[s.next]
	s.next++
	return resp, nil
}

func (s *StubChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...chatmodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := s.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools records the bound tools and returns the same stub so scripts and
// recorded calls survive binding.
func (s *StubChatModel) WithTools(tools []*schema.ToolInfo) (chatmodel.ToolCallingChatModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BoundTools = tools
	return s, nil
}

// CallCount returns how many Generate calls the stub served.
func (s *StubChatModel) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// ToolCallMessage builds an assistant message requesting one capability.
func ToolCallMessage(id, name, arguments string) *schema.Message {
	return &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{
			{
				ID: id,
				Function: schema.FunctionCall{
					Name:      name,
					Arguments: arguments,
				},
			},
		},
	}
}

var _ chatmodel.ToolCallingChatModel = (*StubChatModel)(nil)
