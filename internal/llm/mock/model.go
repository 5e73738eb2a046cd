package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Model is an llms.Model that answers with Reply, or with the prompt itself
// when Reply is empty.
type Model struct {
	Reply string
	Err   error

	mu      sync.Mutex
	prompts []string
}

var _ llms.Model = (*Model)(nil)

func NewModel() *Model { return &Model{} }

func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}

	var prompt strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				prompt.WriteString(tc.Text)
			}
		}
	}
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt.String())
	m.mu.Unlock()

	reply := m.Reply
	if reply == "" {
		reply = prompt.String()
	}

	if opts.StreamingFunc != nil {
		for _, tok := range strings.SplitAfter(reply, " ") {
			if tok == "" {
				continue
			}
			if err := opts.StreamingFunc(ctx, []byte(tok)); err != nil {
				return nil, err
			}
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: reply, StopReason: "stop"}},
	}, nil
}

func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Prompts returns every prompt the model received, in order.
func (m *Model) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
