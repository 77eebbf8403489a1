package engine

import (
	"sync"
	"time"

	"github.com/calvex/runbook/pkg/schema"
)

// PromptRequest is one outstanding agent-prompt awaiting a human reply.
type PromptRequest struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id,omitempty"`
	StepID    string    `json:"step_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// PromptBroker correlates agent-prompt requests with their replies.
// Each prompt ID accepts exactly one reply; a second reply for the same
// ID is rejected because the ID is no longer pending.
type PromptBroker struct {
	mu      sync.Mutex
	pending map[string]*pendingPrompt
}

type pendingPrompt struct {
	req PromptRequest
	ch  chan string
}

// NewPromptBroker creates an empty broker.
func NewPromptBroker() *PromptBroker {
	return &PromptBroker{
		pending: make(map[string]*pendingPrompt),
	}
}

// Open registers a prompt and returns the one-shot channel its reply will
// arrive on. The caller must Close the ID if it stops waiting.
func (b *PromptBroker) Open(req PromptRequest) <-chan string {
	ch := make(chan string, 1)

	b.mu.Lock()
	b.pending[req.ID] = &pendingPrompt{req: req, ch: ch}
	b.mu.Unlock()

	return ch
}

// Respond delivers the single reply for a prompt ID. Unknown or
// already-answered IDs are rejected.
func (b *PromptBroker) Respond(id, text string) error {
	b.mu.Lock()
	p, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()

	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound,
			"prompt %q is not pending (unknown or already answered)", id)
	}

	p.ch <- text
	return nil
}

// Close abandons a pending prompt. Replies arriving afterwards are rejected.
func (b *PromptBroker) Close(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// Pending lists outstanding prompt requests, oldest first.
func (b *PromptBroker) Pending() []PromptRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]PromptRequest, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p.req)
	}
	for i := 1; i < len(out); i++ {
		cur := out[i]
		j := i - 1
		for j >= 0 && out[j].CreatedAt.After(cur.CreatedAt) {
			out[j+1] = out[j]
			j--
		}
		out[j+1] = cur
	}
	return out
}
