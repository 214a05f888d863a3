package branches

import (
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// defaultHistoryLimit bounds the retained operations.
const defaultHistoryLimit = 50

// Mutation names recorded in the history.
const (
	actionCreate      = "create"
	actionDelete      = "delete"
	actionBatchCreate = "batch-create"
	actionBatchDelete = "batch-delete"
)

// Operation is one recorded branch mutation.
type Operation struct {
	ID     int64     `json:"id"`
	Action string    `json:"action"`
	Scope  Scope     `json:"scope"`
	Branch string    `json:"branch,omitempty"`
	At     time.Time `json:"at"`
	OK     bool      `json:"ok"`
	Error  string    `json:"error,omitempty"`

	// Message carries the summary line of batch
	// operations.
	Message string `json:"message,omitempty"`
}

// history is a bounded, mutex-guarded operation log.
// When full, the oldest entry is dropped.
type history struct {
	mu     sync.Mutex
	limit  int
	nextID int64
	ops    []Operation
}

func newHistory(limit int) *history {
	return &history{limit: limit}
}

func (h *history) add(op Operation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	op.ID = h.nextID

	h.ops = append(h.ops, op)

	if h.limit > 0 && len(h.ops) > h.limit {
		h.ops = h.ops[len(h.ops)-h.limit:]
	}
}

// snapshot returns the retained operations, most recent
// first.
func (h *history) snapshot() []Operation {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Operation, len(h.ops))
	for i, op := range h.ops {
		out[len(h.ops)-1-i] = op
	}

	return out
}

// History returns the recorded operations, most recent
// first.
func (m *Manager) History() []Operation {
	return m.history.snapshot()
}

// ExportHistory serializes the history to indented JSON,
// most recent first.
func (m *Manager) ExportHistory() ([]byte, error) {
	return json.MarshalIndent(
		m.history.snapshot(), "", "  ",
	)
}
