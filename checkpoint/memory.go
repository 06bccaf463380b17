package checkpoint

import (
	"context"
	"sort"
	"sync"

	"github.com/RaghavMittal2005/speech2speech/conversation"
)

// Memory is an in-process Store. States are deep-copied on the way in and
// out.
type Memory struct {
	mu      sync.RWMutex
	threads map[string]*conversation.State
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{threads: make(map[string]*conversation.State)}
}

func (m *Memory) Load(_ context.Context, threadID string) (*conversation.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.threads[threadID]
	if !ok {
		return nil, nil
	}
	return st.Clone(), nil
}

func (m *Memory) Save(_ context.Context, state *conversation.State) error {
	if err := validate(state); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[state.ThreadID] = state.Clone()
	return nil
}

func (m *Memory) List(_ context.Context) ([]ThreadInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ThreadInfo, 0, len(m.threads))
	for id, st := range m.threads {
		out = append(out, ThreadInfo{ThreadID: id, MessageCount: st.Len(), UpdatedAt: st.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadID < out[j].ThreadID })
	return out, nil
}

func (m *Memory) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadID)
	return nil
}
