package sessions

import "sync"

// Memory is the default backend: sessions live for the process lifetime
// and reset on restart, which only costs users a trip through the root
// menu.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Load(waid string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.data[waid]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

func (m *Memory) Save(waid string, payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.mu.Lock()
	m.data[waid] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(waid string) error {
	m.mu.Lock()
	delete(m.data, waid)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
