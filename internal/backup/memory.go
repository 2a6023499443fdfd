package backup

import (
	"context"
	"sync"
)

// MemorySink keeps backups in process memory. Useful for development and tests.
type MemorySink struct {
	mu       sync.RWMutex
	infos    []Info
	payloads map[string][]byte
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{payloads: make(map[string][]byte)}
}

func (s *MemorySink) Driver() string { return DriverMemory }

func (s *MemorySink) Save(_ context.Context, info Info, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos = append(s.infos, info)
	s.payloads[info.ID] = append([]byte(nil), payload...)
	return nil
}

func (s *MemorySink) Load(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.payloads[id]
	if !ok {
		return nil, notFound(id)
	}
	return append([]byte(nil), payload...), nil
}

func (s *MemorySink) List(_ context.Context) ([]Info, error) {
	s.mu.RLock()
	out := append([]Info{}, s.infos...)
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}
