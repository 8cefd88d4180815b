package feed

import (
	"sync"

	"github.com/cwrk-planet/roulette-service/internal/domain"
)

// Mirror is a consumer-side copy of one room. Apply replaces the whole state
// and ignores snapshots not newer than the one it holds, so duplicate or
// reordered deliveries are harmless. Stream writers use it to skip them.
type Mirror struct {
	mu   sync.RWMutex
	snap *domain.Snapshot
}

// Apply reports whether snap replaced the current state.
func (m *Mirror) Apply(snap domain.Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap != nil && snap.Room.Version <= m.snap.Room.Version {
		return false
	}
	m.snap = &snap
	return true
}

func (m *Mirror) Current() (domain.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return domain.Snapshot{}, false
	}
	return *m.snap, true
}
