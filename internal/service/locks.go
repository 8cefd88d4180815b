package service

import "sync"

// roomLocks hands out one mutex per room id; entries are dropped once unused.
type roomLocks struct {
	mu    sync.Mutex
	rooms map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{rooms: make(map[string]*roomLock)}
}

func (l *roomLocks) lock(roomID string) (unlock func()) {
	l.mu.Lock()
	rl, ok := l.rooms[roomID]
	if !ok {
		rl = &roomLock{}
		l.rooms[roomID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()

		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.rooms, roomID)
		}
		l.mu.Unlock()
	}
}

func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rooms)
}
