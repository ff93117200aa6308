package services

import "sync"

// groupLocks hands out one mutex per group ID. Entries exist only while some
// goroutine holds or waits for them, so idle groups cost nothing and a slow
// group never blocks another one.
type groupLocks struct {
	mu    sync.Mutex
	locks map[string]*groupLock
}

type groupLock struct {
	sync.Mutex
	refs int
}

// lock blocks until groupID is held and returns the matching unlock.
func (g *groupLocks) lock(groupID string) (unlock func()) {
	g.mu.Lock()
	if g.locks == nil {
		g.locks = make(map[string]*groupLock)
	}
	l := g.locks[groupID]
	if l == nil {
		l = &groupLock{}
		g.locks[groupID] = l
	}
	l.refs++
	g.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, groupID)
		}
		g.mu.Unlock()
	}
}

// size is the number of groups currently locked or awaited.
func (g *groupLocks) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}
