package conversation

import "sync"

// lockTable hands out one mutex per user. An entry lives only while some
// caller holds or waits on it.
type lockTable struct {
	mu    sync.Mutex
	users map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (t *lockTable) lock(userID string) func() {
	t.mu.Lock()
	if t.users == nil {
		t.users = make(map[string]*userLock)
	}
	l, ok := t.users[userID]
	if !ok {
		l = &userLock{}
		t.users[userID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.users, userID)
		}
		t.mu.Unlock()
	}
}

func (t *lockTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users)
}
