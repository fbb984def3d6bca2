package locker

import "sync"

// UserLocker serializes balance mutations per user. The deposit reconciler
// and the swap executor both hold the user's lock across their
// read-balance-then-mutate span; operations for different users never
// contend. Lock entries are never removed, the account cap bounds them.
type UserLocker struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewUserLocker creates an empty UserLocker.
func NewUserLocker() *UserLocker {
	return &UserLocker{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the exclusive section for userID, blocking while another
// operation for the same user holds it.
func (l *UserLocker) Lock(userID int64) {
	l.userMutex(userID).Lock()
}

// Unlock releases the exclusive section for userID.
func (l *UserLocker) Unlock(userID int64) {
	l.userMutex(userID).Unlock()
}

func (l *UserLocker) userMutex(userID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	return m
}
