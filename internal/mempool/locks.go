package mempool

import "sync"

// addrLocks hands out one mutex per address. Entries are reference counted
// and dropped once nobody holds or waits on them.
type addrLocks struct {
	mu sync.Mutex
	m  map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newAddrLocks() *addrLocks {
	return &addrLocks{m: make(map[string]*refMutex)}
}

// lock blocks until the address lock is held and returns its release func.
func (l *addrLocks) lock(address string) func() {
	l.mu.Lock()
	rm, ok := l.m[address]
	if !ok {
		rm = &refMutex{}
		l.m[address] = rm
	}
	rm.refs++
	l.mu.Unlock()

	rm.Lock()
	return func() {
		rm.Unlock()
		l.mu.Lock()
		rm.refs--
		if rm.refs == 0 {
			delete(l.m, address)
		}
		l.mu.Unlock()
	}
}

func (l *addrLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
