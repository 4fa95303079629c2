package sync

import "sync"

// lockRegistry hands out one mutex per target key so that at most one run is
// in flight per source/sink pair. A second trigger for the same target blocks
// until the first run finishes.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (r *lockRegistry) get(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	r.locks[key] = l
	return l
}

var runLocks = &lockRegistry{locks: make(map[string]*sync.Mutex)}
