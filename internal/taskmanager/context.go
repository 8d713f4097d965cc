package taskmanager

import "sync"

// SharedContext lets tasks in the same manager exchange data. Every task
// function receives its manager's shared context.
type SharedContext struct {
	mu   sync.RWMutex
	data map[string]interface{}
}

// NewSharedContext creates an empty SharedContext.
func NewSharedContext() *SharedContext {
	return &SharedContext{data: make(map[string]interface{})}
}

// Set stores a value under key, replacing any previous value.
func (sc *SharedContext) Set(key string, value interface{}) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.data[key] = value
}

// Get retrieves the value stored under key.
func (sc *SharedContext) Get(key string) (interface{}, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	val, ok := sc.data[key]
	return val, ok
}

// Delete removes the value stored under key.
func (sc *SharedContext) Delete(key string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.data, key)
}

// Keys returns the stored keys in sorted order.
func (sc *SharedContext) Keys() []string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	keys := make(map[string]struct{}, len(sc.data))
	for k := range sc.data {
		keys[k] = struct{}{}
	}
	return sortedNames(keys)
}
