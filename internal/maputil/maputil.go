package maputil

import "sync"

// Pop removes key from map under lock and returns the previous value if present.
func Pop[K comparable, V any](mu *sync.Mutex, items map[K]V, key K) (V, bool) {
	mu.Lock()
	defer mu.Unlock()

	value, ok := items[key]
	if ok {
		delete(items, key)
	}
	return value, ok
}

// Swap stores value under key and returns the value it replaced, if any.
func Swap[K comparable, V any](mu *sync.Mutex, items map[K]V, key K, value V) (V, bool) {
	mu.Lock()
	defer mu.Unlock()

	prev, ok := items[key]
	items[key] = value
	return prev, ok
}

// CompareAndDelete removes key only while it still maps to old.
func CompareAndDelete[K, V comparable](mu *sync.Mutex, items map[K]V, key K, old V) bool {
	mu.Lock()
	defer mu.Unlock()

	if current, ok := items[key]; ok && current == old {
		delete(items, key)
		return true
	}
	return false
}
