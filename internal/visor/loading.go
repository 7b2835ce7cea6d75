package visor

import "sort"

// Loading counts in-flight loads per layer key. The map is busy while any
// key has a load outstanding.
type Loading struct {
	counts map[string]int
}

// NewLoading returns an idle tracker.
func NewLoading() *Loading {
	return &Loading{counts: make(map[string]int)}
}

// Set records the start (true) or end (false) of one load of key.
func (l *Loading) Set(key string, loading bool) {
	if loading {
		l.counts[key]++
		return
	}
	if n := l.counts[key]; n > 1 {
		l.counts[key] = n - 1
	} else {
		delete(l.counts, key)
	}
}

// Forget drops every outstanding load of key.
func (l *Loading) Forget(key string) {
	delete(l.counts, key)
}

// Busy reports whether any load is outstanding.
func (l *Loading) Busy() bool {
	return len(l.counts) > 0
}

// Total is the number of outstanding loads.
func (l *Loading) Total() int {
	n := 0
	for _, c := range l.counts {
		n += c
	}
	return n
}

// Keys returns the keys with outstanding loads, sorted.
func (l *Loading) Keys() []string {
	keys := make([]string, 0, len(l.counts))
	for k := range l.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
