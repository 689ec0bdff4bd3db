package gemini

import "sync"

// Keyring rotates over a fixed set of API keys round-robin. It replaces the
// ambient module-level rotation index the proxy previously relied on: the
// current position lives in the client that owns the ring, not in process
// globals.
type Keyring struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewKeyring builds a ring from the given keys, dropping empty entries.
func NewKeyring(keys []string) *Keyring {
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			cleaned = append(cleaned, k)
		}
	}
	return &Keyring{keys: cleaned}
}

// Next returns the next key in rotation, or "" when the ring is empty.
func (r *Keyring) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.keys) == 0 {
		return ""
	}
	key := r.keys[r.idx%len(r.keys)]
	r.idx++
	return key
}

// Len returns the number of usable keys.
func (r *Keyring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}
