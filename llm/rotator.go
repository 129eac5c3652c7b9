package llm

import (
	"sync"
	"time"
)

// KeyRotator cycles through a fixed list of API keys, skipping any
// currently in cooldown after a 429 response.
type KeyRotator struct {
	mu       sync.Mutex
	keys     []string
	cursor   int
	cooldown map[string]time.Time
}

// NewKeyRotator builds a rotator starting at the given cursor
// (typically restored from app_settings so a restart does not reset
// rotation order).
func NewKeyRotator(keys []string, startCursor int) *KeyRotator {
	if len(keys) == 0 {
		return &KeyRotator{cooldown: make(map[string]time.Time)}
	}
	return &KeyRotator{
		keys:     keys,
		cursor:   startCursor % len(keys),
		cooldown: make(map[string]time.Time),
	}
}

// Next returns the next key not currently in cooldown, and its index
// for persistence. Returns ("", -1, false) when every key is cooling
// down.
func (r *KeyRotator) Next() (string, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.keys) == 0 {
		return "", -1, false
	}

	now := time.Now()
	for i := 0; i < len(r.keys); i++ {
		idx := (r.cursor + i) % len(r.keys)
		key := r.keys[idx]
		if until, cooling := r.cooldown[key]; cooling && now.Before(until) {
			continue
		}
		r.cursor = (idx + 1) % len(r.keys)
		return key, idx, true
	}
	return "", -1, false
}

// Cooldown puts a key on ice for the given duration, used after a 429.
func (r *KeyRotator) Cooldown(key string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cooldown[key] = time.Now().Add(d)
}

// Cursor returns the current rotation position for persistence.
func (r *KeyRotator) Cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}
