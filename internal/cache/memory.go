package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider implements Provider with an in-process map. Entries expire
// lazily on read and are swept by a background janitor.
type MemoryProvider struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	done    chan struct{}
	once    sync.Once
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates a memory cache and starts its janitor.
func NewMemoryProvider() *MemoryProvider {
	p := &MemoryProvider{
		entries: make(map[string]memoryEntry),
		done:    make(chan struct{}),
	}
	go p.janitor()
	return p
}

// Get returns the cached bytes or ErrCacheMiss.
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[key]
	if !ok || entry.expired(time.Now()) {
		delete(p.entries, key)
		return nil, ErrCacheMiss
	}
	// Copy so callers cannot mutate the cached value.
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set stores bytes with the provided TTL. A TTL of zero or less means the
// entry never expires.
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[key] = newMemoryEntry(value, ttl)
	return nil
}

// SetNX stores the value only if the key is absent or expired.
func (p *MemoryProvider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.entries[key]; ok && !entry.expired(time.Now()) {
		return false, nil
	}
	p.entries[key] = newMemoryEntry(value, ttl)
	return true, nil
}

// Del removes a key.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, key)
	return nil
}

// Close stops the janitor and drops all entries.
func (p *MemoryProvider) Close() error {
	p.once.Do(func() { close(p.done) })
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = make(map[string]memoryEntry)
	return nil
}

func (p *MemoryProvider) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case now := <-ticker.C:
			p.mu.Lock()
			for key, entry := range p.entries {
				if entry.expired(now) {
					delete(p.entries, key)
				}
			}
			p.mu.Unlock()
		}
	}
}

func newMemoryEntry(value []byte, ttl time.Duration) memoryEntry {
	stored := make([]byte, len(value))
	copy(stored, value)
	entry := memoryEntry{value: stored}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	return entry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}
