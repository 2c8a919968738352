package session

import (
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"github.com/ggonzalez94/faucetbot/internal/execution/signer"
)

// KeyVault holds parsed signers in memory, bounded in size and expiring
// after a period without use. Nothing in it is ever persisted.
type KeyVault struct {
	mu    sync.Mutex
	cache *lru.Cache
	keys  map[int64]struct{}
	ttl   time.Duration
	now   func() time.Time
}

type vaultEntry struct {
	signer   *signer.LocalSigner
	lastUsed time.Time
}

type VaultOption func(*KeyVault)

func WithVaultClock(now func() time.Time) VaultOption {
	return func(v *KeyVault) { v.now = now }
}

func NewKeyVault(size int, ttl time.Duration, opts ...VaultOption) *KeyVault {
	if size <= 0 {
		size = 1024
	}
	v := &KeyVault{
		cache: lru.New(size),
		keys:  map[int64]struct{}{},
		ttl:   ttl,
		now:   time.Now,
	}
	v.cache.OnEvicted = func(key lru.Key, _ interface{}) {
		if chatID, ok := key.(int64); ok {
			delete(v.keys, chatID)
		}
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *KeyVault) Put(chatID int64, s *signer.LocalSigner) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache.Add(chatID, &vaultEntry{signer: s, lastUsed: v.now()})
	v.keys[chatID] = struct{}{}
}

// Get returns the signer for chatID and refreshes its idle timer.
func (v *KeyVault) Get(chatID int64) (*signer.LocalSigner, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	raw, ok := v.cache.Get(chatID)
	if !ok {
		return nil, false
	}
	entry := raw.(*vaultEntry)
	now := v.now()
	if v.expired(entry, now) {
		v.cache.Remove(chatID)
		return nil, false
	}
	entry.lastUsed = now
	return entry.signer, true
}

func (v *KeyVault) Forget(chatID int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache.Remove(chatID)
}

func (v *KeyVault) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cache.Len()
}

// Sweep drops every expired key and returns how many were dropped.
func (v *KeyVault) Sweep() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.now()
	stale := make([]int64, 0)
	for chatID := range v.keys {
		raw, ok := v.cache.Get(chatID)
		if !ok {
			continue
		}
		if v.expired(raw.(*vaultEntry), now) {
			stale = append(stale, chatID)
		}
	}
	for _, chatID := range stale {
		v.cache.Remove(chatID)
	}
	return len(stale)
}

func (v *KeyVault) expired(e *vaultEntry, now time.Time) bool {
	return v.ttl > 0 && now.Sub(e.lastUsed) >= v.ttl
}
