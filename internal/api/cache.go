package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dsa110/dsa110-hwmc/internal/session"
)

// Snapshot is the latest state of one monitor key.
type Snapshot struct {
	Key     string          `json:"key"`
	AntNum  int             `json:"ant_num"`
	Updated time.Time       `json:"updated,omitzero"`
	Monitor json.RawMessage `json:"monitor,omitempty"`
	Startup json.RawMessage `json:"startup,omitempty"`
}

// Cache keeps the last publication per monitor key. It is a
// session.Observer.
type Cache struct {
	mu    sync.RWMutex
	byKey map[string]*Snapshot
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{byKey: make(map[string]*Snapshot)}
}

// Observe implements session.Observer.
func (c *Cache) Observe(p session.Publication) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.byKey[p.Key]
	if !ok {
		snap = &Snapshot{Key: p.Key, AntNum: p.AntNum}
		c.byKey[p.Key] = snap
	}
	if p.Startup {
		snap.Startup = p.Payload
		return
	}
	snap.Monitor = p.Payload
	snap.Updated = p.Time
}

// Get returns a copy of the snapshot for key.
func (c *Cache) Get(key string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.byKey[key]
	if !ok {
		return Snapshot{}, false
	}
	return *snap, true
}

// Len returns the number of keys seen.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byKey)
}
