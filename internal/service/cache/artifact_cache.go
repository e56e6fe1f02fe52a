package cache

import (
	"sync"
	"time"

	"CryptoPulse/internal/domain/models"
)

type entry struct {
	artifact *models.Artifact
	exp      time.Time
}

// ArtifactCache holds loaded model artifacts in process. It is owned by the
// model store and injected, never reached through a package variable. Put
// publishes a replacement in one step, so readers see either the old or the
// new artifact.
type ArtifactCache struct {
	mu  sync.RWMutex
	m   map[models.ArtifactKey]entry
	ttl time.Duration
	now func() time.Time
}

// NewArtifactCache creates a cache. A zero ttl keeps entries until cleared.
func NewArtifactCache(ttl time.Duration) *ArtifactCache {
	return &ArtifactCache{m: make(map[models.ArtifactKey]entry), ttl: ttl, now: time.Now}
}

func (c *ArtifactCache) Get(key models.ArtifactKey) (*models.Artifact, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && c.now().After(e.exp) {
		c.mu.Lock()
		if cur, still := c.m[key]; still && cur.exp.Equal(e.exp) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.artifact, true
}

func (c *ArtifactCache) Put(a *models.Artifact) {
	var exp time.Time
	if c.ttl > 0 {
		exp = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.m[a.Key] = entry{artifact: a, exp: exp}
	c.mu.Unlock()
}

func (c *ArtifactCache) Delete(key models.ArtifactKey) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

// Clear drops every entry and returns how many were held.
func (c *ArtifactCache) Clear() int {
	c.mu.Lock()
	n := len(c.m)
	c.m = make(map[models.ArtifactKey]entry)
	c.mu.Unlock()
	return n
}

func (c *ArtifactCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
