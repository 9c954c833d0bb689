package query

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/leapstack-labs/roadlens/internal/location"
)

// AliasFor returns the engine alias for a logical path. The alias depends
// only on the normalized path.
func AliasFor(logicalPath string) string {
	return fmt.Sprintf("ds_%016x", xxhash.Sum64String(location.Normalize(logicalPath)))
}

type aliasEntry struct {
	alias      string
	registered bool
}

// AliasCache maps logical paths to aliases and remembers which aliases
// are registered on the session connection. Entries are never reset.
type AliasCache struct {
	mu      sync.Mutex
	entries map[string]*aliasEntry
}

// NewAliasCache creates an empty cache.
func NewAliasCache() *AliasCache {
	return &AliasCache{entries: make(map[string]*aliasEntry)}
}

func (c *AliasCache) entry(logicalPath string) *aliasEntry {
	key := location.Normalize(logicalPath)
	e, ok := c.entries[key]
	if !ok {
		e = &aliasEntry{alias: AliasFor(key)}
		c.entries[key] = e
	}
	return e
}

// Alias returns the alias for logicalPath and whether it is registered.
func (c *AliasCache) Alias(logicalPath string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(logicalPath)
	return e.alias, e.registered
}

// MarkRegistered records that logicalPath's alias is registered.
func (c *AliasCache) MarkRegistered(logicalPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry(logicalPath).registered = true
}

// Len returns the number of known paths.
func (c *AliasCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
