package props

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// CacheEntry is a resolved outcome stored for one field and input hash.
type CacheEntry struct {
	Options  ResolvedOptions
	Children []PropertySpec
}

// Cache stores resolution outcomes keyed by field key and input hash. Entries
// are dropped by field key when the field falls in a dirty set; there is no
// time based expiry.
type Cache interface {
	Get(key string) (CacheEntry, bool)
	Set(field, key string, entry CacheEntry)
	InvalidateFields(fields ...string)
}

// memoryCache is the default per-session Cache.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
	byField map[string]map[string]struct{}
}

// NewMemoryCache constructs an in-memory Cache.
func NewMemoryCache() Cache {
	return &memoryCache{
		entries: map[string]CacheEntry{},
		byField: map[string]map[string]struct{}{},
	}
}

func (c *memoryCache) Get(key string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return CacheEntry{}, false
	}
	return cloneEntry(entry), true
}

func (c *memoryCache) Set(field, key string, entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cloneEntry(entry)
	keys, ok := c.byField[field]
	if !ok {
		keys = map[string]struct{}{}
		c.byField[field] = keys
	}
	keys[key] = struct{}{}
}

func (c *memoryCache) InvalidateFields(fields ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, field := range fields {
		for key := range c.byField[field] {
			delete(c.entries, key)
		}
		delete(c.byField, field)
	}
}

func cloneEntry(entry CacheEntry) CacheEntry {
	out := CacheEntry{Options: entry.Options.clone()}
	if entry.Children != nil {
		out.Children = make([]PropertySpec, len(entry.Children))
		for i, child := range entry.Children {
			out.Children[i] = child.clone()
		}
	}
	return out
}

// cacheKey hashes the field key with the exact refresher subset it read.
func cacheKey(field string, in Input) string {
	names := make([]string, 0, len(in.values))
	for name := range in.values {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(field)
	for _, name := range names {
		b.WriteString("\x00")
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(fingerprint(in.values[name]))
	}
	if in.hasAuth {
		b.WriteString("\x00" + AuthKey + "=")
		b.WriteString(fingerprint(in.auth))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func fingerprint(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%T:%#v", value, value)
	}
	return string(data)
}
