package obd

import "github.com/puzpuzpuz/xsync/v3"

// ResponseCache maps command text to the raw reply it produced. Entries
// never expire and are never evicted; staleness is the caller's concern.
type ResponseCache struct {
	entries *xsync.MapOf[string, RawResponse]
}

func NewResponseCache() *ResponseCache {
	return &ResponseCache{
		entries: xsync.NewMapOf[string, RawResponse](),
	}
}

func (c *ResponseCache) Load(key string) (RawResponse, bool) {
	return c.entries.Load(key)
}

// Store overwrites any prior entry for key.
func (c *ResponseCache) Store(key string, raw RawResponse) {
	c.entries.Store(key, raw)
}

func (c *ResponseCache) Delete(key string) {
	c.entries.Delete(key)
}

func (c *ResponseCache) Clear() {
	c.entries.Clear()
}

func (c *ResponseCache) Len() int {
	return c.entries.Size()
}
