package rdf

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// queryCache memoizes query results keyed by (query text hash, data
// epoch) so a repeated query against an unchanged chain head is served
// without re-evaluating the join, per spec §4.1. Grounded on the teacher's
// LRU usage for its UTXO/account cache (github.com/hashicorp/golang-lru/v2).
type queryCache struct {
	entries *lru.Cache[string, any]
}

func newQueryCache(size int) *queryCache {
	if size <= 0 {
		return nil
	}
	c, err := lru.New[string, any](size)
	if err != nil {
		// Only returned by lru.New for size <= 0, already excluded above.
		return nil
	}
	return &queryCache{entries: c}
}

func cacheKey(queryText, epoch string) string {
	h := sha256.Sum256([]byte(epoch + "\x00" + queryText))
	return hex.EncodeToString(h[:])
}

func (c *queryCache) get(queryText, epoch string) (any, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(cacheKey(queryText, epoch))
}

func (c *queryCache) put(queryText, epoch string, value any) {
	if c == nil {
		return
	}
	c.entries.Add(cacheKey(queryText, epoch), value)
}

// clear drops every cached entry. Called on any graph mutation: the cache
// is keyed by epoch but a caller may reuse an epoch token across a single
// in-progress write, so mutation always invalidates defensively.
func (c *queryCache) clear() {
	if c == nil {
		return
	}
	c.entries.Purge()
}
