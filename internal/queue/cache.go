package queue

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

// minCacheSize keeps the cache large enough that active tasks are never
// evicted in practice; the queue itself holds at most a handful of active
// identities at a time.
const minCacheSize = 16

// statusCache is a bounded LRU over task statuses. Evicted entries remain
// reachable through the durable store via the queue's read-through path.
// Callers synchronize through the queue mutex.
type statusCache struct {
	entries *lru.Cache[string, analysis.TaskStatus]
}

func newStatusCache(size int) (*statusCache, error) {
	if size < minCacheSize {
		size = minCacheSize
	}
	entries, err := lru.New[string, analysis.TaskStatus](size)
	if err != nil {
		return nil, fmt.Errorf("new lru: %w", err)
	}
	return &statusCache{entries: entries}, nil
}

func (c *statusCache) get(taskID string) (analysis.TaskStatus, bool) {
	return c.entries.Get(taskID)
}

func (c *statusCache) put(st analysis.TaskStatus) {
	c.entries.Add(st.TaskID, st)
}

func (c *statusCache) values() []analysis.TaskStatus {
	return c.entries.Values()
}
