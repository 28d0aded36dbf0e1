package capabilities

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pdok/tilecaps/matrixset"
)

// Snapshot pairs a published document with the registry built alongside it.
// Both are immutable and always replaced together.
type Snapshot struct {
	Document   *Document
	Registry   *matrixset.Registry
	Generation uint64
	Built      time.Time
}

// Cache holds at most one snapshot per key. Readers share the lock only to
// fetch the snapshot pointer; a rebuild holds it exclusively until it publishes.
type Cache struct {
	builder DocumentBuilder
	logger  *log.Logger

	mu         sync.RWMutex
	snapshots  map[Key]*Snapshot
	generation uint64

	builds atomic.Int64
}

func NewCache(builder DocumentBuilder, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{
		builder:   builder,
		logger:    logger,
		snapshots: make(map[Key]*Snapshot),
	}
}

// Get returns the published snapshot for key, building it on a miss. A failed
// build publishes nothing and returns the error. A started build is not
// interrupted when ctx is cancelled.
func (c *Cache) Get(ctx context.Context, key Key) (*Snapshot, error) {
	if s, ok := c.Peek(key); ok {
		return s, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// another writer may have published while we waited for the lock
	if s, ok := c.snapshots[key]; ok {
		return s, nil
	}

	c.builds.Add(1)
	start := time.Now()
	doc, registry, err := c.builder.Build(context.WithoutCancel(ctx), key)
	if err != nil {
		c.logger.Printf("rebuilding capabilities %s/%s failed: %v", key.Version, key.Language, err)
		return nil, err
	}
	c.generation++
	s := &Snapshot{Document: doc, Registry: registry, Generation: c.generation, Built: time.Now()}
	c.snapshots[key] = s
	c.logger.Printf("published capabilities %s/%s generation %d in %v", key.Version, key.Language, s.Generation, time.Since(start))
	return s, nil
}

// Peek returns the published snapshot for key without building.
func (c *Cache) Peek(key Key) (*Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.snapshots[key]
	return s, ok
}

// Invalidate drops the snapshot of one key. The next Get rebuilds it.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, key)
}

func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.snapshots)
}

// Builds counts the rebuilds started so far, failed ones included.
func (c *Cache) Builds() int64 {
	return c.builds.Load()
}
