package audio

import (
	"context"
	"sync"
	"time"

	"github.com/gopxl/beep"

	"github.com/lixenwraith/clicktrack/core"
)

// SampleCache stores decoded buffers by identifier; entries are never replaced or evicted
type SampleCache struct {
	loader     *Loader
	retryAfter time.Duration
	now        func() time.Time

	mu       sync.RWMutex
	buffers  map[string]*beep.Buffer
	inflight map[string]*Batch
	failedAt map[string]time.Time
}

// NewSampleCache creates an empty cache filled through loader
func NewSampleCache(loader *Loader, retryAfter time.Duration) *SampleCache {
	return &SampleCache{
		loader:     loader,
		retryAfter: retryAfter,
		now:        time.Now,
		buffers:    make(map[string]*beep.Buffer),
		inflight:   make(map[string]*Batch),
		failedAt:   make(map[string]time.Time),
	}
}

// Get returns the cached buffer for id
func (c *SampleCache) Get(id string) (*beep.Buffer, bool) {
	c.mu.RLock()
	buf, ok := c.buffers[id]
	c.mu.RUnlock()
	return buf, ok
}

// Len returns the number of cached buffers
func (c *SampleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.buffers)
}

// Merge inserts every buffer whose identifier is not cached yet
// Returns the number of new entries
func (c *SampleCache) Merge(buffers map[string]*beep.Buffer) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for id, buf := range buffers {
		if buf == nil {
			continue
		}
		if _, exists := c.buffers[id]; exists {
			continue
		}
		c.buffers[id] = buf
		delete(c.failedAt, id)
		added++
	}
	return added
}

// MaybeLoad starts a single-identifier batch for a sample source that is neither
// cached, already loading, nor inside its retry backoff. Returns nil when nothing was started.
func (c *SampleCache) MaybeLoad(ctx context.Context, src SoundSource) *Batch {
	id, ok := src.SampleID()
	if !ok {
		return nil
	}

	c.mu.RLock()
	_, cached := c.buffers[id]
	c.mu.RUnlock()
	if cached {
		return nil
	}

	return c.start(ctx, []string{id})
}

// Preload starts one batch for all ids not yet cached or loading
// Returns nil when every id is already covered
func (c *SampleCache) Preload(ctx context.Context, ids ...string) *Batch {
	return c.start(ctx, ids)
}

func (c *SampleCache) start(ctx context.Context, ids []string) *Batch {
	now := c.now()

	c.mu.Lock()
	pending := make([]string, 0, len(ids))
	for _, id := range dedupe(ids) {
		if _, cached := c.buffers[id]; cached {
			continue
		}
		if _, loading := c.inflight[id]; loading {
			continue
		}
		if at, failed := c.failedAt[id]; failed && now.Sub(at) < c.retryAfter {
			continue
		}
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		c.mu.Unlock()
		return nil
	}

	b := c.loader.Load(ctx, pending, func(buffers map[string]*beep.Buffer) {
		c.Merge(buffers)
	})
	for _, id := range pending {
		c.inflight[id] = b
	}
	c.mu.Unlock()

	core.Go(func() { c.settle(b, pending) })
	return b
}

// settle clears the in-flight markers once b ends and records failures for backoff
func (c *SampleCache) settle(b *Batch, ids []string) {
	<-b.Done()
	failed := b.Err() != nil
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if c.inflight[id] == b {
			delete(c.inflight, id)
		}
		if _, cached := c.buffers[id]; failed && !cached {
			c.failedAt[id] = now
		}
	}
}

// Loading reports whether id has a batch in flight
func (c *SampleCache) Loading(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.inflight[id]
	return ok
}
