package agent

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/aristath/grantwriter/internal/document"
)

// ToolCache builds at most one search tool per document. Results, including
// failures, are memoized for the cache's lifetime, which is one run.
type ToolCache struct {
	factory document.Factory
	group   singleflight.Group

	mu     sync.Mutex
	tools  map[string]document.SearchTool
	errs   map[string]error
	builds int
}

// NewToolCache creates an empty cache over factory.
func NewToolCache(factory document.Factory) *ToolCache {
	return &ToolCache{
		factory: factory,
		tools:   make(map[string]document.SearchTool),
		errs:    make(map[string]error),
	}
}

// Get returns the tool for h, building it on first use. Concurrent callers
// for the same document share one construction.
func (c *ToolCache) Get(ctx context.Context, h document.Handle) (document.SearchTool, error) {
	id := h.ID()
	if tool, ok, err := c.lookup(id); ok {
		return tool, err
	}

	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		if tool, ok, err := c.lookup(id); ok {
			return tool, err
		}

		tool, err := c.factory.Build(ctx, h)

		c.mu.Lock()
		c.builds++
		if err != nil {
			c.errs[id] = err
		} else {
			c.tools[id] = tool
		}
		c.mu.Unlock()
		return tool, err
	})
	if err != nil {
		return nil, err
	}
	return v.(document.SearchTool), nil
}

func (c *ToolCache) lookup(id string) (document.SearchTool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.errs[id]; ok {
		return nil, true, err
	}
	if tool, ok := c.tools[id]; ok {
		return tool, true, nil
	}
	return nil, false, nil
}

// Builds returns how many constructions the cache has performed.
func (c *ToolCache) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}

// Close closes every built tool.
func (c *ToolCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for id, tool := range c.tools {
		if err := tool.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.tools, id)
	}
	return errors.Join(errs...)
}
