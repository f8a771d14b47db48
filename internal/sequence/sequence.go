// Package sequence hands out human readable identifiers such as ORD000042
// backed by an atomic counter.
package sequence

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Counter is an atomic fetch-and-add. Next returns the incremented value.
type Counter interface {
	Next(ctx context.Context, name string) (int64, error)
}

// RedisCounter increments "seq:<name>" with INCR, which Redis serialises.
type RedisCounter struct {
	client redis.Cmdable
}

func NewRedisCounter(client redis.Cmdable) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Next(ctx context.Context, name string) (int64, error) {
	n, err := c.client.Incr(ctx, "seq:"+name).Result()
	if err != nil {
		return 0, fmt.Errorf("incr sequence %s: %w", name, err)
	}
	return n, nil
}

// Seed raises the counter to at least floor. Used when migrating existing ids.
func (c *RedisCounter) Seed(ctx context.Context, name string, floor int64) error {
	key := "seq:" + name
	cur, err := c.client.Get(ctx, key).Int64()
	if err != nil && err != redis.Nil {
		return err
	}
	if cur >= floor {
		return nil
	}
	return c.client.Set(ctx, key, floor, 0).Err()
}

// MemoryCounter is the in-process counter used by the memory backend.
type MemoryCounter struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{values: make(map[string]int64)}
}

func (c *MemoryCounter) Next(_ context.Context, name string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name]++
	return c.values[name], nil
}

// Generator formats counter values as Prefix + zero padded number.
type Generator struct {
	counter Counter
	name    string
	prefix  string
	width   int
}

func NewGenerator(counter Counter, name, prefix string, width int) *Generator {
	if width <= 0 {
		width = 6
	}
	return &Generator{counter: counter, name: name, prefix: prefix, width: width}
}

func (g *Generator) Next(ctx context.Context) (string, error) {
	n, err := g.counter.Next(ctx, g.name)
	if err != nil {
		return "", err
	}
	return g.Format(n), nil
}

// Format renders n without touching the counter. Numbers wider than the
// configured width are printed in full.
func (g *Generator) Format(n int64) string {
	return fmt.Sprintf("%s%0*d", g.prefix, g.width, n)
}
