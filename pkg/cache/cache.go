// Package cache keeps rendered report payloads so repeated dashboard queries
// skip the store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
)

const prefix = "report:"

// ReportCache stores encoded report payloads. Invalidate drops every report,
// since a new feedback record or event can change any of them.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte) error
	Invalidate(ctx context.Context) error
}

// Key builds the cache key of a report for its canonical parameter string.
func Key(report, params string) string {
	if params == "" {
		return prefix + report
	}
	return prefix + report + "?" + params
}

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading report cache: %w", err)
	}
	return data, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, payload []byte) error {
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing report cache: %w", err)
	}
	return nil
}

func (c *Redis) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Log.WithError(err).WithField("key", iter.Val()).Warn("Failed to delete cached report")
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning report cache: %w", err)
	}
	logger.Log.WithField("deleted", deleted).Debug("Report cache invalidated")
	return nil
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte) error         { return nil }
func (Nop) Invalidate(context.Context) error                  { return nil }

type entry struct {
	payload []byte
	expires time.Time
}

// Memory is a process-local ReportCache.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, entries: make(map[string]entry)}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.ttl > 0 && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.payload...), true, nil
}

func (c *Memory) Set(_ context.Context, key string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{payload: append([]byte(nil), payload...), expires: c.now().Add(c.ttl)}
	return nil
}

func (c *Memory) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	return nil
}

var (
	_ ReportCache = (*Redis)(nil)
	_ ReportCache = Nop{}
	_ ReportCache = (*Memory)(nil)
)
