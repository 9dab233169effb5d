package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "trail-transit:"

// MemcachedBackend stores the whole document under one memcached key.
// Items never expire server-side; freshness is decided from the document timestamp.
type MemcachedBackend struct {
	client *memcache.Client
	key    string
}

// NewMemcachedBackend creates a backend for the named document. addrs is a
// comma-separated list (e.g. "localhost:11211" or "host1:11211,host2:11211").
// timeout and maxIdleConns use package defaults if zero.
func NewMemcachedBackend(addrs, name string, timeout time.Duration, maxIdleConns int) *MemcachedBackend {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedBackend{client: client, key: keyPrefix + name}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (b *MemcachedBackend) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item, err := b.client.Get(b.key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("memcached get %s: %w", b.key, err)
	}
	return item.Value, nil
}

func (b *MemcachedBackend) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.client.Set(&memcache.Item{Key: b.key, Value: data}); err != nil {
		return fmt.Errorf("memcached set %s: %w", b.key, err)
	}
	return nil
}

// Ping checks if memcached is reachable.
func (b *MemcachedBackend) Ping() error {
	return b.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (b *MemcachedBackend) Close() error {
	return b.client.Close()
}
