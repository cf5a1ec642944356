// Package hostcache resolves game server host names to IPv4 addresses and
// caches the results for a bounded time. Failures are cached like
// successes, so a host that does not resolve is not retried on every
// character list request. Entries age out after the configured expiry and
// are resolved again on the next lookup.
package hostcache

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/openmmo/querymanager/internal/logger"
	"github.com/openmmo/querymanager/pkg/config"
)

type entry struct {
	address    uint32
	resolved   bool
	resolvedAt time.Time
}

// lookupFunc resolves a host name to its addresses. Tests swap it out.
type lookupFunc func(ctx context.Context, host string) ([]net.IP, error)

// Cache is a bounded host name resolution cache. When full, the entry
// resolved longest ago makes room for the new one. Safe for concurrent
// use; two goroutines missing on the same name may both hit the resolver,
// in which case the later result wins.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]entry
	capacity int
	expiry   time.Duration

	lookup lookupFunc
	now    func() time.Time
}

// New builds a cache sized and aged per cfg.
func New(cfg config.HostCacheConfig) *Cache {
	capacity := cfg.MaxEntries
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		entries:  make(map[string]entry, capacity),
		capacity: capacity,
		expiry:   cfg.ExpireTime,
		lookup: func(ctx context.Context, host string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip4", host)
		},
		now: time.Now,
	}
}

// Resolve returns the IPv4 address for name in host byte order, first
// octet in the most significant byte. The boolean is false for an empty
// name, a fresh cached failure, or a resolver miss.
func (c *Cache) Resolve(ctx context.Context, name string) (uint32, bool) {
	if name == "" {
		return 0, false
	}

	c.mu.Lock()
	now := c.now()
	c.sweep(now)
	if e, ok := c.entries[name]; ok {
		c.mu.Unlock()
		return e.address, e.resolved
	}
	c.mu.Unlock()

	// The resolver call happens unlocked so a slow lookup does not stall
	// unrelated queries.
	address, resolved := c.resolveHost(ctx, name)

	c.mu.Lock()
	if _, ok := c.entries[name]; !ok && len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	c.entries[name] = entry{address: address, resolved: resolved, resolvedAt: now}
	c.mu.Unlock()

	return address, resolved
}

// Len reports the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sweep drops entries older than the expiry. Caller holds c.mu.
func (c *Cache) sweep(now time.Time) {
	for name, e := range c.entries {
		if now.Sub(e.resolvedAt) >= c.expiry {
			delete(c.entries, name)
		}
	}
}

// evictOldest removes the entry resolved longest ago. Caller holds c.mu.
func (c *Cache) evictOldest() {
	var (
		oldestName string
		oldestAt   time.Time
		found      bool
	)
	for name, e := range c.entries {
		if !found || e.resolvedAt.Before(oldestAt) {
			oldestName, oldestAt, found = name, e.resolvedAt, true
		}
	}
	if found {
		delete(c.entries, oldestName)
	}
}

func (c *Cache) resolveHost(ctx context.Context, name string) (uint32, bool) {
	ips, err := c.lookup(ctx, name)
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to resolve hostname",
			logger.Hostname(name), logger.Err(err))
		return 0, false
	}

	for _, ip := range ips {
		ip4 := ip.To4()
		if ip4 == nil {
			continue
		}
		return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 |
			uint32(ip4[2])<<8 | uint32(ip4[3]), true
	}

	logger.ErrorCtx(ctx, "Failed to resolve hostname",
		logger.Hostname(name), logger.Reason("no IPv4 address"))
	return 0, false
}
