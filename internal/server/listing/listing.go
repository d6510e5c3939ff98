// Package listing caches directory listings for status replies and AI context.
package listing

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	// DefaultTTL bounds how stale a listing may be when nothing invalidates it.
	DefaultTTL  = 3 * time.Second
	lsTimeout   = 5 * time.Second
	maxLongSize = 8 << 10
)

// Cache holds two views of each directory: bare names and an ls -lhA table.
type Cache struct {
	names *ttlcache.Cache[string, []string]
	long  *ttlcache.Cache[string, string]
}

// New creates a Cache and starts its expiry loops.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		names: ttlcache.New[string, []string](
			ttlcache.WithTTL[string, []string](ttl),
			ttlcache.WithDisableTouchOnHit[string, []string](),
		),
		long: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](ttl),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}
	go c.names.Start()
	go c.long.Start()
	return c
}

// Close stops the expiry loops.
func (c *Cache) Close() {
	c.names.Stop()
	c.long.Stop()
}

// Names returns the entries of dir, sorted, hidden files included.
func (c *Cache) Names(dir string) ([]string, error) {
	if item := c.names.Get(dir); item != nil {
		return item.Value(), nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing: read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	c.names.Set(dir, names, ttlcache.DefaultTTL)
	return names, nil
}

// Long returns `ls -lhA` output for dir, or a short placeholder when the
// directory cannot be listed.
func (c *Cache) Long(ctx context.Context, dir string) string {
	if item := c.long.Get(dir); item != nil {
		return item.Value()
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "<directory not found>"
	}

	ctx, cancel := context.WithTimeout(ctx, lsTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "ls", "-lhA")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "<could not list files>"
	}
	text := strings.TrimSpace(string(out))
	if len(text) > maxLongSize {
		text = text[:maxLongSize] + "\n..."
	}
	c.long.Set(dir, text, ttlcache.DefaultTTL)
	return text
}

// Invalidate drops both views of dir.
func (c *Cache) Invalidate(dir string) {
	c.names.Delete(dir)
	c.long.Delete(dir)
}

// Reset drops every cached listing.
func (c *Cache) Reset() {
	c.names.DeleteAll()
	c.long.DeleteAll()
}
