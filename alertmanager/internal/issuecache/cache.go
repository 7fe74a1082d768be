package issuecache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"av-ops-console/shared/cachex"
	"av-ops-console/shared/issues"
	"av-ops-console/shared/lockx"
	"av-ops-console/shared/logx"
)

const (
	snapshotKey  = "alertmanager:issues:snapshot"
	snapshotTTL  = 10 * time.Minute
	resyncLock   = "alertmanager:issues:resync"
	resyncLockTT = 30 * time.Second
)

type Source interface {
	ActiveIssues(ctx context.Context) ([]issues.Issue, error)
}

// Cache keeps the active issue set in memory so reads never touch the
// database on the hot path. The set is mirrored to redis so a restart
// can warm-start, and Resync rebuilds it from the store under a
// distributed lock so only one replica hits the database at a time.
type Cache struct {
	source Source
	redis  *cachex.Client
	log    logx.Logger

	mu     sync.RWMutex
	byID   map[string]issues.Issue
	byRoom map[string]string
}

func New(source Source, redis *cachex.Client, log logx.Logger) *Cache {
	return &Cache{
		source: source,
		redis:  redis,
		log:    log,
		byID:   make(map[string]issues.Issue),
		byRoom: make(map[string]string),
	}
}

// WarmStart fills the cache from the redis snapshot when one exists,
// falling back to a full resync from the store.
func (c *Cache) WarmStart(ctx context.Context) error {
	if c.redis != nil {
		var snapshot []issues.Issue
		found, err := c.redis.GetJSON(ctx, snapshotKey, &snapshot)
		if err != nil {
			c.log.Warn(ctx, "cache_snapshot_read_failed", "falling back to store resync", slog.String("error", err.Error()))
		} else if found {
			c.replace(snapshot)
			c.log.Info(ctx, "cache_warm_start", "loaded issue snapshot from redis", slog.Int("issues", len(snapshot)))
			return nil
		}
	}
	return c.Resync(ctx)
}

// Resync rebuilds the cache from the store and refreshes the redis
// snapshot. When another replica holds the resync lock the local
// memory is still rebuilt; only the snapshot write is skipped.
func (c *Cache) Resync(ctx context.Context) error {
	list, err := c.source.ActiveIssues(ctx)
	if err != nil {
		return err
	}
	c.replace(list)

	if c.redis == nil {
		return nil
	}
	lock, acquired, err := lockx.Acquire(ctx, c.redis.Client(), resyncLock, resyncLockTT)
	if err != nil {
		c.log.Warn(ctx, "cache_lock_failed", "skipping snapshot write", slog.String("error", err.Error()))
		return nil
	}
	if !acquired {
		return nil
	}
	defer func() {
		if err := lockx.Release(ctx, c.redis.Client(), lock); err != nil {
			c.log.Warn(ctx, "cache_lock_release_failed", "resync lock release failed", slog.String("error", err.Error()))
		}
	}()

	if err := c.redis.SetJSON(ctx, snapshotKey, list, snapshotTTL); err != nil {
		c.log.Warn(ctx, "cache_snapshot_write_failed", "snapshot write failed", slog.String("error", err.Error()))
	}
	return nil
}

// ResyncEvery rebuilds the cache on a fixed interval until ctx is
// cancelled. A failed resync is logged and retried on the next tick,
// so an entry kept past a store outage eventually converges.
func (c *Cache) ResyncEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Resync(ctx); err != nil {
				c.log.Warn(ctx, "cache_resync_failed", "periodic resync failed", slog.String("error", err.Error()))
			}
		}
	}
}

// All returns the cached issues ordered by start time.
func (c *Cache) All() []issues.Issue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := make([]issues.Issue, 0, len(c.byID))
	for _, issue := range c.byID {
		list = append(list, issue)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Start.Equal(list[j].Start) {
			return list[i].ID < list[j].ID
		}
		return list[i].Start.Before(list[j].Start)
	})
	return list
}

// ForRoom returns the cached open issue for a room.
func (c *Cache) ForRoom(roomID string) (issues.Issue, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byRoom[roomID]
	if !ok {
		return issues.Issue{}, false
	}
	issue, ok := c.byID[id]
	return issue, ok
}

// Put inserts or replaces one issue. A closed issue is removed.
func (c *Cache) Put(issue issues.Issue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !issue.Active() {
		delete(c.byID, issue.ID)
		if c.byRoom[issue.Room.ID] == issue.ID {
			delete(c.byRoom, issue.Room.ID)
		}
		return
	}
	c.byID[issue.ID] = issue
	c.byRoom[issue.Room.ID] = issue.ID
}

// Len reports the number of cached open issues.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

func (c *Cache) replace(list []issues.Issue) {
	byID := make(map[string]issues.Issue, len(list))
	byRoom := make(map[string]string, len(list))
	for _, issue := range list {
		if !issue.Active() {
			continue
		}
		byID[issue.ID] = issue
		byRoom[issue.Room.ID] = issue.ID
	}
	c.mu.Lock()
	c.byID = byID
	c.byRoom = byRoom
	c.mu.Unlock()
}
