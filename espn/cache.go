package espn

import (
	"sync"
	"time"

	"livereport-service/pkg/models"
)

// snapshotCache 快照短TTL缓存，按match+competition作键
type snapshotCache struct {
	cache map[string]*cacheEntry
	mu    sync.RWMutex
	ttl   time.Duration
	stop  chan struct{}
}

type cacheEntry struct {
	snapshot  *models.MatchSnapshot
	expiresAt time.Time
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	c := &snapshotCache{
		cache: make(map[string]*cacheEntry),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}

	// 启动清理协程
	go c.cleanupLoop()

	return c
}

// Get 获取缓存的快照
func (c *snapshotCache) Get(key string) (*models.MatchSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.cache[key]
	if !exists {
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		return nil, false
	}

	return entry.snapshot, true
}

// Set 写入缓存
func (c *snapshotCache) Set(key string, snapshot *models.MatchSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[key] = &cacheEntry{
		snapshot:  snapshot,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Size 获取缓存大小
func (c *snapshotCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.cache)
}

// Close 停止清理协程
func (c *snapshotCache) Close() {
	close(c.stop)
}

// cleanupLoop 定期清理过期条目
func (c *snapshotCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

func (c *snapshotCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.cache {
		if now.After(entry.expiresAt) {
			delete(c.cache, key)
		}
	}
}
