package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/stayloop/stayloop-backend/internal/domain/security"
)

// BlocklistPrefix namespaces cached block rows
const BlocklistPrefix = "blocklist:"

// Cache TTLs for block lookups. Present rows can be cached longer because a
// block only ever ends by its own expiry, which Active re-checks on every
// read; the absent-row TTL bounds how long a freshly blocked IP can still
// slip past a node that cached the miss.
const (
	blocklistHitTTL  = 30 * time.Second
	blocklistMissTTL = 10 * time.Second
)

// BlockStore is the persistent block list the cache sits in front of
type BlockStore interface {
	UpsertBlockedIP(ctx context.Context, block security.BlockedIP) error
	GetBlockedIP(ctx context.Context, ip string) (*security.BlockedIP, error)
}

// cachedBlock wraps the row so an absent row ("nobody blocked this IP") is
// cacheable as well
type cachedBlock struct {
	Block *security.BlockedIP `json:"block"`
}

// BlocklistCache is a read-through cache over the block list. Every inbound
// request consults the block list, so lookups vastly outnumber writes; the
// cache keeps that check off the database. Cache failures degrade to the
// store, never to a denied or allowed decision on their own.
type BlocklistCache struct {
	store  BlockStore
	cache  Cache
	logger *zap.Logger
}

// NewBlocklistCache wraps a block store with a cache layer
func NewBlocklistCache(store BlockStore, cache Cache, logger *zap.Logger) *BlocklistCache {
	return &BlocklistCache{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// GetBlockedIP returns the block row for ip, nil when none exists
func (c *BlocklistCache) GetBlockedIP(ctx context.Context, ip string) (*security.BlockedIP, error) {
	key := BlocklistPrefix + ip

	var cached cachedBlock
	err := c.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		return cached.Block, nil
	}
	var notFound ErrCacheKeyNotFound
	if !errors.As(err, &notFound) {
		c.logger.Debug("blocklist cache read failed", zap.String("ip", ip), zap.Error(err))
	}

	block, err := c.store.GetBlockedIP(ctx, ip)
	if err != nil {
		return nil, err
	}

	ttl := blocklistMissTTL
	if block != nil {
		ttl = blocklistHitTTL
	}
	if err := c.cache.SetJSON(ctx, key, cachedBlock{Block: block}, ttl); err != nil {
		c.logger.Debug("blocklist cache write failed", zap.String("ip", ip), zap.Error(err))
	}

	return block, nil
}

// UpsertBlockedIP persists the block and writes it through to the cache so a
// new block takes effect without waiting out a cached miss
func (c *BlocklistCache) UpsertBlockedIP(ctx context.Context, block security.BlockedIP) error {
	if err := c.store.UpsertBlockedIP(ctx, block); err != nil {
		return err
	}

	key := BlocklistPrefix + block.IPAddress
	if err := c.cache.SetJSON(ctx, key, cachedBlock{Block: &block}, blocklistHitTTL); err != nil {
		c.logger.Warn("blocklist cache write-through failed", zap.String("ip", block.IPAddress), zap.Error(err))
		// Drop any stale miss entry so readers fall back to the store
		if err := c.cache.Delete(ctx, key); err != nil {
			c.logger.Warn("blocklist cache invalidation failed", zap.String("ip", block.IPAddress), zap.Error(err))
		}
	}

	return nil
}
