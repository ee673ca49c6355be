package h

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

type Cache interface {
	Get(key string) (any, bool)
	SetWithTTL(key string, value any, ttl time.Duration)
	Close()
}

type cacheImpl struct {
	internal *ristretto.Cache[string, any]
}

func NewCache() (Cache, error) {
	internal, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &cacheImpl{
		internal: internal,
	}, nil
}

func (c *cacheImpl) Get(key string) (any, bool) {
	return c.internal.Get(key)
}

// SetWithTTL blocks until the write is visible to Get. Non-positive ttls
// are ignored.
func (c *cacheImpl) SetWithTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if c.internal.SetWithTTL(key, value, 1, ttl) {
		c.internal.Wait()
	}
}

func (c *cacheImpl) Close() {
	c.internal.Close()
}
