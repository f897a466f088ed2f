package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rtemis/reimbursement/core/fee"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	r1 := fee.Report{SchoolID: "s1", Rows: []fee.Row{{SlNo: 1, Total: "10.00"}}}
	r2 := fee.Report{SchoolID: "s2"}
	c.Set(ctx, fee.CacheKeyPrefix("s1")+"2024_25:central_head:", r1)
	c.Set(ctx, fee.CacheKeyPrefix("s1")+"2024_25:state_head:", r1)
	c.Set(ctx, fee.CacheKeyPrefix("s2")+"2024_25:central_head:", r2)

	got, ok := c.Get(ctx, fee.CacheKeyPrefix("s1")+"2024_25:central_head:")
	assert.True(t, ok)
	assert.Equal(t, r1, got)

	_, ok = c.Get(ctx, "report:unknown")
	assert.False(t, ok)

	t.Run("invalidate school", func(t *testing.T) {
		c.InvalidateSchool(ctx, "s1")
		assert.Equal(t, 1, c.Len())
		_, ok := c.Get(ctx, fee.CacheKeyPrefix("s1")+"2024_25:state_head:")
		assert.False(t, ok)
		_, ok = c.Get(ctx, fee.CacheKeyPrefix("s2")+"2024_25:central_head:")
		assert.True(t, ok)
	})

	t.Run("expiry", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		_, ok := c.Get(ctx, fee.CacheKeyPrefix("s2")+"2024_25:central_head:")
		assert.False(t, ok)
	})
}

func TestMemoryCache_eviction(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("expired entries are dropped", func(t *testing.T) {
		c := NewMemoryCache(time.Minute)
		c.now = func() time.Time { return now }
		c.Set(ctx, "report:s1:a", fee.Report{})
		c.Set(ctx, "report:s1:b", fee.Report{})
		assert.Equal(t, 2, c.Len())

		c.now = func() time.Time { return now.Add(2 * time.Minute) }
		c.Set(ctx, "report:s2:a", fee.Report{SchoolID: "s2"})
		assert.Equal(t, 1, c.Len())
		got, ok := c.Get(ctx, "report:s2:a")
		assert.True(t, ok)
		assert.Equal(t, "s2", got.SchoolID)
	})

	t.Run("full cache drops the entry closest to expiry", func(t *testing.T) {
		c := NewMemoryCache(time.Minute)
		c.max = 3
		for i, key := range []string{"k0", "k1", "k2", "k3"} {
			at := now.Add(time.Duration(i) * time.Second)
			c.now = func() time.Time { return at }
			c.Set(ctx, key, fee.Report{})
		}
		assert.Equal(t, 3, c.Len())
		_, ok := c.Get(ctx, "k0")
		assert.False(t, ok)
		for _, key := range []string{"k1", "k2", "k3"} {
			_, ok = c.Get(ctx, key)
			assert.True(t, ok, key)
		}
	})

	t.Run("overwriting a key does not evict", func(t *testing.T) {
		c := NewMemoryCache(time.Minute)
		c.max = 2
		c.now = func() time.Time { return now }
		c.Set(ctx, "k0", fee.Report{})
		c.Set(ctx, "k1", fee.Report{})
		c.Set(ctx, "k1", fee.Report{SchoolID: "again"})
		assert.Equal(t, 2, c.Len())
		_, ok := c.Get(ctx, "k0")
		assert.True(t, ok)
	})
}
