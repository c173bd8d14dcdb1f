package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledCacheIsAlwaysAMiss(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)

	c.Set(context.Background(), "k", "v", time.Minute)
	_, ok = c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestMemoryGetSetExpire(t *testing.T) {
	m := NewMemory(10 * time.Millisecond)
	m.Set("k", "v")

	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(20 * time.Millisecond)
	_, ok = m.Get("k")
	assert.False(t, ok)
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory(time.Minute)
	m.Set("k", "v")
	m.Delete("k")
	_, ok := m.Get("k")
	assert.False(t, ok)
}
