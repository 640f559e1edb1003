package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheAddGetContains(t *testing.T) {
	c := NewCache(2)

	_, ok := c.Get("a")
	require.False(t, ok)
	require.False(t, c.Contains("a"))

	c.Add("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.True(t, c.Contains("a"))
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3) // evicts "a", the least recently used

	require.False(t, c.Contains("a"))
	require.True(t, c.Contains("b"))
	require.True(t, c.Contains("c"))
}

func TestCachePurge(t *testing.T) {
	c := NewCache(4)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Purge()

	require.False(t, c.Contains("a"))
	require.False(t, c.Contains("b"))
}
