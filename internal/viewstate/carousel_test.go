package viewstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCarousels_SaveAndGet(t *testing.T) {
	t.Parallel()
	c := NewCarousels()
	home := PositionKey{EntityID: "p1", Screen: "home"}
	profile := PositionKey{EntityID: "p1", Screen: "profile"}

	require.True(t, c.Save(home, Position{Index: 2, Offset: 40}))
	require.True(t, c.Save(profile, Position{Index: 1}))

	got, ok := c.Get(home)
	require.True(t, ok)
	assert.Equal(t, Position{Index: 2, Offset: 40}, got)

	got, ok = c.Get(profile)
	require.True(t, ok)
	assert.Equal(t, 1, got.Index)

	_, ok = c.Get(PositionKey{EntityID: "p2", Screen: "home"})
	assert.False(t, ok)
}

func TestCarousels_ClearScreen(t *testing.T) {
	t.Parallel()
	c := NewCarousels()
	c.Save(PositionKey{"p1", "home"}, Position{Index: 1})
	c.Save(PositionKey{"p2", "home"}, Position{Index: 2})
	c.Save(PositionKey{"p1", "profile"}, Position{Index: 3})

	c.ClearScreen("home")
	assert.Equal(t, 1, c.Len())
	assert.False(t, c.Saving())

	// late writes during the refresh are dropped
	assert.False(t, c.Save(PositionKey{"p1", "home"}, Position{Index: 9}))
	_, ok := c.Get(PositionKey{"p1", "home"})
	assert.False(t, ok)

	c.EnableSaving()
	assert.True(t, c.Save(PositionKey{"p1", "home"}, Position{Index: 4}))
	got, ok := c.Get(PositionKey{"p1", "profile"})
	require.True(t, ok)
	assert.Equal(t, 3, got.Index)
}

func TestCarousels_ClearAll(t *testing.T) {
	t.Parallel()
	c := NewCarousels()
	c.Save(PositionKey{"p1", "home"}, Position{Index: 1})
	c.Save(PositionKey{"p1", "profile"}, Position{Index: 1})

	c.ClearAll()
	assert.Zero(t, c.Len())
	assert.False(t, c.Save(PositionKey{"p1", "home"}, Position{}))
	c.EnableSaving()
	assert.True(t, c.Saving())
}
