// Package viewstate holds UI state that outlives a single screen but not the
// process, such as image carousel scroll positions.
package viewstate

import "sync"

// PositionKey identifies one carousel: the post it shows on one screen.
type PositionKey struct {
	EntityID string `json:"entity_id"`
	Screen   string `json:"screen"`
}

// Position is a carousel scroll position.
type Position struct {
	Index  int `json:"index"`
	Offset int `json:"offset"`
}

// Carousels stores carousel positions. Saving can be paused while a screen
// refreshes so late callbacks from recycled views don't write back stale
// positions.
type Carousels struct {
	mu        sync.RWMutex
	positions map[PositionKey]Position
	disabled  bool
}

func NewCarousels() *Carousels {
	return &Carousels{positions: make(map[PositionKey]Position)}
}

// Save records p for k. It reports false when saving is paused.
func (c *Carousels) Save(k PositionKey, p Position) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled {
		return false
	}
	c.positions[k] = p
	return true
}

func (c *Carousels) Get(k PositionKey) (Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.positions[k]
	return p, ok
}

// ClearScreen pauses saving and forgets every position on screen. Call
// EnableSaving once the refreshed list is shown.
func (c *Carousels) ClearScreen(screen string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = true
	for k := range c.positions {
		if k.Screen == screen {
			delete(c.positions, k)
		}
	}
}

// ClearAll pauses saving and forgets every position.
func (c *Carousels) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = true
	clear(c.positions)
}

func (c *Carousels) EnableSaving() {
	c.mu.Lock()
	c.disabled = false
	c.mu.Unlock()
}

// Saving reports whether Save currently records positions.
func (c *Carousels) Saving() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled
}

// Len returns the number of stored positions.
func (c *Carousels) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.positions)
}
