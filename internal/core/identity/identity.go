// Package identity holds the process-wide service identity string sent in
// the server header of every assembled response.
package identity

import "sync/atomic"

// DefaultName is used until a name is stored.
const DefaultName = "backstop"

// Cell is an atomically swappable identity string. Reads are lock-free;
// the last Store wins. The zero value reads as DefaultName.
type Cell struct {
	v atomic.Pointer[string]
}

// NewCell creates a Cell holding name.
func NewCell(name string) *Cell {
	c := &Cell{}
	c.Store(name)
	return c
}

// Load returns the current identity.
func (c *Cell) Load() string {
	if p := c.v.Load(); p != nil {
		return *p
	}
	return DefaultName
}

// Store replaces the identity. An empty name resets to DefaultName.
func (c *Cell) Store(name string) {
	if name == "" {
		c.Reset()
		return
	}
	c.v.Store(&name)
}

// Reset restores DefaultName.
func (c *Cell) Reset() {
	c.v.Store(nil)
}
