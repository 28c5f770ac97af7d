// Package snapshot holds the menu currently on screen and decides which fetch
// responses are allowed to replace it.
package snapshot

import (
	"sync"

	"fiskeat/internal/menu"
)

// Ticket identifies one menu fetch. Only the most recently issued ticket may commit.
type Ticket struct {
	Seq  uint64
	Date string
}

// Cache owns the displayed snapshot and the navigated date.
type Cache struct {
	mu      sync.RWMutex
	current *menu.Snapshot
	date    string
	issued  uint64
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{}
}

// Begin records navigation to date and issues a ticket for its fetch. Navigating to a
// different date drops the displayed snapshot so nothing from the old date stays actionable.
func (c *Cache) Begin(date string) Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.issued++
	if c.date != date {
		c.current = nil
	}
	c.date = date
	return Ticket{Seq: c.issued, Date: date}
}

// IsLatest reports whether t is the most recently issued ticket.
func (c *Cache) IsLatest(t Ticket) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return t.Seq == c.issued
}

// Commit replaces the snapshot wholesale if t is still the latest ticket.
// Stale responses are discarded and reported as false.
func (c *Cache) Commit(t Ticket, s *menu.Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.Seq != c.issued {
		return false
	}
	c.current = s
	return true
}

// Current returns the displayed snapshot. Callers must treat it as read-only.
func (c *Cache) Current() *menu.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// View returns the displayed snapshot together with the navigated date, read atomically.
func (c *Cache) View() (*menu.Snapshot, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.date
}

// Date returns the navigated date.
func (c *Cache) Date() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.date
}

// Rewrite applies fn to the current snapshot if it still belongs to date.
// fn must return a new snapshot rather than modify its argument.
func (c *Cache) Rewrite(date string, fn func(*menu.Snapshot) (*menu.Snapshot, bool)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.current.Date != date {
		return false
	}
	next, ok := fn(c.current)
	if !ok {
		return false
	}
	c.current = next
	return true
}
