package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"fiskeat/internal/menu"
	"fiskeat/internal/storage"
)

// Key is the storage key holding the serialized selection list.
const Key = "fiskeat.selection"

var (
	// ErrFlagged is returned when adding an item that is flagged unavailable.
	ErrFlagged = errors.New("item is flagged as unavailable")
	// ErrIndexOutOfRange is returned by Remove for a position outside the list.
	ErrIndexOutOfRange = errors.New("selection index out of range")
)

// Entry is a copy of a food item taken when the user added it.
type Entry = menu.FoodItem

// Store is the ordered, duplicate-tolerant list of selected items.
// Every mutation is written through to kv; an empty list deletes the key.
type Store struct {
	kv      storage.KV
	mu      sync.Mutex
	entries []Entry
}

// NewStore hydrates the list once from kv. A missing key yields an empty store;
// unreadable or corrupt data is logged and also yields an empty store.
func NewStore(kv storage.KV) *Store {
	s := &Store{kv: kv}

	data, ok, err := kv.Get(context.Background(), Key)
	if err != nil {
		log.Printf("Warning: failed to load saved selection, starting empty: %v", err)
		return s
	}
	if !ok {
		return s
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("Warning: saved selection is corrupt, starting empty: %v", err)
		return s
	}
	s.entries = entries
	return s
}

// Add appends a copy of item. Adding the same item twice is allowed.
func (s *Store) Add(item menu.FoodItem) error {
	if item.Flagged {
		return fmt.Errorf("failed to add %s: %w", item.Name, ErrFlagged)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, item.Clone())
	s.persistLocked()
	return nil
}

// Remove deletes the entry at index, leaving other duplicates in place.
func (s *Store) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.entries) {
		return fmt.Errorf("failed to remove entry %d of %d: %w", index, len(s.entries), ErrIndexOutOfRange)
	}
	s.entries = append(s.entries[:index:index], s.entries[index+1:]...)
	s.persistLocked()
	return nil
}

// RemoveByID deletes every entry with the given ID and returns how many were removed.
func (s *Store) RemoveByID(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	removed := len(s.entries) - len(kept)
	if removed == 0 {
		return 0
	}
	s.entries = kept
	s.persistLocked()
	return removed
}

// Clear empties the list and deletes the persisted key.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.persistLocked()
}

// Entries returns a copy of the current list in order.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// persistLocked writes the list, or deletes the key when it is empty.
// Failures are logged and swallowed so the store keeps working in memory.
func (s *Store) persistLocked() {
	ctx := context.Background()

	if len(s.entries) == 0 {
		if err := s.kv.Delete(ctx, Key); err != nil {
			log.Printf("Warning: failed to delete saved selection, continuing in memory: %v", err)
		}
		return
	}

	data, err := json.Marshal(s.entries)
	if err != nil {
		log.Printf("Warning: failed to encode selection: %v", err)
		return
	}
	if err := s.kv.Set(ctx, Key, data); err != nil {
		log.Printf("Warning: failed to save selection, continuing in memory: %v", err)
	}
}
