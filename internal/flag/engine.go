// Package flag decides when an item may be flagged unavailable and carries a toggle
// through the backend, the displayed snapshot and the user's selection.
package flag

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"fiskeat/internal/banner"
	"fiskeat/internal/menu"
)

const failedMessage = "Failed to update flag status. Please try again."

// Response is the backend's answer to a toggle request. IsFlagged is authoritative.
type Response struct {
	Success   bool   `json:"success"`
	IsFlagged bool   `json:"isFlagged"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Toggler sends flag changes to the backend.
type Toggler interface {
	ToggleFlag(ctx context.Context, itemID, mealName string, flagged bool) (Response, error)
}

// Snapshots is the part of the snapshot cache the engine reads and rewrites.
type Snapshots interface {
	View() (*menu.Snapshot, string)
	Rewrite(date string, fn func(*menu.Snapshot) (*menu.Snapshot, bool)) bool
}

// Selection is the part of the selection store a confirmed flag cascades into.
type Selection interface {
	RemoveByID(id string) int
}

// Notifier shows feedback banners.
type Notifier interface {
	Show(kind banner.Kind, message string) banner.Banner
}

// Result describes a successful toggle.
type Result struct {
	ItemID   string
	Meal     string
	Flagged  bool
	Message  string
	Removed  int
	Rewrote  bool
	Duration time.Duration
}

type itemKey struct {
	meal string
	id   string
}

// Engine runs flag toggles. Toggles on distinct items may run concurrently.
type Engine struct {
	toggler   Toggler
	snapshots Snapshots
	selection Selection
	notifier  Notifier
	now       func() time.Time

	mu       sync.Mutex
	updating map[itemKey]struct{}

	// commit serializes applying a confirmed toggle with Exclusive callers.
	commit sync.Mutex
}

// NewEngine wires an Engine to its collaborators.
func NewEngine(toggler Toggler, snapshots Snapshots, selection Selection, notifier Notifier) *Engine {
	return &Engine{
		toggler:   toggler,
		snapshots: snapshots,
		selection: selection,
		notifier:  notifier,
		now:       time.Now,
		updating:  make(map[itemKey]struct{}),
	}
}

// Exclusive runs fn while no confirmed toggle is being applied. A selection change
// made inside fn sees either the snapshot before a flag or the snapshot and
// selection after its cascade, never a mix of the two.
func (e *Engine) Exclusive(fn func()) {
	e.commit.Lock()
	defer e.commit.Unlock()
	fn()
}

// IsUpdating reports whether a toggle for the item is in flight.
func (e *Engine) IsUpdating(mealName, itemID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.updating[itemKey{menu.NormalizeMealName(mealName), itemID}]
	return ok
}

// Toggle flips the flag on the item identified by meal and ID. Failures are returned
// as *Error and also shown as an error banner, except for busy rejections.
func (e *Engine) Toggle(ctx context.Context, mealName, itemID string) (Result, error) {
	start := e.now()
	key := itemKey{menu.NormalizeMealName(mealName), itemID}

	e.mu.Lock()
	if _, busy := e.updating[key]; busy {
		e.mu.Unlock()
		return Result{}, &Error{Kind: KindBusy, Message: "This item is already being updated."}
	}

	snap, date := e.snapshots.View()
	item, ok := snap.FindItem(mealName, itemID)
	if !ok {
		e.mu.Unlock()
		return Result{}, e.fail(&Error{Kind: KindNotFound, Message: "Item not found in the current menu."})
	}

	d := Check(date, mealName, snap.ActiveMeal, menu.Today(e.now()))
	if !d.Eligible {
		e.mu.Unlock()
		return Result{}, e.fail(&Error{Kind: KindIneligible, Message: d.Reason})
	}

	e.updating[key] = struct{}{}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.updating, key)
		e.mu.Unlock()
	}()

	desired := !item.Flagged
	resp, err := e.toggler.ToggleFlag(ctx, itemID, mealName, desired)
	if err != nil {
		return Result{}, e.fail(&Error{Kind: KindTransport, Message: failedMessage, Err: err})
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = failedMessage
		}
		return Result{}, e.fail(&Error{Kind: KindTransport, Message: msg})
	}

	res := Result{ItemID: itemID, Meal: mealName, Flagged: resp.IsFlagged}
	e.commit.Lock()
	res.Rewrote = e.snapshots.Rewrite(date, func(s *menu.Snapshot) (*menu.Snapshot, bool) {
		return s.WithItemFlag(mealName, itemID, resp.IsFlagged)
	})
	if resp.IsFlagged {
		res.Removed = e.selection.RemoveByID(itemID)
	}
	e.commit.Unlock()
	if !res.Rewrote {
		log.Printf("Warning: menu for %s changed while flagging %s, snapshot not updated", date, itemID)
	}

	res.Message = resp.Message
	if res.Message == "" {
		if resp.IsFlagged {
			res.Message = fmt.Sprintf("%s marked as unavailable.", item.Name)
		} else {
			res.Message = fmt.Sprintf("%s marked as available.", item.Name)
		}
	}
	e.notifier.Show(banner.Success, res.Message)
	res.Duration = e.now().Sub(start)
	return res, nil
}

func (e *Engine) fail(err *Error) error {
	e.notifier.Show(banner.Error, err.Message)
	return err
}
