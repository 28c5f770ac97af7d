package banner

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DismissAfter is how long a feedback banner stays visible.
const DismissAfter = 5 * time.Second

// Kind distinguishes success feedback from failures.
type Kind string

const (
	Success Kind = "success"
	Error   Kind = "error"
)

// Banner is a single feedback message.
type Banner struct {
	ID      uuid.UUID
	Kind    Kind
	Message string
	ShownAt time.Time
}

// Board shows at most one banner at a time. Showing a new banner replaces the
// current one and restarts the dismiss timer.
type Board struct {
	ttl       time.Duration
	afterFunc func(time.Duration, func()) *time.Timer
	now       func() time.Time

	mu      sync.Mutex
	current *Banner
	timer   *time.Timer
}

// NewBoard creates a Board whose banners dismiss after ttl.
func NewBoard(ttl time.Duration) *Board {
	return &Board{
		ttl:       ttl,
		afterFunc: time.AfterFunc,
		now:       time.Now,
	}
}

// Show replaces the current banner and resets the dismiss timer.
func (b *Board) Show(kind Kind, message string) Banner {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
	}

	bn := Banner{ID: uuid.New(), Kind: kind, Message: message, ShownAt: b.now()}
	b.current = &bn
	id := bn.ID
	b.timer = b.afterFunc(b.ttl, func() { b.expire(id) })
	return bn
}

// expire clears the banner only if it is still the one the timer was started for.
func (b *Board) expire(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil && b.current.ID == id {
		b.current = nil
		b.timer = nil
	}
}

// Current returns the visible banner, if any.
func (b *Board) Current() (Banner, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return Banner{}, false
	}
	return *b.current, true
}

// Dismiss hides the current banner immediately.
func (b *Board) Dismiss() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.current = nil
}
