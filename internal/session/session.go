// Package session is the single owner of the client's mutable state: the displayed
// menu, the selection, nutrition goals, filter criteria and feedback banners.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"fiskeat/internal/banner"
	"fiskeat/internal/chat"
	"fiskeat/internal/filter"
	"fiskeat/internal/flag"
	"fiskeat/internal/menu"
	"fiskeat/internal/nutrition"
	"fiskeat/internal/selection"
	"fiskeat/internal/snapshot"
	"fiskeat/internal/storage"
)

var (
	// ErrSuperseded is returned by Navigate when a newer navigation replaced the fetch.
	ErrSuperseded = errors.New("menu fetch superseded by a newer navigation")
	// ErrItemNotFound is returned when an item is not on the displayed menu.
	ErrItemNotFound = errors.New("item not found in the current menu")
	// ErrChatUnavailable is returned when no chat collaborator is configured.
	ErrChatUnavailable = errors.New("chat is not configured")
)

// MenuFetcher loads menus and item details from the backend.
type MenuFetcher interface {
	FetchMenu(ctx context.Context, date string) (*menu.Snapshot, error)
	FetchFoodDetail(ctx context.Context, id string) (*menu.FoodItem, error)
}

// Chatter answers chat messages.
type Chatter interface {
	SendMessage(ctx context.Context, history []chat.Message, prefs *chat.Preferences, menuCtx *menu.Snapshot) (chat.Reply, error)
}

// Deps are the collaborators a Session needs. Chat may be nil.
type Deps struct {
	Menus   MenuFetcher
	Flags   flag.Toggler
	Chat    Chatter
	Storage storage.KV
}

// Session holds all state for one user.
type Session struct {
	menus     MenuFetcher
	chat      Chatter
	cache     *snapshot.Cache
	selection *selection.Store
	goals     *nutrition.GoalsStore
	banners   *banner.Board
	flags     *flag.Engine
	now       func() time.Time

	mu       sync.RWMutex
	criteria filter.Criteria
}

// New hydrates persisted state from deps.Storage and wires the flag engine.
func New(deps Deps) *Session {
	s := &Session{
		menus:     deps.Menus,
		chat:      deps.Chat,
		cache:     snapshot.NewCache(),
		selection: selection.NewStore(deps.Storage),
		goals:     nutrition.NewGoalsStore(deps.Storage),
		banners:   banner.NewBoard(banner.DismissAfter),
		now:       time.Now,
	}
	s.flags = flag.NewEngine(deps.Flags, s.cache, s.selection, s.banners)
	return s
}

// Today returns the canonical date for the current day.
func (s *Session) Today() string {
	return menu.Today(s.now())
}

// Navigate fetches the menu for date and makes it the displayed snapshot, unless a
// later navigation started in the meantime, in which case ErrSuperseded is returned.
func (s *Session) Navigate(ctx context.Context, date string) (*menu.Snapshot, error) {
	date, err := menu.CanonicalDate(date)
	if err != nil {
		return nil, err
	}

	ticket := s.cache.Begin(date)
	snap, err := s.menus.FetchMenu(ctx, date)
	if !s.cache.IsLatest(ticket) {
		return nil, ErrSuperseded
	}
	if err != nil {
		s.banners.Show(banner.Error, "Failed to load menu. Please try again.")
		return nil, fmt.Errorf("failed to load menu for %s: %w", date, err)
	}
	if !s.cache.Commit(ticket, snap) {
		return nil, ErrSuperseded
	}
	return snap, nil
}

// Menu returns the displayed snapshot, unfiltered. It may be nil before the first load.
func (s *Session) Menu() *menu.Snapshot {
	return s.cache.Current()
}

// Date returns the navigated date.
func (s *Session) Date() string {
	return s.cache.Date()
}

// SetCriteria replaces the active filter criteria.
func (s *Session) SetCriteria(c filter.Criteria) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.criteria = c
}

// Criteria returns the active filter criteria.
func (s *Session) Criteria() filter.Criteria {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.criteria
}

// FilteredMenu returns the displayed snapshot with the active criteria applied.
func (s *Session) FilteredMenu() *menu.Snapshot {
	return s.FilteredView(s.cache.Current())
}

// FilteredView applies the active criteria to snap, typically the snapshot Navigate
// returned. It returns nil for a nil snapshot.
func (s *Session) FilteredView(snap *menu.Snapshot) *menu.Snapshot {
	if snap == nil {
		return nil
	}
	c := s.Criteria()
	if c.IsZero() {
		return snap
	}
	return filter.Apply(c, snap)
}

// ToggleFlag flips the flag on an item of the displayed menu.
func (s *Session) ToggleFlag(ctx context.Context, mealName, itemID string) (flag.Result, error) {
	return s.flags.Toggle(ctx, mealName, itemID)
}

// IsUpdating reports whether a flag toggle for the item is in flight.
func (s *Session) IsUpdating(mealName, itemID string) bool {
	return s.flags.IsUpdating(mealName, itemID)
}

// AddItem copies an item from the displayed menu into the selection.
func (s *Session) AddItem(mealName, itemID string) (menu.FoodItem, error) {
	var (
		item menu.FoodItem
		err  error
	)
	s.flags.Exclusive(func() {
		found, ok := s.cache.Current().FindItem(mealName, itemID)
		if !ok {
			err = ErrItemNotFound
			return
		}
		if err = s.selection.Add(found); err == nil {
			item = found
		}
	})
	return item, err
}

// RemoveEntry removes the selection entry at index.
func (s *Session) RemoveEntry(index int) error {
	return s.selection.Remove(index)
}

// ClearSelection empties the selection.
func (s *Session) ClearSelection() {
	s.selection.Clear()
}

// Selection returns a copy of the selected entries.
func (s *Session) Selection() []selection.Entry {
	return s.selection.Entries()
}

// Totals sums the nutrients of the current selection.
func (s *Session) Totals() nutrition.Totals {
	return nutrition.Aggregate(s.selection.Entries())
}

// Progress compares the selection totals against the saved goals.
func (s *Session) Progress() []nutrition.NutrientProgress {
	return nutrition.Progress(s.Totals(), s.goals.Saved())
}

// Goals returns the saved goals.
func (s *Session) Goals() nutrition.Goals {
	return s.goals.Saved()
}

// DraftGoals returns the goals being edited.
func (s *Session) DraftGoals() nutrition.Goals {
	return s.goals.Draft()
}

// SetDraftGoal changes one nutrient in the draft.
func (s *Session) SetDraftGoal(nutrient string, value float64) error {
	if value < 0 {
		return fmt.Errorf("goal for %s must not be negative", nutrient)
	}
	g := s.goals.Draft()
	if !g.SetField(nutrient, value) {
		return fmt.Errorf("unknown nutrient %q", nutrient)
	}
	s.goals.SetDraft(g)
	return nil
}

// ResetDraftGoals restores the baseline in the draft only.
func (s *Session) ResetDraftGoals() {
	s.goals.ResetDraft()
}

// SaveGoals commits the draft.
func (s *Session) SaveGoals() nutrition.Goals {
	return s.goals.Save()
}

// FoodDetail loads a single item from the backend.
func (s *Session) FoodDetail(ctx context.Context, id string) (*menu.FoodItem, error) {
	return s.menus.FetchFoodDetail(ctx, id)
}

// Chat sends the conversation with the displayed menu as context.
func (s *Session) Chat(ctx context.Context, history []chat.Message) (chat.Reply, error) {
	if s.chat == nil {
		return chat.Reply{Error: ErrChatUnavailable.Error()}, ErrChatUnavailable
	}

	goals := s.goals.Saved()
	c := s.Criteria()
	prefs := &chat.Preferences{Allergens: c.ExcludedAllergens, Goals: &goals}
	for _, tag := range c.Tags {
		prefs.Dietary = append(prefs.Dietary, string(tag))
	}

	reply, err := s.chat.SendMessage(ctx, history, prefs, s.cache.Current())
	if err != nil {
		log.Printf("Chat request failed: %v", err)
	}
	return reply, err
}

// Banner returns the visible feedback banner, if any.
func (s *Session) Banner() (banner.Banner, bool) {
	return s.banners.Current()
}
