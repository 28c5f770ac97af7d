package telegram

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"fiskeat/internal/backend"
	"fiskeat/internal/chat"
	"fiskeat/internal/config"
	"fiskeat/internal/filter"
	"fiskeat/internal/flag"
	"fiskeat/internal/menu"
	"fiskeat/internal/nutrition"
	"fiskeat/internal/session"
	"fiskeat/internal/storage"
)

// MockMenus serves a fixed snapshot for any date in Menus.
type MockMenus struct {
	Menus map[string]*menu.Snapshot
}

func (m *MockMenus) FetchMenu(ctx context.Context, date string) (*menu.Snapshot, error) {
	snap, ok := m.Menus[date]
	if !ok {
		return nil, fmt.Errorf("failed to fetch menu for %s: %w", date, backend.ErrNotFound)
	}
	return snap, nil
}

func (m *MockMenus) FetchFoodDetail(ctx context.Context, id string) (*menu.FoodItem, error) {
	for _, snap := range m.Menus {
		if item, ok := snap.FindByID(id); ok {
			return &item, nil
		}
	}
	return nil, backend.ErrNotFound
}

type MockToggler struct{}

func (MockToggler) ToggleFlag(ctx context.Context, itemID, mealName string, flagged bool) (flag.Response, error) {
	return flag.Response{Success: true, IsFlagged: flagged}, nil
}

// MockChat echoes the number of messages it received.
type MockChat struct{}

func (MockChat) SendMessage(ctx context.Context, history []chat.Message, prefs *chat.Preferences, menuCtx *menu.Snapshot) (chat.Reply, error) {
	return chat.Reply{Success: true, Response: fmt.Sprintf("You sent %d messages.", len(history))}, nil
}

func newTestBot(t *testing.T) (*Bot, string) {
	t.Helper()
	menus := &MockMenus{Menus: map[string]*menu.Snapshot{}}
	kv := storage.NewMemoryStore()
	sess := session.New(session.Deps{Menus: menus, Flags: MockToggler{}, Chat: MockChat{}, Storage: kv})

	today := sess.Today()
	menus.Menus[today] = &menu.Snapshot{
		Date:       today,
		ActiveMeal: "Lunch",
		Meals: []menu.Meal{{Name: "Lunch", Stations: []menu.Station{
			{Name: "Grill", Items: []menu.FoodItem{
				{ID: "1", Name: "Burger", Nutrition: menu.Nutrition{Calories: menu.Number(540)}},
				{ID: "2", Name: "Tofu_Bowl", IsVegan: true, Allergens: []string{"Soy"}},
			}},
		}}},
	}

	cfg := &config.Config{StatePath: t.TempDir()}
	return newBot(nil, cfg, sess, NewHistoryStore(kv), nil), today
}

func TestRespond(t *testing.T) {
	b, today := newTestBot(t)
	ctx := context.Background()

	r := b.respond(ctx, 1, "/menu")
	if !r.Markdown || !strings.Contains(r.Text, "*Menu for "+today+"*") {
		t.Errorf("Unexpected menu reply %q", r.Text)
	}
	if r.Keyboard == nil {
		t.Error("Expected day navigation buttons")
	}
	if !strings.Contains(r.Text, "Tofu\\_Bowl") {
		t.Error("Expected item names to be escaped")
	}

	if r := b.respond(ctx, 1, "/menu 2001-01-01"); !strings.Contains(r.Text, "No menu available") {
		t.Errorf("Unexpected reply for a missing menu %q", r.Text)
	}
	// The failed navigation dropped the displayed menu; load today again.
	b.respond(ctx, 1, "/menu")

	if r := b.respond(ctx, 1, "/add Lunch 1"); !strings.Contains(r.Text, "Added Burger") {
		t.Errorf("Unexpected add reply %q", r.Text)
	}
	if r := b.respond(ctx, 1, "/add Lunch 99"); r.Text != "Item not found in the current menu." {
		t.Errorf("Unexpected reply %q", r.Text)
	}
	if r := b.respond(ctx, 1, "/selection"); !strings.Contains(r.Text, "1. Burger (540 kcal)") {
		t.Errorf("Unexpected selection %q", r.Text)
	}

	r = b.respond(ctx, 1, "/flag lunch 1")
	if !strings.Contains(r.Text, "Burger marked as unavailable.") || !strings.Contains(r.Text, "Removed 1") {
		t.Errorf("Unexpected flag reply %q", r.Text)
	}
	if r := b.respond(ctx, 1, "/add Lunch 1"); !strings.Contains(r.Text, "unavailable") {
		t.Errorf("Expected flagged item to be rejected, got %q", r.Text)
	}
	if r := b.respond(ctx, 1, "/remove 5"); r.Text != "No entry 5 in your selection." {
		t.Errorf("Unexpected remove reply %q", r.Text)
	}

	if r := b.respond(ctx, 1, "/setgoal protein 120"); !strings.Contains(r.Text, "draft: 120") {
		t.Errorf("Expected draft in goals reply, got %q", r.Text)
	}
	b.respond(ctx, 1, "/savegoals")
	if b.session.Goals().Protein != 120 {
		t.Error("Expected goals to be saved")
	}

	if r := b.respond(ctx, 1, "/metrics"); r.Text != "Metrics are not enabled." {
		t.Errorf("Unexpected metrics reply %q", r.Text)
	}
	if r := b.respond(ctx, 1, "/bogus"); !strings.Contains(r.Text, "/help") {
		t.Errorf("Unexpected reply %q", r.Text)
	}
}

func TestRespondFilter(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()

	if r := b.respond(ctx, 1, "/filter vegan"); r.Text != "Filters set. Use /menu to see the menu." {
		t.Errorf("Unexpected reply before loading %q", r.Text)
	}
	r := b.respond(ctx, 1, "/menu")
	if strings.Contains(r.Text, "Burger") || !strings.Contains(r.Text, "Tofu") {
		t.Errorf("Expected only vegan items, got %q", r.Text)
	}

	r = b.respond(ctx, 1, "/filter -Soy")
	if !strings.Contains(r.Text, "Burger") || strings.Contains(r.Text, "Tofu") {
		t.Errorf("Expected soy items excluded, got %q", r.Text)
	}
	if r := b.respond(ctx, 1, "/filter paleo"); !strings.HasPrefix(r.Text, "❌") {
		t.Errorf("Expected an error for an unknown tag, got %q", r.Text)
	}
}

func TestRespondChatKeepsHistory(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()

	if r := b.respond(ctx, 7, "what is vegan?"); r.Text != "You sent 1 messages." {
		t.Errorf("Unexpected reply %q", r.Text)
	}
	if r := b.respond(ctx, 7, "and today?"); r.Text != "You sent 3 messages." {
		t.Errorf("Expected history to be replayed, got %q", r.Text)
	}
	if r := b.respond(ctx, 8, "hello"); r.Text != "You sent 1 messages." {
		t.Errorf("Expected separate history per chat, got %q", r.Text)
	}

	b.respond(ctx, 7, "/reset")
	if r := b.respond(ctx, 7, "hi again"); r.Text != "You sent 1 messages." {
		t.Errorf("Expected history to be cleared, got %q", r.Text)
	}
}

func TestHistoryStoreKeepsRecentMessages(t *testing.T) {
	h := NewHistoryStore(storage.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		if err := h.Append(ctx, 1, chat.Message{Role: chat.RoleUser, Content: fmt.Sprint(i)}); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := h.Load(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != maxStoredMessages || msgs[0].Content != "5" || msgs[len(msgs)-1].Content != "24" {
		t.Errorf("Unexpected history window: %d messages starting at %q", len(msgs), msgs[0].Content)
	}
}

func TestHistoryStoreRecoversFromUnreadableRecord(t *testing.T) {
	kv := storage.NewMemoryStore()
	ctx := context.Background()
	if err := kv.Set(ctx, historyKey(3), []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	h := NewHistoryStore(kv)
	if err := h.Append(ctx, 3, chat.Message{Role: chat.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	msgs, err := h.Load(ctx, 3)
	if err != nil || len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Errorf("Expected a fresh conversation, got %+v (%v)", msgs, err)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text  string
		cmd   string
		args  int
		isCmd bool
	}{
		{"/menu", "menu", 0, true},
		{"/Menu@FiskEatBot 2026-10-19", "menu", 1, true},
		{"  /add Late Night 12 ", "add", 3, true},
		{"what should I eat?", "", 0, false},
	}
	for _, tc := range tests {
		cmd, args, ok := parseCommand(tc.text)
		if cmd != tc.cmd || len(args) != tc.args || ok != tc.isCmd {
			t.Errorf("parseCommand(%q) = %q, %v, %v", tc.text, cmd, args, ok)
		}
	}
}

func TestParseFilterArgs(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		tags      []filter.DietaryTag
		allergens []string
		wantErr   bool
	}{
		{"Empty", "", nil, nil, false},
		{"Tags", "vegan Vegetarian", []filter.DietaryTag{filter.Vegan, filter.Vegetarian}, nil, false},
		{"AllergenWithSpace", "vegan, -Tree Nuts", []filter.DietaryTag{filter.Vegan}, []string{"Tree Nuts"}, false},
		{"SeveralAllergens", "vegetarian -Peanuts -Soy", []filter.DietaryTag{filter.Vegetarian}, []string{"Peanuts", "Soy"}, false},
		{"UnknownTag", "keto", nil, nil, true},
		{"BareDash", "-", nil, nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := parseFilterArgs(tc.raw)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Unexpected error %v", err)
			}
			if fmt.Sprint(c.Tags) != fmt.Sprint(tc.tags) || fmt.Sprint(c.ExcludedAllergens) != fmt.Sprint(tc.allergens) {
				t.Errorf("Unexpected criteria %+v", c)
			}
		})
	}
}

func TestParseItemArgs(t *testing.T) {
	meal, id, err := parseItemArgs([]string{"Late", "Night", "12"})
	if err != nil || meal != "Late Night" || id != "12" {
		t.Errorf("Unexpected result %q %q %v", meal, id, err)
	}
	if _, _, err := parseItemArgs([]string{"12"}); err == nil {
		t.Error("Expected an error without a meal name")
	}
}

func TestFormatMenu(t *testing.T) {
	snap := &menu.Snapshot{
		Date: "2026-10-19",
		Meals: []menu.Meal{{Name: "Dinner", Stations: []menu.Station{
			{Name: "Pasta", Items: []menu.FoodItem{
				{ID: "4", Name: "Penne", IsVegetarian: true, Flagged: true},
				{ID: "5", Name: "Salad", IsVegan: true},
			}},
		}}},
	}

	out := formatMenu(snap, false, func(meal, id string) bool { return id == "5" })
	if !strings.Contains(out, "• `4` Penne 🥕 🚫 _unavailable_") {
		t.Errorf("Missing flagged vegetarian item in %q", out)
	}
	if !strings.Contains(out, "• `5` Salad 🌱 ⏳") {
		t.Errorf("Missing updating marker in %q", out)
	}

	if out := formatMenu(nil, false, nil); !strings.Contains(out, "No menu loaded") {
		t.Errorf("Unexpected output for a missing menu %q", out)
	}

	empty := &menu.Snapshot{Date: "2026-10-19"}
	if !strings.Contains(formatMenu(empty, true, nil), "No items match the active filters.") {
		t.Error("Expected filter hint for an empty filtered menu")
	}
}

func TestFormatProgress(t *testing.T) {
	rows := nutrition.Progress(nutrition.Totals{Calories: 1800, Sodium: 2500}, nutrition.DefaultGoals)
	out := formatProgress(rows)
	if !strings.Contains(out, "🟡 Calories: 1800 / 2000 kcal (90%)") {
		t.Errorf("Missing approaching calories in %q", out)
	}
	if !strings.Contains(out, "🔴 Sodium: 2500 / 2300 mg (100%)") {
		t.Errorf("Missing exceeded sodium in %q", out)
	}
}

func TestSplitMessage(t *testing.T) {
	text := strings.Repeat("line\n", 10)
	chunks := splitMessage(text, 12)
	if strings.Join(chunks, "") != text {
		t.Error("Expected chunks to reassemble the text")
	}
	for _, c := range chunks {
		if len(c) > 12 {
			t.Errorf("Chunk exceeds limit: %q", c)
		}
	}
	if got := splitMessage("short", 12); len(got) != 1 {
		t.Errorf("Expected a single chunk, got %d", len(got))
	}
}
