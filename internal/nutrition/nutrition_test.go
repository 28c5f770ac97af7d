package nutrition

import (
	"context"
	"errors"
	"testing"

	"fiskeat/internal/menu"
	"fiskeat/internal/storage"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		name  string
		value menu.Value
		want  float64
	}{
		{"NotAvailable", menu.Text("N/A"), 0},
		{"UnitSuffix", menu.Text("140mg"), 140},
		{"Number", menu.Number(250), 250},
		{"EmptyString", menu.Text(""), 0},
		{"Decimal", menu.Text("2.5 g"), 2.5},
		{"LeadingLabel", menu.Text("approx 12g"), 12},
		{"AllStripped", menu.Text("trace"), 0},
		{"TwoDots", menu.Text("1.2.3"), 1.2},
		{"SlashSeparated", menu.Text("1.5g/2.0g"), 1.52},
		{"LeadingDot", menu.Text(".5g"), 0.5},
		{"Unset", menu.Value{}, 0},
		{"NegativeSignStripped", menu.Text("-5"), 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseValue(tc.value); got != tc.want {
				t.Errorf("ParseValue(%q) = %v, want %v", tc.value.Raw(), got, tc.want)
			}
		})
	}
}

func item(id string, cal, protein, sodium menu.Value) menu.FoodItem {
	return menu.FoodItem{
		ID: id,
		Nutrition: menu.Nutrition{
			Calories: cal,
			Protein:  protein,
			Sodium:   sodium,
			Fat:      menu.Text("N/A"),
			Sugar:    menu.Number(0.1),
		},
	}
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	items := []menu.FoodItem{
		item("1", menu.Number(250), menu.Text("15g"), menu.Text("400mg")),
		item("2", menu.Text("300"), menu.Number(35), menu.Text("N/A")),
		item("3", menu.Text("N/A"), menu.Text(""), menu.Number(12.5)),
		item("4", menu.Number(0.5), menu.Text("0.25g"), menu.Text("0.3mg")),
	}

	base := Aggregate(items)
	if base.Calories != 550.5 {
		t.Errorf("Expected 550.5 calories, got %v", base.Calories)
	}
	if base.Protein != 50.25 {
		t.Errorf("Expected 50.25 protein, got %v", base.Protein)
	}

	permutations := [][]int{
		{3, 2, 1, 0},
		{1, 3, 0, 2},
		{2, 0, 3, 1},
		{0, 2, 1, 3},
	}
	for _, perm := range permutations {
		shuffled := make([]menu.FoodItem, len(items))
		for i, idx := range perm {
			shuffled[i] = items[idx]
		}
		if got := Aggregate(shuffled); got != base {
			t.Errorf("Aggregate(%v) = %+v, want %+v", perm, got, base)
		}
	}

	if got := Aggregate(nil); got != (Totals{}) {
		t.Errorf("Expected zero totals for empty selection, got %+v", got)
	}
}

func TestPercentageAndTier(t *testing.T) {
	tests := []struct {
		current, goal float64
		pct           int
		tier          Tier
	}{
		{0, 2000, 0, TierOnTrack},
		{1600, 2000, 80, TierApproaching},
		{1980, 2000, 99, TierApproaching},
		{2000, 2000, 100, TierExceeded},
		{2400, 2000, 100, TierExceeded},
		{100, 0, 0, TierOnTrack},
		{1580, 2000, 79, TierOnTrack},
	}

	for _, tc := range tests {
		got := Percentage(tc.current, tc.goal)
		if got != tc.pct {
			t.Errorf("Percentage(%v, %v) = %d, want %d", tc.current, tc.goal, got, tc.pct)
		}
		if tier := TierFor(got); tier != tc.tier {
			t.Errorf("TierFor(%d) = %s, want %s", got, tier, tc.tier)
		}
	}
}

func TestProgressKeepsRawValues(t *testing.T) {
	rows := Progress(Totals{Calories: 2400, Sodium: 100}, DefaultGoals)
	if len(rows) != 6 {
		t.Fatalf("Expected 6 rows, got %d", len(rows))
	}
	cal := rows[0]
	if cal.Current != 2400 || cal.Goal != 2000 {
		t.Errorf("Expected raw 2400/2000, got %v/%v", cal.Current, cal.Goal)
	}
	if cal.Percent != 100 || cal.Tier != TierExceeded {
		t.Errorf("Expected 100%% exceeded, got %d%% %s", cal.Percent, cal.Tier)
	}
	if rows[5].Tier != TierOnTrack {
		t.Errorf("Expected sodium on track, got %s", rows[5].Tier)
	}
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("storage unavailable")
}
func (failingKV) Set(context.Context, string, []byte) error { return errors.New("storage unavailable") }
func (failingKV) Delete(context.Context, string) error      { return errors.New("storage unavailable") }

func TestGoalsStore(t *testing.T) {
	t.Run("DefaultsWithoutKey", func(t *testing.T) {
		s := NewGoalsStore(storage.NewMemoryStore())
		if s.Saved() != DefaultGoals {
			t.Errorf("Expected defaults, got %+v", s.Saved())
		}
	})

	t.Run("ResetDoesNotPersistUntilSave", func(t *testing.T) {
		kv := storage.NewMemoryStore()
		s := NewGoalsStore(kv)

		custom := DefaultGoals
		custom.Calories = 1800
		s.SetDraft(custom)
		s.Save()

		s.ResetDraft()
		if s.Draft() != DefaultGoals {
			t.Errorf("Expected draft to be the baseline, got %+v", s.Draft())
		}
		if s.Saved().Calories != 1800 {
			t.Errorf("Expected saved goals untouched by reset, got %v", s.Saved().Calories)
		}

		reloaded := NewGoalsStore(kv)
		if reloaded.Saved().Calories != 1800 {
			t.Errorf("Expected persisted calories 1800, got %v", reloaded.Saved().Calories)
		}

		s.Save()
		reloaded = NewGoalsStore(kv)
		if reloaded.Saved() != DefaultGoals {
			t.Errorf("Expected baseline after save, got %+v", reloaded.Saved())
		}
	})

	t.Run("CorruptValue", func(t *testing.T) {
		kv := storage.NewMemoryStore()
		_ = kv.Set(context.Background(), GoalsKey, []byte("{not json"))
		s := NewGoalsStore(kv)
		if s.Saved() != DefaultGoals {
			t.Errorf("Expected defaults for corrupt data, got %+v", s.Saved())
		}
	})

	t.Run("StorageFailure", func(t *testing.T) {
		s := NewGoalsStore(failingKV{})
		g := DefaultGoals
		g.Protein = 120
		s.SetDraft(g)
		if saved := s.Save(); saved.Protein != 120 {
			t.Errorf("Expected in-memory save to succeed, got %+v", saved)
		}
	})

	t.Run("SetField", func(t *testing.T) {
		g := DefaultGoals
		if !g.SetField("carbs", 250) || g.Carbohydrates != 250 {
			t.Errorf("Expected carbs alias to update carbohydrates, got %v", g.Carbohydrates)
		}
		if g.SetField("fiber", 30) {
			t.Error("Expected unknown nutrient to be rejected")
		}
	})
}
