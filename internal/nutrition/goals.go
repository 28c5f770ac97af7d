package nutrition

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"strings"
	"sync"

	"fiskeat/internal/storage"
)

// GoalsKey is the storage key for saved nutrition goals.
const GoalsKey = "fiskeat.nutritionGoals"

// Goals are the user's daily nutrient targets.
type Goals struct {
	Calories      float64 `json:"calories"`
	Protein       float64 `json:"protein"`
	Fat           float64 `json:"fat"`
	Carbohydrates float64 `json:"carbohydrates"`
	Sugar         float64 `json:"sugar"`
	Sodium        float64 `json:"sodium"`
}

// DefaultGoals is the product baseline restored by a reset.
var DefaultGoals = Goals{
	Calories:      2000,
	Protein:       50,
	Fat:           65,
	Carbohydrates: 300,
	Sugar:         50,
	Sodium:        2300,
}

// Tier classifies progress towards a goal.
type Tier string

const (
	TierOnTrack     Tier = "on track"
	TierApproaching Tier = "approaching"
	TierExceeded    Tier = "exceeded"
)

// Percentage returns round(current/goal*100) clamped to 100, or 0 when goal is 0.
func Percentage(current, goal float64) int {
	p := rawPercentage(current, goal)
	if p > 100 {
		return 100
	}
	return p
}

func rawPercentage(current, goal float64) int {
	if goal == 0 {
		return 0
	}
	return int(math.Round(current / goal * 100))
}

// TierFor maps a percentage to its tier: below 80 is on track, 80 to 99 is
// approaching, 100 and above is exceeded.
func TierFor(pct int) Tier {
	switch {
	case pct >= 100:
		return TierExceeded
	case pct >= 80:
		return TierApproaching
	default:
		return TierOnTrack
	}
}

// NutrientProgress is one row of the progress display. Current and Goal are raw values;
// only Percent is clamped.
type NutrientProgress struct {
	Nutrient string
	Unit     string
	Current  float64
	Goal     float64
	Percent  int
	Tier     Tier
}

// Progress compares totals against goals for every nutrient, in display order.
func Progress(t Totals, g Goals) []NutrientProgress {
	rows := []struct {
		name, unit    string
		current, goal float64
	}{
		{"Calories", "kcal", t.Calories, g.Calories},
		{"Protein", "g", t.Protein, g.Protein},
		{"Fat", "g", t.Fat, g.Fat},
		{"Carbohydrates", "g", t.Carbohydrates, g.Carbohydrates},
		{"Sugar", "g", t.Sugar, g.Sugar},
		{"Sodium", "mg", t.Sodium, g.Sodium},
	}

	out := make([]NutrientProgress, 0, len(rows))
	for _, r := range rows {
		out = append(out, NutrientProgress{
			Nutrient: r.name,
			Unit:     r.unit,
			Current:  r.current,
			Goal:     r.goal,
			Percent:  Percentage(r.current, r.goal),
			Tier:     TierFor(rawPercentage(r.current, r.goal)),
		})
	}
	return out
}

// GoalsStore holds the saved goals and an editable draft. Only Save persists.
type GoalsStore struct {
	kv    storage.KV
	mu    sync.Mutex
	saved Goals
	draft Goals
}

// NewGoalsStore hydrates saved goals from kv, falling back to DefaultGoals when the key
// is absent or unreadable.
func NewGoalsStore(kv storage.KV) *GoalsStore {
	s := &GoalsStore{kv: kv, saved: DefaultGoals}

	data, ok, err := kv.Get(context.Background(), GoalsKey)
	switch {
	case err != nil:
		log.Printf("Warning: failed to load nutrition goals, using defaults: %v", err)
	case ok:
		var g Goals
		if err := json.Unmarshal(data, &g); err != nil {
			log.Printf("Warning: stored nutrition goals are corrupt, using defaults: %v", err)
		} else {
			s.saved = g
		}
	}

	s.draft = s.saved
	return s
}

// Saved returns the committed goals.
func (s *GoalsStore) Saved() Goals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// Draft returns the goals currently being edited.
func (s *GoalsStore) Draft() Goals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SetDraft replaces the editable draft without persisting it.
func (s *GoalsStore) SetDraft(g Goals) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = g
}

// ResetDraft restores the baseline in the draft. Nothing is persisted until Save.
func (s *GoalsStore) ResetDraft() {
	s.SetDraft(DefaultGoals)
}

// Save commits the draft and persists it. Storage failures are logged; the committed
// value stays in memory either way.
func (s *GoalsStore) Save() Goals {
	s.mu.Lock()
	s.saved = s.draft
	saved := s.saved
	s.mu.Unlock()

	data, err := json.Marshal(saved)
	if err != nil {
		log.Printf("Warning: failed to encode nutrition goals: %v", err)
		return saved
	}
	if err := s.kv.Set(context.Background(), GoalsKey, data); err != nil {
		log.Printf("Warning: failed to persist nutrition goals, keeping them in memory: %v", err)
	}
	return saved
}

// SetField updates a single nutrient in g by name, ignoring case. It reports false for unknown names.
func (g *Goals) SetField(name string, value float64) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "calories":
		g.Calories = value
	case "protein":
		g.Protein = value
	case "fat":
		g.Fat = value
	case "carbohydrates", "carbs":
		g.Carbohydrates = value
	case "sugar":
		g.Sugar = value
	case "sodium":
		g.Sodium = value
	default:
		return false
	}
	return true
}
