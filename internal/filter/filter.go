package filter

import (
	"fmt"
	"strings"

	"fiskeat/internal/menu"
)

// DietaryTag is a dietary filter the user can switch on.
type DietaryTag string

const (
	Vegetarian DietaryTag = "vegetarian"
	Vegan      DietaryTag = "vegan"
)

// ParseTag accepts "vegetarian" or "vegan" in any case.
func ParseTag(s string) (DietaryTag, error) {
	switch DietaryTag(strings.ToLower(strings.TrimSpace(s))) {
	case Vegetarian:
		return Vegetarian, nil
	case Vegan:
		return Vegan, nil
	default:
		return "", fmt.Errorf("unknown dietary tag %q", s)
	}
}

// Criteria is the set of active filters.
type Criteria struct {
	Tags              []DietaryTag
	ExcludedAllergens []string
}

// IsZero reports whether no filter is active.
func (c Criteria) IsZero() bool {
	return len(c.Tags) == 0 && len(c.ExcludedAllergens) == 0
}

// Match reports whether item passes c. Allergen exclusion is checked first and
// overrides any dietary match; allergen names are compared exactly after trimming,
// so "peanuts" does not exclude "Peanuts". With dietary tags active, satisfying
// any one of them is enough.
func Match(c Criteria, item menu.FoodItem) bool {
	for _, allergen := range item.Allergens {
		a := strings.TrimSpace(allergen)
		for _, excluded := range c.ExcludedAllergens {
			if a == strings.TrimSpace(excluded) {
				return false
			}
		}
	}

	if len(c.Tags) == 0 {
		return true
	}

	for _, tag := range c.Tags {
		switch tag {
		case Vegetarian:
			if item.IsVegetarian {
				return true
			}
		case Vegan:
			if item.IsVegan {
				return true
			}
		}
	}
	return false
}

// Apply returns a filtered view of s. Stations left without items are dropped,
// meals are kept so the period structure stays visible. s is never modified.
func Apply(c Criteria, s *menu.Snapshot) *menu.Snapshot {
	if s == nil {
		return nil
	}

	out := &menu.Snapshot{
		Date:       s.Date,
		ActiveMeal: s.ActiveMeal,
		Meals:      make([]menu.Meal, 0, len(s.Meals)),
	}
	for _, meal := range s.Meals {
		m := menu.Meal{Name: meal.Name}
		for _, station := range meal.Stations {
			var items []menu.FoodItem
			for _, item := range station.Items {
				if Match(c, item) {
					items = append(items, item.Clone())
				}
			}
			if len(items) > 0 {
				m.Stations = append(m.Stations, menu.Station{Name: station.Name, Items: items})
			}
		}
		out.Meals = append(out.Meals, m)
	}
	return out
}
