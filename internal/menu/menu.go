package menu

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical date string used by the menu API and the flag gate.
const DateLayout = "2006-01-02"

// Snapshot represents one date's menu as displayed by the client.
type Snapshot struct {
	Date       string `json:"date"`
	Meals      []Meal `json:"meals"`
	ActiveMeal string `json:"activeMeal,omitempty"`
}

// Meal is a served meal period (Breakfast, Lunch, Dinner).
type Meal struct {
	Name     string    `json:"name"`
	Stations []Station `json:"stations"`
}

// Station groups items served at the same counter (Grill, Deli, ...).
type Station struct {
	Name  string     `json:"name"`
	Items []FoodItem `json:"items"`
}

// FoodItem is a single dish. IDs are only unique within a station.
type FoodItem struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Ingredients  string    `json:"ingredients"`
	Allergens    []string  `json:"allergens"`
	IsVegan      bool      `json:"isVegan"`
	IsVegetarian bool      `json:"isVegetarian"`
	Nutrition    Nutrition `json:"nutrition"`
	Flagged      bool      `json:"flagged"`
}

// Nutrition holds the six nutrient values exactly as the backend encoded them.
type Nutrition struct {
	Calories      Value `json:"calories"`
	Protein       Value `json:"protein"`
	Fat           Value `json:"fat"`
	Carbohydrates Value `json:"carbohydrates"`
	Sugar         Value `json:"sugar"`
	Sodium        Value `json:"sodium"`
}

// Clone returns a copy of the item that shares no slices with the receiver.
func (f FoodItem) Clone() FoodItem {
	if f.Allergens != nil {
		f.Allergens = append([]string(nil), f.Allergens...)
	}
	return f
}

// Today formats t as a canonical menu date.
func Today(t time.Time) string {
	return t.Format(DateLayout)
}

// CanonicalDate validates s as YYYY-MM-DD and returns it in canonical form.
func CanonicalDate(s string) (string, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid date %q: must be in YYYY-MM-DD format", s)
	}
	return t.Format(DateLayout), nil
}

// NormalizeMealName lower-cases and trims a meal period name for comparison.
func NormalizeMealName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SameMeal reports whether two meal names refer to the same period.
func SameMeal(a, b string) bool {
	return NormalizeMealName(a) == NormalizeMealName(b)
}

// FindItem looks up an item by meal name and ID. The first station in order wins.
func (s *Snapshot) FindItem(mealName, itemID string) (FoodItem, bool) {
	if s == nil {
		return FoodItem{}, false
	}
	for _, meal := range s.Meals {
		if !SameMeal(meal.Name, mealName) {
			continue
		}
		for _, station := range meal.Stations {
			for _, item := range station.Items {
				if item.ID == itemID {
					return item, true
				}
			}
		}
	}
	return FoodItem{}, false
}

// FindByID searches every meal and station for the first item with the given ID.
func (s *Snapshot) FindByID(itemID string) (FoodItem, bool) {
	if s == nil {
		return FoodItem{}, false
	}
	for _, meal := range s.Meals {
		for _, station := range meal.Stations {
			for _, item := range station.Items {
				if item.ID == itemID {
					return item, true
				}
			}
		}
	}
	return FoodItem{}, false
}

// ItemCount returns the number of items across all meals and stations.
func (s *Snapshot) ItemCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, meal := range s.Meals {
		for _, station := range meal.Stations {
			n += len(station.Items)
		}
	}
	return n
}

// WithItemFlag returns a new snapshot where every item with itemID inside the named
// meal carries the given flag. Only the path from the root to the changed items is
// reallocated; untouched meals, stations and item slices are shared with s.
// The second return value is false when no item matched, in which case s is returned.
func (s *Snapshot) WithItemFlag(mealName, itemID string, flagged bool) (*Snapshot, bool) {
	if s == nil {
		return nil, false
	}

	var meals []Meal
	changed := false
	for mi, meal := range s.Meals {
		if !SameMeal(meal.Name, mealName) {
			continue
		}

		var stations []Station
		for si, station := range meal.Stations {
			idx := -1
			for ii, item := range station.Items {
				if item.ID == itemID {
					idx = ii
					break
				}
			}
			if idx < 0 {
				continue
			}

			items := make([]FoodItem, len(station.Items))
			copy(items, station.Items)
			for ii := idx; ii < len(items); ii++ {
				if items[ii].ID == itemID {
					items[ii].Flagged = flagged
				}
			}

			if stations == nil {
				stations = make([]Station, len(meal.Stations))
				copy(stations, meal.Stations)
			}
			stations[si].Items = items
		}

		if stations == nil {
			continue
		}
		if meals == nil {
			meals = make([]Meal, len(s.Meals))
			copy(meals, s.Meals)
		}
		meals[mi].Stations = stations
		changed = true
	}

	if !changed {
		return s, false
	}

	next := *s
	next.Meals = meals
	return &next, true
}
