package nutrition

import (
	"slices"
	"strconv"
	"strings"

	"fiskeat/internal/menu"
)

// Totals holds the summed nutrient values of a selection.
type Totals struct {
	Calories      float64 `json:"calories"`
	Protein       float64 `json:"protein"`
	Fat           float64 `json:"fat"`
	Carbohydrates float64 `json:"carbohydrates"`
	Sugar         float64 `json:"sugar"`
	Sodium        float64 `json:"sodium"`
}

// ParseValue converts a nutrient value to a number. Numbers pass through, "N/A" is zero,
// and any other string keeps only digits and '.' before parsing. Anything unparsable is zero.
func ParseValue(v menu.Value) float64 {
	if f, ok := v.Float(); ok {
		return f
	}
	return ParseString(v.Raw())
}

// ParseString applies the string half of ParseValue.
func ParseString(s string) float64 {
	if s == menu.NotAvailable {
		return 0
	}

	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, s)
	// Keep the longest valid prefix: "1.52.0" reads as 1.52.
	if dot := strings.IndexByte(cleaned, '.'); dot >= 0 {
		if next := strings.IndexByte(cleaned[dot+1:], '.'); next >= 0 {
			cleaned = cleaned[:dot+1+next]
		}
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return f
}

// Aggregate sums the nutrition of every item. Each field is summed in ascending value
// order so that reordering the input never changes the result, not even by rounding.
func Aggregate(items []menu.FoodItem) Totals {
	fields := make([][]float64, 6)
	for _, item := range items {
		n := item.Nutrition
		fields[0] = append(fields[0], ParseValue(n.Calories))
		fields[1] = append(fields[1], ParseValue(n.Protein))
		fields[2] = append(fields[2], ParseValue(n.Fat))
		fields[3] = append(fields[3], ParseValue(n.Carbohydrates))
		fields[4] = append(fields[4], ParseValue(n.Sugar))
		fields[5] = append(fields[5], ParseValue(n.Sodium))
	}

	return Totals{
		Calories:      sum(fields[0]),
		Protein:       sum(fields[1]),
		Fat:           sum(fields[2]),
		Carbohydrates: sum(fields[3]),
		Sugar:         sum(fields[4]),
		Sodium:        sum(fields[5]),
	}
}

func sum(values []float64) float64 {
	slices.Sort(values)
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
