package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"fiskeat/internal/filter"
	"fiskeat/internal/menu"
	"fiskeat/internal/metrics"
	"fiskeat/internal/nutrition"
	"fiskeat/internal/selection"
)

// maxMessageLen stays below Telegram's 4096 character limit.
const maxMessageLen = 4000

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func formatMenu(snap *menu.Snapshot, filtered bool, isUpdating func(meal, id string) bool) string {
	if snap == nil {
		return "No menu loaded. Use /menu to load one."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🍽 *Menu for %s*\n", snap.Date))
	if snap.ActiveMeal != "" {
		sb.WriteString(fmt.Sprintf("_Serving now: %s_\n", escapeMarkdown(snap.ActiveMeal)))
	}

	if snap.ItemCount() == 0 {
		if filtered {
			sb.WriteString("\nNo items match the active filters.")
		} else {
			sb.WriteString("\nNo menu available for this date.")
		}
		return sb.String()
	}

	for _, meal := range snap.Meals {
		sb.WriteString(fmt.Sprintf("\n*%s*\n", escapeMarkdown(meal.Name)))
		for _, station := range meal.Stations {
			if len(station.Items) == 0 {
				continue
			}
			sb.WriteString(fmt.Sprintf("_%s_\n", escapeMarkdown(station.Name)))
			for _, item := range station.Items {
				sb.WriteString(formatMenuItem(item, isUpdating != nil && isUpdating(meal.Name, item.ID)))
			}
		}
	}
	return sb.String()
}

func formatMenuItem(item menu.FoodItem, updating bool) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("• `%s` %s", item.ID, escapeMarkdown(item.Name)))
	switch {
	case item.IsVegan:
		sb.WriteString(" 🌱")
	case item.IsVegetarian:
		sb.WriteString(" 🥕")
	}
	if kcal := nutrition.ParseValue(item.Nutrition.Calories); kcal > 0 {
		sb.WriteString(fmt.Sprintf(" (%.0f kcal)", kcal))
	}
	if item.Flagged {
		sb.WriteString(" 🚫 _unavailable_")
	}
	if updating {
		sb.WriteString(" ⏳")
	}
	sb.WriteString("\n")
	return sb.String()
}

func formatFood(item *menu.FoodItem) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🍴 *%s*\n", escapeMarkdown(item.Name)))
	if item.Flagged {
		sb.WriteString("🚫 _Currently unavailable_\n")
	}
	if item.Description != "" {
		sb.WriteString(fmt.Sprintf("\n%s\n", escapeMarkdown(item.Description)))
	}
	if item.Ingredients != "" {
		sb.WriteString(fmt.Sprintf("\n*Ingredients:* %s\n", escapeMarkdown(item.Ingredients)))
	}
	if len(item.Allergens) > 0 {
		sb.WriteString(fmt.Sprintf("*Allergens:* %s\n", escapeMarkdown(strings.Join(item.Allergens, ", "))))
	}

	n := item.Nutrition
	sb.WriteString("\n*Nutrition*\n")
	sb.WriteString(fmt.Sprintf("• Calories: %s\n", n.Calories.Raw()))
	sb.WriteString(fmt.Sprintf("• Protein: %s\n", n.Protein.Raw()))
	sb.WriteString(fmt.Sprintf("• Fat: %s\n", n.Fat.Raw()))
	sb.WriteString(fmt.Sprintf("• Carbohydrates: %s\n", n.Carbohydrates.Raw()))
	sb.WriteString(fmt.Sprintf("• Sugar: %s\n", n.Sugar.Raw()))
	sb.WriteString(fmt.Sprintf("• Sodium: %s\n", n.Sodium.Raw()))
	return sb.String()
}

func formatSelection(entries []selection.Entry, totals nutrition.Totals) string {
	if len(entries) == 0 {
		return "🧺 Your selection is empty. Use /add <meal> <id> to add items."
	}

	var sb strings.Builder
	sb.WriteString("🧺 *Your selection*\n\n")
	for i, e := range entries {
		sb.WriteString(fmt.Sprintf("%d. %s", i+1, escapeMarkdown(e.Name)))
		if kcal := nutrition.ParseValue(e.Nutrition.Calories); kcal > 0 {
			sb.WriteString(fmt.Sprintf(" (%.0f kcal)", kcal))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("\n*Totals:* %s kcal, %sg protein, %sg fat, %sg carbs, %sg sugar, %smg sodium\n",
		formatAmount(totals.Calories), formatAmount(totals.Protein), formatAmount(totals.Fat),
		formatAmount(totals.Carbohydrates), formatAmount(totals.Sugar), formatAmount(totals.Sodium)))
	return sb.String()
}

func formatProgress(rows []nutrition.NutrientProgress) string {
	var sb strings.Builder
	sb.WriteString("📈 *Daily progress*\n\n")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s %s: %s / %s %s (%d%%)\n",
			tierIcon(r.Tier), r.Nutrient, formatAmount(r.Current), formatAmount(r.Goal), r.Unit, r.Percent))
	}
	return sb.String()
}

func tierIcon(t nutrition.Tier) string {
	switch t {
	case nutrition.TierExceeded:
		return "🔴"
	case nutrition.TierApproaching:
		return "🟡"
	default:
		return "🟢"
	}
}

func formatGoals(saved, draft nutrition.Goals) string {
	rows := []struct {
		name, unit   string
		saved, draft float64
	}{
		{"Calories", "kcal", saved.Calories, draft.Calories},
		{"Protein", "g", saved.Protein, draft.Protein},
		{"Fat", "g", saved.Fat, draft.Fat},
		{"Carbohydrates", "g", saved.Carbohydrates, draft.Carbohydrates},
		{"Sugar", "g", saved.Sugar, draft.Sugar},
		{"Sodium", "mg", saved.Sodium, draft.Sodium},
	}

	var sb strings.Builder
	sb.WriteString("🎯 *Nutrition goals*\n\n")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("• %s: %s %s", r.name, formatAmount(r.saved), r.unit))
		if r.draft != r.saved {
			sb.WriteString(fmt.Sprintf(" _(draft: %s)_", formatAmount(r.draft)))
		}
		sb.WriteString("\n")
	}
	if saved != draft {
		sb.WriteString("\nUse /savegoals to keep the draft or /resetgoals to start over.")
	}
	return sb.String()
}

func formatMetrics(usage []metrics.DailyUsage, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %d calls, %d errors, %d tokens\n", d.Date, d.TotalCalls, d.Errors, d.TotalPrompt+d.TotalCompletion))
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Uptime: %s\n", health.Uptime))
	sb.WriteString(fmt.Sprintf("• Disk Data: %s\n", health.StateDiskSize))
	return sb.String()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseFilterArgs reads dietary tags and allergens to exclude prefixed with '-'.
// Allergen names may contain spaces: "vegan -Tree Nuts -Soy" keeps vegan items
// without tree nuts or soy. Commas are treated as spaces.
func parseFilterArgs(raw string) (filter.Criteria, error) {
	var c filter.Criteria
	var allergen []string
	flush := func() error {
		if allergen == nil {
			return nil
		}
		name := strings.Join(allergen, " ")
		if name == "" {
			return errors.New("missing allergen after '-'")
		}
		c.ExcludedAllergens = append(c.ExcludedAllergens, name)
		allergen = nil
		return nil
	}

	for _, word := range strings.Fields(strings.ReplaceAll(raw, ",", " ")) {
		if rest, ok := strings.CutPrefix(word, "-"); ok {
			if err := flush(); err != nil {
				return filter.Criteria{}, err
			}
			allergen = []string{}
			if rest != "" {
				allergen = append(allergen, rest)
			}
			continue
		}
		if allergen != nil {
			allergen = append(allergen, word)
			continue
		}
		tag, err := filter.ParseTag(word)
		if err != nil {
			return filter.Criteria{}, err
		}
		c.Tags = append(c.Tags, tag)
	}
	if err := flush(); err != nil {
		return filter.Criteria{}, err
	}
	return c, nil
}

// parseItemArgs splits "<meal> <id>" where the meal name may contain spaces.
func parseItemArgs(args []string) (meal, id string, err error) {
	if len(args) < 2 {
		return "", "", errors.New("expected a meal name and an item id")
	}
	return strings.Join(args[:len(args)-1], " "), args[len(args)-1], nil
}

// parseCommand splits "/cmd@bot a b" into "cmd" and its arguments. ok is false for plain text.
func parseCommand(text string) (cmd string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	cmd = strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), fields[1:], true
}

// splitMessage breaks text on line boundaries into chunks of at most limit bytes.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, line[:limit])
			line = line[limit:]
		}
		if current.Len()+len(line) > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
