// Package sodexo fetches daily menus from the Sodexo MyWay API and converts them
// into menu snapshots.
package sodexo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fiskeat/internal/config"
	"fiskeat/internal/menu"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/singleflight"
)

type rawMeal struct {
	Name   string     `json:"name"`
	Groups []rawGroup `json:"groups"`
}

type rawGroup struct {
	Name  string    `json:"name"`
	Items []rawItem `json:"items"`
}

type rawItem struct {
	MenuItemID    json.RawMessage `json:"menuItemId"`
	FormalName    string          `json:"formalName"`
	Description   string          `json:"description"`
	Ingredients   string          `json:"ingredients"`
	Allergens     []rawAllergen   `json:"allergens"`
	IsVegan       bool            `json:"isVegan"`
	IsVegetarian  bool            `json:"isVegetarian"`
	Calories      menu.Value      `json:"calories"`
	Protein       menu.Value      `json:"protein"`
	Fat           menu.Value      `json:"fat"`
	Carbohydrates menu.Value      `json:"carbohydrates"`
	Sugar         menu.Value      `json:"sugar"`
	Sodium        menu.Value      `json:"sodium"`
}

type rawAllergen struct {
	Name string `json:"name"`
}

// Client calls the upstream menu API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	locationID string
	siteID     string
	group      singleflight.Group
}

// NewClient creates a new Sodexo API client.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    cfg.SodexoAPIURL,
		apiKey:     cfg.SodexoAPIKey,
		locationID: cfg.SodexoLocationID,
		siteID:     cfg.SodexoSiteID,
	}
}

// FetchMenu returns the menu for date, or nil when the upstream has no menu that day.
func (c *Client) FetchMenu(ctx context.Context, date string) (*menu.Snapshot, error) {
	v, err, _ := c.group.Do(date, func() (interface{}, error) {
		return c.fetchMenu(ctx, date)
	})
	if err != nil {
		return nil, err
	}
	return v.(*menu.Snapshot), nil
}

func (c *Client) fetchMenu(ctx context.Context, date string) (*menu.Snapshot, error) {
	endpoint := fmt.Sprintf("%s/%s/%s?date=%s", c.baseURL, url.PathEscape(c.locationID), url.PathEscape(c.siteID), url.QueryEscape(date))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sodexo api error: status %d", resp.StatusCode)
	}

	var raw []rawMeal
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return transform(date, raw), nil
}

func transform(date string, raw []rawMeal) *menu.Snapshot {
	snap := &menu.Snapshot{Date: date, Meals: make([]menu.Meal, 0, len(raw))}
	for _, m := range raw {
		meal := menu.Meal{Name: m.Name, Stations: make([]menu.Station, 0, len(m.Groups))}
		for _, g := range m.Groups {
			station := menu.Station{Name: g.Name, Items: make([]menu.FoodItem, 0, len(g.Items))}
			for _, it := range g.Items {
				station.Items = append(station.Items, toFoodItem(it))
			}
			meal.Stations = append(meal.Stations, station)
		}
		snap.Meals = append(snap.Meals, meal)
	}
	return snap
}

func toFoodItem(it rawItem) menu.FoodItem {
	allergens := make([]string, 0, len(it.Allergens))
	for _, a := range it.Allergens {
		allergens = append(allergens, a.Name)
	}

	return menu.FoodItem{
		ID:           itemID(it.MenuItemID),
		Name:         strings.TrimSpace(it.FormalName),
		Description:  cleanText(it.Description),
		Ingredients:  cleanText(it.Ingredients),
		Allergens:    allergens,
		IsVegan:      it.IsVegan,
		IsVegetarian: it.IsVegetarian,
		Nutrition: menu.Nutrition{
			Calories:      orNA(it.Calories),
			Protein:       orNA(it.Protein),
			Fat:           orNA(it.Fat),
			Carbohydrates: orNA(it.Carbohydrates),
			Sugar:         orNA(it.Sugar),
			Sodium:        orNA(it.Sodium),
		},
	}
}

// itemID accepts the upstream ID as either a JSON number or a string.
func itemID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return string(raw)
}

func orNA(v menu.Value) menu.Value {
	if !v.IsNumber() && v.Raw() == menu.NotAvailable {
		return menu.Text(menu.NotAvailable)
	}
	return v
}

// cleanText strips markup some upstream descriptions carry and collapses whitespace.
func cleanText(s string) string {
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}
