package backend

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fiskeat/internal/config"
	"fiskeat/internal/flag"
	"fiskeat/internal/menu"
	"fiskeat/internal/shared"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned when the backend has no menu or item for the request.
var ErrNotFound = errors.New("not found")

// Recorder receives call metadata for every request the client makes.
type Recorder interface {
	RecordMeta(meta shared.CallMeta) error
}

type menuResponse struct {
	Success bool           `json:"success"`
	Date    string         `json:"date"`
	Menu    *menu.Snapshot `json:"menu"`
	Error   string         `json:"error"`
}

type foodResponse struct {
	Success bool           `json:"success"`
	ItemID  string         `json:"item_id"`
	Food    *menu.FoodItem `json:"food"`
	Error   string         `json:"error"`
}

type flagRequest struct {
	ItemID   string `json:"itemId"`
	MealName string `json:"mealName"`
	Flagged  bool   `json:"flagged"`
}

// Client talks to the FiskEat menu backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secret     string
	recorder   Recorder
	menus      singleflight.Group
}

// NewClient creates a new backend client. recorder may be nil.
func NewClient(cfg *config.Config, recorder Recorder) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    cfg.APIURL,
		secret:     cfg.APISecret,
		recorder:   recorder,
	}
}

// FetchMenu loads the menu for date. Concurrent requests for the same date share one call.
// The shared call is not cancelled by any single caller; each caller stops waiting when
// its own ctx is done.
func (c *Client) FetchMenu(ctx context.Context, date string) (*menu.Snapshot, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.menus.DoChan(date, func() (interface{}, error) {
		start := time.Now()
		snap, err := c.fetchMenu(detached, date)
		c.record("fetch_menu", start, err)
		return snap, err
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to fetch menu for %s: %w", date, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*menu.Snapshot), nil
	}
}

func (c *Client) fetchMenu(ctx context.Context, date string) (*menu.Snapshot, error) {
	var body menuResponse
	if err := c.getJSON(ctx, "/api/menu/"+url.PathEscape(date), &body); err != nil {
		return nil, fmt.Errorf("failed to fetch menu for %s: %w", date, err)
	}
	if !body.Success || body.Menu == nil {
		return nil, fmt.Errorf("failed to fetch menu for %s: %s", date, orDefault(body.Error, "empty response"))
	}

	snap := body.Menu
	if snap.Date == "" {
		snap.Date = body.Date
	}
	if snap.Date == "" {
		snap.Date = date
	}
	return snap, nil
}

// FetchFoodDetail loads a single item by ID.
func (c *Client) FetchFoodDetail(ctx context.Context, id string) (*menu.FoodItem, error) {
	start := time.Now()
	var body foodResponse
	err := c.getJSON(ctx, "/api/food/"+url.PathEscape(id), &body)
	if err == nil && (!body.Success || body.Food == nil) {
		err = fmt.Errorf("%s", orDefault(body.Error, "empty response"))
	}
	c.record("fetch_food", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch food %s: %w", id, err)
	}
	return body.Food, nil
}

// ToggleFlag asks the backend to set an item's flag. A rejection by the backend is
// returned as a Response with Success false; only transport problems return an error.
func (c *Client) ToggleFlag(ctx context.Context, itemID, mealName string, flagged bool) (flag.Response, error) {
	start := time.Now()
	resp, err := c.toggleFlag(ctx, itemID, mealName, flagged)
	c.record("toggle_flag", start, err)
	return resp, err
}

func (c *Client) toggleFlag(ctx context.Context, itemID, mealName string, flagged bool) (flag.Response, error) {
	payload, err := json.Marshal(flagRequest{ItemID: itemID, MealName: mealName, Flagged: flagged})
	if err != nil {
		return flag.Response{}, fmt.Errorf("failed to marshal flag request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/flag", bytes.NewReader(payload))
	if err != nil {
		return flag.Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.secret != "" {
		token, err := c.createFlagToken()
		if err != nil {
			return flag.Response{}, fmt.Errorf("failed to create flag token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return flag.Response{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return flag.Response{}, fmt.Errorf("failed to read response: %w", err)
	}

	var out flag.Response
	if err := json.Unmarshal(data, &out); err != nil {
		return flag.Response{}, fmt.Errorf("flag api error: status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		out.Success = false
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api error: status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// createFlagToken signs a short-lived JWT for flag requests. The secret has the form id:hexsecret.
func (c *Client) createFlagToken() (string, error) {
	keyParts := strings.Split(c.secret, ":")
	if len(keyParts) != 2 {
		return "", fmt.Errorf("invalid secret format: expected id:secret")
	}

	secret, err := hex.DecodeString(keyParts[1])
	if err != nil {
		return "", fmt.Errorf("failed to decode secret hex: %w", err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
		"aud": "/api/flag",
	})
	token.Header["kid"] = keyParts[0]

	return token.SignedString(secret)
}

func (c *Client) record(operation string, start time.Time, err error) {
	if c.recorder == nil {
		return
	}
	meta := shared.CallMeta{Operation: operation, Latency: time.Since(start), Err: err}
	if rerr := c.recorder.RecordMeta(meta); rerr != nil {
		log.Printf("Warning: failed to record metrics for %s: %v", operation, rerr)
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
