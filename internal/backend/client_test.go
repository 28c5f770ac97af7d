package backend

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fiskeat/internal/config"
	"fiskeat/internal/shared"

	"github.com/golang-jwt/jwt/v5"
)

// MockRecorder keeps every recorded call.
type MockRecorder struct {
	mu    sync.Mutex
	Metas []shared.CallMeta
}

func (m *MockRecorder) RecordMeta(meta shared.CallMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Metas = append(m.Metas, meta)
	return nil
}

func TestFetchMenu(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/menu/2026-10-19" {
				t.Errorf("Unexpected path %s", r.URL.Path)
			}
			fmt.Fprintln(w, `{
				"success": true,
				"date": "2026-10-19",
				"menu": {
					"date": "2026-10-19",
					"activeMeal": "Lunch",
					"meals": [{"name": "Lunch", "stations": [{"name": "Grill", "items": [
						{"id": "1", "name": "Burger", "allergens": ["Wheat"], "nutrition": {"calories": 540, "protein": "30g", "fat": "N/A"}}
					]}]}]
				}
			}`)
		}))
		defer server.Close()

		rec := &MockRecorder{}
		client := NewClient(&config.Config{APIURL: server.URL}, rec)

		snap, err := client.FetchMenu(context.Background(), "2026-10-19")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if snap.ActiveMeal != "Lunch" || len(snap.Meals) != 1 {
			t.Fatalf("Unexpected snapshot %+v", snap)
		}
		item := snap.Meals[0].Stations[0].Items[0]
		if v, ok := item.Nutrition.Calories.Float(); !ok || v != 540 {
			t.Errorf("Expected numeric calories, got %v", item.Nutrition.Calories)
		}
		if item.Nutrition.Protein.Raw() != "30g" {
			t.Errorf("Expected raw protein string, got %q", item.Nutrition.Protein.Raw())
		}
		if len(rec.Metas) != 1 || rec.Metas[0].Operation != "fetch_menu" || rec.Metas[0].Err != nil {
			t.Errorf("Unexpected metrics %+v", rec.Metas)
		}
	})

	t.Run("FillsMissingDate", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"success": true, "date": "2026-10-19", "menu": {"meals": []}}`)
		}))
		defer server.Close()

		snap, err := NewClient(&config.Config{APIURL: server.URL}, nil).FetchMenu(context.Background(), "2026-10-19")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if snap.Date != "2026-10-19" {
			t.Errorf("Expected date from the envelope, got %q", snap.Date)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"success": false, "error": "No menu"}`)
		}))
		defer server.Close()

		_, err := NewClient(&config.Config{APIURL: server.URL}, nil).FetchMenu(context.Background(), "2026-10-19")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ServerError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		rec := &MockRecorder{}
		_, err := NewClient(&config.Config{APIURL: server.URL}, rec).FetchMenu(context.Background(), "2026-10-19")
		if err == nil {
			t.Fatal("Expected an error for non-200 status code, got nil")
		}
		if len(rec.Metas) != 1 || rec.Metas[0].Err == nil {
			t.Error("Expected the failure to be recorded")
		}
	})

	t.Run("SharesConcurrentRequests", func(t *testing.T) {
		var hits int32
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			<-release
			fmt.Fprintln(w, `{"success": true, "date": "2026-10-19", "menu": {"date": "2026-10-19", "meals": []}}`)
		}))
		defer server.Close()

		client := NewClient(&config.Config{APIURL: server.URL}, nil)
		var wg sync.WaitGroup
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := client.FetchMenu(context.Background(), "2026-10-19"); err != nil {
					t.Errorf("FetchMenu failed: %v", err)
				}
			}()
		}
		for atomic.LoadInt32(&hits) == 0 {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		if n := atomic.LoadInt32(&hits); n < 1 || n > 3 {
			t.Errorf("Unexpected number of upstream hits %d", n)
		}
	})

	t.Run("CancelledCallerLeavesSharedFetch", func(t *testing.T) {
		var hits int32
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			<-release
			fmt.Fprintln(w, `{"success": true, "date": "2026-10-19", "menu": {"date": "2026-10-19", "meals": []}}`)
		}))
		defer server.Close()

		client := NewClient(&config.Config{APIURL: server.URL}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		first := make(chan error, 1)
		go func() {
			_, err := client.FetchMenu(ctx, "2026-10-19")
			first <- err
		}()
		for atomic.LoadInt32(&hits) == 0 {
			time.Sleep(time.Millisecond)
		}

		second := make(chan error, 1)
		go func() {
			_, err := client.FetchMenu(context.Background(), "2026-10-19")
			second <- err
		}()
		time.Sleep(20 * time.Millisecond)

		cancel()
		if err := <-first; !errors.Is(err, context.Canceled) {
			t.Errorf("Expected the cancelled caller to stop with context.Canceled, got %v", err)
		}
		close(release)
		if err := <-second; err != nil {
			t.Errorf("Expected the other caller to get the menu, got %v", err)
		}
	})
}

func TestFetchFoodDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/food/42":
			fmt.Fprintln(w, `{"success": true, "item_id": "42", "food": {"id": "42", "name": "Tofu Bowl", "isVegan": true}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"success": false, "error": "Food item not found"}`)
		}
	}))
	defer server.Close()

	client := NewClient(&config.Config{APIURL: server.URL}, nil)

	food, err := client.FetchFoodDetail(context.Background(), "42")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if food.Name != "Tofu Bowl" || !food.IsVegan {
		t.Errorf("Unexpected food %+v", food)
	}

	if _, err := client.FetchFoodDetail(context.Background(), "7"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestToggleFlag(t *testing.T) {
	secret := hex.EncodeToString([]byte("super-secret-key"))

	t.Run("SignedRequest", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != "POST" || r.URL.Path != "/api/flag" {
				t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
			}

			auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			token, err := jwt.Parse(auth, func(tok *jwt.Token) (interface{}, error) {
				if tok.Header["kid"] != "client-1" {
					t.Errorf("Unexpected kid %v", tok.Header["kid"])
				}
				return []byte("super-secret-key"), nil
			}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithAudience("/api/flag"))
			if err != nil || !token.Valid {
				t.Errorf("Expected a valid token, got %v", err)
			}

			var body flagRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("Failed to decode body: %v", err)
				return
			}
			if body.ItemID != "1" || body.MealName != "Lunch" || !body.Flagged {
				t.Errorf("Unexpected body %+v", body)
			}
			fmt.Fprintln(w, `{"success": true, "isFlagged": true, "message": "Burger marked as unavailable"}`)
		}))
		defer server.Close()

		client := NewClient(&config.Config{APIURL: server.URL, APISecret: "client-1:" + secret}, nil)
		resp, err := client.ToggleFlag(context.Background(), "1", "Lunch", true)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if !resp.Success || !resp.IsFlagged || resp.Message != "Burger marked as unavailable" {
			t.Errorf("Unexpected response %+v", resp)
		}
	})

	t.Run("Rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				t.Error("Expected no Authorization header without a secret")
			}
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprintln(w, `{"success": true, "error": "Flagging is closed"}`)
		}))
		defer server.Close()

		resp, err := NewClient(&config.Config{APIURL: server.URL}, nil).ToggleFlag(context.Background(), "1", "Lunch", true)
		if err != nil {
			t.Fatalf("Expected no transport error, got %v", err)
		}
		if resp.Success || resp.Error != "Flagging is closed" {
			t.Errorf("Unexpected response %+v", resp)
		}
	})

	t.Run("GarbageBody", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprintln(w, "<html>bad gateway</html>")
		}))
		defer server.Close()

		if _, err := NewClient(&config.Config{APIURL: server.URL}, nil).ToggleFlag(context.Background(), "1", "Lunch", true); err == nil {
			t.Error("Expected an error for an unreadable response")
		}
	})

	t.Run("InvalidSecret", func(t *testing.T) {
		client := NewClient(&config.Config{APIURL: "http://127.0.0.1:0", APISecret: "no-colon"}, nil)
		if _, err := client.ToggleFlag(context.Background(), "1", "Lunch", true); err == nil {
			t.Error("Expected an error for a malformed secret")
		}
	})
}
