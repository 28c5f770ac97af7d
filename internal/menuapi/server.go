// Package menuapi serves daily menus fetched from the upstream source as JSON.
package menuapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"fiskeat/internal/menu"
	"fiskeat/internal/shared"
)

const version = "2.0.0"

// MenuSource returns the menu for a date, or nil when there is none.
type MenuSource interface {
	FetchMenu(ctx context.Context, date string) (*menu.Snapshot, error)
}

// Recorder receives call metadata for upstream fetches.
type Recorder interface {
	RecordMeta(meta shared.CallMeta) error
}

// Server exposes the menu endpoints.
type Server struct {
	source   MenuSource
	recorder Recorder
	metrics  http.Handler
	now      func() time.Time
	mux      *http.ServeMux
}

// NewServer builds the HTTP handler. recorder and metrics may be nil.
func NewServer(source MenuSource, recorder Recorder, metrics http.Handler) *Server {
	s := &Server{
		source:   source,
		recorder: recorder,
		metrics:  metrics,
		now:      time.Now,
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/menu/today", s.handleToday)
	s.mux.HandleFunc("GET /api/menu/{date}", s.handleMenuByDate)
	s.mux.HandleFunc("GET /api/food/{id}", s.handleFood)
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
	s.mux.HandleFunc("OPTIONS /", s.handlePreflight)
	s.mux.HandleFunc("/", s.handleNotFound)
	return s
}

// ServeHTTP adds CORS headers and turns panics into JSON 500 responses.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Panic serving %s %s: %v", r.Method, r.URL.Path, rec)
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "Internal server error"})
		}
	}()
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "FiskEat API is running!",
		"version":     version,
		"description": "Dynamic menu fetching - no database required",
		"endpoints": map[string]string{
			"menu_today":   "/api/menu/today",
			"menu_by_date": "/api/menu/<date>",
			"food_item":    "/api/food/<item_id>",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK\n"))
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	today := menu.Today(s.now())
	snap, err := s.fetch(r.Context(), today)
	if err != nil {
		log.Printf("Failed to fetch menu for %s: %v", today, err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "Failed to fetch menu",
			"message": err.Error(),
		})
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":   "No menu found for today",
			"date":    today,
			"message": "Menu may not be available for this date.",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "date": today, "menu": snap})
}

func (s *Server) handleMenuByDate(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if _, err := time.Parse(menu.DateLayout, date); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "Invalid date format",
			"message": "Date must be in YYYY-MM-DD format",
		})
		return
	}

	snap, err := s.fetch(r.Context(), date)
	if err != nil {
		log.Printf("Failed to fetch menu for %s: %v", date, err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "Failed to fetch menu",
			"message": err.Error(),
		})
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": "No menu found for this date",
			"date":  date,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "date": date, "menu": snap})
}

func (s *Server) handleFood(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, err := s.fetch(r.Context(), menu.Today(s.now()))
	if err != nil {
		log.Printf("Failed to fetch menu for food %s: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "Failed to fetch food item",
			"message": err.Error(),
		})
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":   "Menu not available",
			"message": "Cannot fetch food item - menu is not available",
		})
		return
	}

	item, ok := snap.FindByID(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":   "Food item not found",
			"item_id": id,
			"message": "Item not found in today's menu",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "item_id": id, "food": item})
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "Endpoint not found"})
}

func (s *Server) fetch(ctx context.Context, date string) (*menu.Snapshot, error) {
	start := time.Now()
	snap, err := s.source.FetchMenu(ctx, date)
	if s.recorder != nil {
		if rerr := s.recorder.RecordMeta(shared.CallMeta{Operation: "upstream_menu", Latency: time.Since(start), Err: err}); rerr != nil {
			log.Printf("Warning: failed to record metrics: %v", rerr)
		}
	}
	return snap, err
}

func enableCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
