package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"fiskeat/internal/backend"
	"fiskeat/internal/chat"
	"fiskeat/internal/config"
	"fiskeat/internal/database"
	"fiskeat/internal/llm"
	"fiskeat/internal/menu"
	"fiskeat/internal/menuapi"
	"fiskeat/internal/metrics"
	"fiskeat/internal/nutrition"
	"fiskeat/internal/session"
	"fiskeat/internal/sodexo"
	"fiskeat/internal/storage"
)

// App holds the application's dependencies.
type App struct {
	cfg          *config.Config
	db           *database.DB
	kv           storage.KV
	metricsStore *metrics.Store
	textGen      llm.TextGenerator
	session      *session.Session
}

// New opens the local state and wires the client session. When the SQLite state
// cannot be opened the session runs on memory only and metrics are disabled.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}
	if err := a.openState(); err != nil {
		return nil, err
	}

	var recorder backend.Recorder
	if a.metricsStore != nil {
		recorder = a.metricsStore
	}
	menus := backend.NewClient(cfg, recorder)

	var chatter session.Chatter
	textGen, err := llm.NewTextGenerator(ctx, cfg)
	switch {
	case errors.Is(err, llm.ErrNoProvider):
		log.Printf("Warning: no LLM provider configured, chat is disabled")
	case err != nil:
		a.Close()
		return nil, fmt.Errorf("failed to create text generator: %w", err)
	default:
		a.textGen = textGen
		chatter = chat.NewClient(textGen)
	}

	a.session = session.New(session.Deps{
		Menus:   menus,
		Flags:   menus,
		Chat:    chatter,
		Storage: a.kv,
	})
	return a, nil
}

func (a *App) openState() error {
	if a.cfg.StateBackend == config.StateBackendFile {
		dir := strings.TrimSuffix(a.cfg.StatePath, filepath.Ext(a.cfg.StatePath))
		fs, err := storage.NewFileStore(dir)
		if err != nil {
			return fmt.Errorf("failed to open file state: %w", err)
		}
		a.kv = fs
		return nil
	}

	db, err := database.NewDB(a.cfg.StatePath)
	if err != nil {
		log.Printf("Warning: failed to open state database %s, falling back to memory: %v", a.cfg.StatePath, err)
		a.kv = storage.NewMemoryStore()
		return nil
	}
	a.db = db
	a.kv = database.NewKVStore(db.SQL)
	a.metricsStore = metrics.NewStore(db.SQL)
	return nil
}

// Session returns the client session.
func (a *App) Session() *session.Session {
	return a.session
}

// Storage returns the local key-value store.
func (a *App) Storage() storage.KV {
	return a.kv
}

// MetricsStore returns the metrics store, or nil when metrics are disabled.
func (a *App) MetricsStore() *metrics.Store {
	return a.metricsStore
}

// MenuServer builds the menu API over the Sodexo upstream.
func (a *App) MenuServer() *menuapi.Server {
	source := sodexo.NewClient(a.cfg)
	if a.metricsStore == nil {
		return menuapi.NewServer(source, nil, nil)
	}
	return menuapi.NewServer(source, a.metricsStore, a.metricsStore.Handler())
}

// Close releases the text generator and the database.
func (a *App) Close() {
	if c, ok := a.textGen.(llm.Closer); ok {
		if err := c.Close(); err != nil {
			log.Printf("Warning: failed to close text generator: %v", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Printf("Warning: failed to close database: %v", err)
		}
	}
}

// PrintMenu loads the menu for date (today when empty) and writes it to w.
func (a *App) PrintMenu(ctx context.Context, w io.Writer, date string) error {
	if date == "" {
		date = a.session.Today()
	}
	snap, err := a.session.Navigate(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to load menu: %w", err)
	}
	writeMenu(w, snap)
	return nil
}

// PrintSelection writes the persisted selection and progress against the saved goals.
func (a *App) PrintSelection(w io.Writer) {
	entries := a.session.Selection()
	fmt.Fprintln(w, "=== SELECTION ===")
	if len(entries) == 0 {
		fmt.Fprintln(w, "(empty)")
	}
	for i, e := range entries {
		fmt.Fprintf(w, "%2d. %s\n", i+1, e.Name)
	}

	fmt.Fprintln(w, "\n=== PROGRESS ===")
	for _, p := range a.session.Progress() {
		fmt.Fprintf(w, "%-14s %8.1f / %-8.1f %-4s %3d%%  %s\n", p.Nutrient, p.Current, p.Goal, p.Unit, p.Percent, p.Tier)
	}
}

func writeMenu(w io.Writer, snap *menu.Snapshot) {
	if snap == nil {
		fmt.Fprintln(w, "No menu loaded.")
		return
	}
	fmt.Fprintf(w, "=== MENU FOR %s ===\n", snap.Date)
	if snap.ActiveMeal != "" {
		fmt.Fprintf(w, "Serving now: %s\n", snap.ActiveMeal)
	}
	if snap.ItemCount() == 0 {
		fmt.Fprintln(w, "No menu available.")
		return
	}

	for _, meal := range snap.Meals {
		fmt.Fprintf(w, "\n%s\n", strings.ToUpper(meal.Name))
		for _, station := range meal.Stations {
			fmt.Fprintf(w, "  %s\n", station.Name)
			for _, item := range station.Items {
				line := fmt.Sprintf("    [%s] %s", item.ID, item.Name)
				if kcal := nutrition.ParseValue(item.Nutrition.Calories); kcal > 0 {
					line += fmt.Sprintf(" (%.0f kcal)", kcal)
				}
				if item.Flagged {
					line += " - unavailable"
				}
				fmt.Fprintln(w, line)
			}
		}
	}
}
