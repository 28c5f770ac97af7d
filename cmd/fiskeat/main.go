package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fiskeat/internal/app"
	"fiskeat/internal/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer application.Close()

	switch os.Args[1] {
	case "serve":
		if err := cfg.ValidateSodexo(); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
		serve(application.MenuServer(), cfg.Port)
	case "menu":
		if err := cfg.ValidateClient(); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
		date := ""
		if len(os.Args) > 2 {
			date = os.Args[2]
		}
		if err := application.PrintMenu(ctx, os.Stdout, date); err != nil {
			log.Fatalf("Failed to print menu: %v", err)
		}
	case "selection":
		application.PrintSelection(os.Stdout)
	case "metrics-cleanup":
		cleanupCmd := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
		days := cleanupCmd.Int("days", 30, "Keep records for the last N days")
		cleanupCmd.Parse(os.Args[2:])

		store := application.MetricsStore()
		if store == nil {
			log.Fatalf("Metrics are only kept with the %s state backend", config.StateBackendSQLite)
		}
		affected, err := store.Cleanup(*days)
		if err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		fmt.Printf("Successfully removed %d old metric records.\n", affected)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serve(handler http.Handler, port string) {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Menu API listening on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exiting")
}

func printUsage() {
	fmt.Println("Usage: fiskeat <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  serve              Serve the menu API from the Sodexo upstream")
	fmt.Println("  menu [date]        Print the menu for a date (YYYY-MM-DD, default today)")
	fmt.Println("  selection          Print the saved selection and goal progress")
	fmt.Println("  metrics-cleanup    Remove old metric records (-days N)")
}
