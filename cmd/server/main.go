/*
main.go - Application entry point

PURPOSE:

	Initializes and starts the commission engine server. Handles
	configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
 1. Parse command-line flags
 2. Initialize SQLite store
 3. Load the commission rate table (JSON file or built-in default)
 4. Create API handler with dependencies
 5. Start the deposit expiry sweeper
 6. Start server with graceful shutdown

COMMAND-LINE FLAGS:

	-port    HTTP server port (default: 8080)
	-db      SQLite database path (default: commission.db)
	         Use ":memory:" for in-memory database
	-rates   Path to a JSON rate table; empty uses the flat 2% default

GRACEFUL SHUTDOWN:

	On SIGINT/SIGTERM:
	1. Stop accepting new connections
	2. Wait for active requests to complete (30s timeout)
	3. Stop the sweeper
	4. Close database connection
	5. Exit

EXAMPLES:

	# Run with file database
	./server -db="./data/commission.db"

	# Run with a custom rate table
	./server -rates="./config/rates.json"

RATE TABLE FORMAT:

	{"rates": {"1": 0.02, "2": 0.02, "3": 0.02, "4": 0.02, "5": 0.02}}

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
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

	"github.com/brandfx/commission-engine/api"
	"github.com/brandfx/commission-engine/funds"
	"github.com/brandfx/commission-engine/referral"
	"github.com/brandfx/commission-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "commission.db", "SQLite database path")
	ratesPath := flag.String("rates", "", "JSON rate table path (empty for flat 2% default)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Load rate table
	rates := referral.DefaultRateTable()
	if *ratesPath != "" {
		data, err := os.ReadFile(*ratesPath)
		if err != nil {
			log.Fatalf("Failed to read rate table: %v", err)
		}
		rates, err = referral.ParseRateTable(data)
		if err != nil {
			log.Fatalf("Failed to parse rate table: %v", err)
		}
		log.Printf("Loaded rate table from %s", *ratesPath)
	}

	// Initialize handler and router
	handler := api.NewHandler(store, rates)
	router := api.NewRouter(handler)

	// Background deposit expiry sweeper
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	sweeper := funds.NewSweeper(store, funds.DefaultConfirmationWindow, time.Hour)
	go sweeper.Run(sweepCtx)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
