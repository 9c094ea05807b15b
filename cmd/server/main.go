package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/dacrisa/comandas-core/internal/api"
	"github.com/dacrisa/comandas-core/internal/batch"
	"github.com/dacrisa/comandas-core/internal/carryover"
	"github.com/dacrisa/comandas-core/internal/config"
	"github.com/dacrisa/comandas-core/internal/db"
	"github.com/dacrisa/comandas-core/internal/eventbus"
	"github.com/dacrisa/comandas-core/internal/imapworker"
	"github.com/dacrisa/comandas-core/internal/print"
	"github.com/dacrisa/comandas-core/internal/queue"
	"github.com/dacrisa/comandas-core/internal/shift"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load("../../.env"); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Check for migration command
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrations(cfg)
		return
	}

	// Initialize database connection
	database, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Configure connection pool
	database.SetMaxOpenConns(cfg.DatabaseMaxConnections)
	database.SetMaxIdleConns(cfg.DatabaseMaxIdleConnections)
	database.SetConnMaxLifetime(cfg.DatabaseConnectionLifetime)

	// Test database connection
	if err := database.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Database connection established")

	// Run database migrations (only if enabled)
	if cfg.RunMigrations {
		log.Println("Running database migrations...")
		if err := db.RunMigrations(database, "migrations"); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Database migrations completed successfully")
	} else {
		log.Println("Skipping migrations (RUN_MIGRATIONS=false)")
	}

	if err := os.MkdirAll(cfg.PDFStorageDir, 0o755); err != nil {
		log.Fatalf("Failed to create PDF storage directory: %v", err)
	}

	// Initialize NATS connection (§4.B live fan-out transport)
	log.Println("Connecting to NATS...")
	natsManager, err := queue.NewManager(cfg.NATSURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsManager.Close()
	log.Println("NATS connection established")

	bus := eventbus.New(natsManager)

	carry := carryover.NewEngine(database, bus)
	batchProc := batch.NewProcessor(database, bus, cfg.FuzzyMatchThreshold)
	printMgr := print.NewManager(database, bus)

	imapCfg := imapworker.Config{
		Host:         cfg.ImapHost,
		Port:         cfg.ImapPort,
		User:         cfg.ImapUser,
		Password:     cfg.ImapPassword,
		Folder:       cfg.ImapFolder,
		PollInterval: time.Duration(cfg.ImapPollSeconds) * time.Second,
		Secure:       cfg.ImapSecure,
	}
	worker := imapworker.NewWorker(imapCfg, database, bus, batchProc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx)

	shiftMgr := shift.NewManager(database, bus, carry, worker.PollNow, scheduleLookup(database), cfg.ShiftAutoCloseCheckInterval)
	go shiftMgr.RunAutoCloser(ctx)

	server := api.NewServer(cfg, database, bus, shiftMgr, printMgr, batchProc, worker)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.AppPort),
		Handler:      server.Router(),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: 0, // SSE streams hold the connection open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %d (environment: %s)", cfg.AppPort, cfg.AppEnv)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancel() // stops the IMAP worker's poll loop and the auto-closer

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer drainCancel()

	if err := httpServer.Shutdown(drainCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	worker.Stop()
	shiftMgr.Stop()

	log.Println("Server stopped gracefully")
}

// scheduleLookup resolves shift.ScheduleLookup against the shift_schedules
// table, owned by an external collaborator's role-gated CRUD (§1 Non-goals).
func scheduleLookup(database *sql.DB) shift.ScheduleLookup {
	return func(slot string, date time.Time) (time.Time, bool) {
		seconds, ok, err := db.New(database).GetActiveScheduleEndSeconds(context.Background(), slot)
		if err != nil || !ok {
			return time.Time{}, false
		}
		return db.ScheduledEndAt(date, seconds), true
	}
}

func runMigrations(cfg *config.Config) {
	database, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("Running database migrations...")
	if err := db.RunMigrations(database, "migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")
}
