// Package main implements the entry point for the alt-text API server,
// which queues image subjects for asynchronous alt-text generation and
// drains the queue against a remote generation backend.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "apply pending migrations and exit")
	flag.Parse()

	app, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := runMigrations(app.db); err != nil {
		app.cleanup()
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	if *migrateOnly {
		app.cleanup()
		slog.Info("Migrations applied, exiting")
		return
	}

	ctx := context.Background()
	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
