package main

import (
	"database/sql"
	"flag"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/skysched/flightwx/internal/db/migrations"
)

func main() {
	dbURL := flag.String("db", os.Getenv("DATABASE_URL"), "Database connection string")
	rollback := flag.Bool("rollback", false, "Rollback the last migration")
	flag.Parse()

	if *dbURL == "" {
		log.Fatal("database connection string required (-db or DATABASE_URL)")
	}

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	migrator := migrations.New(db)
	migrationList := []*migrations.Migration{
		migrations.InitialSchema,
		migrations.ScanRuns,
	}

	if *rollback {
		if err := migrator.Rollback(migrationList); err != nil {
			log.Fatalf("Failed to rollback migration: %v", err)
		}
		return
	}
	if err := migrator.Migrate(migrationList); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
}
