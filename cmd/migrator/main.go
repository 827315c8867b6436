// Command migrator applies the schema migrations for the license store.
// It connects with the elevated write credential since migrations create
// roles and grants.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

func main() {
	upCmd := flag.Bool("up", false, "run all up migrations")
	downCmd := flag.Bool("down", false, "rollback all migrations")
	stepsCmd := flag.Int("steps", 0, "run +/- steps")
	source := flag.String("source", "file://migrations", "migration source")
	flag.Parse()

	dsn := os.Getenv("KEYGATE_STORE_WRITE_DSN")
	if dsn == "" {
		log.Fatal("KEYGATE_STORE_WRITE_DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("failed to create migrate driver: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance(*source, "postgres", driver)
	if err != nil {
		log.Fatalf("failed to initialize migrate: %v", err)
	}

	start := time.Now()
	switch {
	case *upCmd:
		log.Println("running up migrations")
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("migration up failed: %v", err)
		}
	case *downCmd:
		log.Println("running down migrations")
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("migration down failed: %v", err)
		}
	case *stepsCmd != 0:
		log.Printf("running %d migration steps", *stepsCmd)
		if err := m.Steps(*stepsCmd); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("migration steps failed: %v", err)
		}
	default:
		fmt.Println("usage: migrator [-up | -down | -steps N] [-source file://migrations]")
		os.Exit(2)
	}

	version, dirty, _ := m.Version()
	log.Printf("done in %s, schema version %d (dirty=%v)", time.Since(start), version, dirty)
}
