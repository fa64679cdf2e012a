package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/akriventsev/potter-inventory/framework/migrations"
	schema "github.com/akriventsev/potter-inventory/migrations"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	dbURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	timeout := flag.Duration("timeout", time.Minute, "Operation timeout")
	_ = flag.CommandLine.Parse(os.Args[2:])

	if *dbURL == "" {
		fmt.Fprintf(os.Stderr, "Error: --database-url or DATABASE_URL is required\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := migrations.OpenDB(*dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := run(ctx, db, command); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, db *sql.DB, command string) error {
	switch command {
	case "up":
		applied, err := migrations.RunMigrations(ctx, db, schema.FS)
		if err != nil {
			return err
		}
		fmt.Printf("Applied %d migration(s)\n", applied)
	case "down":
		if err := migrations.RollbackMigration(ctx, db, schema.FS); err != nil {
			return err
		}
		fmt.Println("Rolled back 1 migration")
	case "status":
		statuses, err := migrations.GetMigrationStatus(ctx, db, schema.FS)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			appliedAt := "-"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format(time.RFC3339)
			}
			fmt.Printf("  [%s] %d %s %s\n", s.Status, s.Version, s.Name, appliedAt)
		}
	case "version":
		version, err := migrations.GetCurrentVersion(ctx, db, schema.FS)
		if err != nil {
			return err
		}
		fmt.Printf("Current version: %d\n", version)
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
	return nil
}

func printUsage() {
	fmt.Println("Product inventory migration tool")
	fmt.Println()
	fmt.Println("Usage: product-migrate <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up       - Apply all pending migrations")
	fmt.Println("  down     - Rollback the last migration")
	fmt.Println("  status   - Show status of all migrations")
	fmt.Println("  version  - Show current schema version")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --database-url  - PostgreSQL connection string (default: $DATABASE_URL)")
	fmt.Println("  --timeout       - Operation timeout (default: 1m)")
}
