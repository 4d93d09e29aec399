package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

func runMigrate(a *app, args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	direction := fs.String("direction", "up", "Migration direction: up or down")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *direction != "up" && *direction != "down" {
		fmt.Fprintf(os.Stderr, "invalid direction %q, expected up or down\n", *direction)
		return 2
	}

	ctx := context.Background()
	fmt.Printf("Running migration: catalog %s\n", *direction)
	if err := a.repo.Migrate(ctx, *direction); err != nil {
		return a.fatal(ctx, "[MIGRATE_ERROR] Migration failed", err)
	}
	fmt.Println("Migration completed successfully")
	return 0
}
