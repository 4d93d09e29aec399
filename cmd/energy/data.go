package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"energy-forecast/internal/services"
	"energy-forecast/pkg/logging"
)

func runData(a *app, args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.repo.Migrate(ctx, "up"); err != nil {
		return a.fatal(ctx, "[INGEST_ERROR] Failed to prepare catalog", err)
	}

	hydro, solar, wind, production := a.sources()
	svc := services.NewIngestionService(a.repo, services.Plan{
		Hydro:               hydro,
		Solar:               solar,
		Wind:                wind,
		Production:          production,
		WeatherHistoryStart: a.cfg.WeatherHistoryStart(),
		HydroHistoryStart:   a.cfg.HydroHistoryStart(),
	}, a.clock, a.logger, a.metrics)

	result := svc.FetchAll(ctx)

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("DATA PIPELINE COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Run ID:    %s\n", result.RunID)
	fmt.Printf("Duration:  %v\n\n", result.Duration)
	fmt.Printf("%-16s %8s %8s %8s  %s\n", "DATASET", "ROWS", "RAW", "CLEAN", "STATUS")
	for _, name := range result.Order {
		d := result.Datasets[name]
		status := "ok"
		switch {
		case d.Failed:
			status = "FAILED"
		case d.Skipped:
			status = "skipped"
		}
		fmt.Printf("%-16s %8d %8d %8d  %s\n", d.Name, d.Rows, d.RawUpserted, d.CleanUpserted, status)
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, msg := range result.Errors {
			fmt.Printf("  - %s\n", msg)
		}
	}

	if result.Failed() {
		a.logger.Error(ctx, "[INGEST_FAILED] At least one dataset failed", logging.Fields{
			"run_id": result.RunID,
		}, nil)
		fmt.Fprintln(os.Stderr, "data pipeline finished with failures")
		return 1
	}
	return 0
}
