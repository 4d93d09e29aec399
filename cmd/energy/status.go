package main

import (
	"context"
	"fmt"

	"energy-forecast/internal/models"
	"energy-forecast/internal/services"
)

func runStatus(a *app, args []string) int {
	ctx := context.Background()
	status, err := services.NewStatusService(a.repo, a.store, a.logger).Status(ctx)
	if err != nil {
		return a.fatal(ctx, "[STATUS_ERROR] Failed to read status", err)
	}

	if !status.StoreHealthy {
		fmt.Printf("store:    UNHEALTHY (%s)\n", status.StoreError)
	} else {
		fmt.Printf("store:    healthy (%s)\n", a.cfg.Database.Driver)
	}

	fmt.Printf("\n%-24s %-14s %-10s %8s  %s\n", "DATASET", "KEY", "UNITS", "ROWS", "UPDATED")
	for _, d := range status.Datasets {
		fmt.Printf("%-24s %-14s %-10s %8d  %s\n", d.Name, d.KeyColumn, d.Units, d.RowCount, d.UpdatedAt.Format("2006-01-02 15:04"))
	}
	if len(status.Datasets) == 0 {
		fmt.Println("(no datasets, run `energy data`)")
	}

	fmt.Printf("\n%-8s %-7s %-7s %s\n", "MODEL", "TRAINED", "SCALER", "PATH")
	for _, p := range models.AllProducers {
		m := status.Models[p]
		fmt.Printf("%-8s %-7t %-7t %s\n", p, m.Model, m.Scaler, m.ModelPath)
	}

	if !status.StoreHealthy {
		return 1
	}
	return 0
}
