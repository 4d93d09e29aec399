package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"energy-forecast/internal/models"
	"energy-forecast/internal/training"
)

func runTrain(a *app, args []string) int {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	producer := fs.String("producer", "", "Train a single producer: solar, wind or hydro")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	trainer := training.NewTrainer(a.repo, a.store, a.models, a.clock, a.logger, a.metrics)

	result := &training.TrainAllResult{
		Reports: make(map[models.ProducerType]*training.TrainingReport),
		Errors:  make(map[models.ProducerType]string),
	}
	if *producer != "" {
		p, err := models.ParseProducerType(*producer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 2
		}
		report, err := trainer.Train(ctx, p)
		if err != nil {
			result.Errors[p] = err.Error()
		} else {
			result.Reports[p] = report
		}
	} else {
		result = trainer.TrainAll(ctx)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("MODEL TRAINING COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	for _, p := range models.AllProducers {
		if msg, failed := result.Errors[p]; failed {
			fmt.Printf("\n%s: FAILED\n  %s\n", p, msg)
			continue
		}
		report, ok := result.Reports[p]
		if !ok {
			continue
		}
		fmt.Printf("\n%s: best %s (%d rows, %d train / %d test) -> %s\n",
			p, report.Best, report.Rows, report.TrainRows, report.TestRows, report.ArtifactPath)
		fmt.Printf("  %-20s %10s %10s %10s %8s\n", "MODEL", "MAE", "RMSE", "MSE", "R2")
		for _, c := range report.Candidates {
			if c.Err != "" {
				fmt.Printf("  %-20s failed: %s\n", c.Kind, c.Err)
				continue
			}
			fmt.Printf("  %-20s %10.2f %10.2f %10.2f %8.3f\n", c.Kind, c.Metrics.MAE, c.Metrics.RMSE, c.Metrics.MSE, c.Metrics.R2)
		}
		for _, w := range report.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
	}

	if result.AllFailed() {
		fmt.Fprintln(os.Stderr, "\nno model could be trained")
		return 1
	}
	return 0
}
