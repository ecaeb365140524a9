package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/edvin/automation/internal/automationctl"
	"github.com/edvin/automation/internal/config"
	"github.com/edvin/automation/internal/core"
	"github.com/edvin/automation/internal/db"
	"github.com/edvin/automation/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "seed":
		fs := flag.NewFlagSet("seed", flag.ExitOnError)
		file := fs.String("f", "", "Path to rules YAML file (required)")
		dryRun := fs.Bool("dry-run", false, "Validate the file without writing")
		timeout := fs.Duration("timeout", time.Minute, "Timeout for the whole seed run")
		fs.Parse(os.Args[2:])

		if *file == "" {
			fmt.Fprintln(os.Stderr, "Error: -f flag is required")
			fs.Usage()
			os.Exit(1)
		}

		if err := seed(*file, *dryRun, *timeout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "next-run":
		fs := flag.NewFlagSet("next-run", flag.ExitOnError)
		var def automationctl.ScheduleDef
		fs.StringVar(&def.Frequency, "frequency", "daily", "once, hourly, daily, weekly, monthly, quarterly, yearly or custom")
		fs.StringVar(&def.StartTime, "start-time", "00:00", "Wall-clock start time HH:MM")
		fs.StringVar(&def.Timezone, "timezone", "", "IANA timezone, UTC when empty")
		fs.StringVar(&def.CronExpression, "cron", "", "Cron expression for custom frequency")
		fs.StringVar(&def.StartDate, "start-date", time.Now().UTC().Format(time.DateOnly), "Start date YYYY-MM-DD")
		fs.Parse(os.Args[2:])

		next, err := automationctl.NextRun(def, time.Now().UTC())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(next.Format(time.RFC3339))

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func seed(path string, dryRun bool, timeout time.Duration) error {
	cfg, err := automationctl.LoadSeedFile(path)
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Printf("%s: %d rules OK\n", path, len(cfg.Rules))
		return nil
	}

	appCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewLogger(appCfg)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := db.NewCorePool(ctx, appCfg.CoreDatabaseURL, 2)
	if err != nil {
		return err
	}
	defer pool.Close()

	services := core.NewServices(pool)
	seeder := &automationctl.Seeder{
		Rules:     services.Rule,
		Actions:   services.Action,
		Schedules: services.Schedule,
		Logger:    logger,
	}
	sum, err := seeder.Seed(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %d rules, %d actions, %d schedules for tenant %s\n", sum.Rules, sum.Actions, sum.Schedules, cfg.Tenant)
	return nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  automationctl seed -f <rules.yaml> [-dry-run] [-timeout 1m]
  automationctl next-run [-frequency daily] [-start-time HH:MM] [-timezone Europe/Oslo] [-cron expr] [-start-date YYYY-MM-DD]`)
}
