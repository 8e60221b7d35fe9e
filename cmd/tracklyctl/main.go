// main.go - Admin control tool for Trackly
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trackly/internal"
	"trackly/internal/events"
	"trackly/internal/jobs"
	"trackly/internal/seeder"
	"trackly/internal/services"
	"trackly/internal/timeframe"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&ImportCSVCommand{},
	&ExportCSVCommand{},
	&SeedCommand{},
	&PurgeCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Printf("Warning: Failed to initialize app: %v", err)
		log.Println("Proceeding with limited functionality...")
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run migrations")
	}

	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// ImportCSVCommand loads events from a CSV file through the ingestion gate
type ImportCSVCommand struct{}

func (c *ImportCSVCommand) Name() string { return "import-csv" }
func (c *ImportCSVCommand) Description() string {
	return "Imports events from a CSV file (invalid rows are skipped)"
}

func (c *ImportCSVCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <file.csv>", c.Name())
	}
	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer file.Close()

	logger := slog.Default()
	gate := services.NewGate(app.Config, app.DBManager, logger)

	result, err := events.ImportCSV(ctx, gate, logger, file)
	if err != nil {
		return err
	}

	log.Printf("Imported %d events, skipped %d rows", result.Imported, result.Skipped)
	return nil
}

// ExportCSVCommand writes stored events to a CSV file
type ExportCSVCommand struct{}

func (c *ExportCSVCommand) Name() string        { return "export-csv" }
func (c *ExportCSVCommand) Description() string { return "Exports events to a CSV file" }

func (c *ExportCSVCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("export-csv", flag.ContinueOnError)
	eventName := fs.String("event-name", "", "only export events with this name")
	startDate := fs.String("start-date", "", "first day to export (YYYY-MM-DD)")
	endDate := fs.String("end-date", "", "last day to export (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: %s [flags] <file.csv>", c.Name())
	}
	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	filter := events.Filter{EventName: *eventName}
	if *startDate != "" {
		from, err := timeframe.ParseDateBound(*startDate, false)
		if err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
		filter.From = &from
	}
	if *endDate != "" {
		to, err := timeframe.ParseDateBound(*endDate, true)
		if err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		filter.To = &to
	}

	file, err := os.Create(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", fs.Arg(0), err)
	}
	defer file.Close()

	store := services.NewStore(app.DBManager, slog.Default())
	written, err := events.ExportCSV(ctx, store, filter, file)
	if err != nil {
		return err
	}

	log.Printf("Exported %d events to %s", written, fs.Arg(0))
	return nil
}

// SeedCommand populates the DB with sample sessions
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample data" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	count := fs.Int("events", 10000, "number of events to generate")
	days := fs.Int("days", 30, "spread events over this many trailing days")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	logger := slog.Default()
	gate := services.NewGate(app.Config, app.DBManager, logger)

	if _, err := seeder.NewSeeder(gate, logger, *count, *days).Run(ctx); err != nil {
		return err
	}
	return nil
}

// PurgeCommand applies the retention window immediately
type PurgeCommand struct{}

func (c *PurgeCommand) Name() string { return "purge" }
func (c *PurgeCommand) Description() string {
	return "Deletes events older than the retention window (-days overrides it)"
}

func (c *PurgeCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	days := fs.Int("days", 0, "retention window in days (defaults to the configured one)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	cfg := *app.Config
	if *days > 0 {
		cfg.EventRetentionDays = *days
	}
	if cfg.EventRetentionDays <= 0 {
		log.Println("Retention is disabled; nothing to purge")
		return nil
	}

	logger := slog.Default()
	job := jobs.NewRetentionJob(services.NewStore(app.DBManager, logger), logger, &cfg)
	deleted, err := job.Run(ctx)
	if err != nil {
		return err
	}

	log.Printf("Deleted %d events recorded before %s", deleted, job.Cutoff().Format(time.RFC3339))
	return nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

// Name returns the command name
func (c *StatusCommand) Name() string {
	return "status"
}

// Description returns the command description
func (c *StatusCommand) Description() string {
	return "Shows the current system status"
}

// Execute implements the status command
func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("cannot check status: app initialization failed")
	}

	store := services.NewStore(app.DBManager, slog.Default())
	count, err := store.Count(ctx, events.Filter{})
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Events: %d", count)
	if app.Config.EventRetentionDays > 0 {
		log.Printf("- Retention: %d days", app.Config.EventRetentionDays)
	} else {
		log.Println("- Retention: unbounded")
	}

	sqlDB, err := app.DBManager.GetConnection().DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	stats := sqlDB.Stats()
	log.Printf("- Max Open Connections: %d", stats.MaxOpenConnections)
	log.Printf("- Open Connections: %d", stats.OpenConnections)
	log.Printf("- In Use: %d", stats.InUse)
	log.Printf("- Idle: %d", stats.Idle)

	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

// Name returns the command name
func (c *HelpCommand) Name() string {
	return "help"
}

// Description returns the command description
func (c *HelpCommand) Description() string {
	return "Shows usage information"
}

// Execute implements the help command
func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := os.Args[1:]
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: tracklyctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
