// Package main provides the database migration tool for pitchlog.
//
// Migrations are embedded in the binary; the only required setting is DATABASE_URL.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/pitchlog-io/pitchlog/internal/config"
	"github.com/pitchlog-io/pitchlog/migrations"
)

// Set at build time with -ldflags.
var (
	Version   = "1.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	name      = "migrator"
)

func main() {
	help := flag.Bool("help", false, "show help information")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\nGit Commit: %s\nBuild Time: %s\n", name, Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	if *help || flag.NArg() < 1 {
		printUsage()
		os.Exit(0)
	}

	_ = godotenv.Load()

	logger := config.NewLogger(config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo))

	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	runner, err := NewMigrationRunner(context.Background(), cfg, migrations.New(nil), logger)
	if err != nil {
		logger.Error("Failed to create migration runner", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = executeCommand(flag.Arg(0), runner)
	_ = runner.Close()

	if err != nil {
		logger.Error("Migration failed", slog.String("command", flag.Arg(0)), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func executeCommand(command string, runner MigrationRunner) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		return runner.Status()
	case "version":
		return runner.Version()
	case "drop":
		fmt.Print("WARNING: This will drop all tables. Are you sure? (y/N): ")

		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.EqualFold(strings.TrimSpace(answer), "y") {
			return runner.Drop()
		}

		fmt.Println("Operation cancelled.")

		return nil
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage() {
	fmt.Printf(`%[1]s v%[2]s - pitchlog database migration tool

USAGE:
    %[1]s [OPTIONS] COMMAND

COMMANDS:
    up       Apply all pending migrations
    down     Roll back the last migration
    status   Show applied and embedded versions
    version  Show the applied version
    drop     Drop all tables (asks for confirmation)

OPTIONS:
    --help     Show this help message
    --version  Show version information

ENVIRONMENT:
    DATABASE_URL     PostgreSQL connection string (required)
    MIGRATION_TABLE  Version tracking table (default: schema_migrations)
    LOG_LEVEL        debug, info, warn or error (default: info)
`, name, Version)
}
