// ABOUTME: Entry point for the latecancel CLI
// ABOUTME: Loads configuration, builds the logger, and routes to run, daemon, serve, auth, or status
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/latecancel/cli"
	"github.com/harperreed/latecancel/config"
)

const version = "0.1.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "", "Config file (default: ~/.config/latecancel/config.yml)")
	envFile := flag.String("env-file", ".env", "dotenv file to read")
	ledgerPath := flag.String("ledger", "", "Run ledger path (default: ~/.local/share/latecancel/runs.db)")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("latecancel version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "latecancel",
	})

	cfg, err := config.Load(config.LoadOptions{Path: *configPath, EnvFile: *envFile})
	if err != nil {
		logger.Fatal("Failed to load configuration", "err", err)
	}
	if *ledgerPath != "" {
		cfg.Run.LedgerPath = *ledgerPath
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warn("unknown log level, using info", "level", cfg.LogLevel)
	}
	log.SetDefault(logger)

	app := &cli.App{Config: cfg, Logger: logger, Out: os.Stdout}

	command := args[0]
	commandArgs := args[1:]

	var cmdErr error
	switch command {
	case "run":
		cmdErr = app.RunCommand(commandArgs)
	case "daemon":
		cmdErr = app.DaemonCommand(commandArgs)
	case "serve":
		cmdErr = app.ServeCommand(commandArgs)
	case "auth":
		cmdErr = app.AuthCommand(commandArgs)
	case "status":
		cmdErr = app.StatusCommand(commandArgs)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if cmdErr != nil {
		logger.Fatal("Error", "command", command, "err", cmdErr)
	}
}

func printUsage() {
	fmt.Printf(`latecancel v%s - Momence booking cancellation and late-cancel tagging

USAGE:
  latecancel [global flags] <command> [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --config <path>        Config file (default: ~/.config/latecancel/config.yml)
  --env-file <path>      dotenv file (default: .env)
  --ledger <path>        Run ledger (default: ~/.local/share/latecancel/runs.db)

COMMANDS:
  run                    Run once and exit (non-zero exit on failure)
    --force                Start even if the ledger shows a run in progress

  daemon                 Run now and then on a schedule
    --interval <dur>       Time between runs (default: 15m, minimum: 5m)

  serve                  HTTP trigger: GET|POST /run, /healthz, /metrics
    --addr <addr>          Listen address (default: :8080)

  auth                   Authorize Google Sheets access and save the refresh token
    --client-id <id>       OAuth client ID (default: GOOGLE_CLIENT_ID)
    --no-browser           Print the consent URL only

  status                 Show recent runs
    --limit <n>            Number of runs (default: 10)

ENVIRONMENT:
  MOMENCE_ACCESS_TOKEN, MOMENCE_ALL_COOKIES        Momence credentials (required)
  GOOGLE_SHEET_ID                                  Target spreadsheet (required)
  GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET           OAuth client (required)
  GOOGLE_REFRESH_TOKEN                             Optional after 'latecancel auth'
  MOMENCE_TARGET_TAG_IDS, MOMENCE_HOST_ID          Override account wiring
  LATECANCEL_LOG_LEVEL                             debug, info, warn, error
  GITHUB_ACTIONS=true                              Emit workflow annotations

`, version)
}
