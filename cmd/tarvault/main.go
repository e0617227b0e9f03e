package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/tarvault/tarvault/pkg/config"
	"github.com/tarvault/tarvault/pkg/destlock"
	"github.com/tarvault/tarvault/pkg/engine"
	"github.com/tarvault/tarvault/pkg/flagparse"
	"github.com/tarvault/tarvault/pkg/pathselect"
	"github.com/tarvault/tarvault/pkg/plog"
	"github.com/tarvault/tarvault/pkg/schedule"
)

// appName is the canonical name of the application used for logging.
const appName = "tarvault"

// version holds the application's version string.
// It's a `var` so it can be set at compile time using ldflags.
// Example: go build -ldflags="-X main.version=1.0.0"
var version = "dev"

// init sets up a custom, more descriptive help message for the
// command-line flags.
func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s (version %s):\n", appName, version)
		fmt.Fprintf(flag.CommandLine.Output(), "Policy-driven file backups into timestamped compressed archives with tiered retention.\n\n")
		flag.PrintDefaults()
	}
}

// parseFlagConfig defines and parses command-line flags, returning a map
// containing only the values the user explicitly set.
func parseFlagConfig() (showVersion bool, flagMap map[string]any, err error) {
	destFlag := flag.String("dest", "", "Destination directory for archives (required).")
	includeFlag := flag.String("include", "", "Comma-separated list of paths to back up.")
	excludeFlag := flag.String("exclude", "", "Comma-separated list of paths to exclude, including all their descendants.")
	smallerThanFlag := flag.Float64("smaller-than", 0, "Only back up files strictly smaller than this many megabytes.")
	largerThanFlag := flag.Float64("larger-than", 0, "Only back up files strictly larger than this many megabytes.")
	newerThanFlag := flag.String("newer-than", "", "Only back up files modified after 'YYYY-MM-DD HH:MM', a day count, or 'auto' for the last archive's timestamp.")
	olderThanFlag := flag.String("older-than", "", "Only back up files modified before 'YYYY-MM-DD HH:MM' or a day count.")
	keepFlag := flag.String("keep", "", "Retention tiers, e.g. 'last=3,daily=7,monthly=12'. Empty disables pruning.")
	formatFlag := flag.String("format", "", "Archive format: 'tar.gz' or 'tar.zst'.")
	levelFlag := flag.String("level", "", "Compression level: 'default', 'fastest', 'better' or 'best'.")
	logLevelFlag := flag.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	dryRunFlag := flag.Bool("dry-run", false, "Show what would be archived and pruned without making any changes.")
	metricsFlag := flag.Bool("metrics", true, "Enable run counters in the log output.")
	scheduleFlag := flag.String("schedule", "", "Cron expression for unattended repeated runs, e.g. '0 3 * * *'.")
	deleteWorkersFlag := flag.Int("delete-workers", 0, "Number of worker goroutines for deleting outdated archives.")
	versionFlag := flag.Bool("version", false, "Print the application version and exit.")

	flag.Parse()

	usedFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap = make(map[string]any)
	addIfUsed := func(name string, value any) {
		if usedFlags[name] {
			flagMap[name] = value
		}
	}

	addIfUsed("dest", *destFlag)
	addIfUsed("smaller-than", *smallerThanFlag)
	addIfUsed("larger-than", *largerThanFlag)
	addIfUsed("newer-than", *newerThanFlag)
	addIfUsed("older-than", *olderThanFlag)
	addIfUsed("format", *formatFlag)
	addIfUsed("level", *levelFlag)
	addIfUsed("log-level", *logLevelFlag)
	addIfUsed("dry-run", *dryRunFlag)
	addIfUsed("metrics", *metricsFlag)
	addIfUsed("schedule", *scheduleFlag)
	addIfUsed("delete-workers", *deleteWorkersFlag)

	if usedFlags["include"] {
		flagMap["include"] = flagparse.ParsePathList(*includeFlag)
	}
	if usedFlags["exclude"] {
		flagMap["exclude"] = flagparse.ParsePathList(*excludeFlag)
	}
	if usedFlags["keep"] {
		policy, err := flagparse.ParseTiers(*keepFlag)
		if err != nil {
			return false, nil, err
		}
		flagMap["keep"] = policy
	}

	return *versionFlag, flagMap, nil
}

// runBackup loads the configuration, merges flags over it, and executes
// either a single run or the cron schedule.
func runBackup(ctx context.Context, flagMap map[string]any) error {
	destPath, ok := flagMap["dest"].(string)
	if !ok || destPath == "" {
		return errors.New("the -dest flag is required to run a backup")
	}

	loadedConfig, err := config.Load(destPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from destination: %w", err)
	}

	runConfig := config.MergeWithFlags(loadedConfig, flagMap)
	runConfig.Destination = destPath

	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))
	runConfig.LogSummary()

	if err := runConfig.Validate(); err != nil {
		return err
	}

	backupEngine := engine.New(runConfig, version)

	runOnce := func(ctx context.Context) error {
		summary, err := backupEngine.Execute(ctx)
		if err != nil {
			return err
		}
		summary.Print()
		return nil
	}

	if runConfig.Schedule != "" {
		return schedule.Run(ctx, runConfig.Schedule, runOnce)
	}
	return runOnce(ctx)
}

// run encapsulates the main application logic and returns an error if
// something goes wrong, allowing main to handle exit codes.
func run(ctx context.Context) error {
	showVersion, flagMap, err := parseFlagConfig()
	if err != nil {
		return err
	}
	if showVersion {
		fmt.Printf("%s version %s\n", appName, version)
		return nil
	}

	plog.Info("Starting "+appName, "version", version, "pid", os.Getpid())
	return runBackup(ctx, flagMap)
}

func main() {
	// Set up a context that is canceled when an interrupt signal is received.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx); err != nil {
		var validationErr *config.ValidationError
		var heldErr *destlock.ErrHeld
		switch {
		case errors.As(err, &validationErr):
			plog.Error(appName+" aborted before any changes", "error", err)
		case errors.As(err, &heldErr):
			plog.Error(appName+" found the destination in use by another process", "error", err)
		case errors.Is(err, pathselect.ErrEmptySelection):
			plog.Error(appName+" refused to create an empty archive", "error", err)
		default:
			plog.Error(appName+" exited with error", "error", err)
		}
		os.Exit(1)
	}
}
