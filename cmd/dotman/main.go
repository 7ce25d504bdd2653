// Command dotman is a content-addressed snapshot engine for dotfiles:
// staging, committing, branching, merging, rebasing, and mirroring a
// managed set of files through a remote transport adapter.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rybkr/dotman/internal/dotmanerr"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "dotman",
	Short:         "A content-addressed snapshot engine for dotfiles",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	initLogger()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dotman: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a command failure to dotman's exit code contract:
// 0 for success (handled by Execute returning nil), 1 for an expected
// failure a user can act on, anything else for an internal error.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, dotmanerr.ErrNotFound),
		errors.Is(err, dotmanerr.ErrAmbiguous),
		errors.Is(err, dotmanerr.ErrConflict),
		errors.Is(err, dotmanerr.ErrPrecondition),
		errors.Is(err, dotmanerr.ErrInvalidRef),
		errors.Is(err, dotmanerr.ErrTransport):
		return 1
	default:
		return 2
	}
}

// initLogger reads DOTMAN_LOG_LEVEL and DOTMAN_LOG_FORMAT from the
// environment, constructs the appropriate slog.Handler, and installs
// it as the default logger via slog.SetDefault.
func initLogger() {
	level := slog.LevelInfo
	switch getEnv("DOTMAN_LOG_LEVEL", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if getEnv("DOTMAN_LOG_FORMAT", "text") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
