package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/BadgerOps/ptarchive/internal/config"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	// Global flags
	cfgPath   string
	dbPath    string
	logLevel  string
	logFormat string
	globalCfg *config.Config
	logger    *slog.Logger
)

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ptarchive",
		Short: "Download hourly log archives from Papertrail",
		Long: `ptarchive downloads hourly log archives, named by their YYYY-MM-DD-HH
bucket, into a local directory. Archives can be stored as delivered (gzip),
decompressed to TSV, or transcoded to CSV. Requests run concurrently with a
minimum spacing between them, and one failed archive never stops the rest.`,
		Example: `  ptarchive fetch 2024-03-01-00 2024-03-01-01
  ptarchive fetch --start 2024-03-01T00:00 --end 2024-03-01T23:00 -d --csv -o ./logs
  ptarchive history --limit 5
  ptarchive config show`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd.ErrOrStderr())

			if shouldSkipConfig(cmd.Name()) {
				return nil
			}

			// A .env file in the working directory may carry the API token.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("failed to read .env file", "error", err)
			}

			cfg, path, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			cfg.ApplyEnv()
			if dbPath != "" {
				cfg.Store.DBPath = dbPath
			}
			globalCfg = cfg

			logger.Debug("config loaded", "path", path, "output_dir", cfg.Fetch.OutputDir)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "run history database (sqlite); empty disables history")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")

	cmd.AddCommand(
		newFetchCmd(),
		newHistoryCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	return cmd
}

// loadConfig reads the config at path, or the first one found in the
// standard locations. No file at all means defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		found, err := config.FindConfigFile()
		if err != nil {
			logger.Debug("config file not found, using defaults", "error", err)
			return config.DefaultConfig(), "", nil
		}
		path = found
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, path, nil
}

// setupLogging initializes the slog logger based on flags
func setupLogging(w io.Writer) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// shouldSkipConfig checks if a command should skip config loading
func shouldSkipConfig(cmdName string) bool {
	switch cmdName {
	case "help", "version", "completion":
		return true
	}
	return false
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ptarchive %s\n", version)
		},
	}
}
