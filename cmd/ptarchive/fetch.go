package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/BadgerOps/ptarchive/internal/bucket"
	"github.com/BadgerOps/ptarchive/internal/config"
	"github.com/BadgerOps/ptarchive/internal/download"
	"github.com/BadgerOps/ptarchive/internal/metrics"
	"github.com/BadgerOps/ptarchive/internal/report"
	"github.com/BadgerOps/ptarchive/internal/store"
)

var (
	fetchStart       string
	fetchEnd         string
	fetchConcurrency int
	fetchOut         string
	fetchThrottle    int
	fetchDecompress  bool
	fetchCSV         bool
	fetchToken       string
	fetchBaseURL     string
	fetchReport      string
	fetchMetricsFile string
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [KEY...]",
		Short: "Download archives for explicit buckets or a time range",
		Long: `Download one archive per hourly bucket. Buckets are given either as
YYYY-MM-DD-HH keys (UTC) or as a --start/--end range in local time; every
hour in the range is fetched, both ends included.

Each archive is written to <out>/<key>.tsv.gz. With --decompress it is
gunzipped on the fly and written to <key>.tsv instead, and with --csv the
TSV is then transcoded to <key>.csv.

Every bucket is attempted. Failures are reported per bucket and the command
exits non-zero if any bucket failed.`,
		Example: `  ptarchive fetch 2024-03-01-00 2024-03-01-01
  ptarchive fetch --start 2024-03-01 --end 2024-03-02 -c 8 -t 100
  ptarchive fetch --start 2024-03-01T09:00 -d --csv -o /data/logs --report json`,
		RunE: fetchRun,
	}

	f := cmd.Flags()
	f.StringVar(&fetchStart, "start", "", "first hour of the range (RFC3339 or YYYY-MM-DDTHH:MM, local time)")
	f.StringVar(&fetchEnd, "end", "", "last hour of the range, inclusive (defaults to now when --start is set)")
	f.IntVarP(&fetchConcurrency, "concurrency", "c", 0, "how many archives to download at once (default: number of CPUs)")
	f.StringVarP(&fetchOut, "out", "o", "", `where to write the files (default ".")`)
	f.IntVarP(&fetchThrottle, "throttle", "t", 0, fmt.Sprintf("minimum milliseconds between requests (default %d)", config.DefaultThrottleMS))
	f.BoolVarP(&fetchDecompress, "decompress", "d", false, "decode from gzip before writing")
	f.BoolVar(&fetchCSV, "csv", false, "convert to CSV after decompressing (requires --decompress)")
	f.StringVar(&fetchToken, "api-token", "", "API token (or $"+config.TokenEnv+")")
	f.StringVar(&fetchBaseURL, "base-url", "", "archive service URL")
	f.StringVar(&fetchReport, "report", "text", "final report format (text or json)")
	f.StringVar(&fetchMetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	f.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "deflate" {
			name = "decompress"
		}
		return pflag.NormalizedName(name)
	})

	return cmd
}

// applyFetchFlags overlays explicitly set flags on the loaded config.
func applyFetchFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("concurrency") {
		cfg.Fetch.Concurrency = fetchConcurrency
	}
	if f.Changed("out") {
		cfg.Fetch.OutputDir = fetchOut
	}
	if f.Changed("throttle") {
		cfg.Fetch.ThrottleMS = fetchThrottle
	}
	if f.Changed("decompress") {
		cfg.Fetch.Decompress = fetchDecompress
	}
	if f.Changed("csv") {
		cfg.Fetch.Transcode = fetchCSV
	}
	if f.Changed("api-token") {
		cfg.API.Token = fetchToken
	}
	if f.Changed("base-url") {
		cfg.API.BaseURL = fetchBaseURL
	}
	if f.Changed("metrics-file") {
		cfg.Metrics.Textfile = fetchMetricsFile
	}
}

// resolveKeys builds the bucket list from explicit keys or the range flags.
func resolveKeys(args []string, start, end string, now time.Time) ([]bucket.Key, error) {
	if len(args) > 0 {
		if start != "" || end != "" {
			return nil, &config.ValidationError{Field: "keys", Reason: "give bucket keys or --start/--end, not both"}
		}
		keys, err := bucket.ParseAll(args)
		if err != nil {
			return nil, &config.ValidationError{Field: "keys", Reason: err.Error()}
		}
		return keys, nil
	}

	if start == "" {
		if end != "" {
			return nil, &config.ValidationError{Field: "start", Reason: "--end requires --start"}
		}
		return nil, &config.ValidationError{Field: "keys", Reason: "no buckets requested"}
	}

	from, err := bucket.ParseTime(start, time.Local)
	if err != nil {
		return nil, &config.ValidationError{Field: "start", Reason: err.Error()}
	}
	to := now
	if end != "" {
		if to, err = bucket.ParseTime(end, time.Local); err != nil {
			return nil, &config.ValidationError{Field: "end", Reason: err.Error()}
		}
	}

	keys, err := bucket.Range(from, to)
	if err != nil {
		return nil, &config.ValidationError{Field: "end", Reason: err.Error()}
	}
	return keys, nil
}

func fetchRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	cfg := *globalCfg
	applyFetchFlags(cmd, &cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if fetchReport != "text" && fetchReport != "json" {
		return &config.ValidationError{Field: "report", Reason: fmt.Sprintf("unknown format %q", fetchReport)}
	}
	if cfg.API.Token == "" {
		return &config.ValidationError{Field: "api.token", Reason: "required (--api-token, $" + config.TokenEnv + " or config file)"}
	}
	mode, err := download.ModeFor(cfg.Fetch.Decompress, cfg.Fetch.Transcode)
	if err != nil {
		return &config.ValidationError{Field: "fetch.transcode", Reason: err.Error()}
	}

	keys, err := resolveKeys(args, fetchStart, fetchEnd, time.Now())
	if err != nil {
		return err
	}

	client, err := download.NewClient(download.ClientOptions{
		BaseURL:         cfg.API.BaseURL,
		Token:           cfg.API.Token,
		UserAgent:       "ptarchive/" + version,
		Timeout:         cfg.API.Timeout(),
		MaxConnsPerHost: cfg.Fetch.Concurrency,
	}, logger)
	if err != nil {
		return &config.ValidationError{Field: "api.base_url", Reason: err.Error()}
	}

	runID := uuid.NewString()
	log := logger.With("run_id", runID)

	// JSON goes to stdout on its own, so progress lines move to stderr.
	progressOut := cmd.OutOrStdout()
	if fetchReport == "json" {
		progressOut = cmd.ErrOrStderr()
	}
	reporter := report.NewReporter(runID, mode, progressOut, cmd.ErrOrStderr())
	collectors := metrics.New()

	// Nothing is recorded for a run that cannot start.
	if err := download.CheckOutputDir(cfg.Fetch.OutputDir); err != nil {
		return err
	}

	ledger, err := openLedger(cfg.Store.DBPath)
	if err != nil {
		return err
	}
	if ledger != nil {
		defer ledger.Close()
	}

	run := &store.Run{
		ID:          runID,
		StartedAt:   time.Now(),
		Mode:        mode.String(),
		Concurrency: cfg.Fetch.Concurrency,
		ThrottleMS:  int64(cfg.Fetch.ThrottleMS),
		OutputDir:   cfg.Fetch.OutputDir,
		Total:       len(keys),
	}
	if ledger != nil {
		if err := ledger.CreateRun(run); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
	}

	log.Info("starting fetch",
		"buckets", len(keys),
		"mode", mode.String(),
		"concurrency", cfg.Fetch.Concurrency,
		"throttle", cfg.Fetch.Throttle(),
		"output_dir", cfg.Fetch.OutputDir,
	)

	pool := download.NewPool(client, download.Options{
		Concurrency: cfg.Fetch.Concurrency,
		Throttle:    cfg.Fetch.Throttle(),
		OutputDir:   cfg.Fetch.OutputDir,
		Mode:        mode,
	}, log)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := pool.Run(ctx, keys, func(o download.Outcome) {
		reporter.Record(o)
		collectors.Observe(o)
		if ledger != nil {
			if err := ledger.RecordBucket(bucketRecord(runID, o)); err != nil {
				log.Warn("failed to record bucket", "key", o.Key, "error", err)
			}
		}
	})

	summary := reporter.Summary()
	if ledger != nil {
		finishRun(ledger, run, summary, runErr, log)
	}
	if runErr != nil {
		return runErr
	}

	if err := writeSummary(cmd.OutOrStdout(), summary, fetchReport); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if cfg.Metrics.Textfile != "" {
		if err := collectors.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Error("failed to write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	if !summary.OK() {
		return fmt.Errorf("%d of %d archives failed", summary.Failed, summary.Total)
	}
	return nil
}

func writeSummary(w io.Writer, s report.Summary, format string) error {
	if format == "json" {
		return s.WriteJSON(w)
	}
	return s.WriteText(w)
}

func openLedger(path string) (*store.Store, error) {
	if path == "" {
		return nil, nil
	}
	st, err := store.New(path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return st, nil
}

func bucketRecord(runID string, o download.Outcome) *store.BucketRecord {
	rec := &store.BucketRecord{
		RunID:      runID,
		Key:        o.Key.String(),
		Status:     store.StatusSuccess,
		Bytes:      o.Bytes,
		Records:    o.Records,
		Files:      strings.Join(o.Files, ","),
		StartedAt:  o.Started,
		FinishedAt: o.Finish,
	}
	if o.Err != nil {
		rec.Status = store.StatusFailed
		rec.Error = o.Err.Error()
	}
	return rec
}

func finishRun(ledger *store.Store, run *store.Run, s report.Summary, runErr error, log *slog.Logger) {
	run.FinishedAt = time.Now()
	run.Total = s.Total
	run.Succeeded = s.Succeeded
	run.Failed = s.Failed
	run.Bytes = s.Bytes

	switch {
	case runErr != nil:
		run.Status = store.StatusFailed
		run.ErrorMessage = runErr.Error()
	case s.Failed == 0:
		run.Status = store.StatusSuccess
	case s.Succeeded == 0:
		run.Status = store.StatusFailed
	default:
		run.Status = store.StatusPartial
	}

	if err := ledger.FinishRun(run); err != nil {
		log.Warn("failed to finish run record", "error", err)
	}
}
