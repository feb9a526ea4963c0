package download

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BadgerOps/ptarchive/internal/bucket"
	"github.com/BadgerOps/ptarchive/internal/safety"
)

// Options configures a Pool. Values are copied at construction and stay
// fixed for every run of that pool.
type Options struct {
	// Concurrency caps the number of jobs between dispatch and outcome.
	Concurrency int
	// Throttle is the minimum spacing between successive dispatches.
	Throttle  time.Duration
	OutputDir string
	Mode      Mode
}

// Pool runs archive jobs on a fixed set of workers with a dispatch throttle.
type Pool struct {
	client   *Client
	workers  int
	throttle time.Duration
	dir      string
	mode     Mode
	logger   *slog.Logger
}

// NewPool creates a pool. A non-positive concurrency is treated as 1 and a
// negative throttle as 0.
func NewPool(client *Client, opts Options, logger *slog.Logger) *Pool {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Throttle < 0 {
		opts.Throttle = 0
	}
	return &Pool{
		client:   client,
		workers:  opts.Concurrency,
		throttle: opts.Throttle,
		dir:      opts.OutputDir,
		mode:     opts.Mode,
		logger:   logger,
	}
}

// Run dispatches one job per key in order and calls onOutcome for each
// terminal outcome in completion order, from the calling goroutine.
//
// A job is dispatched only when a worker is idle and at least the throttle
// interval has passed since the previous dispatch. Job failures never stop
// the run; the only error Run returns is a missing output directory, which
// is checked before any request is made. If ctx is cancelled, keys not yet
// dispatched are reported with ctx.Err() so every key still gets exactly
// one outcome.
func (p *Pool) Run(ctx context.Context, keys []bucket.Key, onOutcome func(Outcome)) error {
	if err := CheckOutputDir(p.dir); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	workers := p.workers
	if workers > len(keys) {
		workers = len(keys)
	}

	// Each idle worker holds one token in idle; the dispatcher takes a token
	// before it sends, so a send never waits on a busy pool.
	idle := make(chan struct{}, workers)
	jobsChan := make(chan Job)
	resultsChan := make(chan Outcome, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(ctx, idle, jobsChan, resultsChan, &wg)
	}

	go p.dispatch(ctx, keys, idle, jobsChan, resultsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for outcome := range resultsChan {
		if onOutcome != nil {
			onOutcome(outcome)
		}
	}
	return nil
}

// Execute runs keys and returns their outcomes in enumeration order.
func (p *Pool) Execute(ctx context.Context, keys []bucket.Key) ([]Outcome, error) {
	results := make([]Outcome, 0, len(keys))
	err := p.Run(ctx, keys, func(o Outcome) {
		results = append(results, o)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Index < results[j].Index
	})
	return results, nil
}

// dispatch hands jobs to workers in key order. The throttle clock advances
// only here, never on completion.
func (p *Pool) dispatch(ctx context.Context, keys []bucket.Key, idle <-chan struct{}, jobsChan chan<- Job, resultsChan chan<- Outcome) {
	defer close(jobsChan)

	var last time.Time
	for i, key := range keys {
		select {
		case <-idle:
		case <-ctx.Done():
			p.abandon(ctx, keys, i, resultsChan)
			return
		}

		if !last.IsZero() && p.throttle > 0 {
			if wait := p.throttle - time.Since(last); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					p.abandon(ctx, keys, i, resultsChan)
					return
				}
			}
		}

		last = time.Now()
		p.logger.Debug("dispatching archive job", "key", key, "index", i)
		jobsChan <- Job{Key: key, Mode: p.mode, index: i, dispatched: last}
	}
}

// abandon reports keys[from:] as cancelled without running them.
func (p *Pool) abandon(ctx context.Context, keys []bucket.Key, from int, resultsChan chan<- Outcome) {
	now := time.Now()
	for i := from; i < len(keys); i++ {
		resultsChan <- Outcome{
			Key:     keys[i],
			Index:   i,
			Mode:    p.mode,
			Err:     fmt.Errorf("not dispatched: %w", ctx.Err()),
			Started: now,
			Finish:  now,
		}
	}
	p.logger.Warn("run cancelled before all archives were dispatched", "remaining", len(keys)-from)
}

// worker processes jobs until jobsChan is closed.
func (p *Pool) worker(ctx context.Context, idle chan<- struct{}, jobsChan <-chan Job, resultsChan chan<- Outcome, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		idle <- struct{}{}
		job, ok := <-jobsChan
		if !ok {
			return
		}

		outcome := job.Run(ctx, p.client, p.dir)
		if outcome.Success() {
			p.logger.Info("archive job completed", "key", job.Key, "files", len(outcome.Files), "bytes", outcome.Bytes, "duration", outcome.Duration())
		} else {
			p.logger.Error("archive job failed", "key", job.Key, "error", outcome.Err)
		}
		resultsChan <- outcome
	}
}

// CheckOutputDir verifies dir exists and is a directory. A missing directory
// is reported as ErrMissingDirectory.
func CheckOutputDir(dir string) error {
	if err := safety.CheckDir(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingDirectory, dir)
		}
		return fmt.Errorf("output directory: %w", err)
	}
	return nil
}
