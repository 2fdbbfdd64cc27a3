package batch

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	pkgerrors "github.com/angelmondragon/packfinderz-catalog/pkg/errors"
	"github.com/angelmondragon/packfinderz-catalog/pkg/logger"
)

const (
	defaultBatchSize         = 10
	defaultConcurrency       = 1
	defaultBackoffMultiplier = 2
)

// Handler performs one write for item. index is the item's position in the input.
type Handler[T any] func(ctx context.Context, index int, item T) error

// Outcome is the engine's classification of one handler attempt.
type Outcome uint8

const (
	OutcomeSucceeded Outcome = iota
	OutcomeRetryable
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeRetryable:
		return "retryable"
	case OutcomePermanent:
		return "permanent"
	}
	return "unknown"
}

// Options tunes batching, pacing and retries. Zero values fall back to
// sequential processing in batches of ten with no delays and no retries.
type Options struct {
	BatchSize         int
	BatchDelay        time.Duration
	Concurrency       int
	ItemDelay         time.Duration
	MaxRetries        int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration

	// Classify maps a handler error to an outcome. Defaults to ClassifyError.
	Classify func(err error) Outcome
	// OnProgress is called after each item reaches a terminal outcome. Calls
	// never overlap and completed is strictly increasing; keep it quick.
	OnProgress func(completed, total int)
	// Sleep waits for d or until ctx is done. Tests swap it for a recorder.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *logger.Logger
	// Phase labels log entries.
	Phase string
}

// Failure records an item the engine gave up on.
type Failure[T any] struct {
	Index    int
	Item     T
	Err      error
	Attempts int
	Status   int
	Message  string
	Type     string
	Kind     pkgerrors.Kind
}

// Result is the aggregate of a run.
type Result[T any] struct {
	Total     int
	Completed int
	Succeeded int
	Retries   int
	Failures  []Failure[T]
}

// Err combines every failure into one error, or nil when none failed.
func (r Result[T]) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, fmt.Errorf("item %d: %w", f.Index, f.Err))
	}
	return err
}

// ClassifyError treats nil as success, transient failures as retryable and
// everything else as permanent.
func ClassifyError(err error) Outcome {
	if err == nil {
		return OutcomeSucceeded
	}
	if pkgerrors.Normalize(err).Transient() {
		return OutcomeRetryable
	}
	return OutcomePermanent
}

// Backoff returns initial × multiplier^(attempt-1), capped at max when max > 0.
func Backoff(attempt int, initial time.Duration, multiplier float64, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if multiplier <= 0 {
		multiplier = defaultBackoffMultiplier
	}
	wait := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if max > 0 && wait > float64(max) {
		return max
	}
	return time.Duration(wait)
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BackoffMultiplier <= 0 {
		o.BackoffMultiplier = defaultBackoffMultiplier
	}
	if o.Classify == nil {
		o.Classify = ClassifyError
	}
	if o.Sleep == nil {
		o.Sleep = Sleep
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	return o
}

type run[T any] struct {
	opts    Options
	items   []T
	handler Handler[T]

	mu        sync.Mutex
	completed int
	succeeded int
	retries   int
	failures  []Failure[T]

	progressMu sync.Mutex
	reported   int
}

// Run processes items in batches. Within a batch up to Concurrency workers
// pull the next unclaimed index; batch N+1 starts only after every item of
// batch N is terminal. A failing item never stops its siblings. When ctx is
// cancelled no new item is started, in-flight items finish, and the partial
// result is returned with ctx.Err().
func Run[T any](ctx context.Context, items []T, handler Handler[T], opts Options) (Result[T], error) {
	if handler == nil {
		return Result[T]{}, fmt.Errorf("batch handler is required")
	}
	r := &run[T]{opts: opts.withDefaults(), items: items, handler: handler}
	total := len(items)

	var runErr error
	for start := 0; start < total; start += r.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		end := start + r.opts.BatchSize
		if end > total {
			end = total
		}
		r.runBatch(ctx, start, end)

		if end < total {
			if err := r.opts.Sleep(ctx, r.opts.BatchDelay); err != nil {
				runErr = err
				break
			}
		}
	}
	if runErr == nil && r.completed < total {
		runErr = ctx.Err()
	}

	sort.Slice(r.failures, func(i, j int) bool { return r.failures[i].Index < r.failures[j].Index })
	return Result[T]{
		Total:     total,
		Completed: r.completed,
		Succeeded: r.succeeded,
		Retries:   r.retries,
		Failures:  r.failures,
	}, runErr
}

func (r *run[T]) runBatch(ctx context.Context, start, end int) {
	workers := r.opts.Concurrency
	if size := end - start; workers > size {
		workers = size
	}

	var (
		cursor = int64(start)
		wg     sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				idx := int(atomic.AddInt64(&cursor, 1) - 1)
				if idx >= end {
					return
				}
				r.process(ctx, idx)
				if r.opts.ItemDelay > 0 {
					if err := r.opts.Sleep(ctx, r.opts.ItemDelay); err != nil {
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

// process runs one item to a terminal outcome, retrying in place.
func (r *run[T]) process(ctx context.Context, idx int) {
	item := r.items[idx]
	for attempt := 1; ; attempt++ {
		err := r.handler(ctx, idx, item)
		outcome := r.opts.Classify(err)
		if outcome == OutcomeSucceeded {
			r.finish(idx, nil)
			return
		}

		if outcome == OutcomeRetryable && attempt <= r.opts.MaxRetries {
			wait := Backoff(attempt, r.opts.InitialBackoff, r.opts.BackoffMultiplier, r.opts.MaxBackoff)
			r.logAttempt(ctx, "batch item retrying", idx, attempt, err)
			r.mu.Lock()
			r.retries++
			r.mu.Unlock()
			if sleepErr := r.opts.Sleep(ctx, wait); sleepErr != nil {
				r.finish(idx, r.failure(idx, item, multierr.Append(err, sleepErr), attempt))
				return
			}
			continue
		}

		r.logAttempt(ctx, "batch item failed", idx, attempt, err)
		r.finish(idx, r.failure(idx, item, err, attempt))
		return
	}
}

func (r *run[T]) failure(idx int, item T, err error, attempts int) *Failure[T] {
	n := pkgerrors.Normalize(err)
	return &Failure[T]{
		Index:    idx,
		Item:     item,
		Err:      err,
		Attempts: attempts,
		Status:   n.Status,
		Message:  n.Message,
		Type:     n.Type,
		Kind:     n.Kind,
	}
}

func (r *run[T]) finish(idx int, failure *Failure[T]) {
	r.mu.Lock()
	r.completed++
	completed := r.completed
	if failure != nil {
		r.failures = append(r.failures, *failure)
	} else {
		r.succeeded++
	}
	r.mu.Unlock()

	r.reportProgress(completed)
}

// reportProgress runs OnProgress outside the result lock. Calls are serialized
// and a count overtaken by a later one is dropped, so completed never
// decreases and the final call reports the total.
func (r *run[T]) reportProgress(completed int) {
	if r.opts.OnProgress == nil {
		return
	}
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	if completed <= r.reported {
		return
	}
	r.reported = completed
	r.opts.OnProgress(completed, len(r.items))
}

func (r *run[T]) logAttempt(ctx context.Context, msg string, idx, attempt int, err error) {
	n := pkgerrors.Normalize(err)
	ctx = r.opts.Logger.WithFields(ctx, map[string]any{
		"phase":   r.opts.Phase,
		"index":   idx,
		"attempt": attempt,
		"status":  n.Status,
		"kind":    string(n.Kind),
		"error":   n.Message,
	})
	r.opts.Logger.Warn(ctx, msg)
}
