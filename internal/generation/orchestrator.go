// Package generation wraps the external image model call with a timeout, a
// bounded retry policy and a realism check that may trigger regeneration.
package generation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"nightscape-preview/internal/raster"
)

const (
	DefaultCallTimeout   = 120 * time.Second
	DefaultMaxAttempts   = 3
	DefaultBaseDelay     = 2 * time.Second
	DefaultMaxDelay      = 60 * time.Second
	DefaultThreshold     = 85.0
	DefaultRegenerations = 1
)

// MaxAttemptsLimit bounds MaxAttempts per round.
const MaxAttemptsLimit = 10

// DefaultLockInstruction is appended to the prompt when a result is sent
// back for regeneration.
const DefaultLockInstruction = `LOCK: the previous attempt did not look like a real photograph. ` +
	`Keep the house, framing, camera angle and every surface exactly as in the input image. ` +
	`Change only the lighting at the marked fixture positions and add no fixtures that are not marked.`

// Request is one model call: the prepared image and the instructions for it.
type Request struct {
	Image       raster.Image
	Prompt      string
	AspectRatio string
}

// Generator is the external image model.
type Generator interface {
	Generate(ctx context.Context, req Request) (raster.Image, error)
}

// Verdict is a realism score from 0 to 100 and what lowered it.
type Verdict struct {
	Score  float64
	Issues []string
}

// Verifier scores a generated image.
type Verifier interface {
	Verify(ctx context.Context, img raster.Image, prompt string) (Verdict, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (raster.Image, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (raster.Image, error) {
	return f(ctx, req)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, img raster.Image, prompt string) (Verdict, error)

func (f VerifierFunc) Verify(ctx context.Context, img raster.Image, prompt string) (Verdict, error) {
	return f(ctx, img, prompt)
}

type Options struct {
	Generator Generator
	// Verifier is optional; without it the first image is accepted.
	Verifier Verifier

	CallTimeout     time.Duration
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	Threshold       float64
	Regenerations   int
	LockInstruction string

	// Sleep waits between attempts. Tests replace it to record delays.
	Sleep    func(ctx context.Context, d time.Duration) error
	Observer Observer
	Logger   *slog.Logger
}

// Result is the image Generate settled on.
type Result struct {
	Image raster.Image
	Score float64
	// Verified is false when no verifier ran or it failed.
	Verified bool
	// Accepted is true when the score met the threshold (or no score exists).
	Accepted      bool
	Issues        []string
	Calls         int
	Regenerations int
}

type Orchestrator struct {
	gen           Generator
	verifier      Verifier
	callTimeout   time.Duration
	maxAttempts   int
	baseDelay     time.Duration
	maxDelay      time.Duration
	threshold     float64
	regenerations int
	lock          string
	sleep         func(ctx context.Context, d time.Duration) error
	observer      Observer
	logger        *slog.Logger
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		gen:           opts.Generator,
		verifier:      opts.Verifier,
		callTimeout:   opts.CallTimeout,
		maxAttempts:   opts.MaxAttempts,
		baseDelay:     opts.BaseDelay,
		maxDelay:      opts.MaxDelay,
		threshold:     opts.Threshold,
		regenerations: opts.Regenerations,
		lock:          strings.TrimSpace(opts.LockInstruction),
		sleep:         opts.Sleep,
		observer:      opts.Observer,
		logger:        opts.Logger,
	}

	if o.callTimeout <= 0 {
		o.callTimeout = DefaultCallTimeout
	}
	if o.maxAttempts <= 0 {
		o.maxAttempts = DefaultMaxAttempts
	}
	if o.maxAttempts > MaxAttemptsLimit {
		o.maxAttempts = MaxAttemptsLimit
	}
	if o.baseDelay <= 0 {
		o.baseDelay = DefaultBaseDelay
	}
	if o.maxDelay <= 0 {
		o.maxDelay = DefaultMaxDelay
	}
	if o.maxDelay < o.baseDelay {
		o.maxDelay = o.baseDelay
	}
	if o.threshold <= 0 || o.threshold > 100 {
		o.threshold = DefaultThreshold
	}
	if o.regenerations < 0 {
		o.regenerations = 0
	}
	if o.lock == "" {
		o.lock = DefaultLockInstruction
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Generate runs the model until it returns an image that passes
// verification, or until regenerations run out, in which case the
// best-scoring image is returned with Accepted=false.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (Result, error) {
	if o.gen == nil {
		return Result{}, ErrNoGenerator
	}
	o.emit(Idle, Attempt{})

	var (
		best  *Result
		calls int
	)
	for round := 0; round <= o.regenerations; round++ {
		r := req
		if round > 0 {
			r.Prompt = strings.TrimSpace(req.Prompt) + "\n\n" + o.lock
			o.emit(Regenerating, Attempt{Round: round})
		}

		img, n, err := o.generateWithRetry(ctx, r, round)
		calls += n
		if err != nil {
			if best != nil && ctx.Err() == nil {
				o.logger.Warn("regeneration failed, keeping best result", "round", round, "err", err, "score", best.Score)
				break
			}
			return Result{Calls: calls, Regenerations: round}, err
		}

		if o.verifier == nil {
			o.emit(Accepted, Attempt{Round: round})
			o.emit(Done, Attempt{Round: round})
			return Result{Image: img, Accepted: true, Calls: calls, Regenerations: round}, nil
		}

		o.emit(Verifying, Attempt{Round: round})
		verdict, err := o.verify(ctx, img, r.Prompt)
		if err != nil {
			if ctx.Err() != nil {
				return Result{Calls: calls, Regenerations: round}, ctx.Err()
			}
			if best != nil {
				o.logger.Warn("verification failed, keeping best result", "round", round, "err", err, "score", best.Score)
				break
			}
			o.logger.Warn("verification failed, accepting image", "round", round, "err", err)
			o.emit(Accepted, Attempt{Round: round, Err: err})
			o.emit(Done, Attempt{Round: round})
			return Result{Image: img, Accepted: true, Calls: calls, Regenerations: round}, nil
		}

		cand := Result{
			Image:         img,
			Score:         verdict.Score,
			Verified:      true,
			Issues:        verdict.Issues,
			Calls:         calls,
			Regenerations: round,
		}
		if best == nil || cand.Score > best.Score {
			best = &cand
		}

		if verdict.Score >= o.threshold {
			cand.Accepted = true
			o.emit(Accepted, Attempt{Round: round, Score: verdict.Score})
			o.emit(Done, Attempt{Round: round, Score: verdict.Score})
			return cand, nil
		}
		o.logger.Info("image below realism threshold", "round", round, "score", verdict.Score, "threshold", o.threshold, "issues", verdict.Issues)
	}

	out := *best
	out.Accepted = false
	out.Calls = calls
	o.emit(Accepted, Attempt{Round: out.Regenerations, Score: out.Score})
	o.emit(Done, Attempt{Round: out.Regenerations, Score: out.Score})
	return out, nil
}

// generateWithRetry returns the image, the number of calls made and an error.
func (o *Orchestrator) generateWithRetry(ctx context.Context, req Request, round int) (raster.Image, int, error) {
	var last error
	calls := 0
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		o.emit(Requesting, Attempt{Round: round, Call: attempt})

		start := time.Now()
		img, err := race(ctx, o.callTimeout, func(ctx context.Context) (raster.Image, error) {
			return o.gen.Generate(ctx, req)
		})
		calls++
		if err == nil {
			o.logger.Debug("generation call succeeded", "round", round, "attempt", attempt, "dur_ms", time.Since(start).Milliseconds())
			return img, calls, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return raster.Image{}, calls, ctxErr
		}

		if !IsRetryable(err) {
			o.logger.Warn("generation call failed", "round", round, "attempt", attempt, "err", err)
			o.emit(Failed, Attempt{Round: round, Call: attempt, Err: err})
			return raster.Image{}, calls, Classify(err)
		}

		last = err
		if errors.Is(err, ErrTimeout) {
			o.emit(TimedOut, Attempt{Round: round, Call: attempt, Err: err})
		}
		if attempt == o.maxAttempts {
			break
		}

		delay := o.backoff(attempt)
		o.logger.Warn("generation call failed, retrying", "round", round, "attempt", attempt, "err", err, "retry_in_ms", delay.Milliseconds())
		o.emit(Retrying, Attempt{Round: round, Call: attempt, Delay: delay, Err: err})
		if err := o.sleep(ctx, delay); err != nil {
			return raster.Image{}, calls, err
		}
	}

	o.emit(Failed, Attempt{Round: round, Call: calls, Err: last})
	return raster.Image{}, calls, &RetryExhaustedError{Attempts: calls, Last: last}
}

// backoff doubles baseDelay per attempt and stops at maxDelay.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	delay := o.baseDelay
	for i := 1; i < attempt; i++ {
		if delay >= o.maxDelay/2 {
			return o.maxDelay
		}
		delay *= 2
	}
	return min(delay, o.maxDelay)
}

func (o *Orchestrator) verify(ctx context.Context, img raster.Image, prompt string) (Verdict, error) {
	return race(ctx, o.callTimeout, func(ctx context.Context) (Verdict, error) {
		return o.verifier.Verify(ctx, img, prompt)
	})
}

func (o *Orchestrator) emit(s State, a Attempt) {
	if o.observer != nil {
		o.observer(s, a)
	}
}

type outcome[T any] struct {
	val T
	err error
}

// race runs fn under a timeout. The call keeps running in its goroutine after
// a timeout, but its context is cancelled and its result is dropped.
func race[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn(callCtx)
		done <- outcome[T]{val: v, err: err}
	}()

	var zero T
	select {
	case res := <-done:
		if res.err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return res.val, res.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, ErrTimeout
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
