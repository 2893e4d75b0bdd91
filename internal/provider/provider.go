// Package provider implements the shared adapter layer over model backends.
//
// Concrete backends (gemini, openai) implement Caller; Adapter wraps a
// Caller with a per-call timeout, failure classification, a jittered
// exponential retry policy for transient categories, and a token-bucket
// rate limiter so concurrent module fan-out cannot hammer one backend.
package provider

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/siteintel/analyzer/internal/analysis"
)

// Caller performs one raw request/response exchange with a backend.
// It may return a *CallError to pre-classify the failure.
type Caller interface {
	Call(ctx context.Context, prompt analysis.Prompt, c analysis.Constraints) (string, error)
}

// Options tune one Adapter instance.
type Options struct {
	Timeout time.Duration
	Retry   RetryPolicy
	RPS     float64
	Burst   int
	// MaxOutputTokens fills the constraint when the caller leaves it
	// unset. Zero means no backend-side cap.
	MaxOutputTokens int
}

// Adapter implements analysis.Provider around a Caller.
type Adapter struct {
	name      string
	caller    Caller
	timeout   time.Duration
	maxTokens int
	retry     RetryPolicy
	limiter   *rate.Limiter
}

// New constructs an Adapter.
func New(name string, caller Caller, opts Options) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	limit := rate.Limit(opts.RPS)
	if opts.RPS <= 0 {
		limit = rate.Inf
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Adapter{
		name:      name,
		caller:    caller,
		timeout:   opts.Timeout,
		maxTokens: opts.MaxOutputTokens,
		retry:     opts.Retry.withDefaults(),
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// Name identifies the backend in candidate results and metrics.
func (a *Adapter) Name() string {
	return a.name
}

// Invoke issues one prompt exchange. It never returns a Go error:
// provider-side failures come back as a CandidateResult with OK=false
// and a categorized FailureKind. Retries apply only to transient
// categories; the result carries the outcome of the final attempt.
func (a *Adapter) Invoke(ctx context.Context, prompt analysis.Prompt, c analysis.Constraints) analysis.CandidateResult {
	timeout := a.timeout
	if c.Timeout > 0 && c.Timeout < timeout {
		timeout = c.Timeout
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = a.maxTokens
	}

	start := time.Now()
	var result analysis.CandidateResult
	for attempt := 0; ; attempt++ {
		result = a.attempt(ctx, prompt, c, timeout)
		if result.OK {
			break
		}
		if !a.retry.ShouldRetry(result.FailureKind, attempt) {
			break
		}
		if err := sleepContext(ctx, a.retry.Backoff(attempt)); err != nil {
			break
		}
	}
	result.Provider = a.name
	result.Latency = time.Since(start)
	return result
}

func (a *Adapter) attempt(
	ctx context.Context,
	prompt analysis.Prompt,
	c analysis.Constraints,
	timeout time.Duration,
) analysis.CandidateResult {
	if err := a.limiter.Wait(ctx); err != nil {
		return failed(Classify(err), fmt.Sprintf("rate limiter wait: %v", err))
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := a.caller.Call(callCtx, prompt, c)
	if err != nil {
		return failed(Classify(err), err.Error())
	}
	if output == "" {
		return failed(analysis.FailureInvalidResponse, "provider returned empty output")
	}
	return analysis.CandidateResult{OK: true, Output: output}
}

func failed(kind analysis.FailureKind, detail string) analysis.CandidateResult {
	return analysis.CandidateResult{
		OK:            false,
		FailureKind:   kind,
		FailureDetail: detail,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
