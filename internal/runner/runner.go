// Package runner fans a single module's prompt out to every configured
// provider concurrently and collects one candidate result per provider.
package runner

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/siteintel/analyzer/internal/analysis"
)

// Options tune one Runner instance.
type Options struct {
	// Timeout bounds the whole module fan-out, all providers included.
	Timeout time.Duration
	// MinContentLength is the extracted-text size below which prompts
	// fall back to domain inference.
	MinContentLength int
	Constraints      analysis.Constraints
}

type Runner struct {
	providers   []analysis.Provider
	timeout     time.Duration
	minContent  int
	constraints analysis.Constraints
	logger      *zap.Logger
}

func New(providers []analysis.Provider, opts Options, logger *zap.Logger) (*Runner, error) {
	if len(providers) == 0 {
		return nil, analysis.ErrNoProviders
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.MinContentLength <= 0 {
		opts.MinContentLength = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		providers:   providers,
		timeout:     opts.Timeout,
		minContent:  opts.MinContentLength,
		constraints: opts.Constraints,
		logger:      logger,
	}, nil
}

// Run executes one module against every provider and returns the task
// with candidates in provider registration order. The task fails only
// when every candidate fails.
func (r *Runner) Run(ctx context.Context, module analysis.Module, page analysis.PageContent, params analysis.ModuleParams) analysis.ModuleTask {
	// Thin pages get the domain-inference prompt rather than a prompt
	// built on a few stray words.
	if !page.Usable(r.minContent) {
		page.Text = ""
	}

	prompt, err := BuildPrompt(module, page, params)
	if err != nil {
		return analysis.ModuleTask{
			Module: module,
			Params: params,
			Status: analysis.TaskStatusFailed,
			Candidates: []analysis.CandidateResult{{
				OK:            false,
				FailureKind:   analysis.FailureInvalidResponse,
				FailureDetail: err.Error(),
			}},
		}
	}

	task := r.RunPrompt(ctx, module, prompt)
	task.Params = params
	return task
}

// RunPrompt fans an already-built prompt out to every provider. Callers
// that assemble their own prompts, like the competitor comparison, use
// this directly.
func (r *Runner) RunPrompt(ctx context.Context, module analysis.Module, prompt analysis.Prompt) analysis.ModuleTask {
	start := time.Now()
	task := analysis.ModuleTask{
		Module: module,
		Status: analysis.TaskStatusRunning,
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Fixed indexing keeps candidate order independent of which
	// provider answers first.
	candidates := make([]analysis.CandidateResult, len(r.providers))
	var wg sync.WaitGroup
	for i, p := range r.providers {
		wg.Add(1)
		go func(i int, p analysis.Provider) {
			defer wg.Done()
			candidates[i] = p.Invoke(runCtx, prompt, r.constraints)
		}(i, p)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		// Providers honor context cancellation, so the remaining
		// goroutines finish shortly after. Wait for them before
		// reading the shared slice.
		<-done
	}

	task.Duration = time.Since(start)
	anyOK := false
	for i := range candidates {
		c := &candidates[i]
		if c.Provider == "" {
			c.Provider = r.providers[i].Name()
		}
		if c.OK {
			anyOK = true
		} else {
			r.logger.Debug("module candidate failed",
				zap.String("module", string(module)),
				zap.String("provider", c.Provider),
				zap.String("failure", string(c.FailureKind)),
			)
		}
	}
	task.Candidates = candidates
	if anyOK {
		task.Status = analysis.TaskStatusDone
	} else {
		task.Status = analysis.TaskStatusFailed
	}
	return task
}
