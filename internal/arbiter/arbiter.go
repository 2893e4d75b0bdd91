// Package arbiter selects the winning candidate for a module from the
// results the provider fan-out produced. Selection is deterministic:
// the same candidate set always yields the same winner.
package arbiter

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/siteintel/analyzer/internal/analysis"
)

// Strategy scores candidates for one module. Scores are compared
// greatest-first; implementations must be deterministic for a given
// input. Failed candidates are never passed to a Strategy.
type Strategy interface {
	Name() string
	Score(ctx context.Context, module analysis.Module, candidates []analysis.CandidateResult) ([]float64, error)
}

// Arbiter applies a strategy and breaks ties by configured provider
// priority.
type Arbiter struct {
	strategy Strategy
	fallback Strategy
	priority map[string]int
	logger   *zap.Logger
}

// New builds an Arbiter. priority lists provider names best-first;
// providers absent from the list rank after every listed one. fallback
// is consulted when the primary strategy errors and may be nil.
func New(strategy Strategy, fallback Strategy, priority []string, logger *zap.Logger) (*Arbiter, error) {
	if strategy == nil {
		return nil, fmt.Errorf("arbiter strategy is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ranks := make(map[string]int, len(priority))
	for i, name := range priority {
		if _, ok := ranks[name]; !ok {
			ranks[name] = i
		}
	}
	return &Arbiter{
		strategy: strategy,
		fallback: fallback,
		priority: ranks,
		logger:   logger,
	}, nil
}

// Select arbitrates the candidates for module and returns the module's
// final result. A result with Failed=true is returned only when every
// candidate failed.
func (a *Arbiter) Select(ctx context.Context, module analysis.Module, candidates []analysis.CandidateResult) analysis.ModuleResult {
	viable := make([]analysis.CandidateResult, 0, len(candidates))
	for _, c := range candidates {
		if c.OK {
			viable = append(viable, c)
		}
	}

	if len(viable) == 0 {
		return analysis.ModuleResult{
			Module: module,
			Failed: true,
			Error:  summarizeFailures(candidates),
		}
	}

	if len(viable) == 1 {
		return analysis.ModuleResult{
			Module:    module,
			Output:    viable[0].Output,
			Provider:  viable[0].Provider,
			Rationale: "only successful candidate",
		}
	}

	winner, rationale := a.rank(ctx, module, viable)
	return analysis.ModuleResult{
		Module:    module,
		Output:    viable[winner].Output,
		Provider:  viable[winner].Provider,
		Rationale: rationale,
	}
}

func (a *Arbiter) rank(ctx context.Context, module analysis.Module, viable []analysis.CandidateResult) (int, string) {
	strategy := a.strategy
	scores, err := strategy.Score(ctx, module, viable)
	if err != nil || len(scores) != len(viable) {
		if a.fallback == nil {
			return a.bestByPriority(viable), "selected by provider priority"
		}
		a.logger.Warn("arbiter strategy failed, using fallback",
			zap.String("module", string(module)),
			zap.String("strategy", strategy.Name()),
			zap.Error(err),
		)
		strategy = a.fallback
		scores, err = strategy.Score(ctx, module, viable)
		if err != nil || len(scores) != len(viable) {
			return a.bestByPriority(viable), "selected by provider priority"
		}
	}

	best := 0
	for i := 1; i < len(viable); i++ {
		switch {
		case scores[i] > scores[best]:
			best = i
		case scores[i] == scores[best] && a.providerRank(viable[i].Provider) < a.providerRank(viable[best].Provider):
			best = i
		}
	}
	return best, fmt.Sprintf("scored highest by %s strategy", strategy.Name())
}

func (a *Arbiter) bestByPriority(viable []analysis.CandidateResult) int {
	best := 0
	for i := 1; i < len(viable); i++ {
		if a.providerRank(viable[i].Provider) < a.providerRank(viable[best].Provider) {
			best = i
		}
	}
	return best
}

func (a *Arbiter) providerRank(name string) int {
	if rank, ok := a.priority[name]; ok {
		return rank
	}
	return len(a.priority)
}

func summarizeFailures(candidates []analysis.CandidateResult) string {
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		detail := c.FailureDetail
		if detail == "" {
			detail = string(c.FailureKind)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", c.Provider, detail))
	}
	if len(parts) == 0 {
		return "no candidates produced"
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}
