package arbiter

import (
	"context"
	"strings"

	"github.com/siteintel/analyzer/internal/analysis"
)

// Heuristic scores candidates without another model call. Coverage of
// the sections a module's prompt asks for dominates the score; raw
// length acts only as a capped tiebreaker, so a rambling answer cannot
// beat a complete one.
type Heuristic struct {
	MinOutputLength int
}

// NewHeuristic builds the default scoring strategy.
func NewHeuristic(minOutputLength int) *Heuristic {
	if minOutputLength <= 0 {
		minOutputLength = 80
	}
	return &Heuristic{MinOutputLength: minOutputLength}
}

func (h *Heuristic) Name() string { return "heuristic" }

// expectedTerms maps each module to phrases a complete answer mentions.
var expectedTerms = map[analysis.Module][]string{
	analysis.ModuleSEO:         {"title", "meta", "keyword", "content", "recommend"},
	analysis.ModuleAudit:       {"technical", "business", "content", "recommend", "priority"},
	analysis.ModuleContent:     {"title", "description", "audience", "outcome"},
	analysis.ModuleSocial:      {"content", "posting", "engagement", "hashtag"},
	analysis.ModuleEmail:       {"subject", "email", "call-to-action", "testing"},
	analysis.ModuleContact:     {"email", "phone", "address", "social"},
	analysis.ModuleBrochure:    {"company", "culture", "customer", "career"},
	analysis.ModuleCompetitors: {"value proposition", "competit", "advantage", "content"},
}

const lengthScoreCap = 500

// Score rates each candidate. Outputs shorter than MinOutputLength
// score zero.
func (h *Heuristic) Score(_ context.Context, module analysis.Module, candidates []analysis.CandidateResult) ([]float64, error) {
	terms := expectedTerms[module]
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		if len(c.Output) < h.MinOutputLength {
			continue
		}
		lower := strings.ToLower(c.Output)
		covered := 0
		for _, term := range terms {
			if strings.Contains(lower, term) {
				covered++
			}
		}
		score := float64(covered) * 1000
		if n := len(c.Output); n > lengthScoreCap {
			score += lengthScoreCap
		} else {
			score += float64(n)
		}
		scores[i] = score
	}
	return scores, nil
}
