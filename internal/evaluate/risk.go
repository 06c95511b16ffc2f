package evaluate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"solana-sniper/internal/discovery"
)

// DefaultKeywords are weighted scam markers matched against name and symbol.
func DefaultKeywords() map[string]float64 {
	return map[string]float64{
		"test":     0.8,
		"fake":     0.9,
		"scam":     0.95,
		"rug":      0.9,
		"honeypot": 0.95,
		"pump":     0.3,
		"moon":     0.2,
		"doge":     0.1,
	}
}

// Metadata signal weights.
const (
	emptyURIScore   = 0.6
	longSymbolScore = 0.5
	longNameScore   = 0.4
	shortNameScore  = 0.2

	maxSymbolLen = 10
	maxNameLen   = 50
	minNameLen   = 3
)

// HeuristicRiskEvaluator scores a launch as the highest weight among its matched
// signals and rejects scores above MaxScore.
type HeuristicRiskEvaluator struct {
	maxScore float64
	keywords []keyword
}

type keyword struct {
	word   string
	weight float64
}

// NewHeuristicRiskEvaluator creates the evaluator; nil keywords means DefaultKeywords.
func NewHeuristicRiskEvaluator(maxScore float64, keywords map[string]float64) *HeuristicRiskEvaluator {
	if keywords == nil {
		keywords = DefaultKeywords()
	}
	e := &HeuristicRiskEvaluator{maxScore: maxScore}
	for w, weight := range keywords {
		e.keywords = append(e.keywords, keyword{word: strings.ToLower(w), weight: weight})
	}
	// heaviest first so the reported reason is deterministic
	sort.Slice(e.keywords, func(i, j int) bool {
		if e.keywords[i].weight != e.keywords[j].weight {
			return e.keywords[i].weight > e.keywords[j].weight
		}
		return e.keywords[i].word < e.keywords[j].word
	})
	return e
}

// Score returns the risk score in [0, 1] and the signal that produced it.
func (e *HeuristicRiskEvaluator) Score(ev *discovery.CreateEvent) (float64, string) {
	score, reason := 0.0, ""
	raise := func(s float64, why string) {
		if s > score {
			score, reason = s, why
		}
	}

	text := strings.ToLower(ev.Name + " " + ev.Symbol)
	for _, k := range e.keywords {
		if strings.Contains(text, k.word) {
			raise(k.weight, fmt.Sprintf("keyword %q", k.word))
			break
		}
	}
	if strings.TrimSpace(ev.URI) == "" {
		raise(emptyURIScore, "empty metadata uri")
	}
	if len(ev.Symbol) > maxSymbolLen {
		raise(longSymbolScore, "symbol longer than 10 chars")
	}
	if len(ev.Name) > maxNameLen {
		raise(longNameScore, "name longer than 50 chars")
	}
	if len(strings.TrimSpace(ev.Name)) < minNameLen {
		raise(shortNameScore, "name shorter than 3 chars")
	}
	return score, reason
}

// EvaluateRisk implements RiskEvaluator.
func (e *HeuristicRiskEvaluator) EvaluateRisk(_ context.Context, ev *discovery.CreateEvent) (Verdict, error) {
	score, reason := e.Score(ev)
	v := Verdict{Score: score, Accept: score <= e.maxScore}
	if v.Accept {
		v.Reason = fmt.Sprintf("risk %.2f", score)
	} else {
		v.Reason = fmt.Sprintf("risk %.2f above %.2f: %s", score, e.maxScore, reason)
	}
	return v, nil
}
