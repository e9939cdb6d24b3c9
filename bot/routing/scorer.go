package routing

import (
	"sort"
	"strings"
	"unicode"

	"github.com/warintorn/shoptalk/bot/business"
)

// Scoring weights. A whole-word trigger hit is worth more than a bare
// substring hit, and corroborating triggers add a small bonus so that
// trigger count alone never dominates.
const (
	wholeWordPoints     = 3.0
	substringPoints     = 2.0
	corroborationBonus  = 0.5
	classifyThresholdLo = 2.0
)

// IntentScore is the scored result for one intent.
type IntentScore struct {
	Intent          *business.IntentDefinition `json:"intent"`
	Score           float64                    `json:"score"`
	MatchedTriggers []string                   `json:"matched_triggers"`
}

// ScoreIntents scores every active configured intent against the
// message and returns non-zero scores sorted descending. Output is
// deterministic for fixed inputs: ties break on intent priority, then
// intent id.
func ScoreIntents(message string, cfg *business.Config) []IntentScore {
	lower := strings.ToLower(message)

	var scores []IntentScore
	for _, intent := range cfg.Intents {
		if !intent.Active || len(intent.Triggers) == 0 {
			continue
		}

		var score float64
		var matched []string
		for _, trigger := range intent.Triggers {
			t := strings.ToLower(strings.TrimSpace(trigger))
			if t == "" || !strings.Contains(lower, t) {
				continue
			}
			if containsWholeWord(lower, t) {
				score += wholeWordPoints
			} else {
				score += substringPoints
			}
			matched = append(matched, trigger)
		}
		if len(matched) > 1 {
			score += corroborationBonus * float64(len(matched)-1)
		}
		if score == 0 {
			continue
		}
		scores = append(scores, IntentScore{
			Intent:          intent,
			Score:           score,
			MatchedTriggers: matched,
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if scores[i].Intent.Priority != scores[j].Intent.Priority {
			return scores[i].Intent.Priority > scores[j].Intent.Priority
		}
		return scores[i].Intent.ID < scores[j].Intent.ID
	})

	return scores
}

// ClassifyIntent returns the top-scoring intent when it clears the
// threshold, or nil. A threshold <= 0 uses the default (one bare
// substring match).
func ClassifyIntent(message string, cfg *business.Config, threshold float64) *IntentScore {
	if threshold <= 0 {
		threshold = classifyThresholdLo
	}
	scores := ScoreIntents(message, cfg)
	if len(scores) == 0 || scores[0].Score < threshold {
		return nil
	}
	top := scores[0]
	return &top
}

// containsWholeWord reports whether needle occurs in haystack bounded by
// start/end of string, whitespace, or punctuation on both sides. Any
// one whole-word occurrence qualifies.
func containsWholeWord(haystack, needle string) bool {
	for from := 0; ; {
		idx := strings.Index(haystack[from:], needle)
		if idx < 0 {
			return false
		}
		idx += from
		if isBoundary(haystack, idx-1, true) && isBoundary(haystack, idx+len(needle), false) {
			return true
		}
		from = idx + 1
		if from >= len(haystack) {
			return false
		}
	}
}

// isBoundary checks the rune adjacent to a match edge. before selects
// whether pos is the byte before the match (look backwards) or the
// first byte after it.
func isBoundary(s string, pos int, before bool) bool {
	if before {
		if pos < 0 {
			return true
		}
		r := lastRuneAt(s, pos)
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}
	if pos >= len(s) {
		return true
	}
	r := []rune(s[pos:])[0]
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

// lastRuneAt returns the rune ending at byte index pos.
func lastRuneAt(s string, pos int) rune {
	runes := []rune(s[:pos+1])
	if len(runes) == 0 {
		return utfReplacement
	}
	return runes[len(runes)-1]
}

const utfReplacement = '�'
