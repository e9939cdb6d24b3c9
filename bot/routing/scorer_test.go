package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warintorn/shoptalk/bot/business"
)

func scorerConfig(intents ...*business.IntentDefinition) *business.Config {
	return &business.Config{BusinessID: "b1", BusinessName: "shop", Intents: intents}
}

func TestScoreIntentsWholeWordVsSubstring(t *testing.T) {
	cfg := scorerConfig(
		&business.IntentDefinition{ID: "a", Active: true, Triggers: []string{"promo"}},
	)

	tests := []struct {
		name     string
		message  string
		expected float64
	}{
		{"whole word bounded by spaces", "any promo today", wholeWordPoints},
		{"whole word at start", "promo today", wholeWordPoints},
		{"whole word at end", "any promo", wholeWordPoints},
		{"whole word bounded by punctuation", "any (promo) today", wholeWordPoints},
		{"substring inside a word", "xpromotion", substringPoints},
		{"no match", "nothing here", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores := ScoreIntents(tt.message, cfg)
			if tt.expected == 0 {
				assert.Empty(t, scores)
				return
			}
			require.Len(t, scores, 1)
			assert.Equal(t, tt.expected, scores[0].Score)
		})
	}
}

func TestScoreIntentsCorroborationBonus(t *testing.T) {
	cfg := scorerConfig(
		&business.IntentDefinition{ID: "a", Active: true, Triggers: []string{"ship", "track"}},
	)

	scores := ScoreIntents("ship and track my order", cfg)
	require.Len(t, scores, 1)
	assert.Equal(t, 2*wholeWordPoints+corroborationBonus, scores[0].Score)
	assert.Equal(t, []string{"ship", "track"}, scores[0].MatchedTriggers)
}

func TestScoreIntentsInactiveExcluded(t *testing.T) {
	cfg := scorerConfig(
		&business.IntentDefinition{ID: "a", Active: false, Triggers: []string{"promo"}},
	)

	assert.Empty(t, ScoreIntents("promo today", cfg))
}

func TestScoreIntentsDeterministicTieBreak(t *testing.T) {
	cfg := scorerConfig(
		&business.IntentDefinition{ID: "zebra", Active: true, Triggers: []string{"promo"}, Priority: 5},
		&business.IntentDefinition{ID: "alpha", Active: true, Triggers: []string{"promo"}, Priority: 5},
		&business.IntentDefinition{ID: "mid", Active: true, Triggers: []string{"promo"}, Priority: 9},
	)

	for i := 0; i < 10; i++ {
		scores := ScoreIntents("promo today", cfg)
		require.Len(t, scores, 3)
		// Same score: priority descending first, then id ascending.
		assert.Equal(t, "mid", scores[0].Intent.ID)
		assert.Equal(t, "alpha", scores[1].Intent.ID)
		assert.Equal(t, "zebra", scores[2].Intent.ID)
	}
}

func TestScoreIntentsThaiNoWordBoundaries(t *testing.T) {
	cfg := scorerConfig(
		&business.IntentDefinition{ID: "a", Active: true, Triggers: []string{"ยกเลิก"}},
	)

	// Thai runs words together, so an embedded trigger only earns the
	// substring weight.
	scores := ScoreIntents("ขอยกเลิกออเดอร์", cfg)
	require.Len(t, scores, 1)
	assert.Equal(t, substringPoints, scores[0].Score)
}

func TestClassifyIntent(t *testing.T) {
	cfg := scorerConfig(
		&business.IntentDefinition{ID: "a", Active: true, Triggers: []string{"promo"}},
	)

	t.Run("default threshold", func(t *testing.T) {
		top := ClassifyIntent("promo today", cfg, 0)
		require.NotNil(t, top)
		assert.Equal(t, "a", top.Intent.ID)
	})

	t.Run("below explicit threshold", func(t *testing.T) {
		assert.Nil(t, ClassifyIntent("promo today", cfg, wholeWordPoints+1))
	})

	t.Run("no signal", func(t *testing.T) {
		assert.Nil(t, ClassifyIntent("hello", cfg, 0))
	})
}
