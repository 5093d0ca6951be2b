package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/entraguard/entraguard/internal/common/config"
	"github.com/entraguard/entraguard/internal/indicator"
)

func defaultClassifier() Classifier {
	return NewClassifier(config.ScoringConfig{})
}

func TestSumOutcomes_IgnoresNotApplicable(t *testing.T) {
	outcomes := []indicator.Outcome{
		{ID: "a", Points: 3, Applicable: true},
		{ID: "b", Points: 4, Applicable: false},
		{ID: "c", Points: -2, Applicable: true},
	}

	assert.Equal(t, 1, SumOutcomes(outcomes))
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0, ClampScore(-5))
	assert.Equal(t, 0, ClampScore(0))
	assert.Equal(t, 7, ClampScore(7))
}

func TestClassifier_SignInExhaustiveMonotonic(t *testing.T) {
	c := defaultClassifier()

	tests := []struct {
		score int
		level RiskLevel
	}{
		{0, LevelNone},
		{1, LevelLow},
		{3, LevelLow},
		{4, LevelMedium},
		{6, LevelMedium},
		{7, LevelHigh},
		{9, LevelHigh},
		{10, LevelCritical},
		{50, LevelCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.level, c.SignInLevel(tt.score), "score %d", tt.score)
	}

	// Every score maps to exactly one level and severity never decreases
	rank := map[RiskLevel]int{LevelNone: 0, LevelLow: 1, LevelMedium: 2, LevelHigh: 3, LevelCritical: 4}
	prev := -1
	for score := 0; score <= 30; score++ {
		level := c.SignInLevel(score)
		r, known := rank[level]
		assert.True(t, known, "score %d mapped to unknown level %s", score, level)
		assert.GreaterOrEqual(t, r, prev, "severity must be monotonic at score %d", score)
		prev = r
	}
}

func TestClassifier_UserNeverBelowLow(t *testing.T) {
	c := defaultClassifier()

	assert.Equal(t, LevelLow, c.UserLevel(0))
	assert.Equal(t, LevelLow, c.UserLevel(3))
	assert.Equal(t, LevelMedium, c.UserLevel(4))
	assert.Equal(t, LevelHigh, c.UserLevel(7))
	assert.Equal(t, LevelCritical, c.UserLevel(10))
}

func TestClassifier_ThresholdsComeFromConfig(t *testing.T) {
	c := NewClassifier(config.ScoringConfig{
		SignInLevels: config.LevelThresholds{Critical: 20, High: 15, Medium: 10, Low: 5},
		UserLevels:   config.LevelThresholds{Critical: 12, High: 8, Medium: 5},
	})

	assert.Equal(t, LevelNone, c.SignInLevel(4))
	assert.Equal(t, LevelLow, c.SignInLevel(5))
	assert.Equal(t, LevelMedium, c.SignInLevel(10))
	assert.Equal(t, LevelHigh, c.SignInLevel(15))
	assert.Equal(t, LevelCritical, c.SignInLevel(20))

	assert.Equal(t, LevelLow, c.UserLevel(4))
	assert.Equal(t, LevelCritical, c.UserLevel(12))
}

func TestScoreSignIn_RetainsSignedBreakdown(t *testing.T) {
	fact := &SignInFact{ID: "s1"}
	outcomes := []indicator.Outcome{
		{ID: "risk", Points: 2, Applicable: true},
		{ID: "safety-1", Points: -2, Applicable: true},
		{ID: "safety-2", Points: -2, Applicable: true},
	}

	scored := defaultClassifier().ScoreSignIn(fact, outcomes)

	assert.Equal(t, -2, scored.RawScore)
	assert.Equal(t, 0, scored.Score)
	assert.Equal(t, LevelNone, scored.Level)
	// The total stays derivable from the retained breakdown
	assert.Equal(t, scored.RawScore, SumOutcomes(scored.Outcomes))
}

func TestScoreUser(t *testing.T) {
	outcomes := []indicator.Outcome{
		{ID: "a", Points: 4, Applicable: true},
		{ID: "b", Points: 3, Applicable: true},
	}

	profile := defaultClassifier().ScoreUser("alice@contoso.com", outcomes)

	assert.Equal(t, 7, profile.Score)
	assert.Equal(t, LevelHigh, profile.Level)
	assert.Equal(t, "alice@contoso.com", profile.UPN)
}
