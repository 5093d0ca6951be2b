package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_UniqueIDs(t *testing.T) {
	reg := MustRegistry()

	seen := make(map[string]bool)
	for _, rule := range reg.Rules() {
		assert.False(t, seen[rule.ID], "duplicate indicator id %s", rule.ID)
		seen[rule.ID] = true
	}
}

func TestRegistry_OutcomePointsMatchTable(t *testing.T) {
	reg := MustRegistry()

	for _, rule := range reg.Rules() {
		if rule.Variable {
			continue
		}
		out := reg.Outcome(rule.ID, true)
		assert.Equal(t, rule.Points, out.Points, "outcome points must equal table value for %s", rule.ID)
		assert.True(t, out.Applicable)

		notApplied := reg.Outcome(rule.ID, false)
		assert.False(t, notApplied.Applicable)
	}
}

func TestRegistry_PointOverrides(t *testing.T) {
	reg, err := NewRegistry(map[string]int{SignInLegacyProtocol: 5})
	require.NoError(t, err)

	rule, ok := reg.Rule(SignInLegacyProtocol)
	require.True(t, ok)
	assert.Equal(t, 5, rule.Points)

	// Other rules untouched
	other, _ := reg.Rule(SignInMFAFailure)
	assert.Equal(t, 3, other.Points)
}

func TestRegistry_UnknownOverrideRejected(t *testing.T) {
	_, err := NewRegistry(map[string]int{"SR-99": 7})
	assert.Error(t, err)
}

func TestReputationPoints_MonotonicBanding(t *testing.T) {
	tests := []struct {
		score int
		want  int
	}{
		{0, 1},
		{9, 1},
		{10, 1},
		{25, 1},
		{26, 2},
		{49, 2},
		{50, 3},
		{100, 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ReputationPoints(tt.score), "score %d", tt.score)
	}

	// Monotonic: points never decrease as the score rises
	prev := 0
	for score := 0; score <= 100; score++ {
		p := ReputationPoints(score)
		assert.GreaterOrEqual(t, p, prev)
		prev = p
	}
}

func TestRiskLevelPoints(t *testing.T) {
	assert.Equal(t, 4, RiskLevelPoints("high"))
	assert.Equal(t, 2, RiskLevelPoints("medium"))
	assert.Equal(t, 1, RiskLevelPoints("low"))
	assert.Equal(t, 0, RiskLevelPoints("none"))
	assert.Equal(t, 0, RiskLevelPoints(""))
	assert.Equal(t, 0, RiskLevelPoints("hidden"))
}

func TestCAProtectionPoints(t *testing.T) {
	assert.Equal(t, 0, CAProtectionPoints(CAProtectionFull))
	assert.Equal(t, 1, CAProtectionPoints(CAProtectionPartial))
	assert.Equal(t, 2, CAProtectionPoints(CAProtectionBlockOnly))
	assert.Equal(t, 3, CAProtectionPoints(CAProtectionNone))
}

func TestScaledOutcome_ZeroResolvesNotApplicable(t *testing.T) {
	reg := MustRegistry()

	out := reg.ScaledOutcome(SignInExternalRisk, 0)
	assert.False(t, out.Applicable)
	assert.Equal(t, 0, out.Points)

	out = reg.ScaledOutcome(SignInExternalRisk, RiskLevelPoints("high"))
	assert.True(t, out.Applicable)
	assert.Equal(t, 4, out.Points)
}
