package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/entraguard/entraguard/internal/common/config"
	"github.com/entraguard/entraguard/internal/geo"
	"github.com/entraguard/entraguard/internal/indicator"
)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		LookbackDays:      30,
		WorkingHoursStart: 8,
		WorkingHoursEnd:   18,
		ExpectedCountries: []string{"NL", "DE"},
		TrustedASNs:       []string{"AS1136"},
		MaxTravelSpeed:    1000,
	}
}

func newSignInEvaluator(t *testing.T) *SignInEvaluator {
	t.Helper()
	return NewSignInEvaluator(indicator.MustRegistry(), testScoringConfig(), zap.NewNop())
}

func outcomeByID(t *testing.T, outcomes []indicator.Outcome, id string) indicator.Outcome {
	t.Helper()
	for _, o := range outcomes {
		if o.ID == id {
			return o
		}
	}
	t.Fatalf("outcome %s missing from breakdown", id)
	return indicator.Outcome{}
}

func workdaySignIn(ip string) *SignInFact {
	return &SignInFact{
		ID:          "s1",
		Timestamp:   time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		IPAddress:   ip,
		Status:      "success",
		FactorCount: 2,
		Location:    &geo.Location{IPAddress: ip, CountryCode: "NL"},
	}
}

func TestSignInEvaluator_BreakdownIsComplete(t *testing.T) {
	eval := newSignInEvaluator(t)

	outcomes := eval.Evaluate(workdaySignIn("1.2.3.4"), SignInContext{})

	// Every sign-in indicator appears exactly once, applicable or not
	assert.Len(t, outcomes, 19)
	seen := make(map[string]bool)
	for _, o := range outcomes {
		assert.False(t, seen[o.ID], "duplicate outcome %s", o.ID)
		seen[o.ID] = true
	}
}

func TestSignInEvaluator_PointsMatchRegistry(t *testing.T) {
	reg := indicator.MustRegistry()
	eval := newSignInEvaluator(t)

	fact := workdaySignIn("1.2.3.4")
	fact.ClientApp = "IMAP4"

	outcomes := eval.Evaluate(fact, SignInContext{})
	legacy := outcomeByID(t, outcomes, indicator.SignInLegacyProtocol)

	rule, ok := reg.Rule(indicator.SignInLegacyProtocol)
	require.True(t, ok)
	assert.True(t, legacy.Applicable)
	assert.Equal(t, rule.Points, legacy.Points)
}

func TestSignInEvaluator_AuthExclusionPriority(t *testing.T) {
	eval := newSignInEvaluator(t)

	tests := []struct {
		name       string
		mutate     func(*SignInFact)
		applicable string
	}{
		{
			name: "mfa failure wins over ca failure and no-mfa",
			mutate: func(f *SignInFact) {
				f.Status = "failure"
				f.FailureCode = 50074
				f.CAStatus = "failure"
				f.FactorCount = 0
			},
			applicable: indicator.SignInMFAFailure,
		},
		{
			name: "ca failure wins over no-mfa",
			mutate: func(f *SignInFact) {
				f.CAStatus = "failure"
				f.FactorCount = 1
			},
			applicable: indicator.SignInCAFailure,
		},
		{
			name: "no-mfa fires alone",
			mutate: func(f *SignInFact) {
				f.FactorCount = 1
			},
			applicable: indicator.SignInNoMFA,
		},
	}

	trio := []string{indicator.SignInMFAFailure, indicator.SignInCAFailure, indicator.SignInNoMFA}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fact := workdaySignIn("1.2.3.4")
			tt.mutate(fact)

			outcomes := eval.Evaluate(fact, SignInContext{})

			applied := 0
			for _, id := range trio {
				o := outcomeByID(t, outcomes, id)
				if o.Applicable {
					applied++
					assert.Equal(t, tt.applicable, o.ID)
				}
			}
			assert.Equal(t, 1, applied, "exactly one of the trio must fire")
		})
	}
}

func TestSignInEvaluator_MFASuccessFiresNoneOfTrio(t *testing.T) {
	eval := newSignInEvaluator(t)

	outcomes := eval.Evaluate(workdaySignIn("1.2.3.4"), SignInContext{})

	for _, id := range []string{indicator.SignInMFAFailure, indicator.SignInCAFailure, indicator.SignInNoMFA} {
		assert.False(t, outcomeByID(t, outcomes, id).Applicable)
	}
}

func TestSignInEvaluator_ForeignIPReputationBands(t *testing.T) {
	eval := newSignInEvaluator(t)

	tests := []struct {
		score  int
		points int
	}{
		{5, 1},
		{25, 1},
		{26, 2},
		{49, 2},
		{50, 3},
		{100, 3},
	}

	for _, tt := range tests {
		fact := workdaySignIn("203.0.113.1")
		fact.Location = &geo.Location{IPAddress: fact.IPAddress, CountryCode: "RU"}
		score := tt.score

		outcomes := eval.Evaluate(fact, SignInContext{Reputation: &score})
		foreign := outcomeByID(t, outcomes, indicator.SignInForeignIP)

		assert.True(t, foreign.Applicable, "score %d", tt.score)
		assert.Equal(t, tt.points, foreign.Points, "score %d", tt.score)
	}
}

func TestSignInEvaluator_ForeignIPNotApplicableCases(t *testing.T) {
	eval := newSignInEvaluator(t)
	score := 80

	// Expected country: not foreign regardless of reputation
	outcomes := eval.Evaluate(workdaySignIn("1.2.3.4"), SignInContext{Reputation: &score})
	assert.False(t, outcomeByID(t, outcomes, indicator.SignInForeignIP).Applicable)

	// No reputation score: degrades to not applicable
	foreign := workdaySignIn("203.0.113.1")
	foreign.Location = &geo.Location{CountryCode: "RU"}
	outcomes = eval.Evaluate(foreign, SignInContext{})
	assert.False(t, outcomeByID(t, outcomes, indicator.SignInForeignIP).Applicable)

	// No location: degrades to not applicable
	noLoc := workdaySignIn("203.0.113.1")
	noLoc.Location = nil
	outcomes = eval.Evaluate(noLoc, SignInContext{Reputation: &score})
	assert.False(t, outcomeByID(t, outcomes, indicator.SignInForeignIP).Applicable)
}

func TestSignInEvaluator_UntrustedASN(t *testing.T) {
	eval := newSignInEvaluator(t)
	high := 75
	low := 20

	fact := workdaySignIn("203.0.113.1")
	fact.Location = &geo.Location{CountryCode: "NL", ASNumber: "AS9009"}

	outcomes := eval.Evaluate(fact, SignInContext{Reputation: &high})
	assert.True(t, outcomeByID(t, outcomes, indicator.SignInUntrustedASN).Applicable)

	// Trusted ASN suppresses the indicator
	fact.Location.ASNumber = "AS1136"
	outcomes = eval.Evaluate(fact, SignInContext{Reputation: &high})
	assert.False(t, outcomeByID(t, outcomes, indicator.SignInUntrustedASN).Applicable)

	// Low reputation never fires it
	fact.Location.ASNumber = "AS9009"
	outcomes = eval.Evaluate(fact, SignInContext{Reputation: &low})
	assert.False(t, outcomeByID(t, outcomes, indicator.SignInUntrustedASN).Applicable)
}

func TestSignInEvaluator_WorkingHours(t *testing.T) {
	eval := newSignInEvaluator(t)

	tests := []struct {
		hour    int
		outside bool
	}{
		{7, true},
		{8, false},
		{17, false},
		{18, true},
		{2, true},
	}

	for _, tt := range tests {
		fact := workdaySignIn("1.2.3.4")
		fact.Timestamp = time.Date(2026, 5, 1, tt.hour, 30, 0, 0, time.UTC)

		outcomes := eval.Evaluate(fact, SignInContext{})
		assert.Equal(t, tt.outside,
			outcomeByID(t, outcomes, indicator.SignInOutsideHours).Applicable,
			"hour %d", tt.hour)
	}
}

func TestSignInEvaluator_SessionPassthrough(t *testing.T) {
	eval := newSignInEvaluator(t)

	fact := workdaySignIn("1.2.3.4")
	fact.Session = SessionFlags{IPChanged: true, CountryChanged: true}

	outcomes := eval.Evaluate(fact, SignInContext{})

	assert.True(t, outcomeByID(t, outcomes, indicator.SignInSessionAnomaly).Applicable)
	assert.True(t, outcomeByID(t, outcomes, indicator.SignInCountrySwitch).Applicable)
	assert.True(t, outcomeByID(t, outcomes, indicator.SignInMultipleIPs).Applicable)
	assert.False(t, outcomeByID(t, outcomes, indicator.SignInDeviceChange).Applicable)
}

func TestSignInEvaluator_ExternalRiskLevels(t *testing.T) {
	eval := newSignInEvaluator(t)

	tests := []struct {
		level      string
		points     int
		applicable bool
	}{
		{"high", 4, true},
		{"medium", 2, true},
		{"low", 1, true},
		{"", 0, false},
	}

	for _, tt := range tests {
		fact := workdaySignIn("1.2.3.4")
		fact.RiskLevel = tt.level

		outcomes := eval.Evaluate(fact, SignInContext{})
		o := outcomeByID(t, outcomes, indicator.SignInExternalRisk)

		assert.Equal(t, tt.applicable, o.Applicable, "level %q", tt.level)
		if tt.applicable {
			assert.Equal(t, tt.points, o.Points, "level %q", tt.level)
		}
	}
}

func TestSignInEvaluator_SafetyIndicators(t *testing.T) {
	eval := newSignInEvaluator(t)

	fact := workdaySignIn("10.1.2.3")
	fact.Device.TrustType = "Azure AD joined"
	fact.Device.IsCompliant = true

	profiler := NewTrustedIPProfiler([]string{"10.0.0.0/8"}, zap.NewNop())
	history := []*SignInFact{
		compliantSignIn("10.1.2.3"), compliantSignIn("10.1.2.3"), compliantSignIn("10.1.2.3"),
		mfaSignIn("10.1.2.3"), mfaSignIn("10.1.2.3"), mfaSignIn("10.1.2.3"),
	}
	profile := profiler.Build(history)

	outcomes := eval.Evaluate(fact, SignInContext{Profile: profile})

	assert.True(t, outcomeByID(t, outcomes, indicator.SignInTrustedDevice).Applicable)
	assert.True(t, outcomeByID(t, outcomes, indicator.SignInCompliantDevice).Applicable)
	assert.True(t, outcomeByID(t, outcomes, indicator.SignInExpectedLocation).Applicable)
	assert.True(t, outcomeByID(t, outcomes, indicator.SignInTrustedRange).Applicable)
	assert.True(t, outcomeByID(t, outcomes, indicator.SignInFrequentMFAIP).Applicable)
	assert.True(t, outcomeByID(t, outcomes, indicator.SignInFrequentCompliantIP).Applicable)

	// Safety-heavy breakdown sums negative; the clamp happens later
	assert.Less(t, SumOutcomes(outcomes), 0)
}

func TestSignInEvaluator_NoProfileDegrades(t *testing.T) {
	eval := newSignInEvaluator(t)

	outcomes := eval.Evaluate(workdaySignIn("1.2.3.4"), SignInContext{})

	assert.False(t, outcomeByID(t, outcomes, indicator.SignInTrustedRange).Applicable)
	assert.False(t, outcomeByID(t, outcomes, indicator.SignInFrequentMFAIP).Applicable)
	assert.False(t, outcomeByID(t, outcomes, indicator.SignInFrequentCompliantIP).Applicable)
}
