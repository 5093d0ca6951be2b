package risk

import (
	"github.com/entraguard/entraguard/internal/common/config"
	"github.com/entraguard/entraguard/internal/indicator"
)

// RiskLevel is a classified score band
type RiskLevel string

const (
	LevelCritical RiskLevel = "critical"
	LevelHigh     RiskLevel = "high"
	LevelMedium   RiskLevel = "medium"
	LevelLow      RiskLevel = "low"
	LevelNone     RiskLevel = "none"
)

var (
	defaultSignInLevels = config.LevelThresholds{Critical: 10, High: 7, Medium: 4, Low: 1}
	defaultUserLevels   = config.LevelThresholds{Critical: 10, High: 7, Medium: 4}
)

// SumOutcomes returns the signed sum of all applicable outcome points.
// Safety indicators can drive the sum negative.
func SumOutcomes(outcomes []indicator.Outcome) int {
	total := 0
	for _, o := range outcomes {
		if o.Applicable {
			total += o.Points
		}
	}
	return total
}

// ClampScore floors a raw sum at zero for display and classification
func ClampScore(raw int) int {
	if raw < 0 {
		return 0
	}
	return raw
}

// Classifier maps clamped scores to risk levels using the injected
// threshold tables. Both tables are ordered highest first; the first
// threshold met wins.
type Classifier struct {
	signIn config.LevelThresholds
	user   config.LevelThresholds
}

// NewClassifier builds a classifier from scoring configuration. Unset
// threshold tables take the compiled-in defaults.
func NewClassifier(cfg config.ScoringConfig) Classifier {
	c := Classifier{signIn: cfg.SignInLevels, user: cfg.UserLevels}
	if c.signIn == (config.LevelThresholds{}) {
		c.signIn = defaultSignInLevels
	}
	if c.user == (config.LevelThresholds{}) {
		c.user = defaultUserLevels
	}
	return c
}

// SignInLevel maps a clamped sign-in score to a risk level
func (c Classifier) SignInLevel(score int) RiskLevel {
	switch {
	case score >= c.signIn.Critical:
		return LevelCritical
	case score >= c.signIn.High:
		return LevelHigh
	case score >= c.signIn.Medium:
		return LevelMedium
	case score >= c.signIn.Low:
		return LevelLow
	default:
		return LevelNone
	}
}

// UserLevel maps a clamped user score to a risk level. Users never
// classify below Low.
func (c Classifier) UserLevel(score int) RiskLevel {
	switch {
	case score >= c.user.Critical:
		return LevelCritical
	case score >= c.user.High:
		return LevelHigh
	case score >= c.user.Medium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ScoreSignIn assembles a ScoredSignIn from a fact and its breakdown
func (c Classifier) ScoreSignIn(fact *SignInFact, outcomes []indicator.Outcome) ScoredSignIn {
	raw := SumOutcomes(outcomes)
	clamped := ClampScore(raw)
	return ScoredSignIn{
		Fact:     fact,
		Outcomes: outcomes,
		RawScore: raw,
		Score:    clamped,
		Level:    c.SignInLevel(clamped),
	}
}

// ScoreUser assembles a UserRiskProfile from an account's breakdown
func (c Classifier) ScoreUser(upn string, outcomes []indicator.Outcome) UserRiskProfile {
	raw := SumOutcomes(outcomes)
	clamped := ClampScore(raw)
	return UserRiskProfile{
		UPN:      upn,
		Outcomes: outcomes,
		RawScore: raw,
		Score:    clamped,
		Level:    c.UserLevel(clamped),
	}
}
