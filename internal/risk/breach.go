package risk

import (
	"math"
	"sort"
	"time"

	"github.com/entraguard/entraguard/internal/common/config"
	"github.com/entraguard/entraguard/internal/indicator"
)

// Breach status tiers
const (
	StatusHighLikelihood = "High Likelihood"
	StatusProbable       = "Probable"
	StatusPossible       = "Possible"
	StatusUnlikely       = "Unlikely"
)

// Multiplier names recorded in the assessment
const (
	multCredential    = "credential_compromise"
	multAdminRoles    = "admin_roles"
	multMultiCategory = "multi_category"
)

// Default per-occurrence contributions of sign-in indicators to the
// credential compromise category.
var defaultCredentialWeights = map[string]int{
	indicator.SignInMFAFailure:     8,
	indicator.SignInCAFailure:      6,
	indicator.SignInExternalRisk:   10,
	indicator.SignInLegacyProtocol: 5,
}

// Default per-occurrence contributions of sign-in indicators to the
// session anomalies category.
var defaultSessionWeights = map[string]int{
	indicator.SignInImpossibleTravel: 12,
	indicator.SignInSessionAnomaly:   8,
	indicator.SignInCountrySwitch:    6,
	indicator.SignInMultipleIPs:      5,
	indicator.SignInDeviceChange:     4,
}

// Default contributions of user indicators to the configuration weakness
// category. The CA-protection indicator scales with its resolved points.
var defaultConfigurationWeights = map[string]int{
	indicator.UserNoMFARegistered: 8,
	indicator.UserForwarding:      6,
	indicator.UserSuspiciousRules: 5,
}

// BreachModel computes the weighted four-category compromise likelihood.
// All contributions are keyed off indicator ids in already-computed
// breakdowns, so false-positive recomputation can rerun the model from
// stored outcomes alone.
type BreachModel struct {
	cfg config.BreachConfig
}

// NewBreachModel creates a model with the configured weights, caps,
// multipliers, and status tiers. Unset weights and tiers take the
// compiled-in defaults.
func NewBreachModel(cfg config.BreachConfig) *BreachModel {
	if cfg.CredentialWeights == nil {
		cfg.CredentialWeights = defaultCredentialWeights
	}
	if cfg.SessionWeights == nil {
		cfg.SessionWeights = defaultSessionWeights
	}
	if cfg.ConfigurationWeights == nil {
		cfg.ConfigurationWeights = defaultConfigurationWeights
	}
	if cfg.CAProtectionFactor == 0 {
		cfg.CAProtectionFactor = 2
	}
	if cfg.HighLikelihoodMin == 0 {
		cfg.HighLikelihoodMin = 71
	}
	if cfg.ProbableMin == 0 {
		cfg.ProbableMin = 41
	}
	if cfg.PossibleMin == 0 {
		cfg.PossibleMin = 21
	}
	return &BreachModel{cfg: cfg}
}

// Assess computes the assessment from scored breakdowns. denseActivity is
// the precomputed temporal-concentration flag.
func (m *BreachModel) Assess(signIns []ScoredSignIn, user UserRiskProfile, denseActivity bool) BreachProbabilityAssessment {
	credential := 0
	session := 0
	for _, s := range signIns {
		for _, o := range s.Outcomes {
			if !o.Applicable {
				continue
			}
			credential += m.cfg.CredentialWeights[o.ID]
			session += m.cfg.SessionWeights[o.ID]
		}
	}

	configuration := 0
	admin := false
	for _, o := range user.Outcomes {
		if !o.Applicable {
			continue
		}
		configuration += m.cfg.ConfigurationWeights[o.ID]
		if o.ID == indicator.UserCAProtection {
			// Weaker protection tiers contribute proportionally more
			configuration += m.cfg.CAProtectionFactor * o.Points
		}
		if o.ID == indicator.UserAdminRoles {
			admin = true
		}
	}

	temporal := 0
	if denseActivity {
		temporal = m.cfg.TemporalCap
	}

	credential = capAt(credential, m.cfg.CredentialCap)
	session = capAt(session, m.cfg.SessionCap)
	configuration = capAt(configuration, m.cfg.ConfigurationCap)
	temporal = capAt(temporal, m.cfg.TemporalCap)

	base := credential + session + configuration + temporal

	multiplier := 1.0
	applied := make([]string, 0, 3)
	if credential > 0 {
		multiplier *= m.cfg.CredentialMult
		applied = append(applied, multCredential)
	}
	if admin {
		multiplier *= m.cfg.AdminMult
		applied = append(applied, multAdminRoles)
	}
	if nonzeroCategories(credential, session, configuration, temporal) >= 3 {
		multiplier *= m.cfg.MultiCategory
		applied = append(applied, multMultiCategory)
	}

	final := int(math.Round(float64(base) * multiplier))
	if final > 100 {
		final = 100
	}

	return BreachProbabilityAssessment{
		Credential:    CategoryScore{Score: credential, Max: m.cfg.CredentialCap},
		Session:       CategoryScore{Score: session, Max: m.cfg.SessionCap},
		Configuration: CategoryScore{Score: configuration, Max: m.cfg.ConfigurationCap},
		Temporal:      CategoryScore{Score: temporal, Max: m.cfg.TemporalCap},
		BasePercent:   base,
		Multipliers:   applied,
		Multiplier:    multiplier,
		FinalPercent:  final,
		Status:        m.status(final),
		DenseActivity: denseActivity,
	}
}

// DetectDenseActivity reports whether any window of the configured length
// contains at least the configured number of sign-ins.
func (m *BreachModel) DetectDenseActivity(facts []*SignInFact) bool {
	if m.cfg.DenseCount <= 0 || len(facts) < m.cfg.DenseCount {
		return false
	}

	times := make([]time.Time, len(facts))
	for i, f := range facts {
		times[i] = f.Timestamp
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	window := time.Duration(m.cfg.DenseWindowMins) * time.Minute
	for i := 0; i+m.cfg.DenseCount-1 < len(times); i++ {
		if times[i+m.cfg.DenseCount-1].Sub(times[i]) <= window {
			return true
		}
	}
	return false
}

func (m *BreachModel) status(percent int) string {
	switch {
	case percent >= m.cfg.HighLikelihoodMin:
		return StatusHighLikelihood
	case percent >= m.cfg.ProbableMin:
		return StatusProbable
	case percent >= m.cfg.PossibleMin:
		return StatusPossible
	default:
		return StatusUnlikely
	}
}

func capAt(score, max int) int {
	if score > max {
		return max
	}
	return score
}

func nonzeroCategories(scores ...int) int {
	n := 0
	for _, s := range scores {
		if s > 0 {
			n++
		}
	}
	return n
}
