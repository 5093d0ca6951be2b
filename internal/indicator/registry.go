// Package indicator defines the declarative rule registry for all
// compromise indicators. Every component references point values by
// indicator id through the registry; no evaluator restates a number.
package indicator

import (
	"fmt"
	"sort"
)

// Category classifies an indicator as adding or subtracting risk
type Category string

const (
	CategoryRisk   Category = "risk"
	CategorySafety Category = "safety"
)

// Sign-in indicator ids
const (
	SignInLegacyProtocol      = "SR-01"
	SignInMFAFailure          = "SR-02"
	SignInCAFailure           = "SR-03"
	SignInNoMFA               = "SR-04"
	SignInForeignIP           = "SR-05"
	SignInUntrustedASN        = "SR-06"
	SignInImpossibleTravel    = "SR-07"
	SignInOutsideHours        = "SR-08"
	SignInSessionAnomaly      = "SR-09"
	SignInCountrySwitch       = "SR-10"
	SignInMultipleIPs         = "SR-11"
	SignInDeviceChange        = "SR-12"
	SignInTrustedDevice       = "SR-13"
	SignInCompliantDevice     = "SR-14"
	SignInExpectedLocation    = "SR-15"
	SignInExternalRisk        = "SR-16"
	SignInTrustedRange        = "SR-17"
	SignInFrequentMFAIP       = "SR-18"
	SignInFrequentCompliantIP = "SR-19"
)

// User indicator ids
const (
	UserNoMFARegistered  = "UR-01"
	UserAuthMethodChange = "UR-02"
	UserDelegates        = "UR-03"
	UserForwarding       = "UR-04"
	UserSuspiciousRules  = "UR-05"
	UserAppConsents      = "UR-06"
	UserAdminRoles       = "UR-07"
	UserNewAccount       = "UR-08"
	UserPasswordReset    = "UR-09"
	UserCAProtection     = "UR-10"
)

// Outcome is the result of evaluating one indicator against one record.
// An indicator is either fully applicable (full point value) or not
// applicable (zero effect); the two variable-scale indicators resolve to
// one fixed value before the outcome is produced.
type Outcome struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Points     int    `json:"points"`
	Applicable bool   `json:"applicable"`
}

// Rule is one registry entry. Variable rules carry the maximum of their
// scale as Points; the resolved value is supplied at outcome time.
type Rule struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Points   int      `json:"points"`
	Category Category `json:"category"`
	Variable bool     `json:"variable,omitempty"`
}

// Registry is the loaded rule table. Built once at startup; read-only
// thereafter.
type Registry struct {
	rules map[string]Rule
}

// defaultRules is the compiled-in rule table. Config point overrides are
// applied on top at load time.
var defaultRules = []Rule{
	{ID: SignInLegacyProtocol, Label: "Legacy authentication protocol used", Points: 3, Category: CategoryRisk},
	{ID: SignInMFAFailure, Label: "Multi-factor authentication failed", Points: 3, Category: CategoryRisk},
	{ID: SignInCAFailure, Label: "Conditional Access policy failure", Points: 3, Category: CategoryRisk},
	{ID: SignInNoMFA, Label: "Single-factor sign-in without MFA", Points: 2, Category: CategoryRisk},
	{ID: SignInForeignIP, Label: "Sign-in from unexpected country with risky IP reputation", Points: 3, Category: CategoryRisk, Variable: true},
	{ID: SignInUntrustedASN, Label: "High-reputation IP on untrusted network (ASN)", Points: 2, Category: CategoryRisk},
	{ID: SignInImpossibleTravel, Label: "Impossible travel from previous sign-in", Points: 4, Category: CategoryRisk},
	{ID: SignInOutsideHours, Label: "Sign-in outside working hours", Points: 1, Category: CategoryRisk},
	{ID: SignInSessionAnomaly, Label: "Anomaly within correlated session", Points: 2, Category: CategoryRisk},
	{ID: SignInCountrySwitch, Label: "Country switch within session", Points: 3, Category: CategoryRisk},
	{ID: SignInMultipleIPs, Label: "Multiple IP addresses within session", Points: 2, Category: CategoryRisk},
	{ID: SignInDeviceChange, Label: "Device change within session", Points: 2, Category: CategoryRisk},
	{ID: SignInTrustedDevice, Label: "Sign-in from Entra-joined or registered device", Points: -2, Category: CategorySafety},
	{ID: SignInCompliantDevice, Label: "Sign-in from compliant device", Points: -2, Category: CategorySafety},
	{ID: SignInExpectedLocation, Label: "Sign-in from expected location", Points: -1, Category: CategorySafety},
	{ID: SignInExternalRisk, Label: "Identity Protection risk detection", Points: 4, Category: CategoryRisk, Variable: true},
	{ID: SignInTrustedRange, Label: "IP inside trusted named location", Points: -2, Category: CategorySafety},
	{ID: SignInFrequentMFAIP, Label: "IP with frequent MFA-successful history", Points: -1, Category: CategorySafety},
	{ID: SignInFrequentCompliantIP, Label: "IP with frequent compliant-device history", Points: -2, Category: CategorySafety},

	{ID: UserNoMFARegistered, Label: "No MFA authentication methods registered", Points: 4, Category: CategoryRisk},
	{ID: UserAuthMethodChange, Label: "Authentication method changed recently", Points: 2, Category: CategoryRisk},
	{ID: UserDelegates, Label: "Mailbox delegates configured", Points: 1, Category: CategoryRisk},
	{ID: UserForwarding, Label: "External mail forwarding active", Points: 4, Category: CategoryRisk},
	{ID: UserSuspiciousRules, Label: "Suspicious mailbox rules present", Points: 3, Category: CategoryRisk},
	{ID: UserAppConsents, Label: "Third-party application consents granted", Points: 2, Category: CategoryRisk},
	{ID: UserAdminRoles, Label: "Administrative roles assigned", Points: 2, Category: CategoryRisk},
	{ID: UserNewAccount, Label: "Recently created account", Points: 1, Category: CategoryRisk},
	{ID: UserPasswordReset, Label: "Recent password reset", Points: 1, Category: CategoryRisk},
	{ID: UserCAProtection, Label: "Conditional Access protection coverage", Points: 3, Category: CategoryRisk, Variable: true},
}

// NewRegistry builds the rule table, applying config point overrides by id.
// Unknown override ids are rejected so drift between config and table is
// caught at startup.
func NewRegistry(overrides map[string]int) (*Registry, error) {
	rules := make(map[string]Rule, len(defaultRules))
	for _, r := range defaultRules {
		if _, dup := rules[r.ID]; dup {
			return nil, fmt.Errorf("duplicate indicator id %s in rule table", r.ID)
		}
		rules[r.ID] = r
	}

	for id, points := range overrides {
		r, ok := rules[id]
		if !ok {
			return nil, fmt.Errorf("point override for unknown indicator id %s", id)
		}
		r.Points = points
		rules[id] = r
	}

	return &Registry{rules: rules}, nil
}

// MustRegistry builds a registry with no overrides, panicking on table
// errors. Intended for tests.
func MustRegistry() *Registry {
	r, err := NewRegistry(nil)
	if err != nil {
		panic(err)
	}
	return r
}

// Rule returns the registry entry for an id
func (r *Registry) Rule(id string) (Rule, bool) {
	rule, ok := r.rules[id]
	return rule, ok
}

// Rules returns all entries ordered by id, for metadata export to
// downstream consumers (report cross-references, client-side
// false-positive recomputation).
func (r *Registry) Rules() []Rule {
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Outcome produces a standard fixed-value outcome for an indicator.
// Not-applicable outcomes carry the configured points for transparency but
// contribute nothing to any total.
func (r *Registry) Outcome(id string, applicable bool) Outcome {
	rule, ok := r.rules[id]
	if !ok {
		// An unknown id here is a programming error; surface it loudly
		// in the breakdown instead of dropping the record.
		return Outcome{ID: id, Label: "unknown indicator", Points: 0, Applicable: false}
	}
	return Outcome{ID: rule.ID, Label: rule.Label, Points: rule.Points, Applicable: applicable}
}

// ScaledOutcome produces an outcome for a variable-scale indicator with
// its resolved point value. points == 0 resolves to not applicable.
func (r *Registry) ScaledOutcome(id string, points int) Outcome {
	rule, ok := r.rules[id]
	if !ok {
		return Outcome{ID: id, Label: "unknown indicator", Points: 0, Applicable: false}
	}
	if points == 0 {
		return Outcome{ID: rule.ID, Label: rule.Label, Points: 0, Applicable: false}
	}
	return Outcome{ID: rule.ID, Label: rule.Label, Points: points, Applicable: true}
}

// ReputationPoints resolves a 0-100 reputation confidence score to the
// foreign-IP point scale. One monotonic banding is used everywhere:
// below 26 scores +1, 26-49 scores +2, 50 and above scores +3.
func ReputationPoints(score int) int {
	switch {
	case score >= 50:
		return 3
	case score >= 26:
		return 2
	default:
		return 1
	}
}

// RiskLevelPoints resolves an external risk-detection level to points.
// Unknown or absent levels resolve to 0 (not applicable).
func RiskLevelPoints(level string) int {
	switch level {
	case "high":
		return 4
	case "medium":
		return 2
	case "low":
		return 1
	default:
		return 0
	}
}

// CAProtectionTier is the resolved Conditional Access coverage of an account
type CAProtectionTier string

const (
	CAProtectionFull      CAProtectionTier = "full"
	CAProtectionPartial   CAProtectionTier = "partial"
	CAProtectionBlockOnly CAProtectionTier = "block_only"
	CAProtectionNone      CAProtectionTier = "none"
)

// CAProtectionPoints resolves a Conditional Access protection tier to
// points. Full coverage scores 0; weaker tiers score progressively more.
func CAProtectionPoints(tier CAProtectionTier) int {
	switch tier {
	case CAProtectionFull:
		return 0
	case CAProtectionPartial:
		return 1
	case CAProtectionBlockOnly:
		return 2
	case CAProtectionNone:
		return 3
	default:
		return 0
	}
}
