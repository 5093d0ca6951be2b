package risk

import (
	"strings"

	"go.uber.org/zap"

	"github.com/entraguard/entraguard/internal/common/config"
	"github.com/entraguard/entraguard/internal/indicator"
)

// legacyClientApps are the protocol tags that bypass modern authentication
var legacyClientApps = map[string]bool{
	"Exchange ActiveSync":              true,
	"IMAP4":                            true,
	"POP3":                             true,
	"SMTP":                             true,
	"Authenticated SMTP":               true,
	"MAPI Over HTTP":                   true,
	"Exchange Web Services":            true,
	"Autodiscover":                     true,
	"Outlook Anywhere (RPC over HTTP)": true,
	"Other clients":                    true,
}

// Entra error codes indicating the password succeeded but the second
// factor or a Conditional Access policy stopped the sign-in.
var (
	mfaFailureCodes = map[int]bool{50074: true, 50076: true, 500121: true, 50079: true}
	caFailureCodes  = map[int]bool{53000: true, 53001: true, 53003: true}
)

// SignInContext is the run-scoped context for evaluating one sign-in
type SignInContext struct {
	Reputation *int // resolved 0-100 score, nil when unavailable
	Profile    *TrustedIPProfile
}

// SignInEvaluator produces the full per-sign-in indicator breakdown
type SignInEvaluator struct {
	registry *indicator.Registry
	cfg      config.ScoringConfig
	logger   *zap.Logger
}

// NewSignInEvaluator creates an evaluator over the given rule registry
func NewSignInEvaluator(registry *indicator.Registry, cfg config.ScoringConfig, logger *zap.Logger) *SignInEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignInEvaluator{
		registry: registry,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "signin_evaluator")),
	}
}

// Evaluate returns the ordered outcome list for one sign-in. Every
// indicator appears in the breakdown; not-applicable outcomes are kept
// explicitly so downstream serialization stays lossless. Missing inputs
// degrade the affected indicator to not-applicable, never to an error.
func (e *SignInEvaluator) Evaluate(fact *SignInFact, rctx SignInContext) []indicator.Outcome {
	outcomes := make([]indicator.Outcome, 0, 19)
	reg := e.registry

	outcomes = append(outcomes, reg.Outcome(indicator.SignInLegacyProtocol, legacyClientApps[fact.ClientApp]))
	outcomes = append(outcomes, e.authOutcomes(fact)...)
	outcomes = append(outcomes, e.foreignIPOutcome(fact, rctx))
	outcomes = append(outcomes, e.untrustedASNOutcome(fact, rctx))
	outcomes = append(outcomes, reg.Outcome(indicator.SignInImpossibleTravel, fact.Travel != nil))
	outcomes = append(outcomes, reg.Outcome(indicator.SignInOutsideHours, e.outsideWorkingHours(fact)))
	outcomes = append(outcomes, reg.Outcome(indicator.SignInSessionAnomaly, fact.Session.Anomalous()))
	outcomes = append(outcomes, reg.Outcome(indicator.SignInCountrySwitch, fact.Session.CountryChanged))
	outcomes = append(outcomes, reg.Outcome(indicator.SignInMultipleIPs, fact.Session.IPChanged))
	outcomes = append(outcomes, reg.Outcome(indicator.SignInDeviceChange, fact.Session.DeviceChanged))
	outcomes = append(outcomes, reg.Outcome(indicator.SignInTrustedDevice, isDomainJoined(fact.Device.TrustType)))
	outcomes = append(outcomes, reg.Outcome(indicator.SignInCompliantDevice, fact.Device.IsCompliant))
	outcomes = append(outcomes, reg.Outcome(indicator.SignInExpectedLocation, e.expectedLocation(fact)))
	outcomes = append(outcomes, reg.ScaledOutcome(indicator.SignInExternalRisk, indicator.RiskLevelPoints(fact.RiskLevel)))
	outcomes = append(outcomes, e.trustedIPOutcomes(fact, rctx.Profile)...)

	return outcomes
}

// authOutcomes applies the mutual exclusion rule: at most one of
// MFA-failure, CA-policy-failure, no-MFA-used fires per sign-in, in that
// priority order. The prioritized pair list makes the exclusion contract
// testable in isolation.
func (e *SignInEvaluator) authOutcomes(fact *SignInFact) []indicator.Outcome {
	rules := []struct {
		id   string
		pred func(*SignInFact) bool
	}{
		{indicator.SignInMFAFailure, isMFAFailure},
		{indicator.SignInCAFailure, isCAFailure},
		{indicator.SignInNoMFA, isNoMFAUsed},
	}

	outcomes := make([]indicator.Outcome, 0, len(rules))
	matched := false
	for _, r := range rules {
		applicable := !matched && r.pred(fact)
		if applicable {
			matched = true
		}
		outcomes = append(outcomes, e.registry.Outcome(r.id, applicable))
	}
	return outcomes
}

func isMFAFailure(f *SignInFact) bool {
	return f.Status == "failure" && mfaFailureCodes[f.FailureCode]
}

func isCAFailure(f *SignInFact) bool {
	return f.CAStatus == "failure" || caFailureCodes[f.FailureCode]
}

func isNoMFAUsed(f *SignInFact) bool {
	return f.Status == "success" && f.FactorCount < 2
}

// foreignIPOutcome scales by reputation band. Without a resolved location,
// an expected-country baseline, or a reputation score, the indicator is
// not applicable.
func (e *SignInEvaluator) foreignIPOutcome(fact *SignInFact, rctx SignInContext) indicator.Outcome {
	if fact.Location == nil || len(e.cfg.ExpectedCountries) == 0 || rctx.Reputation == nil {
		return e.registry.ScaledOutcome(indicator.SignInForeignIP, 0)
	}
	if containsFold(e.cfg.ExpectedCountries, fact.Location.CountryCode) {
		return e.registry.ScaledOutcome(indicator.SignInForeignIP, 0)
	}
	return e.registry.ScaledOutcome(indicator.SignInForeignIP, indicator.ReputationPoints(*rctx.Reputation))
}

// untrustedASNOutcome fires when a high-reputation address sits on a
// network outside the trusted ASN allowlist.
func (e *SignInEvaluator) untrustedASNOutcome(fact *SignInFact, rctx SignInContext) indicator.Outcome {
	if rctx.Reputation == nil || *rctx.Reputation < 50 {
		return e.registry.Outcome(indicator.SignInUntrustedASN, false)
	}
	asn := ""
	if fact.Location != nil {
		asn = fact.Location.ASNumber
	}
	trusted := asn != "" && containsFold(e.cfg.TrustedASNs, asn)
	return e.registry.Outcome(indicator.SignInUntrustedASN, !trusted)
}

func (e *SignInEvaluator) outsideWorkingHours(fact *SignInFact) bool {
	hour := fact.Timestamp.Hour()
	return hour < e.cfg.WorkingHoursStart || hour >= e.cfg.WorkingHoursEnd
}

func (e *SignInEvaluator) expectedLocation(fact *SignInFact) bool {
	if fact.Location == nil || len(e.cfg.ExpectedCountries) == 0 {
		return false
	}
	return containsFold(e.cfg.ExpectedCountries, fact.Location.CountryCode)
}

func (e *SignInEvaluator) trustedIPOutcomes(fact *SignInFact, profile *TrustedIPProfile) []indicator.Outcome {
	reg := e.registry
	if profile == nil || fact.IPAddress == "" {
		return []indicator.Outcome{
			reg.Outcome(indicator.SignInTrustedRange, false),
			reg.Outcome(indicator.SignInFrequentMFAIP, false),
			reg.Outcome(indicator.SignInFrequentCompliantIP, false),
		}
	}
	return []indicator.Outcome{
		reg.Outcome(indicator.SignInTrustedRange, profile.InTrustedRange(fact.IPAddress)),
		reg.Outcome(indicator.SignInFrequentMFAIP, profile.FrequentMFASuccess(fact.IPAddress)),
		reg.Outcome(indicator.SignInFrequentCompliantIP, profile.FrequentCompliantDevice(fact.IPAddress)),
	}
}

func containsFold(list []string, value string) bool {
	for _, v := range list {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}
