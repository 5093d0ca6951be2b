package risk

import (
	"time"

	"go.uber.org/zap"

	"github.com/entraguard/entraguard/internal/indicator"
)

// newAccountAgeDays is the window within which an account counts as
// recently created.
const newAccountAgeDays = 30

// UserEvaluator produces the per-account indicator breakdown
type UserEvaluator struct {
	registry *indicator.Registry
	logger   *zap.Logger
}

// NewUserEvaluator creates an evaluator over the given rule registry
func NewUserEvaluator(registry *indicator.Registry, logger *zap.Logger) *UserEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserEvaluator{
		registry: registry,
		logger:   logger.With(zap.String("component", "user_evaluator")),
	}
}

// Evaluate returns the ordered outcome list for one account. now anchors
// the account-age check so runs are reproducible.
func (e *UserEvaluator) Evaluate(facts *UserFacts, now time.Time) []indicator.Outcome {
	reg := e.registry
	return []indicator.Outcome{
		reg.Outcome(indicator.UserNoMFARegistered, facts.MFAMethodCount == 0),
		reg.Outcome(indicator.UserAuthMethodChange, facts.AuthMethodChanged),
		reg.Outcome(indicator.UserDelegates, facts.DelegateCount > 0),
		reg.Outcome(indicator.UserForwarding, facts.ForwardingEnabled),
		reg.Outcome(indicator.UserSuspiciousRules, facts.SuspiciousRuleCount > 0),
		reg.Outcome(indicator.UserAppConsents, facts.ConsentCount > 0),
		reg.Outcome(indicator.UserAdminRoles, len(facts.AdminRoles) > 0),
		reg.Outcome(indicator.UserNewAccount, isNewAccount(facts.CreatedAt, now)),
		reg.Outcome(indicator.UserPasswordReset, facts.PasswordResetRecently),
		reg.ScaledOutcome(indicator.UserCAProtection, indicator.CAProtectionPoints(ResolveCAProtection(facts.CAPolicies))),
	}
}

func isNewAccount(createdAt, now time.Time) bool {
	if createdAt.IsZero() {
		return false
	}
	return now.Sub(createdAt) < newAccountAgeDays*24*time.Hour
}

// ResolveCAProtection maps the policy summary to a protection tier. The
// checks short-circuit in order full, partial, block-only, none.
func ResolveCAProtection(p CAPolicyFacts) indicator.CAProtectionTier {
	switch {
	case p.MFAForAllApps:
		return indicator.CAProtectionFull
	case p.MFAForSomeApps:
		return indicator.CAProtectionPartial
	case p.BlockPoliciesOnly:
		return indicator.CAProtectionBlockOnly
	default:
		return indicator.CAProtectionNone
	}
}
