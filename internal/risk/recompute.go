package risk

import (
	"time"

	"github.com/entraguard/entraguard/internal/indicator"
)

// Recomputer re-runs aggregation, classification, and the breach model
// over already-computed breakdowns with a set of indicator ids excluded.
// It never re-runs the evaluators; parity with the primary pass follows
// from sharing its code paths.
type Recomputer struct {
	breach     *BreachModel
	classifier Classifier
}

// NewRecomputer creates a recomputation engine sharing the primary
// pass's breach model and classifier.
func NewRecomputer(breach *BreachModel, classifier Classifier) *Recomputer {
	return &Recomputer{breach: breach, classifier: classifier}
}

// Recompute returns a new analysis with the excluded indicators degraded
// to not-applicable at every stage. An empty exclusion set reproduces the
// original totals exactly; repeated identical sets are idempotent.
func (r *Recomputer) Recompute(original *Analysis, excludedIDs []string, now time.Time) *Analysis {
	excluded := make(map[string]bool, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = true
	}

	signIns := make([]ScoredSignIn, len(original.SignIns))
	for i, s := range original.SignIns {
		signIns[i] = r.classifier.ScoreSignIn(s.Fact, excludeOutcomes(s.Outcomes, excluded))
	}

	user := r.classifier.ScoreUser(original.User.UPN, excludeOutcomes(original.User.Outcomes, excluded))

	return &Analysis{
		RunID:         original.RunID,
		UPN:           original.UPN,
		GeneratedAt:   now,
		LookbackDays:  original.LookbackDays,
		SignIns:       signIns,
		User:          user,
		Breach:        r.breach.Assess(signIns, user, original.DenseActivity),
		DenseActivity: original.DenseActivity,
	}
}

// excludeOutcomes copies a breakdown with excluded indicators marked not
// applicable. The outcome stays in the list so serialization remains
// lossless and the exclusion is auditable.
func excludeOutcomes(outcomes []indicator.Outcome, excluded map[string]bool) []indicator.Outcome {
	out := make([]indicator.Outcome, len(outcomes))
	for i, o := range outcomes {
		if excluded[o.ID] {
			o.Applicable = false
		}
		out[i] = o
	}
	return out
}
