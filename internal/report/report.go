// Package report assembles analysis results into the wire format served
// to report renderers, advisory generators, and the browser-side
// false-positive engine.
package report

import (
	"time"

	"github.com/entraguard/entraguard/internal/indicator"
	"github.com/entraguard/entraguard/internal/risk"
)

// AnalysisReport is the full JSON document for one analysis run. The
// indicator table carries the exact ids and point values used server-side
// so client-side recomputation stays consistent with the engine.
//
// SignIns is the rendering view: the subset above the display threshold.
// Analysis is the complete engine state, including sign-ins the threshold
// hides; the false-positive engine posts it back to /recompute, so
// recomputation always runs over the same breakdowns the primary pass
// produced.
type AnalysisReport struct {
	RunID         string                           `json:"run_id"`
	UPN           string                           `json:"upn"`
	GeneratedAt   time.Time                        `json:"generated_at"`
	LookbackDays  int                              `json:"lookback_days"`
	SignInCount   int                              `json:"sign_in_count"`
	SignIns       []risk.ScoredSignIn              `json:"sign_ins"`
	User          risk.UserRiskProfile             `json:"user"`
	Breach        risk.BreachProbabilityAssessment `json:"breach"`
	DenseActivity bool                             `json:"dense_activity"`
	Indicators    []indicator.Rule                 `json:"indicators"`
	Analysis      *risk.Analysis                   `json:"analysis"`
}

// Build assembles a report from an analysis. displayed is the surfaced
// subset of sign-ins (display-threshold policy); the count still reflects
// the full history so "no risky sign-ins" is distinct from "no sign-ins".
func Build(analysis *risk.Analysis, displayed []risk.ScoredSignIn, registry *indicator.Registry) *AnalysisReport {
	return &AnalysisReport{
		RunID:         analysis.RunID,
		UPN:           analysis.UPN,
		GeneratedAt:   analysis.GeneratedAt,
		LookbackDays:  analysis.LookbackDays,
		SignInCount:   len(analysis.SignIns),
		SignIns:       displayed,
		User:          analysis.User,
		Breach:        analysis.Breach,
		DenseActivity: analysis.DenseActivity,
		Indicators:    registry.Rules(),
		Analysis:      analysis,
	}
}
