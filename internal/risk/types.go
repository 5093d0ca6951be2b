// Package risk implements the indicator-based scoring engine: sign-in and
// user evaluators, session correlation, impossible-travel detection,
// trusted-IP profiling, score aggregation, the breach-probability model,
// and false-positive recomputation.
package risk

import (
	"time"

	"github.com/entraguard/entraguard/internal/geo"
	"github.com/entraguard/entraguard/internal/indicator"
)

// DeviceInfo describes the device a sign-in originated from
type DeviceInfo struct {
	DeviceID        string `json:"device_id,omitempty"`
	DisplayName     string `json:"display_name,omitempty"`
	OperatingSystem string `json:"operating_system,omitempty"`
	Browser         string `json:"browser,omitempty"`
	TrustType       string `json:"trust_type,omitempty"` // "Azure AD joined", "Hybrid Azure AD joined", "Azure AD registered"
	IsCompliant     bool   `json:"is_compliant"`
}

// SessionFlags are the group-level anomaly flags computed by the session
// correlator. They are uniform across every member of a correlated group.
type SessionFlags struct {
	IPChanged      bool `json:"ip_changed"`
	CountryChanged bool `json:"country_changed"`
	DeviceChanged  bool `json:"device_changed"`
}

// Anomalous reports whether any session flag is set
func (f SessionFlags) Anomalous() bool {
	return f.IPChanged || f.CountryChanged || f.DeviceChanged
}

// TravelEvidence is attached to the later event of an implausible pair
type TravelEvidence struct {
	Origin            *geo.Location `json:"origin"`
	Destination       *geo.Location `json:"destination"`
	DistanceKm        float64       `json:"distance_km"`
	ElapsedHours      float64       `json:"elapsed_hours"`
	SpeedKmh          float64       `json:"speed_kmh"`
	PreviousEventID   string        `json:"previous_event_id"`
	PreviousTimestamp time.Time     `json:"previous_timestamp"`
}

// SignInFact is one normalized authentication event. It is immutable once
// collected; only the session correlator and the impossible-travel detector
// enrich it with derived flags. Evaluators never mutate it.
type SignInFact struct {
	ID            string        `json:"id"`
	Timestamp     time.Time     `json:"timestamp"`
	IPAddress     string        `json:"ip_address"`
	Location      *geo.Location `json:"location,omitempty"`
	Device        DeviceInfo    `json:"device"`
	ClientApp     string        `json:"client_app"`
	Status        string        `json:"status"`    // "success" or "failure"
	CAStatus      string        `json:"ca_status"` // "success", "failure", "notApplied"
	FactorCount   int           `json:"factor_count"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	RiskLevel     string        `json:"risk_level,omitempty"` // external detection: "low", "medium", "high"
	RiskDetail    string        `json:"risk_detail,omitempty"`
	FailureCode   int           `json:"failure_code,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`

	// Derived enrichment, written before evaluation
	Session SessionFlags    `json:"session_flags"`
	Travel  *TravelEvidence `json:"travel,omitempty"`
}

// SessionGroup is a set of sign-ins sharing a correlation id
type SessionGroup struct {
	CorrelationID string        `json:"correlation_id"`
	Members       []*SignInFact `json:"-"`
	Flags         SessionFlags  `json:"flags"`
}

// ScoredSignIn pairs a fact with its full indicator breakdown. The total
// is always recomputable from the breakdown; RawScore keeps the signed sum
// while Score is clamped at zero for display and classification.
type ScoredSignIn struct {
	Fact     *SignInFact         `json:"fact"`
	Outcomes []indicator.Outcome `json:"outcomes"`
	RawScore int                 `json:"raw_score"`
	Score    int                 `json:"score"`
	Level    RiskLevel           `json:"level"`
}

// CAPolicyFacts summarizes the Conditional Access policies covering an
// account, used to resolve the protection tier.
type CAPolicyFacts struct {
	MFAForAllApps     bool `json:"mfa_for_all_apps"`
	MFAForSomeApps    bool `json:"mfa_for_some_apps"`
	BlockPoliciesOnly bool `json:"block_policies_only"`
}

// UserFacts are the per-account configuration facts consumed by the user
// indicator evaluator.
type UserFacts struct {
	UPN                   string        `json:"upn"`
	MFAMethodCount        int           `json:"mfa_method_count"`
	AuthMethodChanged     bool          `json:"auth_method_changed"`
	DelegateCount         int           `json:"delegate_count"`
	ForwardingEnabled     bool          `json:"forwarding_enabled"`
	ForwardingAddress     string        `json:"forwarding_address,omitempty"`
	SuspiciousRuleCount   int           `json:"suspicious_rule_count"`
	ConsentCount          int           `json:"consent_count"`
	AdminRoles            []string      `json:"admin_roles,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
	PasswordResetRecently bool          `json:"password_reset_recently"`
	CAPolicies            CAPolicyFacts `json:"ca_policies"`
}

// UserRiskProfile is the per-account indicator breakdown and total
type UserRiskProfile struct {
	UPN      string              `json:"upn"`
	Outcomes []indicator.Outcome `json:"outcomes"`
	RawScore int                 `json:"raw_score"`
	Score    int                 `json:"score"`
	Level    RiskLevel           `json:"level"`
}

// IPStats are the per-address tallies of the trusted-IP profile
type IPStats struct {
	Total           int `json:"total"`
	MFASuccess      int `json:"mfa_success"`
	CompliantDevice int `json:"compliant_device"`
	DomainJoined    int `json:"domain_joined"`
}

// CategoryScore is one capped bucket of the breach-probability model
type CategoryScore struct {
	Score int `json:"score"`
	Max   int `json:"max"`
}

// BreachProbabilityAssessment is the weighted multi-category compromise
// likelihood estimate.
type BreachProbabilityAssessment struct {
	Credential    CategoryScore `json:"credential_compromise"`
	Session       CategoryScore `json:"session_anomalies"`
	Configuration CategoryScore `json:"configuration_weakness"`
	Temporal      CategoryScore `json:"temporal_concentration"`
	BasePercent   int           `json:"base_percent"`
	Multipliers   []string      `json:"multipliers"`
	Multiplier    float64       `json:"multiplier"`
	FinalPercent  int           `json:"final_percent"`
	Status        string        `json:"status"`
	DenseActivity bool          `json:"dense_activity"`
}

// Analysis is the complete result of one engine run over one account
type Analysis struct {
	RunID         string                      `json:"run_id"`
	UPN           string                      `json:"upn"`
	GeneratedAt   time.Time                   `json:"generated_at"`
	LookbackDays  int                         `json:"lookback_days"`
	SignIns       []ScoredSignIn              `json:"sign_ins"`
	User          UserRiskProfile             `json:"user"`
	Breach        BreachProbabilityAssessment `json:"breach"`
	DenseActivity bool                        `json:"dense_activity"`
}
