package risk

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/entraguard/entraguard/internal/common/config"
	apperrors "github.com/entraguard/entraguard/internal/common/errors"
	"github.com/entraguard/entraguard/internal/geo"
	"github.com/entraguard/entraguard/internal/indicator"
	"github.com/entraguard/entraguard/internal/metrics"
	"github.com/entraguard/entraguard/internal/reputation"
)

// DataProvider supplies normalized facts for an account. Implementations
// live outside the engine; the engine itself never fetches data.
type DataProvider interface {
	SignIns(ctx context.Context, upn string, since time.Time) ([]*SignInFact, error)
	AccountFacts(ctx context.Context, upn string) (*UserFacts, error)
}

// ReputationSource resolves a 0-100 confidence score for an address
type ReputationSource interface {
	Score(ctx context.Context, ip string) (int, error)
}

// Service orchestrates one full analysis pass over an account
type Service struct {
	provider   DataProvider
	geoCache   *geo.Cache
	reputation ReputationSource
	profiler   *TrustedIPProfiler
	signIn     *SignInEvaluator
	user       *UserEvaluator
	travel     *TravelDetector
	breach     *BreachModel
	classifier Classifier
	recomputer *Recomputer
	registry   *indicator.Registry
	cfg        config.ScoringConfig
	logger     *zap.Logger
}

// NewService wires the engine components around a data provider
func NewService(
	provider DataProvider,
	geoCache *geo.Cache,
	reputationSource ReputationSource,
	registry *indicator.Registry,
	scoringCfg config.ScoringConfig,
	breachCfg config.BreachConfig,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "risk_service"))

	breach := NewBreachModel(breachCfg)
	classifier := NewClassifier(scoringCfg)
	return &Service{
		provider:   provider,
		geoCache:   geoCache,
		reputation: reputationSource,
		profiler:   NewTrustedIPProfiler(scoringCfg.TrustedCIDRs, logger),
		signIn:     NewSignInEvaluator(registry, scoringCfg, logger),
		user:       NewUserEvaluator(registry, logger),
		travel:     NewTravelDetector(geoCache, scoringCfg.MaxTravelSpeed, logger),
		breach:     breach,
		classifier: classifier,
		recomputer: NewRecomputer(breach, classifier),
		registry:   registry,
		cfg:        scoringCfg,
		logger:     logger,
	}
}

// Registry exposes the rule table for metadata export
func (s *Service) Registry() *indicator.Registry {
	return s.registry
}

// Analyze runs the full pipeline for one account. Zero sign-ins surface
// as ErrNoSignIns, distinct from a zero-risk result.
func (s *Service) Analyze(ctx context.Context, upn string, lookbackDays int) (*Analysis, error) {
	start := time.Now()
	if lookbackDays <= 0 {
		lookbackDays = s.cfg.LookbackDays
	}
	since := time.Now().AddDate(0, 0, -lookbackDays)

	facts, err := s.provider.SignIns(ctx, upn, since)
	if err != nil {
		metrics.RecordAnalysis(metrics.AnalysisError, time.Since(start))
		return nil, err
	}
	if len(facts) == 0 {
		metrics.RecordAnalysis(metrics.AnalysisNoData, time.Since(start))
		return nil, apperrors.New(apperrors.ErrNoSignIns, "no sign-in activity in lookback window").
			WithDetails("upn " + upn)
	}

	userFacts, err := s.provider.AccountFacts(ctx, upn)
	if err != nil {
		metrics.RecordAnalysis(metrics.AnalysisError, time.Since(start))
		return nil, err
	}

	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].Timestamp.Before(facts[j].Timestamp)
	})

	// Enrichment before evaluation: session flags, travel evidence, and
	// the trusted-IP profile over the full history.
	s.enrichLocations(ctx, facts)
	CorrelateSessions(facts)
	s.travel.Annotate(ctx, facts)
	s.profiler.Reset()
	profile := s.profiler.Build(facts)

	now := time.Now()
	signIns := make([]ScoredSignIn, 0, len(facts))
	for _, fact := range facts {
		rctx := SignInContext{
			Reputation: s.resolveReputation(ctx, fact.IPAddress),
			Profile:    profile,
		}
		scored := s.classifier.ScoreSignIn(fact, s.signIn.Evaluate(fact, rctx))
		for _, o := range scored.Outcomes {
			if o.Applicable {
				metrics.RecordIndicator(o.ID)
			}
		}
		signIns = append(signIns, scored)
	}

	userProfile := s.classifier.ScoreUser(upn, s.user.Evaluate(userFacts, now))
	for _, o := range userProfile.Outcomes {
		if o.Applicable {
			metrics.RecordIndicator(o.ID)
		}
	}

	dense := s.breach.DetectDenseActivity(facts)
	assessment := s.breach.Assess(signIns, userProfile, dense)

	metrics.RecordAnalysis(metrics.AnalysisCompleted, time.Since(start))
	metrics.RecordBreachProbability(float64(assessment.FinalPercent))
	metrics.RecordRiskLevel("user", string(userProfile.Level))

	s.logger.Info("Analysis completed",
		zap.String("upn", upn),
		zap.Int("sign_ins", len(signIns)),
		zap.String("user_level", string(userProfile.Level)),
		zap.Int("breach_percent", assessment.FinalPercent),
	)

	return &Analysis{
		RunID:         uuid.New().String(),
		UPN:           upn,
		GeneratedAt:   now,
		LookbackDays:  lookbackDays,
		SignIns:       signIns,
		User:          userProfile,
		Breach:        assessment,
		DenseActivity: dense,
	}, nil
}

// Recompute re-aggregates a stored analysis minus the excluded indicator
// ids, through the same code paths as the primary pass.
func (s *Service) Recompute(original *Analysis, excludedIDs []string) *Analysis {
	return s.recomputer.Recompute(original, excludedIDs, time.Now())
}

// Displayed returns the sign-ins whose raw score exceeds the display
// threshold. Filtering never mutates stored scores.
func (s *Service) Displayed(signIns []ScoredSignIn) []ScoredSignIn {
	out := make([]ScoredSignIn, 0, len(signIns))
	for _, si := range signIns {
		if si.RawScore > s.cfg.DisplayThreshold {
			out = append(out, si)
		}
	}
	return out
}

// enrichLocations fills missing fact locations from the geo cache so the
// session correlator and location indicators can use them. Unresolvable
// addresses stay nil and degrade those indicators to not-applicable.
func (s *Service) enrichLocations(ctx context.Context, facts []*SignInFact) {
	for _, f := range facts {
		if f.Location != nil || f.IPAddress == "" {
			continue
		}
		loc, err := s.geoCache.Lookup(ctx, f.IPAddress)
		if err != nil {
			continue
		}
		f.Location = loc
	}
}

func (s *Service) resolveReputation(ctx context.Context, ip string) *int {
	if s.reputation == nil || ip == "" {
		return nil
	}
	score, err := s.reputation.Score(ctx, ip)
	if err != nil {
		return nil
	}
	return &score
}

var _ ReputationSource = (*reputation.Client)(nil)
