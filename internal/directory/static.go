package directory

import (
	"context"
	"time"

	apperrors "github.com/entraguard/entraguard/internal/common/errors"
	"github.com/entraguard/entraguard/internal/risk"
)

// StaticProvider serves fixture data, for tests and local development
type StaticProvider struct {
	SignInsByUPN map[string][]*risk.SignInFact
	FactsByUPN   map[string]*risk.UserFacts
}

// NewStaticProvider creates an empty fixture provider
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		SignInsByUPN: make(map[string][]*risk.SignInFact),
		FactsByUPN:   make(map[string]*risk.UserFacts),
	}
}

// SignIns returns the fixtures for an account filtered by the window
func (p *StaticProvider) SignIns(_ context.Context, upn string, since time.Time) ([]*risk.SignInFact, error) {
	facts := p.SignInsByUPN[upn]
	out := make([]*risk.SignInFact, 0, len(facts))
	for _, f := range facts {
		if !f.Timestamp.Before(since) {
			out = append(out, f)
		}
	}
	return out, nil
}

// AccountFacts returns the fixture facts for an account
func (p *StaticProvider) AccountFacts(_ context.Context, upn string) (*risk.UserFacts, error) {
	facts, ok := p.FactsByUPN[upn]
	if !ok {
		return nil, apperrors.New(apperrors.ErrAccountNotFound, "account not found in directory")
	}
	return facts, nil
}
