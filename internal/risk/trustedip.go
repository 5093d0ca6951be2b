package risk

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/entraguard/entraguard/internal/common/netutil"
)

// frequentThreshold is the minimum historical occurrence count before an
// address earns a frequency-based safety indicator.
const frequentThreshold = 3

// TrustedIPProfile is the read-only per-address trust view built from the
// full sign-in history of a run.
type TrustedIPProfile struct {
	stats  map[string]IPStats
	ranges []netutil.Range
}

// Stats returns the tallies for an address
func (p *TrustedIPProfile) Stats(ip string) IPStats {
	return p.stats[ip]
}

// InTrustedRange reports whether the address falls inside any trusted
// named-location range.
func (p *TrustedIPProfile) InTrustedRange(ip string) bool {
	return netutil.AnyContains(p.ranges, ip)
}

// FrequentMFASuccess reports whether the address has at least three
// historical multi-factor-successful sign-ins.
func (p *TrustedIPProfile) FrequentMFASuccess(ip string) bool {
	return p.stats[ip].MFASuccess >= frequentThreshold
}

// FrequentCompliantDevice reports whether the address has at least three
// historical compliant-device sign-ins.
func (p *TrustedIPProfile) FrequentCompliantDevice(ip string) bool {
	return p.stats[ip].CompliantDevice >= frequentThreshold
}

// TrustedIPProfiler builds and caches the profile for a run. Build is
// idempotent until Reset forces a rebuild, e.g. between independent
// accounts in a batch.
type TrustedIPProfiler struct {
	ranges []netutil.Range
	logger *zap.Logger

	mu      sync.Mutex
	profile *TrustedIPProfile
}

// NewTrustedIPProfiler parses the trusted named-location CIDRs. Malformed
// ranges are skipped with a warning inside ParseRanges.
func NewTrustedIPProfiler(trustedCIDRs []string, logger *zap.Logger) *TrustedIPProfiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "trusted_ip_profiler"))
	return &TrustedIPProfiler{
		ranges: netutil.ParseRanges(trustedCIDRs, logger),
		logger: logger,
	}
}

// Build tallies the full history into a profile. The history must be the
// complete set of sign-ins for the run, not a risky subset. Subsequent
// calls return the cached profile until Reset.
func (p *TrustedIPProfiler) Build(history []*SignInFact) *TrustedIPProfile {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.profile != nil {
		return p.profile
	}

	stats := make(map[string]IPStats)
	for _, f := range history {
		if f.IPAddress == "" {
			continue
		}
		s := stats[f.IPAddress]
		s.Total++
		if f.Status == "success" && f.FactorCount >= 2 {
			s.MFASuccess++
		}
		if f.Device.IsCompliant {
			s.CompliantDevice++
		}
		if isDomainJoined(f.Device.TrustType) {
			s.DomainJoined++
		}
		stats[f.IPAddress] = s
	}

	p.profile = &TrustedIPProfile{stats: stats, ranges: p.ranges}
	p.logger.Debug("Trusted IP profile built",
		zap.Int("addresses", len(stats)),
		zap.Int("trusted_ranges", len(p.ranges)),
	)
	return p.profile
}

// Reset discards the cached profile so the next Build recomputes it
func (p *TrustedIPProfiler) Reset() {
	p.mu.Lock()
	p.profile = nil
	p.mu.Unlock()
}

func isDomainJoined(trustType string) bool {
	t := strings.ToLower(trustType)
	return strings.Contains(t, "joined")
}
