package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func compliantSignIn(ip string) *SignInFact {
	f := signInAt("", ip, "", time.Now())
	f.Device.IsCompliant = true
	return f
}

func mfaSignIn(ip string) *SignInFact {
	f := signInAt("", ip, "", time.Now())
	f.FactorCount = 2
	return f
}

func TestTrustedIPProfiler_CompliantBoundary(t *testing.T) {
	profiler := NewTrustedIPProfiler(nil, zap.NewNop())

	// Exactly 2 compliant-device sign-ins: below the threshold
	history := []*SignInFact{
		compliantSignIn("1.2.3.4"),
		compliantSignIn("1.2.3.4"),
	}
	profile := profiler.Build(history)
	assert.False(t, profile.FrequentCompliantDevice("1.2.3.4"))

	// A third crosses it
	profiler.Reset()
	history = append(history, compliantSignIn("1.2.3.4"))
	profile = profiler.Build(history)
	assert.True(t, profile.FrequentCompliantDevice("1.2.3.4"))
}

func TestTrustedIPProfiler_MFABoundary(t *testing.T) {
	profiler := NewTrustedIPProfiler(nil, zap.NewNop())

	profile := profiler.Build([]*SignInFact{
		mfaSignIn("5.6.7.8"),
		mfaSignIn("5.6.7.8"),
		mfaSignIn("5.6.7.8"),
		mfaSignIn("9.9.9.9"),
	})

	assert.True(t, profile.FrequentMFASuccess("5.6.7.8"))
	assert.False(t, profile.FrequentMFASuccess("9.9.9.9"))
}

func TestTrustedIPProfiler_MFARequiresSuccess(t *testing.T) {
	profiler := NewTrustedIPProfiler(nil, zap.NewNop())

	failed := signInAt("", "5.6.7.8", "", time.Now())
	failed.Status = "failure"
	failed.FactorCount = 2

	profile := profiler.Build([]*SignInFact{failed, failed, failed})

	assert.False(t, profile.FrequentMFASuccess("5.6.7.8"))
	assert.Equal(t, 3, profile.Stats("5.6.7.8").Total)
	assert.Equal(t, 0, profile.Stats("5.6.7.8").MFASuccess)
}

func TestTrustedIPProfiler_TrustedRange(t *testing.T) {
	profiler := NewTrustedIPProfiler([]string{"10.0.0.0/8", "2001:db8::/32"}, zap.NewNop())
	profile := profiler.Build(nil)

	assert.True(t, profile.InTrustedRange("10.1.2.3"))
	assert.True(t, profile.InTrustedRange("2001:db8::1"))
	assert.False(t, profile.InTrustedRange("192.168.1.1"))
}

func TestTrustedIPProfiler_MalformedRangesSkipped(t *testing.T) {
	profiler := NewTrustedIPProfiler([]string{"not-a-cidr", "10.0.0.0/8"}, zap.NewNop())
	profile := profiler.Build(nil)

	assert.True(t, profile.InTrustedRange("10.1.2.3"))
}

func TestTrustedIPProfiler_DomainJoinedTally(t *testing.T) {
	profiler := NewTrustedIPProfiler(nil, zap.NewNop())

	joined := signInAt("", "1.2.3.4", "", time.Now())
	joined.Device.TrustType = "Hybrid Azure AD joined"
	registered := signInAt("", "1.2.3.4", "", time.Now())
	registered.Device.TrustType = "Azure AD registered"

	profile := profiler.Build([]*SignInFact{joined, registered})

	assert.Equal(t, 1, profile.Stats("1.2.3.4").DomainJoined)
}

func TestTrustedIPProfiler_CachedUntilReset(t *testing.T) {
	profiler := NewTrustedIPProfiler(nil, zap.NewNop())

	first := profiler.Build([]*SignInFact{compliantSignIn("1.2.3.4")})
	// Second build with different history returns the cached profile
	second := profiler.Build([]*SignInFact{compliantSignIn("9.9.9.9")})
	assert.Same(t, first, second)

	profiler.Reset()
	third := profiler.Build([]*SignInFact{compliantSignIn("9.9.9.9")})
	assert.NotSame(t, first, third)
	assert.Equal(t, 1, third.Stats("9.9.9.9").Total)
}
