package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/entraguard/entraguard/internal/geo"
)

func signInAt(id, ip, corrID string, ts time.Time) *SignInFact {
	return &SignInFact{
		ID:            id,
		Timestamp:     ts,
		IPAddress:     ip,
		CorrelationID: corrID,
		Status:        "success",
	}
}

func TestCorrelateSessions_IPChange(t *testing.T) {
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	facts := []*SignInFact{
		signInAt("a", "1.1.1.1", "corr-1", base),
		signInAt("b", "1.1.1.1", "corr-1", base.Add(time.Minute)),
		signInAt("c", "2.2.2.2", "corr-1", base.Add(2*time.Minute)),
	}

	groups := CorrelateSessions(facts)

	assert.Len(t, groups, 1)
	assert.True(t, groups[0].Flags.IPChanged)
	assert.False(t, groups[0].Flags.CountryChanged)
	assert.False(t, groups[0].Flags.DeviceChanged)

	// A flag is a group-level property, identical on every member
	for _, f := range facts {
		assert.True(t, f.Session.IPChanged, "member %s must carry the group flag", f.ID)
	}
}

func TestCorrelateSessions_CountryAndDeviceChange(t *testing.T) {
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	a := signInAt("a", "1.1.1.1", "corr-1", base)
	a.Location = &geo.Location{CountryCode: "NL"}
	a.Device.DeviceID = "device-1"
	b := signInAt("b", "2.2.2.2", "corr-1", base.Add(time.Minute))
	b.Location = &geo.Location{CountryCode: "US"}
	b.Device.DeviceID = "device-2"

	groups := CorrelateSessions([]*SignInFact{a, b})

	assert.Len(t, groups, 1)
	assert.True(t, groups[0].Flags.IPChanged)
	assert.True(t, groups[0].Flags.CountryChanged)
	assert.True(t, groups[0].Flags.DeviceChanged)
}

func TestCorrelateSessions_SingleMemberNoFlags(t *testing.T) {
	facts := []*SignInFact{
		signInAt("a", "1.1.1.1", "corr-1", time.Now()),
	}

	groups := CorrelateSessions(facts)

	assert.Len(t, groups, 1)
	assert.False(t, facts[0].Session.Anomalous())
}

func TestCorrelateSessions_UncorrelatedExcluded(t *testing.T) {
	facts := []*SignInFact{
		signInAt("a", "1.1.1.1", "", time.Now()),
		signInAt("b", "2.2.2.2", "", time.Now()),
	}

	groups := CorrelateSessions(facts)

	assert.Empty(t, groups)
	for _, f := range facts {
		assert.False(t, f.Session.Anomalous())
	}
}

func TestCorrelateSessions_EmptyDeviceIDsIgnored(t *testing.T) {
	base := time.Now()
	a := signInAt("a", "1.1.1.1", "corr-1", base)
	b := signInAt("b", "1.1.1.1", "corr-1", base.Add(time.Minute))
	// Only one member carries a device id; one distinct non-empty id is
	// not a change.
	b.Device.DeviceID = "device-2"

	groups := CorrelateSessions([]*SignInFact{a, b})

	assert.False(t, groups[0].Flags.DeviceChanged)
}
