package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/entraguard/entraguard/internal/geo"
)

// mapResolver serves fixed coordinates per address
type mapResolver struct {
	locations map[string]*geo.Location
}

func (r *mapResolver) Resolve(_ context.Context, ip string) (*geo.Location, error) {
	if loc, ok := r.locations[ip]; ok {
		return loc, nil
	}
	return nil, errors.New("unknown address")
}

var (
	amsterdamIP = "77.160.1.1"
	newYorkIP   = "68.10.1.1"

	travelLocations = map[string]*geo.Location{
		amsterdamIP: {IPAddress: amsterdamIP, City: "Amsterdam", CountryCode: "NL", Latitude: 52.3676, Longitude: 4.9041},
		newYorkIP:   {IPAddress: newYorkIP, City: "New York", CountryCode: "US", Latitude: 40.7128, Longitude: -74.0060},
	}
)

func newTravelDetector(maxSpeed float64) *TravelDetector {
	cache := geo.NewCache(&mapResolver{locations: travelLocations}, nil, time.Hour, zap.NewNop())
	return NewTravelDetector(cache, maxSpeed, zap.NewNop())
}

func TestTravelDetector_AmsterdamToNewYork(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	earlier := signInAt("ams", amsterdamIP, "", base)
	later := signInAt("nyc", newYorkIP, "", base.Add(30*time.Minute))

	newTravelDetector(1000).Annotate(context.Background(), []*SignInFact{earlier, later})

	// Only the later event is flagged
	assert.Nil(t, earlier.Travel)
	require.NotNil(t, later.Travel)
	assert.InDelta(t, 5870, later.Travel.DistanceKm, 60)
	assert.InDelta(t, 0.5, later.Travel.ElapsedHours, 0.001)
	assert.Greater(t, later.Travel.SpeedKmh, 11000.0)
	assert.Equal(t, "ams", later.Travel.PreviousEventID)
	assert.Equal(t, "Amsterdam", later.Travel.Origin.City)
	assert.Equal(t, "New York", later.Travel.Destination.City)
}

func TestTravelDetector_PlausibleSpeedNotFlagged(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	earlier := signInAt("ams", amsterdamIP, "", base)
	later := signInAt("nyc", newYorkIP, "", base.Add(8*time.Hour)) // ~734 km/h

	newTravelDetector(1000).Annotate(context.Background(), []*SignInFact{earlier, later})

	assert.Nil(t, earlier.Travel)
	assert.Nil(t, later.Travel)
}

func TestTravelDetector_SameIPSkipped(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	a := signInAt("a", amsterdamIP, "", base)
	b := signInAt("b", amsterdamIP, "", base.Add(time.Minute))

	newTravelDetector(1000).Annotate(context.Background(), []*SignInFact{a, b})

	assert.Nil(t, a.Travel)
	assert.Nil(t, b.Travel)
}

func TestTravelDetector_DuplicateTimestampSkipped(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	a := signInAt("a", amsterdamIP, "", base)
	b := signInAt("b", newYorkIP, "", base)

	newTravelDetector(1000).Annotate(context.Background(), []*SignInFact{a, b})

	assert.Nil(t, a.Travel)
	assert.Nil(t, b.Travel)
}

func TestTravelDetector_UnresolvableAddressSkipped(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	a := signInAt("a", amsterdamIP, "", base)
	b := signInAt("b", "203.0.113.99", "", base.Add(time.Minute)) // not in resolver

	newTravelDetector(1000).Annotate(context.Background(), []*SignInFact{a, b})

	assert.Nil(t, a.Travel)
	assert.Nil(t, b.Travel)
}

func TestTravelDetector_UnsortedInputHandled(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	earlier := signInAt("ams", amsterdamIP, "", base)
	later := signInAt("nyc", newYorkIP, "", base.Add(30*time.Minute))

	// Reverse order in the slice; the detector sorts by time itself
	newTravelDetector(1000).Annotate(context.Background(), []*SignInFact{later, earlier})

	assert.Nil(t, earlier.Travel)
	assert.NotNil(t, later.Travel)
}
