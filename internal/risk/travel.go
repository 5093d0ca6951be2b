package risk

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/entraguard/entraguard/internal/geo"
)

// TravelDetector flags physically implausible consecutive sign-ins. Only
// the later event of an implausible pair is flagged; earlier events are
// never retroactively marked by a later comparison.
type TravelDetector struct {
	geo      *geo.Cache
	maxSpeed float64 // km/h
	logger   *zap.Logger
}

// NewTravelDetector creates a detector with the configured speed limit
func NewTravelDetector(geoCache *geo.Cache, maxSpeedKmh float64, logger *zap.Logger) *TravelDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TravelDetector{
		geo:      geoCache,
		maxSpeed: maxSpeedKmh,
		logger:   logger.With(zap.String("component", "travel_detector")),
	}
}

// Annotate walks the facts in ascending time order and attaches travel
// evidence to the later event of every pair whose required speed exceeds
// the limit. Pairs with a shared address, unresolvable locations, or
// non-positive elapsed time are skipped.
func (d *TravelDetector) Annotate(ctx context.Context, facts []*SignInFact) {
	ordered := make([]*SignInFact, len(facts))
	copy(ordered, facts)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	for i := 1; i < len(ordered); i++ {
		prev, curr := ordered[i-1], ordered[i]
		if prev.IPAddress == curr.IPAddress || prev.IPAddress == "" || curr.IPAddress == "" {
			continue
		}

		origin, err := d.geo.Lookup(ctx, prev.IPAddress)
		if err != nil {
			d.logger.Info("Skipping travel pair, origin unresolved",
				zap.String("ip", prev.IPAddress),
				zap.Error(err),
			)
			continue
		}
		dest, err := d.geo.Lookup(ctx, curr.IPAddress)
		if err != nil {
			d.logger.Info("Skipping travel pair, destination unresolved",
				zap.String("ip", curr.IPAddress),
				zap.Error(err),
			)
			continue
		}

		elapsed := curr.Timestamp.Sub(prev.Timestamp).Hours()
		if elapsed <= 0 {
			// Clock skew or duplicate timestamp, not judgeable
			continue
		}

		distance := geo.HaversineDistance(origin.Latitude, origin.Longitude, dest.Latitude, dest.Longitude)
		speed := distance / elapsed
		if speed <= d.maxSpeed {
			continue
		}

		curr.Travel = &TravelEvidence{
			Origin:            origin,
			Destination:       dest,
			DistanceKm:        distance,
			ElapsedHours:      elapsed,
			SpeedKmh:          speed,
			PreviousEventID:   prev.ID,
			PreviousTimestamp: prev.Timestamp,
		}

		d.logger.Warn("Impossible travel detected",
			zap.String("from", origin.Country),
			zap.String("to", dest.Country),
			zap.Float64("distance_km", distance),
			zap.Float64("speed_kmh", speed),
		)
	}
}
