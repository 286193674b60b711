package usecases

import (
	"cmp"
	"slices"

	"github.com/samirrijal/storedetect/internal/core/domain"
)

// Detection defaults.
const (
	DefaultSearchRadiusMeters        = 150
	DefaultConfidenceFloor           = 30
	DefaultConfirmationSkipThreshold = 80

	// WiFiMatchConfidence is the level a matching store network raises a
	// candidate to. A match never lowers confidence.
	WiFiMatchConfidence = 95
)

// Candidate is one store under evaluation during a detection cycle.
type Candidate struct {
	Store          domain.Store
	Distance       float64
	HasGeofence    bool // a valid geofence was evaluated
	InsideGeofence bool
	WiFiMatch      bool
	WiFiSignalDBM  *int

	Confidence int
	Method     domain.DetectionMethod
}

// GeofenceConfidence is the tier for a position inside the store geofence.
func GeofenceConfidence(distance float64) int {
	switch {
	case distance <= 25:
		return 100
	case distance <= 100:
		return 98
	default:
		return 95
	}
}

// DistanceConfidence is the tier used without a geofence, or outside it.
func DistanceConfidence(distance float64) int {
	switch {
	case distance <= 10:
		return 100
	case distance <= 25:
		return 95
	case distance <= 50:
		return 85
	case distance <= 100:
		return 70
	case distance <= 200:
		return 50
	default:
		return 30
	}
}

// ScoreCandidate fills in Confidence and Method.
func ScoreCandidate(c *Candidate) {
	if c.InsideGeofence {
		c.Confidence = GeofenceConfidence(c.Distance)
	} else {
		c.Confidence = DistanceConfidence(c.Distance)
	}

	switch {
	case c.WiFiMatch && c.Confidence < WiFiMatchConfidence:
		c.Confidence = WiFiMatchConfidence
		c.Method = domain.MethodWiFi
	case c.HasGeofence:
		c.Method = domain.MethodGeofence
	default:
		c.Method = domain.MethodGPS
	}
}

// SelectBest picks the highest-confidence candidate at or above floor, nearer
// first on ties. The other candidates are returned distance-ascending. When no
// candidate clears the floor best is nil and every candidate is returned.
func SelectBest(candidates []Candidate, floor int) (best *Candidate, others []domain.Store) {
	ranked := slices.Clone(candidates)
	slices.SortStableFunc(ranked, func(a, b Candidate) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return cmp.Compare(a.Distance, b.Distance)
	})

	winner := -1
	if len(ranked) > 0 && ranked[0].Confidence >= floor {
		winner = 0
		w := ranked[0]
		best = &w
	}

	rest := make([]Candidate, 0, len(ranked))
	for i, c := range ranked {
		if i != winner {
			rest = append(rest, c)
		}
	}
	slices.SortStableFunc(rest, func(a, b Candidate) int {
		return cmp.Compare(a.Distance, b.Distance)
	})

	others = make([]domain.Store, 0, len(rest))
	for _, c := range rest {
		others = append(others, withDistance(c.Store, c.Distance))
	}
	return best, others
}

func withDistance(s domain.Store, d float64) domain.Store {
	s.Distance = &d
	return s
}
