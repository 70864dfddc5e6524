// Package geo provides the pure geographic policy checks used when placing
// fragment destinations: great-circle distances, minimum pairwise separation,
// and travel-time feasibility against a configurable adversary reference
// speed. The reference speed is an ordinary policy knob, not a physical
// guarantee; callers tune it to whatever threat model they operate under.
package geo

import (
	"fmt"
	"math"
	"time"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0088

// Location is a point on the Earth's surface with an optional jurisdiction
// label used by transport placement.
type Location struct {
	Lat          float64 `json:"lat" yaml:"lat"`
	Lon          float64 `json:"lon" yaml:"lon"`
	Jurisdiction string  `json:"jurisdiction,omitempty" yaml:"jurisdiction,omitempty"`
}

// Policy configures the constraint checks applied to a destination set.
type Policy struct {
	// MinSeparationKm is the minimum allowed great-circle distance between
	// any two fragment destinations.
	MinSeparationKm float64 `json:"min_separation_km" yaml:"min_separation_km"`

	// AdversarySpeedKmh is the reference speed of the fastest plausible
	// adversarial traveler. A destination set is rejected when a traveler at
	// this speed could visit every location before the fragments expire.
	AdversarySpeedKmh float64 `json:"adversary_speed_kmh" yaml:"adversary_speed_kmh"`
}

// DefaultPolicy returns the stock placement policy: 1000 km separation,
// adversary at commercial-aviation speed.
func DefaultPolicy() Policy {
	return Policy{
		MinSeparationKm:   1000,
		AdversarySpeedKmh: 900,
	}
}

// Distance returns the great-circle distance between two locations in
// kilometers, using the haversine formula.
func Distance(a, b Location) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(latA)*math.Cos(latB)*sinLon*sinLon

	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// MinPairwiseSeparation returns the smallest great-circle distance between
// any two locations in the set. Returns +Inf for fewer than two locations.
func MinPairwiseSeparation(locations []Location) float64 {
	min := math.Inf(1)
	for i := 0; i < len(locations); i++ {
		for j := i + 1; j < len(locations); j++ {
			if d := Distance(locations[i], locations[j]); d < min {
				min = d
			}
		}
	}
	return min
}

// FeasibleTravelTime returns how long a traveler at the given speed needs to
// cover the great-circle distance between two locations.
func FeasibleTravelTime(a, b Location, speedKmh float64) time.Duration {
	if speedKmh <= 0 {
		return time.Duration(math.MaxInt64)
	}
	hours := Distance(a, b) / speedKmh
	return time.Duration(hours * float64(time.Hour))
}

// TourTime returns the travel time of a deterministic greedy
// nearest-neighbour tour visiting every location, at the given speed. It is
// the (approximate) minimum time an adversary starting at one of the
// locations needs to reach all of them.
func TourTime(locations []Location, speedKmh float64) time.Duration {
	if len(locations) < 2 {
		return 0
	}
	if speedKmh <= 0 {
		return time.Duration(math.MaxInt64)
	}

	best := math.Inf(1)
	for start := range locations {
		if total := greedyTourKm(locations, start); total < best {
			best = total
		}
	}

	hours := best / speedKmh
	return time.Duration(hours * float64(time.Hour))
}

func greedyTourKm(locations []Location, start int) float64 {
	visited := make([]bool, len(locations))
	visited[start] = true
	current := start

	var total float64
	for range locations[1:] {
		next := -1
		nextDist := math.Inf(1)
		for i, loc := range locations {
			if visited[i] {
				continue
			}
			if d := Distance(locations[current], loc); d < nextDist {
				next, nextDist = i, d
			}
		}
		total += nextDist
		visited[next] = true
		current = next
	}
	return total
}

// Violation describes one failed constraint in a destination set.
type Violation struct {
	Kind    ViolationKind
	Detail  string
	Measure float64
}

// ViolationKind classifies a constraint violation.
type ViolationKind string

const (
	// SeparationViolation indicates two destinations below the minimum
	// pairwise separation.
	SeparationViolation ViolationKind = "separation"

	// ReachabilityViolation indicates the TTL is long enough for the
	// reference adversary to visit every destination before expiry.
	ReachabilityViolation ViolationKind = "reachability"
)

// Result is the outcome of ValidateConstraintSet.
type Result struct {
	OK         bool
	Violations []Violation
}

// ValidateConstraintSet checks a destination set against the policy for the
// given fragment TTL. Pure: same inputs, same result.
func ValidateConstraintSet(locations []Location, ttl time.Duration, policy Policy) Result {
	var violations []Violation

	for i := 0; i < len(locations); i++ {
		for j := i + 1; j < len(locations); j++ {
			d := Distance(locations[i], locations[j])
			if d < policy.MinSeparationKm {
				violations = append(violations, Violation{
					Kind:    SeparationViolation,
					Detail:  fmt.Sprintf("destinations %d and %d are %.0f km apart, minimum is %.0f km", i, j, d, policy.MinSeparationKm),
					Measure: d,
				})
			}
		}
	}

	if len(locations) >= 2 {
		tour := TourTime(locations, policy.AdversarySpeedKmh)
		if ttl >= tour {
			violations = append(violations, Violation{
				Kind:    ReachabilityViolation,
				Detail:  fmt.Sprintf("ttl %s covers the %s adversary tour of all destinations", ttl, tour),
				Measure: tour.Hours(),
			})
		}
	}

	return Result{OK: len(violations) == 0, Violations: violations}
}
