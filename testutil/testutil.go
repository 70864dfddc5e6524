package testutil

import (
	"crypto/rand"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/geo"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/transport"
)

// GlobalDestinationPool returns real-world destinations whose pairwise
// separation exceeds the default 1000 km policy.
func GlobalDestinationPool() []geo.Location {
	return []geo.Location{
		{Lat: 40.7128, Lon: -74.0060, Jurisdiction: "US"},
		{Lat: 51.5074, Lon: -0.1278, Jurisdiction: "GB"},
		{Lat: -33.8688, Lon: 151.2093, Jurisdiction: "AU"},
		{Lat: 35.6762, Lon: 139.6503, Jurisdiction: "JP"},
		{Lat: -23.5505, Lon: -46.6333, Jurisdiction: "BR"},
		{Lat: -26.2041, Lon: 28.0473, Jurisdiction: "ZA"},
	}
}

// ReconstructionSite returns the fixed reconstruction site used in tests.
func ReconstructionSite() geo.Location {
	return geo.Location{Lat: 47.3769, Lon: 8.5417, Jurisdiction: "CH"}
}

// RandomDocument returns size bytes of random content.
func RandomDocument(t *testing.T, size int) []byte {
	t.Helper()
	doc := make([]byte, size)
	_, err := rand.Read(doc)
	require.NoError(t, err)
	return doc
}

// CoordinatorOption customizes a test coordinator configuration.
type CoordinatorOption func(*transport.CoordinatorConfig)

// WithDestinationPool sets the destination pool.
func WithDestinationPool(pool []geo.Location) CoordinatorOption {
	return func(c *transport.CoordinatorConfig) { c.DestinationPool = pool }
}

// WithGracePeriod sets the deadline grace period.
func WithGracePeriod(d time.Duration) CoordinatorOption {
	return func(c *transport.CoordinatorConfig) { c.GracePeriod = d }
}

// WithArrivalRadius sets the arrival acceptance radius.
func WithArrivalRadius(km float64) CoordinatorOption {
	return func(c *transport.CoordinatorConfig) { c.ArrivalRadiusKm = km }
}

// WithGeoPolicy sets the placement policy.
func WithGeoPolicy(p geo.Policy) CoordinatorOption {
	return func(c *transport.CoordinatorConfig) { c.GeoPolicy = p }
}

// NewCoordinatorConfig returns a coordinator configuration for tests: the
// global destination pool, a generous grace period, and any overrides.
func NewCoordinatorConfig(opts ...CoordinatorOption) transport.CoordinatorConfig {
	config := transport.DefaultCoordinatorConfig()
	config.DestinationPool = GlobalDestinationPool()
	config.GracePeriod = time.Hour
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

// CarrierIDs returns n sequential carrier identifiers.
func CarrierIDs(n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, fmt.Sprintf("carrier-%d", i))
	}
	return ids
}
