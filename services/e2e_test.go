package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/fragment"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/protoauth"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/testutil"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/transport"
)

var testSite = testutil.ReconstructionSite()

// recordingAudit is an in-memory AuditStore for tests.
type recordingAudit struct {
	mu         sync.Mutex
	authEvents []protoauth.AuthEvent
	fragEvents []FragmentEvent
	closed     bool
}

func (r *recordingAudit) RecordAuthEvent(_ context.Context, event protoauth.AuthEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authEvents = append(r.authEvents, event)
	return nil
}

func (r *recordingAudit) RecordFragmentEvent(_ context.Context, event FragmentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fragEvents = append(r.fragEvents, event)
	return nil
}

func (r *recordingAudit) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingAudit) fragmentEvents(kind string) []FragmentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []FragmentEvent
	for _, ev := range r.fragEvents {
		if ev.Event == kind {
			out = append(out, ev)
		}
	}
	return out
}

type platformFixture struct {
	clock    clockwork.FakeClock
	platform *Platform
	audit    *recordingAudit
}

func testPlatform(t *testing.T) *platformFixture {
	t.Helper()

	config := DefaultConfig()
	config.Seed = 42
	config.Transport = testutil.NewCoordinatorConfig()

	clock := clockwork.NewFakeClock()
	audit := &recordingAudit{}
	platform := NewPlatform(config, clock, zerolog.Nop(), WithAuditStore(audit))
	t.Cleanup(platform.Close)

	for _, id := range testutil.CarrierIDs(5) {
		_, err := platform.RegisterAgent(id, testSite, 800)
		require.NoError(t, err)
	}

	return &platformFixture{clock: clock, platform: platform, audit: audit}
}

func (f *platformFixture) candidates() []string {
	return testutil.CarrierIDs(5)
}

// deliver runs the full depart/arrive sequence for one assignment with the
// carrier's genuine protocol order.
func (f *platformFixture) deliver(t *testing.T, missionID uuid.UUID, fragID uuid.UUID, agentID string) transport.MissionInfo {
	t.Helper()

	dest, assigned, err := f.platform.FragmentDestination(fragID)
	require.NoError(t, err)
	require.True(t, assigned)

	_, err = f.platform.AdvanceMission(missionID, agentID, transport.Event{Type: transport.EventDepart})
	require.NoError(t, err)

	order, err := f.platform.ExpectedOrder(agentID, f.platform.config.Transport.GatewayID, protoauth.ContextNormal)
	require.NoError(t, err)

	info, err := f.platform.AdvanceMission(missionID, agentID, transport.Event{
		Type:             transport.EventArrive,
		ReportedLocation: dest,
		PresentedOrder:   order,
		Context:          protoauth.ContextNormal,
	})
	require.NoError(t, err)
	return info
}

func assignmentsOf(t *testing.T, info transport.MissionInfo) map[uuid.UUID]string {
	t.Helper()
	out := make(map[uuid.UUID]string, len(info.Assignments))
	for fragStr, agentID := range info.Assignments {
		fragID, err := uuid.Parse(fragStr)
		require.NoError(t, err)
		out[fragID] = agentID
	}
	return out
}

func TestEndToEndDeliveryAndReconstruction(t *testing.T) {
	f := testPlatform(t)

	document := testutil.RandomDocument(t, 10*1024)

	set, err := f.platform.CreateFragmentSet(document, 3, 5, 5*time.Second)
	require.NoError(t, err)

	mission, err := f.platform.CreateMission(set.OriginID, f.candidates(), testSite)
	require.NoError(t, err)

	var final transport.MissionInfo
	delivered := 0
	for fragID, agentID := range assignmentsOf(t, mission) {
		final = f.deliver(t, mission.ID, fragID, agentID)
		delivered++
		if delivered == set.RequiredCount {
			break
		}
	}
	assert.Equal(t, transport.MissionCompleted, final.Status)

	recovered, err := f.platform.Reconstruct(set.OriginID)
	require.NoError(t, err)
	assert.Equal(t, document, recovered)

	// The forensic trail saw the set creation, the three accepted handoffs
	// and the consumption.
	require.Len(t, f.audit.fragmentEvents("created"), 1)
	require.Len(t, f.audit.fragmentEvents("consumed"), 1)
	f.audit.mu.Lock()
	authN := len(f.audit.authEvents)
	for _, ev := range f.audit.authEvents {
		assert.True(t, ev.Accepted)
	}
	f.audit.mu.Unlock()
	assert.Equal(t, 3, authN)

	m := f.platform.Metrics()
	assert.Equal(t, 1.0, promtest.ToFloat64(m.FragmentSets))
	assert.Equal(t, 5.0, promtest.ToFloat64(m.FragmentsCreated))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Reconstructions.WithLabelValues("ok")))
	assert.Equal(t, 3.0, promtest.ToFloat64(m.AuthDecisions.WithLabelValues("accepted")))
}

func TestEndToEndSurvivesCompromisedCarriers(t *testing.T) {
	f := testPlatform(t)

	document := []byte("launch coordinates are stored nowhere whole")
	set, err := f.platform.CreateFragmentSet(document, 3, 5, 5*time.Second)
	require.NoError(t, err)

	mission, err := f.platform.CreateMission(set.OriginID, f.candidates(), testSite)
	require.NoError(t, err)
	assignments := assignmentsOf(t, mission)

	// Two carriers go down; their fragments are force-expired.
	compromised := 0
	skip := make(map[uuid.UUID]bool)
	for fragID, agentID := range assignments {
		_, err := f.platform.AdvanceMission(mission.ID, agentID, transport.Event{Type: transport.EventCompromise})
		require.NoError(t, err)
		skip[fragID] = true
		compromised++
		if compromised == 2 {
			break
		}
	}
	require.Len(t, f.audit.fragmentEvents("compromised"), 2)

	var final transport.MissionInfo
	for fragID, agentID := range assignments {
		if skip[fragID] {
			continue
		}
		final = f.deliver(t, mission.ID, fragID, agentID)
	}
	assert.Equal(t, transport.MissionCompleted, final.Status)

	recovered, err := f.platform.Reconstruct(set.OriginID)
	require.NoError(t, err)
	assert.Equal(t, document, recovered)
}

func TestReconstructionAfterExpiryIsUnrecoverable(t *testing.T) {
	f := testPlatform(t)

	set, err := f.platform.CreateFragmentSet([]byte("short-lived payload"), 3, 5, 5*time.Second)
	require.NoError(t, err)

	f.clock.BlockUntil(5)
	f.clock.Advance(6 * time.Second)

	require.Eventually(t, func() bool {
		status, err := f.platform.FragmentSetStatus(set.OriginID)
		return err == nil && status.AvailableCount == 0
	}, 2*time.Second, 5*time.Millisecond)

	_, err = f.platform.Reconstruct(set.OriginID)
	require.ErrorIs(t, err, fragment.ErrUnrecoverable)

	m := f.platform.Metrics()
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Reconstructions.WithLabelValues("unrecoverable")))
}

func TestRegisterAgentValidation(t *testing.T) {
	f := testPlatform(t)

	_, err := f.platform.RegisterAgent("", testSite, 800)
	require.Error(t, err)

	_, err = f.platform.RegisterAgent("carrier-0", testSite, 800)
	require.Error(t, err, "duplicate registration must fail")

	assert.Len(t, f.platform.Agents(), 5)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	raw := `
listen_addr: ":9999"
log_json: true
seed: 7
fragmentation:
  extra_overlap: 0.25
transport:
  arrival_radius_km: 10
  gateway_id: "gw-1"
  destination_pool:
    - {lat: 40.7, lon: -74.0, jurisdiction: US}
    - {lat: 51.5, lon: -0.1, jurisdiction: GB}
authentication:
  threshold: 0.9
postgres:
  host: localhost
  port: 5432
  user: mwrasp
  password: secret
  database: audit
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", config.ListenAddr)
	assert.True(t, config.LogJSON)
	assert.Equal(t, int64(7), config.Seed)
	assert.Equal(t, 0.25, config.Fragmentation.ExtraOverlap)
	assert.Equal(t, 10.0, config.Transport.ArrivalRadiusKm)
	assert.Equal(t, "gw-1", config.Transport.GatewayID)
	assert.Len(t, config.Transport.DestinationPool, 2)
	assert.Equal(t, 0.9, config.Authentication.Threshold)
	require.NotNil(t, config.Postgres)
	assert.Contains(t, config.Postgres.ConnectionString(), "dbname=audit")

	// Untouched keys keep their defaults.
	assert.Equal(t, ":9090", config.MetricsAddr)
	assert.Equal(t, protoauth.DefaultConfig().EvolutionWindow, config.Authentication.EvolutionWindow)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
