// Command demo runs a scripted end-to-end pass through the platform in one
// process: fragment a document, open a transport mission, walk every carrier
// through depart, authenticated handoff and delivery, then reconstruct the
// document at the site and verify it byte for byte.
//
//	go run ./cmd/demo -k 3 -n 5 -ttl 30s
package main

import (
	"bytes"
	"crypto/rand"
	"flag"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/geo"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/protoauth"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/services"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/transport"
)

var demoPool = []geo.Location{
	{Lat: 40.7128, Lon: -74.0060, Jurisdiction: "US"},
	{Lat: 51.5074, Lon: -0.1278, Jurisdiction: "GB"},
	{Lat: -33.8688, Lon: 151.2093, Jurisdiction: "AU"},
	{Lat: 35.6762, Lon: 139.6503, Jurisdiction: "JP"},
	{Lat: -23.5505, Lon: -46.6333, Jurisdiction: "BR"},
	{Lat: -26.2041, Lon: 28.0473, Jurisdiction: "ZA"},
}

var demoSite = geo.Location{Lat: 47.3769, Lon: 8.5417, Jurisdiction: "CH"}

func main() {
	var (
		k    = flag.Int("k", 3, "fragments required for reconstruction")
		n    = flag.Int("n", 5, "total fragments")
		ttl  = flag.Duration("ttl", 30*time.Second, "fragment time to live")
		size = flag.Int("size", 10*1024, "document size in bytes")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	config := services.DefaultConfig()
	config.Transport.DestinationPool = demoPool
	config.Transport.GracePeriod = time.Hour

	platform := services.NewPlatform(config, clockwork.NewRealClock(), log)
	defer platform.Close()

	candidates := make([]string, 0, *n)
	for i := 0; i < *n; i++ {
		id := "carrier-" + string(rune('a'+i))
		if _, err := platform.RegisterAgent(id, demoSite, 800); err != nil {
			log.Fatal().Err(err).Msg("registering agent")
		}
		candidates = append(candidates, id)
	}

	document := make([]byte, *size)
	if _, err := rand.Read(document); err != nil {
		log.Fatal().Err(err).Msg("generating document")
	}

	set, err := platform.CreateFragmentSet(document, *k, *n, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("fragmenting document")
	}
	log.Info().Stringer("origin_id", set.OriginID).Int("k", *k).Int("n", *n).Msg("document fragmented")

	mission, err := platform.CreateMission(set.OriginID, candidates, demoSite)
	if err != nil {
		log.Fatal().Err(err).Msg("creating mission")
	}
	log.Info().Stringer("mission_id", mission.ID).Time("deadline", mission.Deadline).Msg("mission opened")

	for fragStr, agentID := range mission.Assignments {
		fragID, err := uuid.Parse(fragStr)
		if err != nil {
			log.Fatal().Err(err).Msg("parsing assignment")
		}

		dest, _, err := platform.FragmentDestination(fragID)
		if err != nil {
			log.Fatal().Err(err).Msg("resolving destination")
		}

		if _, err := platform.AdvanceMission(mission.ID, agentID, transport.Event{Type: transport.EventDepart}); err != nil {
			log.Fatal().Err(err).Str("agent_id", agentID).Msg("depart")
		}

		order, err := platform.ExpectedOrder(agentID, config.Transport.GatewayID, protoauth.ContextNormal)
		if err != nil {
			log.Fatal().Err(err).Msg("fetching expected order")
		}

		info, err := platform.AdvanceMission(mission.ID, agentID, transport.Event{
			Type:             transport.EventArrive,
			ReportedLocation: dest,
			PresentedOrder:   order,
			Context:          protoauth.ContextNormal,
		})
		if err != nil {
			log.Fatal().Err(err).Str("agent_id", agentID).Msg("arrive")
		}
		log.Info().
			Str("agent_id", agentID).
			Int("delivered", info.DeliveredCount).
			Str("status", string(info.Status)).
			Msg("fragment delivered")

		if info.Status == transport.MissionCompleted {
			break
		}
	}

	recovered, err := platform.Reconstruct(set.OriginID)
	if err != nil {
		log.Fatal().Err(err).Msg("reconstructing")
	}
	if !bytes.Equal(recovered, document) {
		log.Fatal().Msg("reconstructed document does not match the original")
	}
	log.Info().Int("bytes", len(recovered)).Msg("document reconstructed and verified")
}
