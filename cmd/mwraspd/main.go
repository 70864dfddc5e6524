// Command mwraspd runs the defense platform daemon: the fragmentation
// engine, transport coordinator and protocol-order authenticator behind the
// HTTP API.
//
// # Configuration
//
// Configuration comes from a YAML file (--config) with flag overrides for
// the common knobs. Without a config file the stock defaults apply, which is
// enough for local development against the in-memory stores.
//
// # Forensic audit
//
// With a postgres section in the config, every authentication decision and
// fragment lifecycle event is persisted to the audit database. Without it
// the daemon still logs all decisions; nothing is silently swallowed.
//
// # Usage
//
//	go run ./cmd/mwraspd --config=config.yaml
//	go run ./cmd/mwraspd --listen=:8080 --metrics=:9090 --log-json
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/server"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/services"
)

func main() {
	var (
		configPath  = flag.String("config", "", "YAML config file path")
		listenAddr  = flag.String("listen", "", "HTTP listen address (overrides config)")
		metricsAddr = flag.String("metrics", "", "metrics listen address (overrides config)")
		logJSON     = flag.Bool("log-json", false, "log JSON instead of console output")
		logLevel    = flag.String("log-level", "", "log level (overrides config)")
		seed        = flag.Int64("seed", 0, "RNG seed for placement and evolution (overrides config)")
	)
	flag.Parse()

	config := services.DefaultConfig()
	if *configPath != "" {
		loaded, err := services.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			os.Exit(1)
		}
		config = loaded
	}
	if *listenAddr != "" {
		config.ListenAddr = *listenAddr
	}
	if *metricsAddr != "" {
		config.MetricsAddr = *metricsAddr
	}
	if *logJSON {
		config.LogJSON = true
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	if *seed != 0 {
		config.Seed = *seed
	}

	log := newLogger(config)

	opts := []services.PlatformOption{}
	if config.Postgres != nil {
		audit, err := services.NewPostgresAuditStore(config.Postgres)
		if err != nil {
			log.Fatal().Err(err).Msg("opening audit store")
		}
		opts = append(opts, services.WithAuditStore(audit))
		log.Info().Str("host", config.Postgres.Host).Msg("forensic audit store enabled")
	}

	platform := services.NewPlatform(config, clockwork.NewRealClock(), log, opts...)

	srv := server.New(server.Config{
		ListenAddr:               config.ListenAddr,
		MetricsAddr:              config.MetricsAddr,
		DrainDuration:            config.DrainDuration,
		GracefulShutdownDuration: config.GracefulShutdownDuration,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, log, platform.Metrics().Handler(), server.NewHandler(platform, log))

	srv.RunInBackground()
	log.Info().Str("listen", config.ListenAddr).Msg("mwraspd started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	srv.Shutdown()
	platform.Close()
}

func newLogger(config services.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil || config.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	if config.LogJSON {
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}
