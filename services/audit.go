package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/protoauth"
)

// FragmentEvent is the forensic record of one fragment lifecycle event.
type FragmentEvent struct {
	OriginID   uuid.UUID `json:"origin_id"`
	FragmentID uuid.UUID `json:"fragment_id,omitempty"`
	Event      string    `json:"event"` // created, expired, consumed, compromised, cancelled
	Detail     string    `json:"detail,omitempty"`
	At         time.Time `json:"at"`
}

// AuditStore is the forensic trail: every authentication decision and every
// fragment lifecycle event lands here when a store is configured.
type AuditStore interface {
	protoauth.AuditSink
	RecordFragmentEvent(ctx context.Context, event FragmentEvent) error
	Close() error
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// PostgresAuditStore implements AuditStore with PostgreSQL persistence.
type PostgresAuditStore struct {
	db *sql.DB
}

// NewPostgresAuditStore opens the audit database and runs migrations.
func NewPostgresAuditStore(config *PostgresConfig) (*PostgresAuditStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresAuditStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresAuditStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS auth_events (
		id BIGSERIAL PRIMARY KEY,
		agent_a VARCHAR(128) NOT NULL,
		agent_b VARCHAR(128) NOT NULL,
		context VARCHAR(32) NOT NULL,
		presented TEXT NOT NULL,
		accepted BOOLEAN NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		anomaly TEXT,
		occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
		recorded_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_auth_events_pair ON auth_events(agent_a, agent_b);
	CREATE INDEX IF NOT EXISTS idx_auth_events_occurred ON auth_events(occurred_at);

	CREATE TABLE IF NOT EXISTS fragment_events (
		id BIGSERIAL PRIMARY KEY,
		origin_id UUID NOT NULL,
		fragment_id UUID,
		event VARCHAR(32) NOT NULL,
		detail TEXT,
		occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
		recorded_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_fragment_events_origin ON fragment_events(origin_id);
	CREATE INDEX IF NOT EXISTS idx_fragment_events_occurred ON fragment_events(occurred_at);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// RecordAuthEvent persists one authentication decision.
func (s *PostgresAuditStore) RecordAuthEvent(ctx context.Context, event protoauth.AuthEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO auth_events
		(agent_a, agent_b, context, presented, accepted, confidence, anomaly, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.AgentA,
		event.AgentB,
		string(event.Context),
		strings.Join(event.Presented, ","),
		event.Accepted,
		event.Confidence,
		event.Anomaly,
		event.At,
	)
	return err
}

// RecordFragmentEvent persists one fragment lifecycle event.
func (s *PostgresAuditStore) RecordFragmentEvent(ctx context.Context, event FragmentEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO fragment_events
		(origin_id, fragment_id, event, detail, occurred_at)
	VALUES ($1, $2, $3, $4, $5)
	`

	var fragmentID interface{}
	if event.FragmentID != (uuid.UUID{}) {
		fragmentID = event.FragmentID.String()
	}

	_, err := s.db.ExecContext(ctx, query,
		event.OriginID.String(),
		fragmentID,
		event.Event,
		event.Detail,
		event.At,
	)
	return err
}

// Close closes the database connection.
func (s *PostgresAuditStore) Close() error {
	return s.db.Close()
}
