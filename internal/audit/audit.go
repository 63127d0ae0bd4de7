// Package audit implements a best-effort security-event sink: admission
// rejections and blacklisted-import hits, not execution results (the
// gateway explicitly does not persist runs across restarts). Adapted
// from the teacher's internal/database, which wired pgx for a different
// purpose; here the pool backs an append-only audit log instead.
package audit

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	pingTimeout   = 10 * time.Second
	recordTimeout = 2 * time.Second
)

// EventKind distinguishes the two security events the gateway records.
type EventKind string

const (
	EventRateLimited       EventKind = "rate_limited"
	EventBlacklistedImport EventKind = "blacklisted_import"
)

// Sink records security events, best-effort. A Sink built with an empty
// database URL is a no-op: every Record call returns immediately,
// letting deployments run without Postgres configured at all.
type Sink struct {
	pool *pgxpool.Pool
	log  *zerolog.Logger
}

// New opens a connection pool against databaseURL and ensures the audit
// table exists. An empty databaseURL yields a working no-op Sink rather
// than an error, since AuditDatabaseURL is optional configuration.
func New(ctx context.Context, databaseURL string, log *zerolog.Logger) (*Sink, error) {
	if databaseURL == "" {
		return &Sink{log: log}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse audit database config: %w", err)
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "execgateway"
	poolConfig.ConnConfig.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
		return dialer.DialContext(ctx, network, addr)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	if err := ensureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().Msg("audit database connection established")
	return &Sink{pool: pool, log: log}, nil
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS security_audit_events (
			id          BIGSERIAL PRIMARY KEY,
			kind        TEXT NOT NULL,
			client_id   TEXT NOT NULL,
			detail      TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure audit schema: %w", err)
	}
	return nil
}

// Record inserts one event, best-effort: failures are logged, never
// propagated, since a broken audit sink must not affect request
// handling.
func (s *Sink) Record(kind EventKind, clientID, detail string) {
	if s.pool == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		_, err := s.pool.Exec(ctx,
			`INSERT INTO security_audit_events (kind, client_id, detail) VALUES ($1, $2, $3)`,
			string(kind), clientID, detail)
		if err != nil {
			s.log.Warn().Err(err).Str("kind", string(kind)).Msg("failed to record audit event")
		}
	}()
}

// RecordRateLimited logs an admission rejection for clientID.
func (s *Sink) RecordRateLimited(clientID string) {
	s.Record(EventRateLimited, clientID, "")
}

// RecordBlacklistedImport logs a safety-filter hit for clientID.
func (s *Sink) RecordBlacklistedImport(clientID, importName string) {
	s.Record(EventBlacklistedImport, clientID, importName)
}

func (s *Sink) Close() error {
	if s.pool == nil {
		return nil
	}
	s.log.Info().Msg("closing audit database connection pool")
	s.pool.Close()
	return nil
}
