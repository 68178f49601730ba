package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/proofmesh/pkg/models"
)

// PostgresStore is the optional admission audit sink. The node is fully
// functional without it; every method tolerates a nil receiver so callers
// never have to branch on whether auditing is configured.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for admission auditing")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes the schema.sql file
func (s *PostgresStore) InitSchema() error {
	if s == nil || s.pool == nil {
		return nil
	}

	schemaBytes, err := os.ReadFile("internal/db/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %v", err)
	}

	_, err = s.pool.Exec(context.Background(), string(schemaBytes))
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("Admission audit schema initialized")
	return nil
}

// SaveAdmission appends one admission decision to the audit trail.
func (s *PostgresStore) SaveAdmission(ctx context.Context, ev models.GossipEvent) error {
	if s == nil || s.pool == nil {
		return nil
	}

	sql := `
		INSERT INTO proof_admissions
		(event_id, source, outcome, key_id, value, minted_ts, seed, content_hash, log_work)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	// Unsigned 64-bit values travel as decimal text; BIGINT is signed.
	_, err := s.pool.Exec(ctx, sql,
		ev.EventID,
		ev.Source,
		ev.Outcome,
		strconv.FormatUint(ev.Record.Key, 10),
		strconv.FormatUint(ev.Record.Value, 10),
		strconv.FormatUint(ev.Record.Timestamp, 10),
		strconv.FormatUint(ev.Record.Seed, 10),
		strconv.FormatUint(ev.Record.Hash, 10),
		ev.Record.LogWork,
	)
	if err != nil {
		return fmt.Errorf("failed to insert proof admission: %v", err)
	}
	return nil
}

// RecentAdmissions returns the latest audit rows for the admin API, newest
// first, capped at limit.
func (s *PostgresStore) RecentAdmissions(ctx context.Context, limit int) ([]models.GossipEvent, error) {
	if s == nil || s.pool == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	sql := `
		SELECT event_id, source, outcome, key_id, value, minted_ts, seed, content_hash, log_work,
		       EXTRACT(EPOCH FROM observed_at)::BIGINT
		FROM proof_admissions
		ORDER BY observed_at DESC
		LIMIT $1;
	`
	rows, err := s.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query proof admissions: %v", err)
	}
	defer rows.Close()

	var out []models.GossipEvent
	for rows.Next() {
		var ev models.GossipEvent
		var key, value, ts, seed, hash string
		ev.Type = "admission"
		if err := rows.Scan(&ev.EventID, &ev.Source, &ev.Outcome,
			&key, &value, &ts, &seed, &hash, &ev.Record.LogWork,
			&ev.ObservedAt); err != nil {
			return nil, err
		}
		ev.Record.Key, _ = strconv.ParseUint(key, 10, 64)
		ev.Record.Value, _ = strconv.ParseUint(value, 10, 64)
		ev.Record.Timestamp, _ = strconv.ParseUint(ts, 10, 64)
		ev.Record.Seed, _ = strconv.ParseUint(seed, 10, 64)
		ev.Record.Hash, _ = strconv.ParseUint(hash, 10, 64)
		out = append(out, ev)
	}
	return out, rows.Err()
}
