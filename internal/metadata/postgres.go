package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgQuerier is the subset of *pgxpool.Pool used by PostgresStore.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS cameras (
	id TEXT PRIMARY KEY,
	room_name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rules (
	id TEXT PRIMARY KEY,
	position BIGSERIAL,
	text TEXT NOT NULL,
	shared BOOLEAN NOT NULL DEFAULT FALSE,
	owner_id TEXT
);
CREATE TABLE IF NOT EXISTS rule_rooms (
	rule_id TEXT NOT NULL REFERENCES rules(id) ON DELETE CASCADE,
	room_name TEXT NOT NULL,
	PRIMARY KEY (rule_id, room_name)
);`

// PostgresStore reads cameras and rules from a shared Postgres database.
type PostgresStore struct {
	pool   *pgxpool.Pool
	q      pgQuerier
	policy MissingPolicy
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, policy MissingPolicy) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, q: pool, policy: policy}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the metadata tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create metadata schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) RoomName(ctx context.Context, cameraID string) (string, error) {
	var room string
	err := s.q.QueryRow(ctx, "SELECT room_name FROM cameras WHERE id = $1", cameraID).Scan(&room)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.policy.resolve(cameraID)
	}
	if err != nil {
		return "", fmt.Errorf("query camera %q: %w", cameraID, err)
	}
	return room, nil
}

func (s *PostgresStore) ApplicableRules(ctx context.Context, cameraID, userID string) (*RuleSet, error) {
	room, err := s.RoomName(ctx, cameraID)
	if err != nil {
		return nil, err
	}

	rows, err := s.q.Query(ctx, `
		SELECT r.id, r.text, r.shared, COALESCE(r.owner_id, ''),
			COALESCE(array_agg(rr.room_name ORDER BY rr.room_name) FILTER (WHERE rr.room_name IS NOT NULL), '{}')
		FROM rules r
		LEFT JOIN rule_rooms rr ON rr.rule_id = r.id
		WHERE r.owner_id IS NULL OR r.owner_id = '' OR r.owner_id = $1
		GROUP BY r.id
		ORDER BY r.position`, userID)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.Text, &r.Shared, &r.OwnerID, &r.Rooms); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &RuleSet{Room: room, Rules: FilterApplicable(room, rules)}, nil
}

// ImportCatalog upserts the cameras and rules of a static catalog.
func (s *PostgresStore) ImportCatalog(ctx context.Context, cat Catalog) error {
	cameras, rules, err := cat.Flatten()
	if err != nil {
		return err
	}

	for _, c := range cameras {
		if _, err := s.q.Exec(ctx, `
			INSERT INTO cameras (id, room_name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET room_name = EXCLUDED.room_name`, c.ID, c.Room); err != nil {
			return fmt.Errorf("import camera %q: %w", c.ID, err)
		}
	}

	for _, r := range rules {
		if _, err := s.q.Exec(ctx, `
			INSERT INTO rules (id, text, shared, owner_id) VALUES ($1, $2, $3, NULLIF($4, ''))
			ON CONFLICT (id) DO UPDATE SET text = EXCLUDED.text, shared = EXCLUDED.shared, owner_id = EXCLUDED.owner_id`,
			r.ID, r.Text, r.Shared, r.OwnerID); err != nil {
			return fmt.Errorf("import rule %q: %w", r.ID, err)
		}
		if _, err := s.q.Exec(ctx, "DELETE FROM rule_rooms WHERE rule_id = $1", r.ID); err != nil {
			return fmt.Errorf("import rule %q: %w", r.ID, err)
		}
		for _, room := range r.Rooms {
			if _, err := s.q.Exec(ctx, `
				INSERT INTO rule_rooms (rule_id, room_name) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, r.ID, room); err != nil {
				return fmt.Errorf("import room %q for rule %q: %w", room, r.ID, err)
			}
		}
	}
	return nil
}
