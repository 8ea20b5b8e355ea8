package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLStore reads cameras and rules from the local SQLite database opened by
// package db.
type SQLStore struct {
	db     *sql.DB
	policy MissingPolicy
}

func NewSQLStore(db *sql.DB, policy MissingPolicy) *SQLStore {
	return &SQLStore{db: db, policy: policy}
}

func (s *SQLStore) RoomName(ctx context.Context, cameraID string) (string, error) {
	var room string
	err := s.db.QueryRowContext(ctx, "SELECT room_name FROM cameras WHERE id = ?", cameraID).Scan(&room)
	if errors.Is(err, sql.ErrNoRows) {
		return s.policy.resolve(cameraID)
	}
	if err != nil {
		return "", fmt.Errorf("query camera %q: %w", cameraID, err)
	}
	return room, nil
}

func (s *SQLStore) ApplicableRules(ctx context.Context, cameraID, userID string) (*RuleSet, error) {
	room, err := s.RoomName(ctx, cameraID)
	if err != nil {
		return nil, err
	}

	rules, err := s.visibleRules(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &RuleSet{Room: room, Rules: FilterApplicable(room, rules)}, nil
}

func (s *SQLStore) visibleRules(ctx context.Context, userID string) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, shared, owner_id
		FROM rules
		WHERE owner_id IS NULL OR owner_id = '' OR owner_id = ?
		ORDER BY rowid
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	index := make(map[string]int)
	for rows.Next() {
		var r Rule
		var shared int
		var owner sql.NullString
		if err := rows.Scan(&r.ID, &r.Text, &shared, &owner); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Shared = shared == 1
		r.OwnerID = owner.String
		index[r.ID] = len(rules)
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	roomRows, err := s.db.QueryContext(ctx, "SELECT rule_id, room_name FROM rule_rooms ORDER BY rule_id, room_name")
	if err != nil {
		return nil, fmt.Errorf("query rule rooms: %w", err)
	}
	defer roomRows.Close()

	for roomRows.Next() {
		var ruleID, room string
		if err := roomRows.Scan(&ruleID, &room); err != nil {
			return nil, fmt.Errorf("scan rule room: %w", err)
		}
		if i, ok := index[ruleID]; ok {
			rules[i].Rooms = append(rules[i].Rooms, room)
		}
	}
	return rules, roomRows.Err()
}

// UpsertCamera inserts or renames a camera.
func (s *SQLStore) UpsertCamera(ctx context.Context, c Camera) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cameras (id, room_name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET room_name = excluded.room_name
	`, c.ID, c.Room)
	return err
}

// UpsertRule inserts or replaces a rule and its room list.
func (s *SQLStore) UpsertRule(ctx context.Context, r Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rules (id, text, shared, owner_id) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET text = excluded.text, shared = excluded.shared, owner_id = excluded.owner_id
	`, r.ID, r.Text, boolToInt(r.Shared), nullString(r.OwnerID)); err != nil {
		return fmt.Errorf("upsert rule %q: %w", r.ID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM rule_rooms WHERE rule_id = ?", r.ID); err != nil {
		return err
	}
	for _, room := range r.Rooms {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO rule_rooms (rule_id, room_name) VALUES (?, ?)", r.ID, room); err != nil {
			return fmt.Errorf("insert room %q for rule %q: %w", room, r.ID, err)
		}
	}

	return tx.Commit()
}

// ImportCatalog copies a static catalog into the database.
func (s *SQLStore) ImportCatalog(ctx context.Context, cat Catalog) error {
	cameras, rules, err := cat.Flatten()
	if err != nil {
		return err
	}

	for _, c := range cameras {
		if err := s.UpsertCamera(ctx, c); err != nil {
			return fmt.Errorf("import camera %q: %w", c.ID, err)
		}
	}
	for _, r := range rules {
		if err := s.UpsertRule(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
