package territory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/terraclaim/internal/geo"
)

// DB is the sqlite-backed territory store.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the territory database at path and runs
// any pending schema migrations. Use ":memory:" for an ephemeral store.
func NewDB(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open territory db: %w", err)
	}

	db := &DB{sqldb}
	if err := db.MigrateUp(); err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

// ActiveTerritories returns all territories with the active flag set. The
// returned boundaries are fresh copies safe to retain across checks.
func (db *DB) ActiveTerritories(ctx context.Context) ([]Territory, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, owner_id, boundary, area_m2, active, claimed_at
		FROM territories WHERE active = 1 ORDER BY claimed_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query territories: %w", err)
	}
	defer rows.Close()

	var out []Territory
	for rows.Next() {
		t, err := scanTerritory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID returns one territory, or sql.ErrNoRows if absent.
func (db *DB) GetByID(ctx context.Context, id string) (Territory, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, owner_id, boundary, area_m2, active, claimed_at
		FROM territories WHERE id = ?`, id)
	return scanTerritory(row)
}

// Insert persists a new territory record. A missing ID is assigned here so
// callers can hand over a finalized claim directly.
func (db *DB) Insert(ctx context.Context, t Territory) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.ClaimedAt.IsZero() {
		t.ClaimedAt = time.Now().UTC()
	}

	boundary, err := json.Marshal(t.Boundary)
	if err != nil {
		return fmt.Errorf("failed to encode boundary: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO territories (id, owner_id, boundary, area_m2, active, claimed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, string(boundary), t.AreaM2, boolToInt(t.Active), t.ClaimedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert territory: %w", err)
	}
	return nil
}

// Deactivate clears the active flag on a territory.
func (db *DB) Deactivate(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `UPDATE territories SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate territory: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTerritory(row rowScanner) (Territory, error) {
	var t Territory
	var boundary string
	var active int
	var claimedAt string
	if err := row.Scan(&t.ID, &t.OwnerID, &boundary, &t.AreaM2, &active, &claimedAt); err != nil {
		return Territory{}, err
	}
	if err := json.Unmarshal([]byte(boundary), &t.Boundary); err != nil {
		return Territory{}, fmt.Errorf("failed to decode boundary for %s: %w", t.ID, err)
	}
	if t.Boundary == nil {
		t.Boundary = geo.Ring{}
	}
	t.Active = active != 0
	ts, err := time.Parse(time.RFC3339Nano, claimedAt)
	if err != nil {
		return Territory{}, fmt.Errorf("failed to parse claimed_at for %s: %w", t.ID, err)
	}
	t.ClaimedAt = ts
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
