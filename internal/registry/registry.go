// Package registry is the persisted host registry: a sqlite store of
// HostRecords. The orchestrator reads records and writes back check
// results; everything else is owned by the front end.
package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/andrej220/fleetup/internal/fleet"
)

// ErrNotFound is returned when a host id has no record.
var ErrNotFound = errors.New("host not found")

const schema = `
CREATE TABLE IF NOT EXISTS hosts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	addr TEXT,
	port INTEGER DEFAULT 22,
	user TEXT,
	auth_method TEXT CHECK(auth_method IN ('key','password')) DEFAULT 'key',
	key_path TEXT,
	password_enc BLOB,
	distro TEXT,
	pending_updates INTEGER,
	last_check TEXT
);`

// Store is a sqlite-backed host registry.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the registry at path. Use ":memory:"
// for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const hostColumns = `id, name, COALESCE(addr,''), COALESCE(port,22), COALESCE(user,''),
	COALESCE(auth_method,'key'), COALESCE(key_path,''), COALESCE(distro,''),
	pending_updates, last_check`

func scanHost(row interface{ Scan(...any) error }) (fleet.HostRecord, error) {
	var h fleet.HostRecord
	var pending sql.NullInt64
	var lastCheck sql.NullString
	err := row.Scan(&h.ID, &h.Name, &h.Addr, &h.Port, &h.User,
		&h.AuthMethod, &h.KeyPath, &h.Distro, &pending, &lastCheck)
	if err != nil {
		return fleet.HostRecord{}, err
	}
	if pending.Valid {
		n := int(pending.Int64)
		h.PendingUpdates = &n
	}
	if lastCheck.Valid && lastCheck.String != "" {
		if ts, perr := time.Parse(time.RFC3339, lastCheck.String); perr == nil {
			h.LastCheck = &ts
		}
	}
	return h, nil
}

// ListHosts returns every host, ordered by name.
func (s *Store) ListHosts() ([]fleet.HostRecord, error) {
	rows, err := s.db.Query(`SELECT ` + hostColumns + ` FROM hosts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []fleet.HostRecord
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, h)
	}
	return list, rows.Err()
}

// GetHost returns one host by id.
func (s *Store) GetHost(id int64) (fleet.HostRecord, error) {
	row := s.db.QueryRow(`SELECT `+hostColumns+` FROM hosts WHERE id = ?`, id)
	h, err := scanHost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fleet.HostRecord{}, ErrNotFound
	}
	return h, err
}

// GetHosts returns the records for ids, preserving only existing hosts.
func (s *Store) GetHosts(ids []int64) ([]fleet.HostRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	q := `SELECT ` + hostColumns + ` FROM hosts WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []fleet.HostRecord
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, h)
	}
	return list, rows.Err()
}

// SaveHost inserts or updates a host, keyed by name. The password blob is
// untouched on update; use SetHostPassword for that.
func (s *Store) SaveHost(h *fleet.HostRecord) error {
	if err := h.Validate(); err != nil {
		return fmt.Errorf("invalid host record: %w", err)
	}
	// the column CHECK rejects '', so the default must be applied here;
	// the schema-level DEFAULT only covers INSERTs omitting the column
	if h.AuthMethod == "" {
		h.AuthMethod = fleet.AuthKey
	}
	var existing int64
	err := s.db.QueryRow(`SELECT id FROM hosts WHERE name = ?`, h.Name).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, ierr := s.db.Exec(
			`INSERT INTO hosts (name, addr, port, user, auth_method, key_path, distro) VALUES (?,?,?,?,?,?,?)`,
			h.Name, h.Addr, h.Port, h.User, string(h.AuthMethod), h.KeyPath, h.Distro)
		if ierr != nil {
			return ierr
		}
		h.ID, _ = res.LastInsertId()
		return nil
	case err != nil:
		return err
	default:
		_, uerr := s.db.Exec(
			`UPDATE hosts SET addr=?, port=?, user=?, auth_method=?, key_path=?, distro=? WHERE id=?`,
			h.Addr, h.Port, h.User, string(h.AuthMethod), h.KeyPath, h.Distro, existing)
		h.ID = existing
		return uerr
	}
}

// DeleteHost removes a host and its stored credential.
func (s *Store) DeleteHost(id int64) error {
	_, err := s.db.Exec(`DELETE FROM hosts WHERE id = ?`, id)
	return err
}

// SetHostPassword stores the encrypted password blob for a host.
func (s *Store) SetHostPassword(id int64, enc []byte) error {
	res, err := s.db.Exec(`UPDATE hosts SET password_enc = ? WHERE id = ?`, enc, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// HostPassword returns the encrypted password blob, or nil when none is
// stored.
func (s *Store) HostPassword(id int64) ([]byte, error) {
	var enc []byte
	err := s.db.QueryRow(`SELECT password_enc FROM hosts WHERE id = ?`, id).Scan(&enc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return enc, err
}

// RecordCheckResult persists the outcome of a check-class operation:
// pending update count (nil clears it) and the check timestamp.
func (s *Store) RecordCheckResult(id int64, ts time.Time, count *int) error {
	var pending any
	if count != nil {
		pending = *count
	}
	res, err := s.db.Exec(`UPDATE hosts SET pending_updates = ?, last_check = ? WHERE id = ?`,
		pending, ts.UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDistro persists the most recently detected family for display.
func (s *Store) RecordDistro(id int64, family string) error {
	_, err := s.db.Exec(`UPDATE hosts SET distro = ? WHERE id = ?`, family, id)
	return err
}
