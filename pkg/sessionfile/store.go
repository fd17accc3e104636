// Package sessionfile stores captured sessions in SQLite and replays
// them through virtual devices. Packets are serialized as CBOR blobs,
// one row per packet, so a stored run streams back in its original
// order.
package sessionfile

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/acqkit/acqkit-go/pkg/acq"
	"github.com/acqkit/acqkit-go/pkg/errs"
)

// Store is one capture database. Use ":memory:" for an in-memory
// store.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Run describes one stored capture.
type Run struct {
	ID          string
	Device      string
	Driver      string
	CreatedAt   time.Time
	PacketCount int
}

// NewStore opens or creates a capture database at the given path.
func NewStore(dbPath string) (*Store, error) {
	const op = "sessionfile.NewStore"
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errs.Wrap(errs.IO, op, err)
	}

	_, err = db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
	`)
	if err != nil {
		db.Close()
		return nil, errs.Wrap(errs.IO, op, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.IO, op, err)
	}
	return s, nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		device TEXT NOT NULL,
		driver TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS channels (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		type INTEGER NOT NULL,
		name TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (run_id, idx)
	);

	CREATE TABLE IF NOT EXISTS packets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		type INTEGER NOT NULL,
		body BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_packets_run_seq ON packets(run_id, seq);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// createRun inserts the run row and the device's channel layout.
func (s *Store) createRun(id string, dev *acq.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return errs.Wrap(errs.IO, "sessionfile.createRun", err)
	}
	defer tx.Rollback()

	driver := ""
	if drv := dev.Driver(); drv != nil {
		driver = drv.Name()
	}
	if _, err := tx.Exec(`
		INSERT INTO runs (id, device, driver, created_at)
		VALUES (?, ?, ?, ?)
	`, id, dev.String(), driver, time.Now().UTC()); err != nil {
		return errs.Wrap(errs.IO, "sessionfile.createRun", err)
	}

	for _, ch := range dev.Channels() {
		if _, err := tx.Exec(`
			INSERT INTO channels (run_id, idx, type, name, enabled)
			VALUES (?, ?, ?, ?, ?)
		`, id, ch.Index(), uint32(ch.Type()), ch.Name(), ch.Enabled()); err != nil {
			return errs.Wrap(errs.IO, "sessionfile.createRun", err)
		}
	}
	return tx.Commit()
}

// appendPacket stores one packet body under the run.
func (s *Store) appendPacket(runID string, seq int, ptype acq.PacketType, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO packets (run_id, seq, type, body)
		VALUES (?, ?, ?, ?)
	`, runID, seq, uint32(ptype), body)
	if err != nil {
		return errs.Wrap(errs.IO, "sessionfile.appendPacket", err)
	}
	return nil
}

// Runs lists the stored captures, newest first.
func (s *Store) Runs() ([]Run, error) {
	const op = "sessionfile.Runs"
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT r.id, r.device, r.driver, r.created_at,
		       (SELECT COUNT(*) FROM packets p WHERE p.run_id = r.id)
		FROM runs r
		ORDER BY r.created_at DESC
	`)
	if err != nil {
		return nil, errs.Wrap(errs.IO, op, err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var driver sql.NullString
		if err := rows.Scan(&run.ID, &run.Device, &driver, &run.CreatedAt, &run.PacketCount); err != nil {
			return nil, errs.Wrap(errs.IO, op, err)
		}
		run.Driver = driver.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Run returns one stored capture's record.
func (s *Store) Run(id string) (Run, error) {
	const op = "sessionfile.Run"
	s.mu.RLock()
	defer s.mu.RUnlock()

	var run Run
	var driver sql.NullString
	err := s.db.QueryRow(`
		SELECT r.id, r.device, r.driver, r.created_at,
		       (SELECT COUNT(*) FROM packets p WHERE p.run_id = r.id)
		FROM runs r WHERE r.id = ?
	`, id).Scan(&run.ID, &run.Device, &driver, &run.CreatedAt, &run.PacketCount)
	if err == sql.ErrNoRows {
		return Run{}, errs.Argf(op, "no run %q", id)
	}
	if err != nil {
		return Run{}, errs.Wrap(errs.IO, op, err)
	}
	run.Driver = driver.String
	return run, nil
}

// DeleteRun removes a stored capture and its packets.
func (s *Store) DeleteRun(id string) error {
	const op = "sessionfile.DeleteRun"
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap(errs.IO, op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Argf(op, "no run %q", id)
	}
	return nil
}

type storedChannel struct {
	index   int
	ctype   acq.ChannelType
	name    string
	enabled bool
}

func (s *Store) loadChannels(runID string) ([]storedChannel, error) {
	const op = "sessionfile.loadChannels"
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`
		SELECT idx, type, name, enabled FROM channels
		WHERE run_id = ? ORDER BY idx
	`, runID)
	if err != nil {
		return nil, errs.Wrap(errs.IO, op, err)
	}
	defer rows.Close()

	var channels []storedChannel
	for rows.Next() {
		var ch storedChannel
		var ctype uint32
		if err := rows.Scan(&ch.index, &ctype, &ch.name, &ch.enabled); err != nil {
			return nil, errs.Wrap(errs.IO, op, err)
		}
		ch.ctype = acq.ChannelType(ctype)
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (s *Store) loadPacketBodies(runID string) ([][]byte, error) {
	const op = "sessionfile.loadPacketBodies"
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`
		SELECT body FROM packets WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, errs.Wrap(errs.IO, op, err)
	}
	defer rows.Close()

	var bodies [][]byte
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, errs.Wrap(errs.IO, op, err)
		}
		bodies = append(bodies, body)
	}
	return bodies, rows.Err()
}
