package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Schema for the circled service store.
const schema = `
CREATE TABLE IF NOT EXISTS health_snapshots (
    day             TEXT PRIMARY KEY,
    steps           INTEGER NOT NULL,
    distance_m      REAL NOT NULL,
    sleep_hours     REAL NOT NULL,
    week_steps      INTEGER NOT NULL DEFAULT 0,
    month_steps     INTEGER NOT NULL DEFAULT 0,
    updated_at_ns   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS permission_records (
    type            TEXT PRIMARY KEY,
    status          TEXT NOT NULL,
    last_checked_ns INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS consent_log (
    id              TEXT PRIMARY KEY,
    permission_type TEXT NOT NULL,
    previous_status TEXT,
    current_status  TEXT NOT NULL,
    timestamp_ns    INTEGER NOT NULL,
    reason          TEXT NOT NULL,
    user_action     TEXT NOT NULL,
    app_version     TEXT NOT NULL,
    device_info     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_consent_type_time ON consent_log(permission_type, timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_consent_time ON consent_log(timestamp_ns);

CREATE TABLE IF NOT EXISTS proofs (
    id              TEXT PRIMARY KEY,
    owner_user_id   TEXT NOT NULL,
    entity_kind     TEXT,
    entity_id       TEXT,
    timestamp_ns    INTEGER NOT NULL,
    verified        INTEGER NOT NULL,
    confidence      REAL NOT NULL,
    liveness        REAL NOT NULL,
    method          TEXT NOT NULL,
    sensor_data     BLOB,
    attestation     BLOB,
    notes           TEXT
);

CREATE INDEX IF NOT EXISTS idx_proofs_timestamp ON proofs(timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_proofs_entity ON proofs(entity_kind, entity_id);

CREATE TABLE IF NOT EXISTS settings (
    key     TEXT PRIMARY KEY,
    value   TEXT NOT NULL
);
`

// Store represents the SQLite service store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and applies
// the schema.
func Open(path string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	if s.db == nil {
		return errors.New("store: database not open")
	}
	return s.db.Ping()
}

// UpsertHealthSnapshot inserts or replaces the snapshot for its calendar day.
func (s *Store) UpsertHealthSnapshot(h *HealthSnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO health_snapshots (day, steps, distance_m, sleep_hours, week_steps, month_steps, updated_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			steps = excluded.steps,
			distance_m = excluded.distance_m,
			sleep_hours = excluded.sleep_hours,
			week_steps = excluded.week_steps,
			month_steps = excluded.month_steps,
			updated_at_ns = excluded.updated_at_ns`,
		h.Day, h.Steps, h.DistanceMeters, h.SleepHours, h.WeekSteps, h.MonthSteps, h.UpdatedAtNs,
	)
	if err != nil {
		return fmt.Errorf("upsert health snapshot: %w", err)
	}
	return nil
}

// GetHealthSnapshot retrieves the snapshot for a calendar day.
func (s *Store) GetHealthSnapshot(day string) (*HealthSnapshot, error) {
	var h HealthSnapshot
	err := s.db.QueryRow(`
		SELECT day, steps, distance_m, sleep_hours, week_steps, month_steps, updated_at_ns
		FROM health_snapshots WHERE day = ?`, day,
	).Scan(&h.Day, &h.Steps, &h.DistanceMeters, &h.SleepHours, &h.WeekSteps, &h.MonthSteps, &h.UpdatedAtNs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get health snapshot: %w", err)
	}
	return &h, nil
}

// UpsertPermissionRecord inserts or replaces the live record for a type.
func (s *Store) UpsertPermissionRecord(r *PermissionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO permission_records (type, status, last_checked_ns)
		VALUES (?, ?, ?)
		ON CONFLICT(type) DO UPDATE SET
			status = excluded.status,
			last_checked_ns = excluded.last_checked_ns`,
		string(r.Type), string(r.Status), r.LastCheckedNs,
	)
	if err != nil {
		return fmt.Errorf("upsert permission record: %w", err)
	}
	return nil
}

// GetPermissionRecord retrieves the live record for a permission type.
func (s *Store) GetPermissionRecord(t PermissionType) (*PermissionRecord, error) {
	var r PermissionRecord
	var typ, status string
	err := s.db.QueryRow(`
		SELECT type, status, last_checked_ns
		FROM permission_records WHERE type = ?`, string(t),
	).Scan(&typ, &status, &r.LastCheckedNs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get permission record: %w", err)
	}
	r.Type = PermissionType(typ)
	r.Status = PermissionStatus(status)
	return &r, nil
}

// GetPermissionRecords retrieves every live permission record.
func (s *Store) GetPermissionRecords() ([]PermissionRecord, error) {
	rows, err := s.db.Query(`SELECT type, status, last_checked_ns FROM permission_records ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("query permission records: %w", err)
	}
	defer rows.Close()

	var records []PermissionRecord
	for rows.Next() {
		var r PermissionRecord
		var typ, status string
		if err := rows.Scan(&typ, &status, &r.LastCheckedNs); err != nil {
			return nil, fmt.Errorf("scan permission record: %w", err)
		}
		r.Type = PermissionType(typ)
		r.Status = PermissionStatus(status)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permission records: %w", err)
	}
	return records, nil
}

// AppendConsentEntry inserts an immutable consent log entry.
func (s *Store) AppendConsentEntry(e *ConsentEntry) error {
	var prev *string
	if e.PreviousStatus != nil {
		p := string(*e.PreviousStatus)
		prev = &p
	}
	_, err := s.db.Exec(`
		INSERT INTO consent_log (id, permission_type, previous_status, current_status, timestamp_ns, reason, user_action, app_version, device_info)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.PermissionType), prev, string(e.CurrentStatus), e.TimestampNs, e.Reason, e.UserAction, e.AppVersion, e.DeviceInfo,
	)
	if err != nil {
		return fmt.Errorf("append consent entry: %w", err)
	}
	return nil
}

// GetConsentEntries retrieves the newest consent entries up to limit.
// A limit of 0 or less returns everything.
func (s *Store) GetConsentEntries(limit int) ([]ConsentEntry, error) {
	q := `
		SELECT id, permission_type, previous_status, current_status, timestamp_ns, reason, user_action, app_version, device_info
		FROM consent_log
		ORDER BY timestamp_ns DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(q+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(q)
	}
	if err != nil {
		return nil, fmt.Errorf("query consent entries: %w", err)
	}
	defer rows.Close()

	return scanConsentEntries(rows)
}

// GetConsentEntriesForType retrieves a permission type's history, oldest first.
func (s *Store) GetConsentEntriesForType(t PermissionType) ([]ConsentEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, permission_type, previous_status, current_status, timestamp_ns, reason, user_action, app_version, device_info
		FROM consent_log
		WHERE permission_type = ?
		ORDER BY timestamp_ns ASC`, string(t),
	)
	if err != nil {
		return nil, fmt.Errorf("query consent entries by type: %w", err)
	}
	defer rows.Close()

	return scanConsentEntries(rows)
}

// ClearConsentLog deletes every persisted consent entry.
func (s *Store) ClearConsentLog() error {
	if _, err := s.db.Exec(`DELETE FROM consent_log`); err != nil {
		return fmt.Errorf("clear consent log: %w", err)
	}
	return nil
}

// InsertProof inserts a new proof record.
func (s *Store) InsertProof(p *Proof) error {
	var kind, entityID *string
	if p.Entity != nil {
		k := string(p.Entity.Kind)
		kind = &k
		entityID = &p.Entity.ID
	}
	_, err := s.db.Exec(`
		INSERT INTO proofs (id, owner_user_id, entity_kind, entity_id, timestamp_ns, verified, confidence, liveness, method, sensor_data, attestation, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerUserID, kind, entityID, p.TimestampNs, p.Verified, p.Confidence, p.Liveness, p.Method, p.SensorData, p.Attestation, p.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert proof: %w", err)
	}
	return nil
}

// GetProof retrieves a proof by ID.
func (s *Store) GetProof(id string) (*Proof, error) {
	row := s.db.QueryRow(`
		SELECT id, owner_user_id, entity_kind, entity_id, timestamp_ns, verified, confidence, liveness, method, sensor_data, attestation, notes
		FROM proofs WHERE id = ?`, id,
	)
	p, err := scanProof(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get proof: %w", err)
	}
	return p, nil
}

// GetProofsForEntity retrieves proofs associated with a domain entity.
func (s *Store) GetProofsForEntity(kind EntityKind, id string) ([]Proof, error) {
	rows, err := s.db.Query(`
		SELECT id, owner_user_id, entity_kind, entity_id, timestamp_ns, verified, confidence, liveness, method, sensor_data, attestation, notes
		FROM proofs
		WHERE entity_kind = ? AND entity_id = ?
		ORDER BY timestamp_ns ASC`, string(kind), id,
	)
	if err != nil {
		return nil, fmt.Errorf("query proofs by entity: %w", err)
	}
	defer rows.Close()

	var proofs []Proof
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proof: %w", err)
		}
		proofs = append(proofs, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proofs: %w", err)
	}
	return proofs, nil
}

// DeleteProofsOlderThan deletes proofs with timestamps before cutoffNs and
// returns the number deleted.
func (s *Store) DeleteProofsOlderThan(cutoffNs int64) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM proofs WHERE timestamp_ns < ?`, cutoffNs)
	if err != nil {
		return 0, fmt.Errorf("delete expired proofs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

// GetSetting retrieves a key-value setting. Missing keys return "".
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting inserts or replaces a key-value setting.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// DeleteSetting removes a key-value setting if present.
func (s *Store) DeleteSetting(key string) error {
	if _, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete setting: %w", err)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for proof scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanProof(row scanner) (*Proof, error) {
	var p Proof
	var kind, entityID *string
	var verified int
	if err := row.Scan(&p.ID, &p.OwnerUserID, &kind, &entityID, &p.TimestampNs, &verified, &p.Confidence, &p.Liveness, &p.Method, &p.SensorData, &p.Attestation, &p.Notes); err != nil {
		return nil, err
	}
	p.Verified = verified != 0
	if kind != nil && entityID != nil {
		p.Entity = &EntityRef{Kind: EntityKind(*kind), ID: *entityID}
	}
	return &p, nil
}

func scanConsentEntries(rows *sql.Rows) ([]ConsentEntry, error) {
	var entries []ConsentEntry
	for rows.Next() {
		var e ConsentEntry
		var typ, status string
		var prev *string
		if err := rows.Scan(&e.ID, &typ, &prev, &status, &e.TimestampNs, &e.Reason, &e.UserAction, &e.AppVersion, &e.DeviceInfo); err != nil {
			return nil, fmt.Errorf("scan consent entry: %w", err)
		}
		e.PermissionType = PermissionType(typ)
		e.CurrentStatus = PermissionStatus(status)
		if prev != nil {
			p := PermissionStatus(*prev)
			e.PreviousStatus = &p
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent entries: %w", err)
	}
	return entries, nil
}
