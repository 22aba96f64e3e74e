package session

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists a single session to its own SQLite database file,
// mirroring the on-disk layout of the JSONL store one level down: one
// session, one file. Three tables: pi_session_header (one row, the session
// header blob), pi_session_entries (the append-only entry log keyed by
// seq), and pi_session_meta (a small key/value cache of summary fields so
// listing doesn't require scanning every entry).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) the session database at
// path, enables WAL mode and foreign keys, and ensures the schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS pi_session_header (
	id TEXT PRIMARY KEY,
	json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pi_session_entries (
	seq INTEGER PRIMARY KEY,
	json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pi_session_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSession replaces the session's header and full entry log in one
// transaction. Use AppendEntries for the common incremental case;
// SaveSession is for rewriting history (e.g. after a branch edit).
func (s *SQLiteStore) SaveSession(header SessionHeader, entries []any) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	headerJSON, err := marshalHeader(header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO pi_session_header (id, json) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET json = excluded.json`,
		header.ID, string(headerJSON)); err != nil {
		return fmt.Errorf("upsert header: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM pi_session_entries`); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	if err := insertEntries(tx, 0, entries); err != nil {
		return err
	}
	if err := rewriteMeta(tx, entries); err != nil {
		return err
	}

	return tx.Commit()
}

// AppendEntries inserts entries after the current highest seq and upserts
// the meta key/value cache incrementally. This is the hot path every turn
// of a live session takes: seq = start_seq + i + 1.
func (s *SQLiteStore) AppendEntries(entries []any) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(seq) FROM pi_session_entries`).Scan(&maxSeq); err != nil {
		return fmt.Errorf("read current sequence: %w", err)
	}
	startSeq := int64(0)
	if maxSeq.Valid {
		startSeq = maxSeq.Int64
	}

	for i, entry := range entries {
		payload, err := MarshalEntry(entry)
		if err != nil {
			return fmt.Errorf("marshal entry %d: %w", i, err)
		}
		seq := startSeq + int64(i) + 1
		if _, err := tx.Exec(`INSERT INTO pi_session_entries (seq, json) VALUES (?, ?)`, seq, string(payload)); err != nil {
			return fmt.Errorf("insert entry at seq %d: %w", seq, err)
		}
	}

	if err := upsertMetaIncremental(tx, entries); err != nil {
		return err
	}

	return tx.Commit()
}

func insertEntries(tx *sql.Tx, startSeq int64, entries []any) error {
	stmt, err := tx.Prepare(`INSERT INTO pi_session_entries (seq, json) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare entry insert: %w", err)
	}
	defer stmt.Close()

	for i, entry := range entries {
		payload, err := MarshalEntry(entry)
		if err != nil {
			return fmt.Errorf("marshal entry %d: %w", i, err)
		}
		if _, err := stmt.Exec(startSeq+int64(i)+1, string(payload)); err != nil {
			return fmt.Errorf("insert entry %d: %w", i, err)
		}
	}
	return nil
}

// rewriteMeta recomputes message_count and name from scratch, used after a
// full SaveSession rewrite.
func rewriteMeta(tx *sql.Tx, entries []any) error {
	messageCount := 0
	name := ""
	for _, entry := range entries {
		switch e := entry.(type) {
		case *MessageEntry:
			messageCount++
		case *SessionInfoEntry:
			if e.Name != "" {
				name = e.Name
			}
		}
	}
	if err := setMeta(tx, "message_count", fmt.Sprintf("%d", messageCount)); err != nil {
		return err
	}
	return setMeta(tx, "name", name)
}

// upsertMetaIncremental adds this batch's message count to the existing
// total and overwrites name if a SessionInfo entry supplies one.
func upsertMetaIncremental(tx *sql.Tx, entries []any) error {
	added := 0
	name := ""
	for _, entry := range entries {
		switch e := entry.(type) {
		case *MessageEntry:
			added++
		case *SessionInfoEntry:
			if e.Name != "" {
				name = e.Name
			}
		}
	}

	current, err := getMeta(tx, "message_count")
	if err != nil {
		return err
	}
	total := added
	if current != "" {
		var n int
		if _, err := fmt.Sscanf(current, "%d", &n); err == nil {
			total = n + added
		}
	}
	if err := setMeta(tx, "message_count", fmt.Sprintf("%d", total)); err != nil {
		return err
	}
	if name != "" {
		return setMeta(tx, "name", name)
	}
	return nil
}

func setMeta(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`
		INSERT INTO pi_session_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func getMeta(tx *sql.Tx, key string) (string, error) {
	var value string
	err := tx.QueryRow(`SELECT value FROM pi_session_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// LoadSession returns the header and ordered entry log.
func (s *SQLiteStore) LoadSession() (SessionHeader, []any, error) {
	var id, headerJSON string
	err := s.db.QueryRow(`SELECT id, json FROM pi_session_header LIMIT 1`).Scan(&id, &headerJSON)
	if err != nil {
		return SessionHeader{}, nil, fmt.Errorf("load header: %w", err)
	}
	header, err := unmarshalHeader([]byte(headerJSON))
	if err != nil {
		return SessionHeader{}, nil, fmt.Errorf("unmarshal header: %w", err)
	}

	entries, err := loadEntries(s.db)
	if err != nil {
		return SessionHeader{}, nil, err
	}
	return header, entries, nil
}

func loadEntries(db *sql.DB) ([]any, error) {
	rows, err := db.Query(`SELECT json FROM pi_session_entries ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]any, error) {
	var entries []any
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan entry row: %w", err)
		}
		entry, err := UnmarshalEntry([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SessionMeta is the cached summary the key/value meta table holds.
type SessionMeta struct {
	Name         string
	MessageCount int
}

// LoadSessionMeta reads the cached message_count/name pair. If the meta
// rows are missing (e.g. a session written before pi_session_meta existed),
// it falls back to a forward scan over the entry log to rebuild them,
// matching load_session_meta's count(Message entries) / last non-null
// SessionInfo.name contract regardless of whether the cache is warm.
func (s *SQLiteStore) LoadSessionMeta() (SessionMeta, error) {
	var countStr string
	err := s.db.QueryRow(`SELECT value FROM pi_session_meta WHERE key = 'message_count'`).Scan(&countStr)
	if err == sql.ErrNoRows {
		return s.rebuildMetaFromEntries()
	}
	if err != nil {
		return SessionMeta{}, fmt.Errorf("load message_count: %w", err)
	}

	var name string
	if err := s.db.QueryRow(`SELECT value FROM pi_session_meta WHERE key = 'name'`).Scan(&name); err != nil && err != sql.ErrNoRows {
		return SessionMeta{}, fmt.Errorf("load name: %w", err)
	}

	var meta SessionMeta
	fmt.Sscanf(countStr, "%d", &meta.MessageCount)
	meta.Name = name
	return meta, nil
}

func (s *SQLiteStore) rebuildMetaFromEntries() (SessionMeta, error) {
	entries, err := loadEntries(s.db)
	if err != nil {
		return SessionMeta{}, err
	}
	var meta SessionMeta
	for _, entry := range entries {
		switch e := entry.(type) {
		case *MessageEntry:
			meta.MessageCount++
		case *SessionInfoEntry:
			if e.Name != "" {
				meta.Name = e.Name
			}
		}
	}
	return meta, nil
}

func marshalHeader(header SessionHeader) ([]byte, error) {
	header.Type = EntryTypeSession
	return json.Marshal(header)
}

func unmarshalHeader(data []byte) (SessionHeader, error) {
	var header SessionHeader
	err := json.Unmarshal(data, &header)
	return header, err
}
