package session

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStore_SaveAppendLoadRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "session.db")
	store, err := OpenSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	defer store.Close()

	header := SessionHeader{
		Type: EntryTypeSession, Version: CurrentVersion,
		ID: GenerateSessionID(), Timestamp: time.Now(), Cwd: "/tmp/work",
	}

	first := NewSessionInfoEntry("", "my session")
	if err := store.SaveSession(header, []any{first}); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	msg := NewMessageEntryFromRaw(first.ID, "user", []byte(`[]`), "", "")
	if err := store.AppendEntries([]any{msg}); err != nil {
		t.Fatalf("AppendEntries() error = %v", err)
	}

	loadedHeader, entries, err := store.LoadSession()
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if loadedHeader.Cwd != "/tmp/work" {
		t.Errorf("loaded header cwd = %q, want /tmp/work", loadedHeader.Cwd)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if _, ok := entries[1].(*MessageEntry); !ok {
		t.Errorf("expected entries[1] to be *MessageEntry, got %T", entries[1])
	}

	meta, err := store.LoadSessionMeta()
	if err != nil {
		t.Fatalf("LoadSessionMeta() error = %v", err)
	}
	if meta.MessageCount != 1 {
		t.Errorf("meta.MessageCount = %d, want 1", meta.MessageCount)
	}
	if meta.Name != "my session" {
		t.Errorf("meta.Name = %q, want %q", meta.Name, "my session")
	}
}

func TestSQLiteStore_AppendEntriesAssignsSequentialSeq(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "session.db")
	store, err := OpenSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	defer store.Close()

	header := SessionHeader{Type: EntryTypeSession, ID: GenerateSessionID(), Timestamp: time.Now(), Cwd: "/tmp"}
	if err := store.SaveSession(header, nil); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		msg := NewMessageEntryFromRaw("", "user", []byte(`[]`), "", "")
		if err := store.AppendEntries([]any{msg}); err != nil {
			t.Fatalf("AppendEntries() error = %v", err)
		}
	}

	var maxSeq int64
	if err := store.db.QueryRow(`SELECT MAX(seq) FROM pi_session_entries`).Scan(&maxSeq); err != nil {
		t.Fatalf("query max seq: %v", err)
	}
	if maxSeq != 3 {
		t.Errorf("max seq = %d, want 3", maxSeq)
	}

	meta, err := store.LoadSessionMeta()
	if err != nil {
		t.Fatalf("LoadSessionMeta() error = %v", err)
	}
	if meta.MessageCount != 3 {
		t.Errorf("meta.MessageCount = %d, want 3", meta.MessageCount)
	}
}

func TestSQLiteStore_LoadSessionMetaFallsBackWhenMetaRowMissing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "session.db")
	store, err := OpenSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	defer store.Close()

	header := SessionHeader{Type: EntryTypeSession, ID: GenerateSessionID(), Timestamp: time.Now(), Cwd: "/tmp"}
	msg := NewMessageEntryFromRaw("", "user", []byte(`[]`), "", "")
	if err := store.SaveSession(header, []any{msg}); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	if _, err := store.db.Exec(`DELETE FROM pi_session_meta`); err != nil {
		t.Fatalf("delete meta rows: %v", err)
	}

	meta, err := store.LoadSessionMeta()
	if err != nil {
		t.Fatalf("LoadSessionMeta() error = %v", err)
	}
	if meta.MessageCount != 1 {
		t.Errorf("fallback meta.MessageCount = %d, want 1", meta.MessageCount)
	}
}
