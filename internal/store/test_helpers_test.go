package store

import (
	"path/filepath"
	"testing"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// presentedRecord creates a presented record with typical 60 Hz values.
func presentedRecord(sessionID, name string, ordinal int64) Record {
	return Record{
		SessionID:      sessionID,
		Name:           name,
		Surface:        5,
		Ordinal:        ordinal,
		Result:         "presented",
		SyncOutput:     4,
		SyncOutputName: "out0",
		TvSec:          100,
		TvNsec:         500_000_000,
		RefreshNsec:    16_666_667,
		Seq:            42,
		Flags:          0x3,
	}
}
