package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// ReadSession returns a session by ID.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, scenario, created_seq FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.Scenario, &sess.CreatedSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns all sessions ordered by creation.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scenario, created_seq FROM sessions
		ORDER BY created_seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Scenario, &sess.CreatedSeq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadRecords returns the records of a session ordered by ordinal, then
// name. Returns an empty slice (not nil) when there are none.
func (s *Store) ReadRecords(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, name, surface, ordinal, result, sync_output, sync_output_name,
		       tv_sec, tv_nsec, refresh_nsec, seq, flags, digest
		FROM feedback_records
		WHERE session_id = ?
		ORDER BY ordinal ASC, name COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// CountResults returns how many records of a session ended in each result.
func (s *Store) CountResults(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT result, COUNT(*) FROM feedback_records
		WHERE session_id = ?
		GROUP BY result
		ORDER BY result
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count results: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var result string
		var n int
		if err := rows.Scan(&result, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[result] = n
	}
	return counts, rows.Err()
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var rec Record
	var tvSec, seq int64
	err := rows.Scan(
		&rec.SessionID,
		&rec.Name,
		&rec.Surface,
		&rec.Ordinal,
		&rec.Result,
		&rec.SyncOutput,
		&rec.SyncOutputName,
		&tvSec,
		&rec.TvNsec,
		&rec.RefreshNsec,
		&seq,
		&rec.Flags,
		&rec.Digest,
	)
	if err != nil {
		return Record{}, fmt.Errorf("scan record: %w", err)
	}
	rec.TvSec = uint64(tvSec)
	rec.Seq = uint64(seq)
	return rec, nil
}
