package store

import (
	"context"
	"fmt"
)

// WriteSession inserts a session and assigns its CreatedSeq.
// Returns the stored session.
func (s *Store) WriteSession(ctx context.Context, id, scenario string) (Session, error) {
	if id == "" {
		return Session{}, fmt.Errorf("write session: id is required")
	}

	var seq int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, scenario, created_seq)
		VALUES (?, ?, (SELECT COALESCE(MAX(created_seq), 0) + 1 FROM sessions))
		RETURNING created_seq
	`, id, scenario).Scan(&seq)
	if err != nil {
		return Session{}, fmt.Errorf("write session %s: %w", id, err)
	}

	return Session{ID: id, Scenario: scenario, CreatedSeq: seq}, nil
}

// WriteRecord inserts a feedback record.
//
// Uses ON CONFLICT(session_id, name) DO NOTHING so rewriting an identical
// record is a no-op. A conflicting record with a different digest is an
// error. Returns the digest actually stored.
func (s *Store) WriteRecord(ctx context.Context, rec Record) (string, error) {
	if rec.Digest == "" {
		d, err := rec.ComputeDigest()
		if err != nil {
			return "", fmt.Errorf("write record: %w", err)
		}
		rec.Digest = d
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("write record: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO feedback_records
		(session_id, name, surface, ordinal, result, sync_output, sync_output_name,
		 tv_sec, tv_nsec, refresh_nsec, seq, flags, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, name) DO NOTHING
	`,
		rec.SessionID,
		rec.Name,
		rec.Surface,
		rec.Ordinal,
		rec.Result,
		rec.SyncOutput,
		rec.SyncOutputName,
		int64(rec.TvSec),
		rec.TvNsec,
		rec.RefreshNsec,
		int64(rec.Seq),
		rec.Flags,
		rec.Digest,
	)
	if err != nil {
		return "", fmt.Errorf("write record %s/%s: %w", rec.SessionID, rec.Name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("write record: rows affected: %w", err)
	}
	if n == 0 {
		var existing string
		if err := tx.QueryRowContext(ctx, `
			SELECT digest FROM feedback_records WHERE session_id = ? AND name = ?
		`, rec.SessionID, rec.Name).Scan(&existing); err != nil {
			return "", fmt.Errorf("write record: read existing: %w", err)
		}
		if existing != rec.Digest {
			return "", fmt.Errorf("write record %s/%s: conflicting record already stored", rec.SessionID, rec.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("write record: commit: %w", err)
	}
	return rec.Digest, nil
}
