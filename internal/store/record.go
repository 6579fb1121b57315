package store

import "github.com/roach88/presfeed/internal/canon"

// Session is one observation run.
type Session struct {
	ID         string
	Scenario   string
	CreatedSeq int64
}

// Record is the final observed state of one feedback request.
// Presentation fields are zero unless Result is "presented".
type Record struct {
	SessionID      string
	Name           string
	Surface        uint32
	Ordinal        int64
	Result         string
	SyncOutput     uint32
	SyncOutputName string
	TvSec          uint64
	TvNsec         uint32
	RefreshNsec    uint32
	Seq            uint64
	Flags          uint32

	// Digest is filled in by WriteRecord when empty.
	Digest string
}

// Canonical returns the record's identity fields as a canonical map.
// The session ID is part of the identity; Digest is not.
func (r Record) Canonical() map[string]any {
	return map[string]any{
		"session_id":       r.SessionID,
		"name":             r.Name,
		"surface":          r.Surface,
		"ordinal":          r.Ordinal,
		"result":           r.Result,
		"sync_output":      r.SyncOutput,
		"sync_output_name": r.SyncOutputName,
		"tv_sec":           r.TvSec,
		"tv_nsec":          r.TvNsec,
		"refresh_nsec":     r.RefreshNsec,
		"seq":              r.Seq,
		"flags":            r.Flags,
	}
}

// ComputeDigest returns the content digest of r.
func (r Record) ComputeDigest() (string, error) {
	return canon.Digest(canon.DomainRecord, r.Canonical())
}
