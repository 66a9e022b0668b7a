package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

// MemoryJournal is an in-memory xfertypes.Journal with injectable failures.
type MemoryJournal struct {
	mu      sync.Mutex
	records []xfertypes.SessionRecord

	RecordErr  error
	ResolveErr error
}

var _ xfertypes.Journal = (*MemoryJournal)(nil)

// Record stores rec unless RecordErr is set.
func (j *MemoryJournal) Record(_ context.Context, rec xfertypes.SessionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.RecordErr != nil {
		return j.RecordErr
	}
	if rec.State == "" {
		rec.State = xfertypes.SessionOpen
	}
	j.records = append(j.records, rec)
	return nil
}

// Resolve updates a record's state unless ResolveErr is set.
func (j *MemoryJournal) Resolve(_ context.Context, transferID string, state xfertypes.SessionState) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.ResolveErr != nil {
		return j.ResolveErr
	}
	for i := range j.records {
		if j.records[i].TransferID == transferID {
			j.records[i].State = state
			return nil
		}
	}
	return errors.NewError("resolve", errors.ErrSessionNotFound)
}

// Pending returns the records still open.
func (j *MemoryJournal) Pending(_ context.Context) ([]xfertypes.SessionRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []xfertypes.SessionRecord
	for _, r := range j.records {
		if r.State == xfertypes.SessionOpen {
			out = append(out, r)
		}
	}
	return out, nil
}

// List returns all records, newest first.
func (j *MemoryJournal) List(_ context.Context) ([]xfertypes.SessionRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := slices.Clone(j.records)
	slices.Reverse(out)
	return out, nil
}

// State returns the recorded state of a transfer, or "" if unknown.
func (j *MemoryJournal) State(transferID string) xfertypes.SessionState {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, r := range j.records {
		if r.TransferID == transferID {
			return r.State
		}
	}
	return ""
}
