package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/MrEthical07/goGateway/storage"
)

// ErrDraftTypeRequired is returned when a draft has no type.
var ErrDraftTypeRequired = errors.New("draft type is required")

// SaveDraft inserts or overwrites d by ID, assigning one when empty. SavedAt and
// ExpiresAt are stamped from the monitor clock.
func (m *Monitor) SaveDraft(ctx context.Context, d Draft) (Draft, error) {
	if d.Type == "" {
		return Draft{}, ErrDraftTypeRequired
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := m.now()
	d.SavedAt = now
	d.ExpiresAt = now.Add(m.config.DraftRetention)

	m.draftsMu.Lock()
	defer m.draftsMu.Unlock()

	drafts, _, err := m.loadLiveLocked(ctx)
	if err != nil {
		return Draft{}, err
	}

	replaced := false
	for i := range drafts {
		if drafts[i].ID == d.ID {
			drafts[i] = d
			replaced = true
			break
		}
	}
	if !replaced {
		drafts = append(drafts, d)
	}

	if err := storage.SetJSON(ctx, m.store, m.key(storage.KeyDrafts), drafts); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// Drafts returns live drafts, oldest save first, optionally filtered by type. Expired
// drafts are pruned from storage as a side effect.
func (m *Monitor) Drafts(ctx context.Context, draftType string) ([]Draft, error) {
	m.draftsMu.Lock()
	defer m.draftsMu.Unlock()

	drafts, pruned, err := m.loadLiveLocked(ctx)
	if err != nil {
		return nil, err
	}
	if pruned {
		if err := storage.SetJSON(ctx, m.store, m.key(storage.KeyDrafts), drafts); err != nil {
			return nil, err
		}
	}

	if draftType == "" {
		return drafts, nil
	}
	out := make([]Draft, 0, len(drafts))
	for _, d := range drafts {
		if d.Type == draftType {
			out = append(out, d)
		}
	}
	return out, nil
}

// Draft returns the live draft with id.
func (m *Monitor) Draft(ctx context.Context, id string) (Draft, bool, error) {
	drafts, err := m.Drafts(ctx, "")
	if err != nil {
		return Draft{}, false, err
	}
	for _, d := range drafts {
		if d.ID == id {
			return d, true, nil
		}
	}
	return Draft{}, false, nil
}

// DeleteDraft removes the draft with id. Missing drafts are not an error.
func (m *Monitor) DeleteDraft(ctx context.Context, id string) error {
	m.draftsMu.Lock()
	defer m.draftsMu.Unlock()

	drafts, pruned, err := m.loadLiveLocked(ctx)
	if err != nil {
		return err
	}

	kept := drafts[:0]
	for _, d := range drafts {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(drafts) && !pruned {
		return nil
	}
	return storage.SetJSON(ctx, m.store, m.key(storage.KeyDrafts), kept)
}

func (m *Monitor) loadLiveLocked(ctx context.Context) ([]Draft, bool, error) {
	var drafts []Draft
	if _, err := storage.GetJSON(ctx, m.store, m.key(storage.KeyDrafts), &drafts); err != nil {
		return nil, false, err
	}

	now := m.now()
	live := make([]Draft, 0, len(drafts))
	for _, d := range drafts {
		if now.Before(d.ExpiresAt) {
			live = append(live, d)
		}
	}
	return live, len(live) != len(drafts), nil
}
