package memory

import (
	"context"
	"sort"
	"sync"

	"fundex/internal/domain"
	"fundex/internal/storage"
)

// EventJournal is an in-memory implementation of storage.EventJournal.
type EventJournal struct {
	mu      sync.RWMutex
	entries []*domain.JournalEvent
}

// NewEventJournal creates a new in-memory event journal.
func NewEventJournal() *EventJournal {
	return &EventJournal{}
}

// Compile-time interface check.
var _ storage.EventJournal = (*EventJournal)(nil)

// Append journals a batch of committed events.
func (j *EventJournal) Append(_ context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	converted := make([]*domain.JournalEvent, 0, len(events))
	for _, ev := range events {
		je, err := domain.NewJournalEvent(ev)
		if err != nil {
			return storage.ErrInvalidInput
		}
		converted = append(converted, je)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, converted...)
	return nil
}

// GetByTimeRange retrieves journaled events within [start, end] (inclusive),
// ordered by (unix, id) ASC.
func (j *EventJournal) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.JournalEvent, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []*domain.JournalEvent
	for _, e := range j.entries {
		if e.Unix >= start && e.Unix <= end {
			cp := *e
			result = append(result, &cp)
		}
	}

	sortJournal(result)
	return result, nil
}

// GetByAccount retrieves all journaled events for one account, ordered by
// (unix, id) ASC.
func (j *EventJournal) GetByAccount(_ context.Context, account string) ([]*domain.JournalEvent, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []*domain.JournalEvent
	for _, e := range j.entries {
		if e.Account == account {
			cp := *e
			result = append(result, &cp)
		}
	}

	sortJournal(result)
	return result, nil
}

func sortJournal(entries []*domain.JournalEvent) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Unix != entries[j].Unix {
			return entries[i].Unix < entries[j].Unix
		}
		return entries[i].ID < entries[j].ID
	})
}
