package schedule

import (
	"sort"
	"sync"

	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

// Registry is the in-memory set of pending actions, keyed by (scope, subject).
//
// Every mutation and the save that follows it run under one mutex, so the
// store always holds a snapshot of some consistent registry state. When a save
// fails the in-memory state is kept and the next mutation saves everything again.
type Registry struct {
	mu    sync.Mutex
	store Store
	items map[Key]ScheduledAction

	log     logx.Logger
	metrics *Metrics
}

func NewRegistry(store Store, log logx.Logger, m *Metrics) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		store:   store,
		items:   map[Key]ScheduledAction{},
		log:     log,
		metrics: m,
	}
}

// Add inserts a, replacing any pending action for the same key, and saves.
// The replaced action (if any) is returned. A non-nil error is a save failure;
// the registry still holds a.
func (r *Registry) Add(a ScheduledAction) (prev ScheduledAction, replaced bool, err error) {
	a = a.normalized()
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, replaced = r.items[a.Key()]
	r.items[a.Key()] = a
	return prev, replaced, r.saveLocked()
}

// Remove deletes the pending action for the key and saves. Removing a missing key
// is a no-op and does not touch the store.
func (r *Registry) Remove(scopeID, subjectID string) (ScheduledAction, bool, error) {
	k := Key{ScopeID: scopeID, SubjectID: subjectID}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[k]
	if !ok {
		return ScheduledAction{}, false, nil
	}
	delete(r.items, k)
	return a, true, r.saveLocked()
}

func (r *Registry) Get(scopeID, subjectID string) (ScheduledAction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[Key{ScopeID: scopeID, SubjectID: subjectID}]
	return a, ok
}

// Has reports whether exactly a (not just its key) is pending.
func (r *Registry) Has(a ScheduledAction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[a.Key()]
	return ok && cur.Equal(a)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// List returns a snapshot ordered by due time, then scope, then subject.
func (r *Registry) List() []ScheduledAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked()
}

// Persist saves the current set.
func (r *Registry) Persist() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked()
}

func (r *Registry) insertWithoutPersist(a ScheduledAction) {
	a = a.normalized()
	r.mu.Lock()
	r.items[a.Key()] = a
	r.metrics.setPending(len(r.items))
	r.mu.Unlock()
}

// removeExact removes a only if the stored entry is still a. A replacement added
// for the same key while a was executing is left alone.
func (r *Registry) removeExact(a ScheduledAction, persist bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[a.Key()]
	if !ok || !cur.Equal(a) {
		return false, nil
	}
	delete(r.items, a.Key())
	if !persist {
		r.metrics.setPending(len(r.items))
		return true, nil
	}
	return true, r.saveLocked()
}

func (r *Registry) listLocked() []ScheduledAction {
	out := make([]ScheduledAction, 0, len(r.items))
	for _, a := range r.items {
		out = append(out, a)
	}
	SortByDue(out)
	return out
}

// SortByDue orders actions earliest first, then by scope and subject.
func SortByDue(actions []ScheduledAction) {
	sort.Slice(actions, func(i, j int) bool {
		if !actions[i].DueAt.Equal(actions[j].DueAt) {
			return actions[i].DueAt.Before(actions[j].DueAt)
		}
		if actions[i].ScopeID != actions[j].ScopeID {
			return actions[i].ScopeID < actions[j].ScopeID
		}
		return actions[i].SubjectID < actions[j].SubjectID
	})
}

func (r *Registry) saveLocked() error {
	r.metrics.setPending(len(r.items))
	if r.store == nil {
		return nil
	}
	if err := r.store.Save(r.listLocked()); err != nil {
		r.metrics.saveFailed()
		r.log.Warn("schedule save failed; in-memory state kept", logx.Int("pending", len(r.items)), logx.Err(err))
		return err
	}
	return nil
}
