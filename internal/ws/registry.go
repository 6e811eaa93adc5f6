package ws

import (
	"sort"
	"sync"
)

// Registry maps users to their live session ids on one channel.
//
// Each user has its own entry guarded by its own mutex, so Add and Remove
// for different users never contend. The 0→1 and 1→0 transitions are
// decided inside the entry's critical section, which makes "first" and
// "last" exact even when a user's sessions open and close concurrently.
type Registry struct {
	entries sync.Map // int64 -> *entry
}

type entry struct {
	mu       sync.Mutex
	sessions map[string]struct{}
	// dead is set once the entry has been unlinked from the table. An Add
	// that loaded it before the unlink must retry on a fresh entry.
	dead bool
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add records sessionID for userID. It reports true only when this is the
// user's first live session. Adding a pair twice is a no-op.
func (r *Registry) Add(userID int64, sessionID string) (first bool) {
	for {
		v, _ := r.entries.LoadOrStore(userID, &entry{sessions: make(map[string]struct{})})
		e := v.(*entry)

		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		if _, ok := e.sessions[sessionID]; ok {
			e.mu.Unlock()
			return false
		}
		e.sessions[sessionID] = struct{}{}
		first = len(e.sessions) == 1
		e.mu.Unlock()
		return first
	}
}

// Remove drops sessionID for userID. It reports true only when this was the
// user's last live session, in which case the user is gone from the table
// before Remove returns. Removing an unknown pair is a no-op.
func (r *Registry) Remove(userID int64, sessionID string) (last bool) {
	v, ok := r.entries.Load(userID)
	if !ok {
		return false
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return false
	}
	if _, ok := e.sessions[sessionID]; !ok {
		return false
	}
	delete(e.sessions, sessionID)
	if len(e.sessions) > 0 {
		return false
	}
	e.dead = true
	r.entries.CompareAndDelete(userID, e)
	return true
}

// ClearUser removes every session of userID and returns their ids. The
// clear is itself the user's 1→0 transition: later Remove calls for the
// returned ids report last=false, so a caller tracking presence must treat
// the user as gone when ClearUser returns a non-empty slice.
func (r *Registry) ClearUser(userID int64) []string {
	v, ok := r.entries.Load(userID)
	if !ok {
		return nil
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return nil
	}
	ids := sortedKeys(e.sessions)
	e.sessions = make(map[string]struct{})
	e.dead = true
	r.entries.CompareAndDelete(userID, e)
	return ids
}

// Sessions returns a snapshot of userID's session ids. It is never nil.
func (r *Registry) Sessions(userID int64) []string {
	v, ok := r.entries.Load(userID)
	if !ok {
		return []string{}
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return []string{}
	}
	return sortedKeys(e.sessions)
}

// Count returns the number of live sessions for userID.
func (r *Registry) Count(userID int64) int {
	v, ok := r.entries.Load(userID)
	if !ok {
		return 0
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return 0
	}
	return len(e.sessions)
}

// Users returns the number of users with at least one live session.
func (r *Registry) Users() int {
	n := 0
	r.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		if !e.dead && len(e.sessions) > 0 {
			n++
		}
		e.mu.Unlock()
		return true
	})
	return n
}

// UserIDs returns the users with at least one live session.
func (r *Registry) UserIDs() []int64 {
	var ids []int64
	r.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		if !e.dead && len(e.sessions) > 0 {
			ids = append(ids, k.(int64))
		}
		e.mu.Unlock()
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedKeys(m map[string]struct{}) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
