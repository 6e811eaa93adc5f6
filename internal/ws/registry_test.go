package ws

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRegistryFirstAndLastTransitions(t *testing.T) {
	r := NewRegistry()

	if !r.Add(1, "s1") {
		t.Fatal("first session should report first")
	}
	if r.Add(1, "s2") {
		t.Fatal("second session should not report first")
	}
	if r.Add(1, "s2") {
		t.Fatal("duplicate add should be a no-op")
	}
	if got := r.Count(1); got != 2 {
		t.Fatalf("expected 2 sessions, got %d", got)
	}

	if r.Remove(1, "s1") {
		t.Fatal("removing one of two sessions should not report last")
	}
	if r.Remove(1, "missing") {
		t.Fatal("removing an unknown session should be a no-op")
	}
	if !r.Remove(1, "s2") {
		t.Fatal("removing the final session should report last")
	}
	if r.Remove(1, "s2") {
		t.Fatal("second remove should be a no-op")
	}
	if r.Users() != 0 {
		t.Fatalf("expected no users, got %d", r.Users())
	}
}

func TestRegistrySessionsSnapshot(t *testing.T) {
	r := NewRegistry()

	empty := r.Sessions(42)
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}

	r.Add(42, "b")
	r.Add(42, "a")
	snap := r.Sessions(42)
	r.Add(42, "c")

	if len(snap) != 2 || snap[0] != "a" || snap[1] != "b" {
		t.Fatalf("unexpected snapshot %v", snap)
	}
}

func TestRegistryClearUser(t *testing.T) {
	r := NewRegistry()
	r.Add(7, "s1")
	r.Add(7, "s2")
	r.Add(8, "s3")

	cleared := r.ClearUser(7)
	if len(cleared) != 2 {
		t.Fatalf("expected 2 cleared sessions, got %v", cleared)
	}
	if r.Count(7) != 0 || r.Users() != 1 {
		t.Fatalf("user 7 should be gone, users=%d", r.Users())
	}
	for _, id := range cleared {
		if r.Remove(7, id) {
			t.Fatalf("remove of cleared session %s should not report last", id)
		}
	}
	if !r.Add(7, "s4") {
		t.Fatal("add after clear should report first")
	}
	if r.Remove(7, "s1") {
		t.Fatal("stale remove should not touch the new entry")
	}
	if r.Count(7) != 1 {
		t.Fatalf("expected the new session to survive, got %d", r.Count(7))
	}
	if r.ClearUser(99) != nil {
		t.Fatal("clearing an unknown user should return nil")
	}
}

func TestRegistryMatchesModel(t *testing.T) {
	r := NewRegistry()
	model := map[int64]map[string]bool{}
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 2000; i++ {
		user := int64(rng.Intn(5))
		sid := fmt.Sprintf("s%d", rng.Intn(4))
		if model[user] == nil {
			model[user] = map[string]bool{}
		}
		if rng.Intn(2) == 0 {
			wantFirst := len(model[user]) == 0 && !model[user][sid]
			model[user][sid] = true
			if got := r.Add(user, sid); got != wantFirst {
				t.Fatalf("step %d: Add(%d,%s) first=%v, want %v", i, user, sid, got, wantFirst)
			}
		} else {
			wantLast := model[user][sid] && len(model[user]) == 1
			delete(model[user], sid)
			if got := r.Remove(user, sid); got != wantLast {
				t.Fatalf("step %d: Remove(%d,%s) last=%v, want %v", i, user, sid, got, wantLast)
			}
		}
	}

	users := 0
	for user, sessions := range model {
		if len(sessions) > 0 {
			users++
		}
		if got := r.Count(user); got != len(sessions) {
			t.Errorf("user %d: have %d sessions, want %d", user, got, len(sessions))
		}
	}
	if r.Users() != users {
		t.Errorf("have %d users, want %d", r.Users(), users)
	}
}

// Concurrent connects and disconnects for the same user must produce
// exactly as many first transitions as last transitions.
func TestRegistryConcurrentTransitionsBalance(t *testing.T) {
	r := NewRegistry()
	var firsts, lasts atomic.Int64
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				sid := fmt.Sprintf("g%d-%d", g, i)
				if r.Add(1, sid) {
					firsts.Add(1)
				}
				if r.Remove(1, sid) {
					lasts.Add(1)
				}
			}
		}(g)
	}
	wg.Wait()

	if firsts.Load() != lasts.Load() {
		t.Fatalf("unbalanced transitions: %d first, %d last", firsts.Load(), lasts.Load())
	}
	if firsts.Load() == 0 {
		t.Fatal("expected at least one first transition")
	}
	if r.Count(1) != 0 || r.Users() != 0 {
		t.Fatalf("registry should be empty, count=%d users=%d", r.Count(1), r.Users())
	}
}
