package room

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

func TestKeys(t *testing.T) {
	if got := Conversation(42); got != "conversation:42" {
		t.Errorf("expected conversation:42, got %q", got)
	}
	if got := Post(7); got != "post:7" {
		t.Errorf("expected post:7, got %q", got)
	}
}

func TestJoinAndLeave(t *testing.T) {
	m := NewMembership()

	if !m.Join("conversation:1", "s1") {
		t.Fatal("first join should report true")
	}
	if m.Join("conversation:1", "s1") {
		t.Fatal("second join should report false")
	}
	m.Join("conversation:1", "s2")

	if m.Count("conversation:1") != 2 {
		t.Fatalf("expected 2 members, got %d", m.Count("conversation:1"))
	}
	if !m.IsMember("conversation:1", "s2") {
		t.Error("expected s2 to be a member")
	}

	members := m.Members("conversation:1")
	sort.Strings(members)
	if len(members) != 2 || members[0] != "s1" || members[1] != "s2" {
		t.Errorf("unexpected members %v", members)
	}

	if !m.Leave("conversation:1", "s1") {
		t.Fatal("leave of member should report true")
	}
	if m.Leave("conversation:1", "s1") {
		t.Fatal("leave of non-member should report false")
	}
	m.Leave("conversation:1", "s2")

	if m.Rooms() != 0 {
		t.Fatalf("empty room should be removed, have %d rooms", m.Rooms())
	}
	if got := m.Members("conversation:1"); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil members, got %v", got)
	}
}

func TestLeaveAll(t *testing.T) {
	m := NewMembership()
	m.Join("post:1", "s1")
	m.Join("post:2", "s1")
	m.Join("post:2", "s2")

	left := m.LeaveAll("s1")
	if len(left) != 2 || left[0] != "post:1" || left[1] != "post:2" {
		t.Fatalf("unexpected rooms left: %v", left)
	}
	if m.Rooms() != 1 {
		t.Errorf("expected 1 room remaining, got %d", m.Rooms())
	}
	if m.IsMember("post:2", "s1") {
		t.Error("s1 should no longer be in post:2")
	}
	if left := m.LeaveAll("s1"); len(left) != 0 {
		t.Errorf("second LeaveAll should be empty, got %v", left)
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	m := NewMembership()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid := fmt.Sprintf("s%d", i)
			m.Join("post:1", sid)
			if i%2 == 0 {
				m.LeaveAll(sid)
			}
		}(i)
	}
	wg.Wait()

	if got := m.Count("post:1"); got != 25 {
		t.Fatalf("expected 25 members, got %d", got)
	}
}
