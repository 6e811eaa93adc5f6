// Package room tracks which sessions have joined which rooms on a hub
// channel. Rooms are implicit: created on first join and removed when the
// last member leaves.
package room

import (
	"sort"
	"strconv"
	"sync"
)

// Conversation returns the room key for a chat conversation.
func Conversation(id int64) string {
	return "conversation:" + strconv.FormatInt(id, 10)
}

// Post returns the room key for a post's comment thread.
func Post(id int64) string {
	return "post:" + strconv.FormatInt(id, 10)
}

// Membership is the room table of one channel.
type Membership struct {
	mu        sync.RWMutex
	rooms     map[string]map[string]struct{}
	bySession map[string]map[string]struct{}
}

func NewMembership() *Membership {
	return &Membership{
		rooms:     make(map[string]map[string]struct{}),
		bySession: make(map[string]map[string]struct{}),
	}
}

// Join adds sessionID to room. It returns false if it was already a member.
func (m *Membership) Join(room, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := m.rooms[room]
	if members == nil {
		members = make(map[string]struct{})
		m.rooms[room] = members
	}
	if _, ok := members[sessionID]; ok {
		return false
	}
	members[sessionID] = struct{}{}

	joined := m.bySession[sessionID]
	if joined == nil {
		joined = make(map[string]struct{})
		m.bySession[sessionID] = joined
	}
	joined[room] = struct{}{}
	return true
}

// Leave removes sessionID from room. It returns false if it was not a member.
func (m *Membership) Leave(room, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leave(room, sessionID)
}

// LeaveAll removes sessionID from every room and returns the rooms it left.
func (m *Membership) LeaveAll(sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var left []string
	for room := range m.bySession[sessionID] {
		if m.leave(room, sessionID) {
			left = append(left, room)
		}
	}
	sort.Strings(left)
	return left
}

// must hold mu
func (m *Membership) leave(room, sessionID string) bool {
	members, ok := m.rooms[room]
	if !ok {
		return false
	}
	if _, ok := members[sessionID]; !ok {
		return false
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(m.rooms, room)
	}
	if joined := m.bySession[sessionID]; joined != nil {
		delete(joined, room)
		if len(joined) == 0 {
			delete(m.bySession, sessionID)
		}
	}
	return true
}

// Members returns a copy of the session ids in room.
func (m *Membership) Members(room string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.rooms[room]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

func (m *Membership) IsMember(room, sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[room][sessionID]
	return ok
}

// Count returns the number of sessions in room.
func (m *Membership) Count(room string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[room])
}

// Rooms returns the number of non-empty rooms.
func (m *Membership) Rooms() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
