// Package lobby implements the readiness protocol that gates the start of a
// session: the host-side Authority that owns the canonical readiness map and
// the participant-side Replica that mirrors it.
package lobby

import (
	"fmt"
	"slices"
	"strings"

	"github.com/chilledoj/pongroom/protocol"
)

// ReadinessMap maps participant ids to their ready flag. Entries are always
// listed in id order. It is not safe for concurrent use.
type ReadinessMap struct {
	m map[protocol.ParticipantID]bool
}

func NewReadinessMap() *ReadinessMap {
	return &ReadinessMap{m: make(map[protocol.ParticipantID]bool)}
}

// Add inserts id as not ready. It reports false if id was already present.
func (rm *ReadinessMap) Add(id protocol.ParticipantID) bool {
	if _, ok := rm.m[id]; ok {
		return false
	}
	rm.m[id] = false
	return true
}

// Remove deletes id and reports whether it was present.
func (rm *ReadinessMap) Remove(id protocol.ParticipantID) bool {
	if _, ok := rm.m[id]; !ok {
		return false
	}
	delete(rm.m, id)
	return true
}

// Set updates the flag of a known id.
func (rm *ReadinessMap) Set(id protocol.ParticipantID, ready bool) bool {
	if _, ok := rm.m[id]; !ok {
		return false
	}
	rm.m[id] = ready
	return true
}

func (rm *ReadinessMap) Get(id protocol.ParticipantID) (ready, ok bool) {
	ready, ok = rm.m[id]
	return ready, ok
}

func (rm *ReadinessMap) Len() int { return len(rm.m) }

func (rm *ReadinessMap) Entries() []protocol.ReadyEntry {
	out := make([]protocol.ReadyEntry, 0, len(rm.m))
	for id, ready := range rm.m {
		out = append(out, protocol.ReadyEntry{ParticipantID: id, Ready: ready})
	}
	slices.SortFunc(out, func(a, b protocol.ReadyEntry) int {
		return strings.Compare(a.ParticipantID, b.ParticipantID)
	})
	return out
}

// Replace discards the current contents in favour of entries.
func (rm *ReadinessMap) Replace(entries []protocol.ReadyEntry) {
	clear(rm.m)
	for _, e := range entries {
		rm.m[e.ParticipantID] = e.Ready
	}
}

// Quorum is true when at least two participants are present and all of them
// are ready.
func (rm *ReadinessMap) Quorum() bool {
	if len(rm.m) < 2 {
		return false
	}
	for _, ready := range rm.m {
		if !ready {
			return false
		}
	}
	return true
}

// Lines renders the roster one participant per line.
func (rm *ReadinessMap) Lines() []string {
	entries := rm.Entries()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		state := "NOT READY"
		if e.Ready {
			state = "READY"
		}
		lines = append(lines, fmt.Sprintf("PLAYER_%s : %s", e.ParticipantID, state))
	}
	return lines
}
