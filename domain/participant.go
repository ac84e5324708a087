// Package domain contains core concepts of the messaging core.
// This file defines Participant identifiers and the closed Roster.
// No runtime, storage, or UI logic should be added here.
package domain

import (
	"fmt"
	"regexp"
	"sort"
)

// Participant identifies one member of the closed participant set.
type Participant string

// System is the reserved pseudo-sender used for system broadcasts.
// It is never part of a Roster and is exempt from membership checks.
const System Participant = "system"

// identifierPattern excludes the DM name delimiter '-' so canonical
// channel names can never collide with participant identifiers.
var identifierPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Roster is the immutable, closed set of recognized participants.
// It is injected at construction time, never hardcoded in core logic.
type Roster struct {
	members map[Participant]struct{}
	sorted  []Participant
}

func NewRoster(members ...Participant) (Roster, error) {
	if len(members) == 0 {
		return Roster{}, fmt.Errorf("roster requires at least one participant")
	}
	set := make(map[Participant]struct{}, len(members))
	for _, m := range members {
		if m == System {
			return Roster{}, fmt.Errorf("participant %q is reserved", System)
		}
		if !identifierPattern.MatchString(string(m)) {
			return Roster{}, fmt.Errorf("invalid participant identifier %q", m)
		}
		set[m] = struct{}{}
	}
	sorted := make([]Participant, 0, len(set))
	for m := range set {
		sorted = append(sorted, m)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return Roster{members: set, sorted: sorted}, nil
}

func (r Roster) Contains(p Participant) bool {
	_, ok := r.members[p]
	return ok
}

// Members returns the participants in lexicographic order.
func (r Roster) Members() []Participant {
	out := make([]Participant, len(r.sorted))
	copy(out, r.sorted)
	return out
}

// Pairs returns every unordered pair of the roster, each pair sorted.
func (r Roster) Pairs() [][2]Participant {
	var pairs [][2]Participant
	for i := 0; i < len(r.sorted); i++ {
		for j := i + 1; j < len(r.sorted); j++ {
			pairs = append(pairs, [2]Participant{r.sorted[i], r.sorted[j]})
		}
	}
	return pairs
}

func (r Roster) Len() int { return len(r.sorted) }
