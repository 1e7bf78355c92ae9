// Package roster computes membership deltas between two snapshots of a
// room's player list. The server never sends an explicit "who changed"
// message; join/leave notifications are derived here instead.
package roster

import "github.com/valeofeternity/vale-rooms/pkg/contract"

// Delta is the outcome of comparing two rosters. Joined and Left hold the
// identities as they appear in the newer and older roster respectively,
// preserving those rosters' orders. A rapid rejoin (same id on both sides
// of the comparison window) reports in neither set because the id is
// present in both rosters.
type Delta struct {
	Joined []contract.Identity
	Left   []contract.Identity
}

// Empty reports whether the delta carries no membership change.
func (d Delta) Empty() bool {
	return len(d.Joined) == 0 && len(d.Left) == 0
}

// Diff compares previous and next by UserID only. Username changes and
// reordering do not register as membership changes. Pure: same inputs,
// same output, no mutation of either slice.
func Diff(previous, next []contract.Identity) Delta {
	prevIDs := make(map[string]struct{}, len(previous))
	for _, p := range previous {
		prevIDs[p.UserID] = struct{}{}
	}
	nextIDs := make(map[string]struct{}, len(next))
	for _, p := range next {
		nextIDs[p.UserID] = struct{}{}
	}

	var d Delta
	for _, p := range next {
		if _, ok := prevIDs[p.UserID]; !ok {
			d.Joined = append(d.Joined, p)
		}
	}
	for _, p := range previous {
		if _, ok := nextIDs[p.UserID]; !ok {
			d.Left = append(d.Left, p)
		}
	}
	return d
}
