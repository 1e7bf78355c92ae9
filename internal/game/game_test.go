package game

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/valeofeternity/vale-rooms/pkg/contract"
)

func roster(names ...string) []contract.Identity {
	out := make([]contract.Identity, 0, len(names))
	for i, n := range names {
		out = append(out, contract.Identity{UserID: string(rune('A' + i)), Username: n})
	}
	return out
}

func TestBootstrapSeatsInJoinOrder(t *testing.T) {
	members := roster("alice", "bob", "cara")

	st, err := Bootstrap(members, "B")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if len(st.Players) != 3 {
		t.Fatalf("want 3 seats, got %d", len(st.Players))
	}
	for i, m := range members {
		if st.Players[i].ID != m.UserID {
			t.Fatalf("seat %d: want %s, got %s", i, m.UserID, st.Players[i].ID)
		}
	}
	if !st.Players[0].IsFirstPlayer {
		t.Fatal("seat 0 must be first player")
	}
	if st.Players[1].IsFirstPlayer || st.Players[2].IsFirstPlayer {
		t.Fatal("only seat 0 may be first player")
	}
	if st.ActivePlayerID != st.Players[0].ID {
		t.Fatalf("initial turn owner must be seat 0, got %s", st.ActivePlayerID)
	}
	if st.MyPlayerID != "B" {
		t.Fatalf("MyPlayerID: want B, got %s", st.MyPlayerID)
	}
	if st.Round != 1 || st.Phase != PhaseHunting {
		t.Fatalf("opening round/phase wrong: %d %s", st.Round, st.Phase)
	}
}

func TestBootstrapIsDeterministic(t *testing.T) {
	members := roster("alice", "bob", "cara", "dan", "eve")

	first, err := Bootstrap(members, "A")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	second, err := Bootstrap(members, "A")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("two bootstraps of the same roster must be element-wise identical")
	}

	// palette cycles past four seats
	if first.Players[4].Color != first.Players[0].Color {
		t.Fatalf("seat 4 should wrap to seat 0's color, got %s vs %s",
			first.Players[4].Color, first.Players[0].Color)
	}
}

func TestBootstrapMissingLocalIdentityIsFatal(t *testing.T) {
	_, err := Bootstrap(roster("alice", "bob"), "nope")
	var snf *SeatNotFoundError
	if !errors.As(err, &snf) {
		t.Fatalf("want *SeatNotFoundError, got %v", err)
	}
	if snf.UserID != "nope" {
		t.Fatalf("error should carry the missing id, got %q", snf.UserID)
	}
}

func TestFilterHandsEmptiesOpponentsOnly(t *testing.T) {
	st, err := Bootstrap(roster("alice", "bob", "cara"), "B")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	// simulate an (incorrectly) leaky authoritative push
	for i := range st.Players {
		st.Players[i].Hand = []Card{{ID: 7, Name: "Salamander", Family: FamilyFire}}
		st.Players[i].HandCount = 1
	}

	filtered := st.FilterHands("B")
	for _, p := range filtered.Players {
		if p.ID == "B" {
			if len(p.Hand) != 1 {
				t.Fatal("local hand must survive the filter")
			}
			continue
		}
		if len(p.Hand) != 0 {
			t.Fatalf("seat %s still holds a hand after filtering", p.ID)
		}
		if p.HandCount != 1 {
			t.Fatalf("seat %s lost its hand count", p.ID)
		}
	}
	// original untouched
	if len(st.Players[0].Hand) != 1 {
		t.Fatal("FilterHands must not mutate its receiver")
	}
}

func TestBuildWaitingState(t *testing.T) {
	detail := &contract.RoomDetail{Players: roster("alice", "bob")}
	st := BuildWaitingState(detail)

	if len(st.Players) != 2 {
		t.Fatalf("want 2 seats, got %d", len(st.Players))
	}
	if st.ActivePlayerID != "" || st.Round != 0 {
		t.Fatal("waiting state must have no active turn and no round")
	}
	if len(st.BoardZones) != len(Families) {
		t.Fatalf("want %d empty zones, got %d", len(Families), len(st.BoardZones))
	}
	for _, z := range st.BoardZones {
		if len(z.Cards) != 0 {
			t.Fatalf("zone %s not empty", z.Family)
		}
	}

	if got := BuildWaitingState(nil); len(got.Players) != 0 {
		t.Fatal("nil detail must yield an empty table")
	}
}

func TestScoreJSON(t *testing.T) {
	cases := []struct {
		in   string
		want Score
	}{
		{`3`, Score{Value: 3}},
		{`"dynamic"`, Score{Dynamic: true}},
	}
	for _, tc := range cases {
		var s Score
		if err := json.Unmarshal([]byte(tc.in), &s); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if s != tc.want {
			t.Fatalf("unmarshal %s: want %+v, got %+v", tc.in, tc.want, s)
		}
		out, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(out) != tc.in {
			t.Fatalf("round trip %s -> %s", tc.in, out)
		}
	}

	var s Score
	if err := json.Unmarshal([]byte(`"huge"`), &s); err == nil {
		t.Fatal("arbitrary strings must be rejected")
	}
}

func TestStoneCountValue(t *testing.T) {
	s := StoneCount{Red: 2, Blue: 1, Purple: 1}
	if s.Total() != 4 {
		t.Fatalf("total: want 4, got %d", s.Total())
	}
	if s.Value() != 11 {
		t.Fatalf("value: want 11, got %d", s.Value())
	}
}
