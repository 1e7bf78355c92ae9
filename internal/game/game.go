// Package game holds the client-side game state types and the bootstrap
// that turns a room roster into per-seat state when a game begins.
//
// The rules engine itself (drafting, summoning, scoring) lives behind the
// server: this package only builds the initial seat layout and enforces
// hand visibility on whatever authoritative state arrives afterwards.
package game

import (
	"encoding/json"
	"fmt"

	"github.com/valeofeternity/vale-rooms/pkg/contract"
)

type Family string

const (
	FamilyFire   Family = "fire"
	FamilyWater  Family = "water"
	FamilyEarth  Family = "earth"
	FamilyWind   Family = "wind"
	FamilyDragon Family = "dragon"
)

// Families in board order.
var Families = []Family{FamilyFire, FamilyWater, FamilyEarth, FamilyWind, FamilyDragon}

type Phase string

const (
	PhaseHunting    Phase = "hunting"
	PhaseAction     Phase = "action"
	PhaseResolution Phase = "resolution"
)

type EffectType string

const (
	EffectInstant    EffectType = "instant"
	EffectPermanent  EffectType = "permanent"
	EffectResolution EffectType = "resolution"
)

type SeatColor string

const (
	ColorPurple SeatColor = "purple"
	ColorGreen  SeatColor = "green"
	ColorBlack  SeatColor = "black"
	ColorGray   SeatColor = "gray"
)

// seatPalette is cycled by join index when a roster exceeds it.
var seatPalette = []SeatColor{ColorPurple, ColorGreen, ColorBlack, ColorGray}

// Score is a card's printed score: either a fixed number or "dynamic" for
// cards whose value depends on game state at resolution time.
type Score struct {
	Value   int
	Dynamic bool
}

func (s Score) MarshalJSON() ([]byte, error) {
	if s.Dynamic {
		return json.Marshal("dynamic")
	}
	return json.Marshal(s.Value)
}

func (s *Score) UnmarshalJSON(b []byte) error {
	if string(b) == `"dynamic"` {
		*s = Score{Dynamic: true}
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("score must be a number or \"dynamic\": %w", err)
	}
	*s = Score{Value: v}
	return nil
}

type Card struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	Family     Family     `json:"family"`
	Cost       int        `json:"cost"`
	Score      Score      `json:"score"`
	EffectType EffectType `json:"effectType"`
}

// StoneCount tracks the three stone denominations: red worth 1, blue
// worth 3, purple worth 6.
type StoneCount struct {
	Red    int `json:"red"`
	Blue   int `json:"blue"`
	Purple int `json:"purple"`
}

func (s StoneCount) Total() int {
	return s.Red + s.Blue + s.Purple
}

func (s StoneCount) Value() int {
	return s.Red + s.Blue*3 + s.Purple*6
}

// Player is one seat at the table, derived from a roster entry. Hand is
// populated only for the seat owned by the local identity; every other
// seat carries an empty hand and exposes HandCount instead. That is a
// confidentiality rule, not a rendering shortcut.
type Player struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Color         SeatColor  `json:"color"`
	Score         int        `json:"score"`
	Stones        StoneCount `json:"stones"`
	SummonedCards []Card     `json:"summonedCards"`
	Hand          []Card     `json:"hand"`
	HandCount     int        `json:"handCount"`
	IsFirstPlayer bool       `json:"isFirstPlayer"`
	IsCurrentTurn bool       `json:"isCurrentTurn"`
}

type FamilyZone struct {
	Family Family `json:"family"`
	Cards  []Card `json:"cards"`
}

// State is the full table view for one client.
type State struct {
	Round            int          `json:"round"`
	Phase            Phase        `json:"phase"`
	ActivePlayerID   string       `json:"activePlayerId"`
	MyPlayerID       string       `json:"myPlayerId"`
	Players          []Player     `json:"players"`
	BoardZones       []FamilyZone `json:"boardZones"`
	DrawPileCount    int          `json:"drawPileCount"`
	DiscardPileCount int          `json:"discardPileCount"`
}

// SeatNotFoundError reports a roster that does not contain the local
// identity. That only happens when the client has desynchronized from the
// server and must be treated as fatal to the room session.
type SeatNotFoundError struct {
	UserID string
}

func (e *SeatNotFoundError) Error() string {
	return fmt.Sprintf("game: local identity %s not found in roster", e.UserID)
}

func emptyZones() []FamilyZone {
	zones := make([]FamilyZone, 0, len(Families))
	for _, f := range Families {
		zones = append(zones, FamilyZone{Family: f, Cards: []Card{}})
	}
	return zones
}

func seatFor(p contract.Identity, index int) Player {
	return Player{
		ID:            p.UserID,
		Username:      p.Username,
		Color:         seatPalette[index%len(seatPalette)],
		Stones:        StoneCount{},
		SummonedCards: []Card{},
		Hand:          []Card{},
		IsFirstPlayer: index == 0,
	}
}

// BuildWaitingState builds the pre-game table: seats in join order with
// colors assigned, no cards, no stones, no active turn. Rebuilt whenever
// the roster changes while the room is still waiting, so new joiners show
// up immediately.
func BuildWaitingState(detail *contract.RoomDetail) State {
	var players []Player
	if detail != nil {
		players = make([]Player, 0, len(detail.Players))
		for i, p := range detail.Players {
			players = append(players, seatFor(p, i))
		}
	}
	return State{
		Players:    players,
		BoardZones: emptyZones(),
	}
}

// Bootstrap builds the initial in-progress state from a roster. Seat
// assignment is deterministic: seats follow join order, the first entry is
// the first player and the initial turn owner. Every seat other than the
// local one has an empty hand no matter what. If myUserID is absent from
// the roster the client is desynchronized and a *SeatNotFoundError is
// returned.
func Bootstrap(rosterMembers []contract.Identity, myUserID string) (State, error) {
	found := false
	players := make([]Player, 0, len(rosterMembers))
	for i, m := range rosterMembers {
		seat := seatFor(m, i)
		seat.IsCurrentTurn = i == 0
		players = append(players, seat)
		if m.UserID == myUserID {
			found = true
		}
	}
	if !found {
		return State{}, &SeatNotFoundError{UserID: myUserID}
	}

	st := State{
		Round:      1,
		Phase:      PhaseHunting,
		MyPlayerID: myUserID,
		Players:    players,
		BoardZones: emptyZones(),
	}
	if len(players) > 0 {
		st.ActivePlayerID = players[0].ID
	}
	return st, nil
}

// FilterHands returns a copy of the state with every hand other than
// myUserID's emptied. Authoritative server pushes run through this before
// adoption so an opponent's hand never exists in local state, even
// transiently.
func (s State) FilterHands(myUserID string) State {
	out := s
	out.Players = make([]Player, len(s.Players))
	copy(out.Players, s.Players)
	for i := range out.Players {
		if out.Players[i].ID != myUserID {
			out.Players[i].Hand = []Card{}
		}
	}
	return out
}
