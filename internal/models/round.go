// internal/models/round.go
package models

// Round records what each player did in one pass around the active roster.
//
// Scores only holds entries for players who have acted this round. A missing key
// means "not yet played"; a zero value is a real score (star turns record 0).
type Round struct {
	RoundNum          int         `json:"roundNum"`
	Scores            map[int]int `json:"scores"`
	StarsAwarded      map[int]int `json:"starsAwarded"`
	IsTieBreaker      bool        `json:"isTieBreaker,omitempty"`
	TieBreakPlayerIDs []int       `json:"tieBreakPlayerIds,omitempty"`
}

// NewRound returns an empty round record.
func NewRound(num int) *Round {
	return &Round{
		RoundNum:     num,
		Scores:       make(map[int]int),
		StarsAwarded: make(map[int]int),
	}
}

// NewTieBreakRound returns an empty round restricted to the given players.
func NewTieBreakRound(num int, players []*Player) *Round {
	r := NewRound(num)
	r.IsTieBreaker = true
	r.TieBreakPlayerIDs = make([]int, 0, len(players))
	for _, p := range players {
		r.TieBreakPlayerIDs = append(r.TieBreakPlayerIDs, p.ID)
	}
	return r
}

// Score returns the recorded score for a player and whether one is present.
func (r *Round) Score(playerID int) (int, bool) {
	v, ok := r.Scores[playerID]
	return v, ok
}

func (r *Round) ensureMaps() {
	if r.Scores == nil {
		r.Scores = make(map[int]int)
	}
	if r.StarsAwarded == nil {
		r.StarsAwarded = make(map[int]int)
	}
}

func (r *Round) clone() *Round {
	c := NewRound(r.RoundNum)
	for k, v := range r.Scores {
		c.Scores[k] = v
	}
	for k, v := range r.StarsAwarded {
		c.StarsAwarded[k] = v
	}
	c.IsTieBreaker = r.IsTieBreaker
	if r.TieBreakPlayerIDs != nil {
		c.TieBreakPlayerIDs = append([]int(nil), r.TieBreakPlayerIDs...)
	}
	return c
}
