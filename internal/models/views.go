package models

import "sort"

// Standing is one line of the final (or running) leaderboard.
type Standing struct {
	PlayerID int    `json:"playerId"`
	Name     string `json:"name"`
	Total    int    `json:"total"`
	Stars    int    `json:"stars"`
}

// HistoryCell is one player's entry for one round. Played is false when no score is recorded.
type HistoryCell struct {
	PlayerID     int  `json:"playerId"`
	Played       bool `json:"played"`
	Score        int  `json:"score"`
	StarsAwarded int  `json:"starsAwarded,omitempty"`
}

// HistoryRow is one round of the score sheet. RoundIndex is the index accepted by edit/delete.
type HistoryRow struct {
	RoundIndex   int           `json:"roundIndex"`
	RoundNum     int           `json:"roundNum"`
	IsTieBreaker bool          `json:"isTieBreaker,omitempty"`
	Cells        []HistoryCell `json:"cells"`
}

// History is the full score sheet with a totals row.
type History struct {
	Players []*Player    `json:"players"`
	Rows    []HistoryRow `json:"rows"`
	Totals  map[int]int  `json:"totals"`
}

// Standings returns players ordered by cumulative total, highest first.
// Equal totals keep setup order.
func (s *GameState) Standings() []Standing {
	out := make([]Standing, 0, len(s.Players))
	for _, p := range s.Players {
		out = append(out, Standing{
			PlayerID: p.ID,
			Name:     p.Name,
			Total:    s.CumulativeTotal(p.ID),
			Stars:    p.Stars,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total > out[j].Total
	})
	return out
}

// History builds the round-by-round score sheet.
func (s *GameState) History() History {
	h := History{
		Players: s.Players,
		Rows:    make([]HistoryRow, 0, len(s.Rounds)),
		Totals:  make(map[int]int, len(s.Players)),
	}
	for i, r := range s.Rounds {
		row := HistoryRow{
			RoundIndex:   i,
			RoundNum:     r.RoundNum,
			IsTieBreaker: r.IsTieBreaker,
			Cells:        make([]HistoryCell, 0, len(s.Players)),
		}
		for _, p := range s.Players {
			score, played := r.Score(p.ID)
			row.Cells = append(row.Cells, HistoryCell{
				PlayerID:     p.ID,
				Played:       played,
				Score:        score,
				StarsAwarded: r.StarsAwarded[p.ID],
			})
		}
		h.Rows = append(h.Rows, row)
	}
	for _, p := range s.Players {
		h.Totals[p.ID] = s.CumulativeTotal(p.ID)
	}
	return h
}
