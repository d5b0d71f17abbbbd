package ships

import "sort"

// ShipView is a ship as its owner sees it.
type ShipView struct {
	Name     string `json:"name"`
	Size     Size   `json:"size"`
	Position Cell   `json:"position"`
	Hits     []Cell `json:"hits"`
	Alive    bool   `json:"alive"`
}

// SunkView is an enemy ship that has been sunk, which reveals its outline.
type SunkView struct {
	Name     string `json:"name"`
	Size     Size   `json:"size"`
	Position Cell   `json:"position"`
}

// PlayerView is what one player is allowed to know about the match.
type PlayerView struct {
	Seat         int        `json:"seat"`
	Phase        string     `json:"phase"`
	ActivePlayer int        `json:"active_player"`
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	Spacing      Spacing    `json:"spacing"`
	Fleet        []ShipView `json:"fleet"`
	Unused       []Size     `json:"unused"`
	// Incoming are the opponent's misses on this player's waters.
	Incoming []Cell `json:"incoming"`
	// Hits and Misses are this player's shots at the opponent. Hits are in
	// row order so they do not tell which cells share a ship.
	Hits          []Cell     `json:"hits"`
	Misses        []Cell     `json:"misses"`
	SunkEnemies   []SunkView `json:"sunk_enemies"`
	EnemyUnplaced int        `json:"enemy_unplaced"`
}

func (b *Board) View(player int) PlayerView {
	opp := Opponent(player)
	v := PlayerView{
		Seat:          player,
		Phase:         b.Phase().String(),
		ActivePlayer:  b.active,
		Width:         b.rules.Width,
		Height:        b.rules.Height,
		Spacing:       b.rules.Spacing,
		Fleet:         []ShipView{},
		Unused:        append([]Size{}, b.unused[player]...),
		Incoming:      append([]Cell{}, b.misses[opp]...),
		Hits:          []Cell{},
		Misses:        append([]Cell{}, b.misses[player]...),
		SunkEnemies:   []SunkView{},
		EnemyUnplaced: len(b.unused[opp]),
	}
	for _, s := range b.ships[player] {
		hits := make([]Cell, 0, len(s.destroyed))
		for _, off := range s.destroyed {
			hits = append(hits, s.Position.Add(off))
		}
		v.Fleet = append(v.Fleet, ShipView{Name: s.Name, Size: s.Size, Position: s.Position, Hits: hits, Alive: s.Alive()})
	}
	for _, s := range b.ships[opp] {
		for _, off := range s.destroyed {
			v.Hits = append(v.Hits, s.Position.Add(off))
		}
		if !s.Alive() {
			v.SunkEnemies = append(v.SunkEnemies, SunkView{Name: s.Name, Size: s.Size, Position: s.Position})
		}
	}
	sort.Slice(v.Hits, func(i, j int) bool {
		if v.Hits[i].Y != v.Hits[j].Y {
			return v.Hits[i].Y < v.Hits[j].Y
		}
		return v.Hits[i].X < v.Hits[j].X
	})
	return v
}
