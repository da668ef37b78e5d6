package main

import "sort"

// Roster is the canonical, join-ordered list of players for one room. Join
// order is load-bearing: vote tallies, tie-breaks and equal-score rankings
// all iterate the roster slice so results never depend on map iteration.
type Roster struct {
	players []*Player
}

// Player is the server-side record for one participant. Records are created
// on first valid lobby join and never destroyed mid-game; a reconnecting
// player is matched by name and has its ID re-bound to the new connection.
type Player struct {
	ID           string
	Name         string
	Score        int
	PrevScore    int
	Disconnected bool
}

func newRoster() *Roster {
	return &Roster{}
}

func (r *Roster) Len() int {
	return len(r.players)
}

// Players returns the roster in join order. Callers must not reorder it.
func (r *Roster) Players() []*Player {
	return r.players
}

func (r *Roster) ByID(id string) *Player {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Roster) ByName(name string) *Player {
	for _, p := range r.players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Add appends a new player bound to the given connection id.
func (r *Roster) Add(id, name string) *Player {
	p := &Player{ID: id, Name: name}
	r.players = append(r.players, p)
	return p
}

// Remove deletes the player bound to id. Only legal while the session is in
// the lobby; mid-game departures are flagged via MarkDisconnected instead.
func (r *Roster) Remove(id string) bool {
	dst := r.players[:0]
	removed := false
	for _, p := range r.players {
		if p.ID == id {
			removed = true
			continue
		}
		dst = append(dst, p)
	}
	r.players = dst
	return removed
}

func (r *Roster) MarkDisconnected(id string) *Player {
	p := r.ByID(id)
	if p != nil {
		p.Disconnected = true
	}
	return p
}

// Rebind points an existing player record at a new connection id and clears
// its disconnected flag. Used when a player rejoins mid-game.
func (r *Roster) Rebind(p *Player, newID string) {
	p.ID = newID
	p.Disconnected = false
}

// Active returns the non-disconnected players, in join order.
func (r *Roster) Active() []*Player {
	active := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		if !p.Disconnected {
			active = append(active, p)
		}
	}
	return active
}

// Standings returns the players ranked by descending score. The sort is
// stable, so equal scores keep join order as the tie-break.
func (r *Roster) Standings() []*Player {
	ranked := make([]*Player, len(r.players))
	copy(ranked, r.players)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Infos snapshots the given players into their wire representation.
func playerInfos(players []*Player) []PlayerInfo {
	infos := make([]PlayerInfo, 0, len(players))
	for _, p := range players {
		infos = append(infos, PlayerInfo{
			ID:           p.ID,
			Name:         p.Name,
			Score:        p.Score,
			PrevScore:    p.PrevScore,
			Disconnected: p.Disconnected,
		})
	}
	return infos
}
