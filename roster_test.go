package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterAddAndLookup(t *testing.T) {
	r := newRoster()
	p := r.Add("c1", "alice")

	assert.Equal(t, 1, r.Len())
	assert.Same(t, p, r.ByID("c1"))
	assert.Same(t, p, r.ByName("alice"))
	assert.Nil(t, r.ByID("nope"))
	assert.Nil(t, r.ByName("nope"))
}

func TestRosterRemoveKeepsOrder(t *testing.T) {
	r := newRoster()
	r.Add("c1", "alice")
	r.Add("c2", "bob")
	r.Add("c3", "carol")

	require.True(t, r.Remove("c2"))
	assert.False(t, r.Remove("c2"))

	players := r.Players()
	require.Len(t, players, 2)
	assert.Equal(t, "alice", players[0].Name)
	assert.Equal(t, "carol", players[1].Name)
}

func TestRosterRebind(t *testing.T) {
	r := newRoster()
	p := r.Add("c1", "alice")
	p.Score = 1500
	r.MarkDisconnected("c1")
	require.True(t, p.Disconnected)

	r.Rebind(p, "c9")

	assert.False(t, p.Disconnected)
	assert.Same(t, p, r.ByID("c9"))
	assert.Nil(t, r.ByID("c1"))
	assert.Equal(t, 1500, p.Score, "score survives the rebind")
	assert.Equal(t, 1, r.Len(), "rebinding never duplicates the player")
}

func TestRosterActive(t *testing.T) {
	r := newRoster()
	r.Add("c1", "alice")
	r.Add("c2", "bob")
	r.MarkDisconnected("c1")

	active := r.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "bob", active[0].Name)
}

func TestStandingsStableTieBreak(t *testing.T) {
	r := newRoster()
	a := r.Add("c1", "alice")
	b := r.Add("c2", "bob")
	c := r.Add("c3", "carol")

	a.Score = 500
	b.Score = 1000
	c.Score = 500

	ranked := r.Standings()
	require.Len(t, ranked, 3)
	assert.Equal(t, "bob", ranked[0].Name)
	assert.Equal(t, "alice", ranked[1].Name, "equal scores keep join order")
	assert.Equal(t, "carol", ranked[2].Name)

	// Standings is a snapshot; the roster itself stays join-ordered.
	assert.Equal(t, "alice", r.Players()[0].Name)
}
