package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string {
	return &s
}

func sessionWithPlayers(t *testing.T, names ...string) *Session {
	t.Helper()
	s := newSession(Settings{Rounds: 2, AnswerTime: 30, VoteTime: 20})
	for i, name := range names {
		s.Roster.Add("conn-"+string(rune('a'+i)), name)
	}
	return s
}

func TestPromptsPerRound(t *testing.T) {
	cases := []struct {
		players int
		want    int
	}{
		{0, 1},
		{1, 1},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
		{6, 3},
		{10, 3},
	}

	for _, tc := range cases {
		s := newSession(Settings{Rounds: 1, AnswerTime: 30, VoteTime: 20})
		for i := 0; i < tc.players; i++ {
			s.Roster.Add("id"+string(rune('a'+i)), "p"+string(rune('a'+i)))
		}
		assert.Equal(t, tc.want, s.PromptsPerRound(), "players=%d", tc.players)
	}
}

func TestBeginAnsweringResetsCollections(t *testing.T) {
	s := sessionWithPlayers(t, "alice", "bob")
	s.Prompts = []string{"p1", "p2"}

	s.BeginAnswering(time.Now())
	require.True(t, s.RecordAnswer("conn-a", "one"))
	require.True(t, s.RecordVote("conn-a", nil))

	s.PromptIdx++
	s.BeginAnswering(time.Now())

	assert.Empty(t, s.Answers)
	assert.Empty(t, s.Votes)
	assert.Equal(t, PhaseAnswering, s.Phase)
}

func TestRecordAnswerFirstWriteWins(t *testing.T) {
	s := sessionWithPlayers(t, "alice")
	s.BeginAnswering(time.Now())

	require.True(t, s.RecordAnswer("conn-a", "first"))
	assert.False(t, s.RecordAnswer("conn-a", "second"))
	assert.Equal(t, "first", s.Answers["conn-a"])
}

func TestAllAnsweredIgnoresDisconnected(t *testing.T) {
	s := sessionWithPlayers(t, "alice", "bob", "carol")
	s.BeginAnswering(time.Now())

	s.Roster.MarkDisconnected("conn-c")

	require.True(t, s.RecordAnswer("conn-a", "x"))
	assert.False(t, s.AllAnswered())

	require.True(t, s.RecordAnswer("conn-b", "y"))
	assert.True(t, s.AllAnswered())
}

func TestAllAnsweredEmptyRoster(t *testing.T) {
	s := newSession(Settings{Rounds: 1, AnswerTime: 30, VoteTime: 20})
	s.BeginAnswering(time.Now())
	assert.False(t, s.AllAnswered())
	assert.False(t, s.AllVoted())
}

func TestFillMissingAnswersPlaceholders(t *testing.T) {
	s := sessionWithPlayers(t, "alice", "bob", "carol")
	s.Prompts = []string{"prompt"}
	s.BeginAnswering(time.Now())

	require.True(t, s.RecordAnswer("conn-a", "real answer"))
	s.Roster.MarkDisconnected("conn-c")

	s.FillMissingAnswers()

	assert.Equal(t, "real answer", s.Answers["conn-a"])
	assert.Equal(t, answerMissing, s.Answers["conn-b"])
	assert.Equal(t, answerDisconnected, s.Answers["conn-c"])

	// The silent player's placeholder is votable; the disconnected one is not.
	answers := s.EligibleAnswers()
	require.Len(t, answers, 2)
	assert.Equal(t, "conn-a", answers[0].PlayerID)
	assert.Equal(t, "conn-b", answers[1].PlayerID)
}

func TestRebindIDMovesPromptState(t *testing.T) {
	s := sessionWithPlayers(t, "alice", "bob", "carol")
	s.Prompts = []string{"prompt"}
	s.BeginAnswering(time.Now())

	require.True(t, s.RecordAnswer("conn-b", "bob's answer"))
	require.True(t, s.RecordVote("conn-a", strptr("conn-b")))
	require.True(t, s.RecordVote("conn-b", nil))

	s.RebindID("conn-b", "conn-z")

	assert.NotContains(t, s.Answers, "conn-b")
	assert.Equal(t, "bob's answer", s.Answers["conn-z"])
	assert.NotContains(t, s.Votes, "conn-b")
	require.Contains(t, s.Votes, "conn-z")
	assert.Nil(t, s.Votes["conn-z"])
	require.NotNil(t, s.Votes["conn-a"])
	assert.Equal(t, "conn-z", *s.Votes["conn-a"])
}

func TestRebindIDDropsDisconnectPlaceholder(t *testing.T) {
	s := sessionWithPlayers(t, "alice", "bob")
	s.Prompts = []string{"prompt"}
	s.BeginAnswering(time.Now())

	s.Roster.MarkDisconnected("conn-b")
	s.FillMissingAnswers()
	require.Equal(t, answerDisconnected, s.Answers["conn-b"])

	// The returning player gets to answer for real under the new id.
	s.RebindID("conn-b", "conn-z")

	assert.NotContains(t, s.Answers, "conn-b")
	assert.NotContains(t, s.Answers, "conn-z")
	require.True(t, s.RecordAnswer("conn-z", "late but real"))
}

func TestTallyAwardsPointsPerVote(t *testing.T) {
	s := sessionWithPlayers(t, "alice", "bob", "carol")
	s.Prompts = []string{"prompt"}
	s.BeginAnswering(time.Now())

	require.True(t, s.RecordAnswer("conn-a", "A"))
	require.True(t, s.RecordAnswer("conn-b", "B"))
	require.True(t, s.RecordAnswer("conn-c", "C"))

	s.enterPhase(PhaseVoting, time.Now())
	require.True(t, s.RecordVote("conn-b", strptr("conn-a")))
	require.True(t, s.RecordVote("conn-c", strptr("conn-a")))
	require.True(t, s.RecordVote("conn-a", strptr("conn-b")))

	payload := s.Tally()

	alice := s.Roster.ByID("conn-a")
	bob := s.Roster.ByID("conn-b")
	carol := s.Roster.ByID("conn-c")

	assert.Equal(t, 1000, alice.Score)
	assert.Equal(t, 500, bob.Score)
	assert.Equal(t, 0, carol.Score)

	assert.Equal(t, 0, alice.PrevScore)
	assert.Equal(t, 0, bob.PrevScore)

	assert.Equal(t, 1000, payload.Scores["conn-a"])
	require.NotNil(t, payload.Recap.Winner)
	assert.Equal(t, "alice", payload.Recap.Winner.Name)
	assert.Equal(t, "A", payload.Recap.Winner.Answer)
	require.Len(t, s.Recap, 1)
}

func TestTallyTieBreakJoinOrder(t *testing.T) {
	s := sessionWithPlayers(t, "alice", "bob")
	s.Prompts = []string{"prompt"}
	s.BeginAnswering(time.Now())

	require.True(t, s.RecordAnswer("conn-a", "A"))
	require.True(t, s.RecordAnswer("conn-b", "B"))

	s.enterPhase(PhaseVoting, time.Now())
	require.True(t, s.RecordVote("conn-a", strptr("conn-b")))
	require.True(t, s.RecordVote("conn-b", strptr("conn-a")))

	payload := s.Tally()

	require.NotNil(t, payload.Recap.Winner)
	assert.Equal(t, "alice", payload.Recap.Winner.Name)
}

func TestTallyAllAbstainedNoWinner(t *testing.T) {
	s := sessionWithPlayers(t, "alice", "bob")
	s.Prompts = []string{"prompt"}
	s.BeginAnswering(time.Now())

	require.True(t, s.RecordAnswer("conn-a", "A"))
	require.True(t, s.RecordAnswer("conn-b", "B"))

	s.enterPhase(PhaseVoting, time.Now())
	require.True(t, s.RecordVote("conn-a", nil))
	require.True(t, s.RecordVote("conn-b", nil))

	payload := s.Tally()

	assert.Nil(t, payload.Recap.Winner)
	assert.Equal(t, 0, s.Roster.ByID("conn-a").Score)
	assert.Equal(t, 0, s.Roster.ByID("conn-b").Score)
}

func TestTallyScoresAccumulate(t *testing.T) {
	s := sessionWithPlayers(t, "alice", "bob")
	s.Prompts = []string{"p1", "p2"}

	for i := 0; i < 2; i++ {
		s.BeginAnswering(time.Now())
		require.True(t, s.RecordAnswer("conn-a", "A"))
		require.True(t, s.RecordAnswer("conn-b", "B"))
		s.enterPhase(PhaseVoting, time.Now())
		require.True(t, s.RecordVote("conn-b", strptr("conn-a")))
		require.True(t, s.RecordVote("conn-a", nil))
		s.Tally()
		s.PromptIdx++
	}

	alice := s.Roster.ByID("conn-a")
	assert.Equal(t, 1000, alice.Score)
	assert.Equal(t, 500, alice.PrevScore)
}

func TestExhausted(t *testing.T) {
	s := sessionWithPlayers(t, "alice", "bob", "carol")
	s.Settings.Rounds = 2
	s.Prompts = []string{"1", "2", "3", "4"}

	assert.False(t, s.Exhausted())

	s.PromptIdx = 3
	assert.False(t, s.Exhausted())

	s.PromptIdx = 4
	assert.True(t, s.Exhausted(), "prompt list ran out")

	s.Prompts = []string{"1", "2", "3", "4", "5", "6"}
	assert.True(t, s.Exhausted(), "next prompt would start round 3 of 2")
}

func TestEnterPhaseBumpsVersion(t *testing.T) {
	s := sessionWithPlayers(t, "alice")
	v := s.Version
	s.enterPhase(PhaseVoting, time.Now())
	assert.Equal(t, v+1, s.Version)
	s.enterPhase(PhaseResults, time.Now())
	assert.Equal(t, v+2, s.Version)
}
