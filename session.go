package main

import (
	"time"
)

// Phase is one state of the session state machine:
//
//	lobby → answering → voting → results → {scoreboard | answering} → winner
//
// Transitions are strictly sequential; the only skips are voting (fewer than
// two eligible answers) and the terminal jump to winner when prompts run out.
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseAnswering  Phase = "answering"
	PhaseVoting     Phase = "voting"
	PhaseResults    Phase = "results"
	PhaseScoreboard Phase = "scoreboard"
	PhaseWinner     Phase = "winner"
)

// Answer placeholders. The two are distinct on purpose: a silent player's
// "(no answer)" is still a votable entry, a disconnected player's is not.
const (
	answerMissing      = "(no answer)"
	answerDisconnected = "(disconnected)"
)

const pointsPerVote = 500

// Session is the authoritative game state for one room, owned exclusively by
// that room's event loop. No other goroutine touches it.
type Session struct {
	Phase    Phase
	Settings Settings
	Roster   *Roster

	Prompts   []string
	PromptIdx int
	Round     int

	// Version bumps on every phase transition. Deadline timers carry the
	// version they were armed under; a firing with a stale version is a no-op,
	// which makes "attempt phase advance" idempotent.
	Version int

	// Answers and Votes are keyed by player id and reset for every prompt.
	// A nil vote value is an explicit abstain.
	Answers map[string]string
	Votes   map[string]*string

	Recap      []RecapEntry
	PhaseStart time.Time
}

func newSession(settings Settings) *Session {
	return &Session{
		Phase:    PhaseLobby,
		Settings: settings,
		Roster:   newRoster(),
		Answers:  make(map[string]string),
		Votes:    make(map[string]*string),
	}
}

// PromptsPerRound derives the round-block length from the roster size.
func (s *Session) PromptsPerRound() int {
	n := (s.Roster.Len() + 1) / 2
	if n > 3 {
		n = 3
	}
	if n < 1 {
		n = 1
	}
	return n
}

// RoundPromptIdx is the 1-based position of the current prompt in its round.
func (s *Session) RoundPromptIdx() int {
	return s.PromptIdx%s.PromptsPerRound() + 1
}

func (s *Session) CurrentPrompt() string {
	if s.PromptIdx < 0 || s.PromptIdx >= len(s.Prompts) {
		return ""
	}
	return s.Prompts[s.PromptIdx]
}

// Exhausted reports whether there is no next prompt to play: either the
// prompt list ran out or the next prompt would start a round past the limit.
func (s *Session) Exhausted() bool {
	if s.PromptIdx >= len(s.Prompts) {
		return true
	}
	round := s.PromptIdx/s.PromptsPerRound() + 1
	return round > s.Settings.Rounds
}

// enterPhase records a transition, bumping the version so that any timer
// armed for the previous phase becomes a stale no-op.
func (s *Session) enterPhase(phase Phase, now time.Time) {
	s.Phase = phase
	s.Version++
	s.PhaseStart = now
}

// BeginAnswering resets the per-prompt collection maps and starts the
// answering phase for the current prompt index.
func (s *Session) BeginAnswering(now time.Time) {
	s.Answers = make(map[string]string)
	s.Votes = make(map[string]*string)
	s.Round = s.PromptIdx/s.PromptsPerRound() + 1
	s.enterPhase(PhaseAnswering, now)
}

// RecordAnswer stores a player's submission, first write wins. Returns false
// if the player already has an answer recorded (duplicate delivery).
func (s *Session) RecordAnswer(playerID, text string) bool {
	if _, ok := s.Answers[playerID]; ok {
		return false
	}
	s.Answers[playerID] = text
	return true
}

// RecordVote stores a voter's choice, first write wins. A nil target is an
// explicit abstain and still counts as a recorded vote.
func (s *Session) RecordVote(voterID string, target *string) bool {
	if _, ok := s.Votes[voterID]; ok {
		return false
	}
	s.Votes[voterID] = target
	return true
}

// RebindID moves per-prompt state recorded under a player's old connection
// id to the new one, so answers cast, votes cast, and votes received all
// survive a mid-phase reconnect. The disconnect placeholder is dropped
// rather than carried over: the player is back and may answer for real
// within the remaining window.
func (s *Session) RebindID(oldID, newID string) {
	if answer, ok := s.Answers[oldID]; ok {
		delete(s.Answers, oldID)
		if answer != answerDisconnected {
			s.Answers[newID] = answer
		}
	}
	if target, ok := s.Votes[oldID]; ok {
		delete(s.Votes, oldID)
		s.Votes[newID] = target
	}
	for voter, target := range s.Votes {
		if target != nil && *target == oldID {
			id := newID
			s.Votes[voter] = &id
		}
	}
}

// AllAnswered reports whether every active player has an answer recorded.
func (s *Session) AllAnswered() bool {
	active := s.Roster.Active()
	if len(active) == 0 {
		return false
	}
	for _, p := range active {
		if _, ok := s.Answers[p.ID]; !ok {
			return false
		}
	}
	return true
}

// AllVoted reports whether every active player has a vote recorded.
func (s *Session) AllVoted() bool {
	active := s.Roster.Active()
	if len(active) == 0 {
		return false
	}
	for _, p := range active {
		if _, ok := s.Votes[p.ID]; !ok {
			return false
		}
	}
	return true
}

// FillMissingAnswers backfills placeholders on deadline expiry: active
// players who stayed silent get a votable "(no answer)", disconnected
// players get the distinct marker that excludes them from voting.
func (s *Session) FillMissingAnswers() {
	for _, p := range s.Roster.Players() {
		if _, ok := s.Answers[p.ID]; ok {
			continue
		}
		if p.Disconnected {
			s.Answers[p.ID] = answerDisconnected
		} else {
			s.Answers[p.ID] = answerMissing
		}
	}
}

// EligibleAnswers returns the answers that may receive votes, in roster
// order: present, and not the disconnect placeholder.
func (s *Session) EligibleAnswers() []AnswerEntry {
	entries := make([]AnswerEntry, 0, s.Roster.Len())
	for _, p := range s.Roster.Players() {
		answer, ok := s.Answers[p.ID]
		if !ok || answer == answerDisconnected {
			continue
		}
		entries = append(entries, AnswerEntry{PlayerID: p.ID, Answer: answer})
	}
	return entries
}

// Tally counts non-abstain votes, awards points, and appends the recap
// entry. Counting and the highest-voted tie-break both walk the roster in
// join order, so the outcome is deterministic.
func (s *Session) Tally() ResultsPayload {
	counts := make(map[string]int)
	for _, target := range s.Votes {
		if target != nil {
			counts[*target]++
		}
	}

	scores := make(map[string]int, s.Roster.Len())
	for _, p := range s.Roster.Players() {
		p.PrevScore = p.Score
		p.Score += counts[p.ID] * pointsPerVote
		scores[p.ID] = p.Score
	}

	answers := s.EligibleAnswers()

	maxVotes := 0
	for _, n := range counts {
		if n > maxVotes {
			maxVotes = n
		}
	}

	entry := RecapEntry{Prompt: s.CurrentPrompt()}
	for _, a := range answers {
		p := s.Roster.ByID(a.PlayerID)
		name := "?"
		if p != nil {
			name = p.Name
		}
		entry.AllAnswers = append(entry.AllAnswers, RecapAnswer{
			Name:   name,
			Answer: a.Answer,
			Votes:  counts[a.PlayerID],
		})
	}
	if maxVotes > 0 {
		for _, p := range s.Roster.Players() {
			if counts[p.ID] != maxVotes {
				continue
			}
			winner := &RecapWinner{Name: p.Name}
			for _, a := range answers {
				if a.PlayerID == p.ID {
					winner.Answer = a.Answer
					break
				}
			}
			entry.Winner = winner
			break
		}
	}
	s.Recap = append(s.Recap, entry)

	votes := make(map[string]*string, len(s.Votes))
	for voter, target := range s.Votes {
		votes[voter] = target
	}

	return ResultsPayload{
		Prompt:  s.CurrentPrompt(),
		Answers: answers,
		Votes:   votes,
		Scores:  scores,
		Recap:   entry,
	}
}
