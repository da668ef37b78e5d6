package main

// buildSnapshot packages the authoritative state for a client that just
// re-bound to a disconnected player record: roster, settings, progress, the
// recap so far, and (mid-answering or mid-voting) the live prompt plus a
// remaining-time window floored at reconnectFloor seconds, so the rejoiner
// always gets something usable rather than an already-expired deadline.
func (r *Room) buildSnapshot() ReconnectPayload {
	s := r.session

	snap := ReconnectPayload{
		Phase:           s.Phase,
		Settings:        s.Settings,
		Players:         playerInfos(s.Roster.Players()),
		Round:           s.Round,
		TotalRounds:     s.Settings.Rounds,
		PromptsPerRound: s.PromptsPerRound(),
		PromptIdx:       s.RoundPromptIdx(),
		Recap:           s.Recap,
	}

	switch s.Phase {
	case PhaseAnswering:
		snap.Prompt = s.CurrentPrompt()
		snap.TimeRemaining = r.remainingSeconds(s.Settings.AnswerTime)
	case PhaseVoting:
		snap.Prompt = s.CurrentPrompt()
		snap.Answers = s.EligibleAnswers()
		snap.TimeRemaining = r.remainingSeconds(s.Settings.VoteTime)
	}

	return snap
}

func (r *Room) remainingSeconds(configured int) int {
	elapsed := int(r.clock.Since(r.session.PhaseStart).Seconds())
	remaining := configured - elapsed
	if remaining < reconnectFloor {
		remaining = reconnectFloor
	}
	return remaining
}
