package main

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// revealDelay matches the client-side drumroll animation: results are
// broadcast immediately so every client starts the reveal on the same beat,
// and the host holds the results phase open for this long before moving on.
const revealDelay = 1900 * time.Millisecond

// reconnectFloor is the minimum usable window handed to a rejoining client
// mid-phase, regardless of how little time actually remains.
const reconnectFloor = 5

func newConnID() string {
	return uuid.NewString()
}

type inboundMsg struct {
	from *client
	env  Envelope
}

// Room runs one authoritative game session. All state mutation happens on
// the run loop goroutine: connections, timers and the reaper only ever talk
// to it through channels, so handlers never race each other.
type Room struct {
	code    string
	log     zerolog.Logger
	clock   clockwork.Clock
	prompts PromptSource
	notify  Notifier

	session *Session

	clients   map[*client]bool
	moderator *Player

	register chan *client
	unreg    chan *client
	inbound  chan inboundMsg
	timerC   chan int

	// scoreboardTime is host-local pacing, not part of the wire settings.
	scoreboardTime time.Duration

	phaseTimer clockwork.Timer
	ctx        context.Context
	cancel     context.CancelFunc

	mu         sync.RWMutex
	createdAt  time.Time
	lastActive time.Time
}

func newRoom(code string, settings Settings, scoreboardTime time.Duration, prompts PromptSource, clock clockwork.Clock, log zerolog.Logger, notify Notifier) *Room {
	now := clock.Now()
	ctx, cancel := context.WithCancel(context.Background())
	if notify == nil {
		notify = noopNotifier{}
	}
	return &Room{
		code:           code,
		log:            log.With().Str("room", code).Logger(),
		clock:          clock,
		prompts:        prompts,
		notify:         notify,
		session:        newSession(settings),
		clients:        make(map[*client]bool),
		register:       make(chan *client),
		unreg:          make(chan *client),
		inbound:        make(chan inboundMsg),
		timerC:         make(chan int, 1),
		scoreboardTime: scoreboardTime,
		ctx:            ctx,
		cancel:         cancel,
		createdAt:      now,
		lastActive:     now,
	}
}

func (r *Room) run() {
	for {
		select {
		case <-r.ctx.Done():
			for c := range r.clients {
				close(c.send)
				if c.conn != nil {
					_ = c.conn.Close()
				}
				delete(r.clients, c)
			}
			return
		case c := <-r.register:
			r.touch()
			r.handleRegister(c)
		case c := <-r.unreg:
			r.touch()
			r.handleUnregister(c)
		case in := <-r.inbound:
			r.touch()
			r.handleInbound(in.from, in.env)
		case version := <-r.timerC:
			r.handleDeadline(version)
		}
	}
}

func (r *Room) touch() {
	r.mu.Lock()
	r.lastActive = r.clock.Now()
	r.mu.Unlock()
}

func (r *Room) idleSince() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastActive
}

// close stops the run loop, which disconnects every client on its way out.
func (r *Room) close() {
	r.cancel()
}

func (r *Room) handleRegister(c *client) {
	r.clients[c] = true
	r.log.Debug().Str("conn", c.id).Int("connections", len(r.clients)).Msg("connection opened")
}

func (r *Room) handleUnregister(c *client) {
	if _, ok := r.clients[c]; !ok {
		return
	}
	delete(r.clients, c)
	close(c.send)
	r.playerGone(c)
}

// dropClient removes a stalled client mid-broadcast. Same reconciliation as
// a transport close, because that is what it is about to become.
func (r *Room) dropClient(c *client) {
	if _, ok := r.clients[c]; !ok {
		return
	}
	delete(r.clients, c)
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	r.playerGone(c)
}

// playerGone applies the roster consequences of a dead connection. In the
// lobby the player is removed outright; mid-game it is flagged disconnected
// and the current phase gets a synthetic value for it, exactly as if a
// deadline had expired for that player alone, so the session cannot stall.
func (r *Room) playerGone(c *client) {
	p := c.player
	if p == nil || p.ID != c.id {
		// Never joined, or a newer connection already re-bound this player.
		return
	}

	if r.session.Phase == PhaseLobby {
		r.session.Roster.Remove(p.ID)
		if r.moderator == p {
			r.moderator = nil
		}
		r.log.Info().Str("player", p.Name).Msg("left the lobby")
		r.broadcastPlayerList()
		return
	}

	p.Disconnected = true
	r.log.Info().Str("player", p.Name).Msg("disconnected mid-game")
	r.notify.Notify(p.Name + " disconnected")
	r.broadcastPlayerList()

	switch r.session.Phase {
	case PhaseAnswering:
		if _, ok := r.session.Answers[p.ID]; !ok {
			r.session.Answers[p.ID] = answerDisconnected
			r.advanceIfAllAnswered()
		}
	case PhaseVoting:
		if _, ok := r.session.Votes[p.ID]; !ok {
			r.session.Votes[p.ID] = nil
			r.advanceIfAllVoted()
		}
	}
}

func (r *Room) handleInbound(c *client, env Envelope) {
	// Ack before any other processing. The ack acknowledges receipt, not
	// semantic validity.
	if env.MsgID != "" {
		if !c.trySend(ackEnvelope(env.MsgID)) {
			r.dropClient(c)
			return
		}
	}

	payload, err := decodeEnvelope(env)
	if err != nil {
		r.log.Debug().Err(err).Str("conn", c.id).Msg("bad message")
		return
	}

	switch msg := payload.(type) {
	case JoinPayload:
		r.handleJoin(c, msg)
	case AnswerPayload:
		r.handleAnswer(c, msg)
	case VotePayload:
		r.handleVote(c, msg)
	default:
		switch env.Type {
		case TypeStart:
			r.handleStart(c)
		case TypeContinue:
			r.handleContinue(c)
		default:
			// Client-bound types arriving at the host are protocol noise.
			r.log.Debug().Str("type", string(env.Type)).Str("conn", c.id).Msg("unexpected message")
		}
	}
}

func (r *Room) sendError(c *client, message string) {
	if !c.trySend(newEnvelope(TypeError, ErrorPayload{Message: message})) {
		r.dropClient(c)
	}
}

func (r *Room) handleJoin(c *client, msg JoinPayload) {
	// One player per connection. A second join on a bound connection would
	// mint a duplicate roster record under the same id.
	if c.player != nil {
		r.sendError(c, "You have already joined this game.")
		return
	}
	if msg.Name == "" {
		r.sendError(c, "A display name is required to join.")
		return
	}

	if r.session.Phase != PhaseLobby {
		existing := r.session.Roster.ByName(msg.Name)
		if existing != nil && existing.Disconnected {
			oldID := existing.ID
			r.session.Roster.Rebind(existing, c.id)
			r.session.RebindID(oldID, c.id)
			c.player = existing
			r.log.Info().Str("player", existing.Name).Msg("reconnected")
			r.notify.Notify(existing.Name + " reconnected")
			r.broadcastPlayerList()
			r.sendReconnectState(c)
			return
		}
		r.sendError(c, "Game already in progress — cannot join mid-game.")
		return
	}

	if r.session.Roster.ByName(msg.Name) != nil {
		r.sendError(c, "That name is already taken. Please choose a different name.")
		return
	}

	p := r.session.Roster.Add(c.id, msg.Name)
	c.player = p
	if r.moderator == nil {
		r.moderator = p
	}
	r.log.Info().Str("player", p.Name).Msg("joined")
	r.notify.Notify(p.Name + " joined")
	r.broadcastPlayerList()
}

func (r *Room) handleStart(c *client) {
	if c.player == nil || c.player != r.moderator {
		r.sendError(c, "Only the first player to join can start the game.")
		return
	}
	if r.session.Phase != PhaseLobby {
		return
	}
	if len(r.session.Roster.Active()) < 1 {
		r.sendError(c, "Need at least 1 player to start.")
		return
	}
	r.startGame()
}

func (r *Room) handleContinue(c *client) {
	if c.player == nil || c.player != r.moderator {
		return
	}
	if r.session.Phase != PhaseScoreboard {
		return
	}
	r.cancelPhaseTimer()
	r.beginPrompt()
}

func (r *Room) handleAnswer(c *client, msg AnswerPayload) {
	if r.session.Phase != PhaseAnswering {
		return
	}
	p := c.player
	if p == nil || p.Disconnected {
		return
	}
	if !r.session.RecordAnswer(p.ID, msg.Text) {
		// Duplicate delivery; the ack already went out.
		return
	}
	r.log.Debug().Str("player", p.Name).Msg("answer recorded")
	r.advanceIfAllAnswered()
}

func (r *Room) handleVote(c *client, msg VotePayload) {
	if r.session.Phase != PhaseVoting {
		return
	}
	p := c.player
	if p == nil || p.Disconnected {
		return
	}
	if msg.Target != nil && !r.eligibleTarget(*msg.Target) {
		r.sendError(c, "That answer is not up for voting.")
		return
	}
	if !r.session.RecordVote(p.ID, msg.Target) {
		return
	}
	r.log.Debug().Str("player", p.Name).Bool("abstain", msg.Target == nil).Msg("vote recorded")
	r.advanceIfAllVoted()
}

func (r *Room) eligibleTarget(id string) bool {
	for _, a := range r.session.EligibleAnswers() {
		if a.PlayerID == id {
			return true
		}
	}
	return false
}

// startGame pulls the whole session's prompt list from the prompt source and
// kicks off the first answering phase.
func (r *Room) startGame() {
	s := r.session
	needed := s.Settings.Rounds * s.PromptsPerRound()

	prompts, err := r.prompts.Prompts(needed, playerInfos(s.Roster.Players()))
	if err != nil || len(prompts) == 0 {
		r.log.Error().Err(err).Msg("prompt source failed")
		r.broadcast(newEnvelope(TypeError, ErrorPayload{Message: "Could not load prompts for this game."}))
		return
	}
	s.Prompts = prompts
	s.PromptIdx = 0
	s.Round = 0
	s.Recap = nil

	r.log.Info().Int("players", s.Roster.Len()).Int("prompts", len(prompts)).Int("rounds", s.Settings.Rounds).Msg("game started")
	r.broadcast(newEnvelope(TypeGameStart, GameStartPayload{
		Settings: s.Settings,
		Players:  playerInfos(s.Roster.Players()),
	}))
	r.beginPrompt()
}

func (r *Room) beginPrompt() {
	s := r.session
	if s.Exhausted() {
		r.showWinner()
		return
	}

	s.BeginAnswering(r.clock.Now())
	r.log.Info().Int("round", s.Round).Int("prompt", s.RoundPromptIdx()).Str("phase", string(s.Phase)).Msg("phase started")
	r.broadcast(newEnvelope(TypePrompt, PromptPayload{
		Prompt:       s.CurrentPrompt(),
		Round:        s.Round,
		PromptIdx:    s.RoundPromptIdx(),
		TotalPrompts: s.PromptsPerRound(),
	}))
	r.armPhaseTimer(time.Duration(s.Settings.AnswerTime) * time.Second)
}

func (r *Room) advanceIfAllAnswered() {
	if r.session.Phase != PhaseAnswering || !r.session.AllAnswered() {
		return
	}
	r.cancelPhaseTimer()
	r.notify.Notify("All answers in! Moving on...")
	r.startVoting()
}

func (r *Room) advanceIfAllVoted() {
	if r.session.Phase != PhaseVoting || !r.session.AllVoted() {
		return
	}
	r.cancelPhaseTimer()
	r.notify.Notify("All votes in! Tallying...")
	r.showResults()
}

// startVoting moves to the voting phase, or straight to the tally when fewer
// than two answers are eligible (a game collapsed to one live respondent has
// nothing to vote on).
func (r *Room) startVoting() {
	s := r.session
	s.FillMissingAnswers()

	answers := s.EligibleAnswers()
	if len(answers) < 2 {
		r.showResults()
		return
	}

	s.enterPhase(PhaseVoting, r.clock.Now())
	r.log.Info().Str("phase", string(s.Phase)).Int("answers", len(answers)).Msg("phase started")
	r.broadcast(newEnvelope(TypeVoting, VotingPayload{
		Prompt:       s.CurrentPrompt(),
		Answers:      answers,
		Round:        s.Round,
		PromptIdx:    s.RoundPromptIdx(),
		TotalPrompts: s.PromptsPerRound(),
	}))
	r.armPhaseTimer(time.Duration(s.Settings.VoteTime) * time.Second)
}

// showResults tallies, broadcasts immediately so every client starts the
// reveal in sync, then holds the phase open for the reveal animation.
func (r *Room) showResults() {
	s := r.session
	s.enterPhase(PhaseResults, r.clock.Now())

	payload := s.Tally()
	r.log.Info().Str("phase", string(s.Phase)).Msg("phase started")
	r.broadcast(newEnvelope(TypeResults, payload))
	r.armPhaseTimer(revealDelay)
}

// afterResults sequences the next block: winner when prompts are exhausted,
// scoreboard on a round boundary, otherwise the next prompt.
func (r *Room) afterResults() {
	s := r.session
	s.PromptIdx++

	if s.Exhausted() {
		r.showWinner()
		return
	}

	if s.PromptIdx%s.PromptsPerRound() == 0 {
		s.enterPhase(PhaseScoreboard, r.clock.Now())
		r.log.Info().Str("phase", string(s.Phase)).Int("round", s.Round).Msg("phase started")
		r.broadcast(newEnvelope(TypeScoreboard, ScoreboardPayload{
			Players: playerInfos(r.session.Roster.Standings()),
		}))
		r.armPhaseTimer(r.scoreboardTime)
		return
	}

	r.beginPrompt()
}

func (r *Room) showWinner() {
	s := r.session
	r.cancelPhaseTimer()
	s.enterPhase(PhaseWinner, r.clock.Now())
	ranked := playerInfos(s.Roster.Standings())
	r.log.Info().Str("phase", string(s.Phase)).Msg("game over")
	r.broadcast(newEnvelope(TypeWinner, WinnerPayload{Players: ranked}))
}

// handleDeadline is the timer path into the phase machine. The version
// check suppresses stale firings: a timer that lost the race against an
// all-submitted advance arrives with an old version and does nothing.
func (r *Room) handleDeadline(version int) {
	if version != r.session.Version {
		r.log.Debug().Int("fired", version).Int("current", r.session.Version).Msg("stale timer ignored")
		return
	}

	switch r.session.Phase {
	case PhaseAnswering:
		r.startVoting()
	case PhaseVoting:
		// No auto-fill of votes: silent voters simply contribute no tally.
		r.showResults()
	case PhaseResults:
		r.afterResults()
	case PhaseScoreboard:
		r.beginPrompt()
	}
}

// armPhaseTimer replaces the current phase timer with one for the present
// phase version. The callback goes through timerC so the deadline runs on
// the loop goroutine like every other event.
func (r *Room) armPhaseTimer(d time.Duration) {
	r.cancelPhaseTimer()
	version := r.session.Version
	r.phaseTimer = r.clock.AfterFunc(d, func() {
		select {
		case r.timerC <- version:
		case <-r.ctx.Done():
		}
	})
}

func (r *Room) cancelPhaseTimer() {
	if r.phaseTimer != nil {
		r.phaseTimer.Stop()
		r.phaseTimer = nil
	}
}

func (r *Room) broadcastPlayerList() {
	r.broadcast(newEnvelope(TypePlayerList, PlayerListPayload{
		Players: playerInfos(r.session.Roster.Players()),
	}))
}

// broadcast is fire-and-forget by design: no per-recipient ack or retry
// bookkeeping. A client that misses one catches up from the reconnect
// snapshot.
func (r *Room) broadcast(env Envelope) {
	for c := range r.clients {
		if !c.trySend(env) {
			r.dropClient(c)
		}
	}
}

func (r *Room) sendReconnectState(c *client) {
	if !c.trySend(newEnvelope(TypeReconnect, r.buildSnapshot())) {
		r.dropClient(c)
	}
}

// RoomManager holds the live rooms keyed by their 4-character code, so one
// host process can run several sessions.
type RoomManager struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	idleTimeout time.Duration
	clock       clockwork.Clock
	log         zerolog.Logger
}

func newRoomManager(idleTimeout time.Duration, clock clockwork.Clock, log zerolog.Logger) *RoomManager {
	rm := &RoomManager{
		rooms:       make(map[string]*Room),
		idleTimeout: idleTimeout,
		clock:       clock,
		log:         log,
	}
	if idleTimeout > 0 {
		go rm.reaperLoop()
	}
	return rm
}

func (rm *RoomManager) lookup(code string) *Room {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.rooms[code]
}

func (rm *RoomManager) create(settings Settings, scoreboardTime time.Duration, prompts PromptSource, notify Notifier) *Room {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	code := rm.newRoomCodeLocked()
	room := newRoom(code, settings, scoreboardTime, prompts, rm.clock, rm.log, notify)
	rm.rooms[code] = room
	go room.run()
	return room
}

// newRoomCodeLocked generates a 4-character room code, rejection-sampled
// from crypto/rand and collision-checked against live rooms.
func (rm *RoomManager) newRoomCodeLocked() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const max = byte(255 - (256 % len(letters)))

	for {
		out := make([]byte, 0, 4)
		buf := make([]byte, 8)
		for len(out) < 4 {
			if _, err := rand.Read(buf); err != nil {
				panic("crypto/rand failure: " + err.Error())
			}
			for _, b := range buf {
				if b <= max {
					out = append(out, letters[int(b)%len(letters)])
					if len(out) == 4 {
						break
					}
				}
			}
		}
		code := string(out)
		if _, exists := rm.rooms[code]; !exists {
			return code
		}
	}
}

// reaperLoop removes rooms that have been idle longer than idleTimeout.
func (rm *RoomManager) reaperLoop() {
	ticker := rm.clock.NewTicker(rm.idleTimeout / 2)
	for range ticker.Chan() {
		cutoff := rm.clock.Now().Add(-rm.idleTimeout)

		rm.mu.Lock()
		for code, room := range rm.rooms {
			if room.idleSince().Before(cutoff) {
				delete(rm.rooms, code)
				rm.log.Info().Str("room", code).Msg("reaping idle room")
				go room.close()
			}
		}
		rm.mu.Unlock()
	}
}
