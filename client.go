package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	reconnectAttempts  = 5
	reconnectBaseDelay = 2000 * time.Millisecond
	reconnectMaxDelay  = 10000 * time.Millisecond
)

// reconnectDelay is the backoff before reconnect attempt n (0-based).
func reconnectDelay(attempt int) time.Duration {
	d := reconnectBaseDelay * time.Duration(attempt+1)
	if d > reconnectMaxDelay {
		d = reconnectMaxDelay
	}
	return d
}

// GameClient drives the participant side of the protocol: join, render
// broadcast phases, submit answers and votes reliably, and reconnect after
// an unexpected mid-game transport loss.
type GameClient struct {
	name      string
	url       string
	clock     clockwork.Clock
	log       zerolog.Logger
	presenter Presenter
	notify    Notifier
	outbox    *Outbox

	mu   sync.Mutex
	conn *websocket.Conn

	phase    Phase
	players  []PlayerInfo
	settings Settings
	recap    []RecapEntry
	// answers holds the current voting options, in broadcast order.
	answers  []AnswerEntry
	answered bool
	voted    bool
}

func newGameClient(name, url string, clock clockwork.Clock, log zerolog.Logger, presenter Presenter, notify Notifier) *GameClient {
	if notify == nil {
		notify = noopNotifier{}
	}
	gc := &GameClient{
		name:      name,
		url:       url,
		clock:     clock,
		log:       log,
		presenter: presenter,
		notify:    notify,
		phase:     PhaseLobby,
	}
	gc.outbox = newOutbox(clock, log, gc.writeEnvelope, gc.deliveryFailed)
	return gc
}

func (gc *GameClient) writeEnvelope(env Envelope) error {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.conn == nil {
		return fmt.Errorf("not connected")
	}
	return gc.conn.WriteJSON(env)
}

// deliveryFailed runs after the retry budget is spent. The submission was
// never recorded host-side, so the local submitted flag is cleared to let
// the user try again.
func (gc *GameClient) deliveryFailed(env Envelope) {
	gc.mu.Lock()
	switch env.Type {
	case TypeAnswer:
		gc.answered = false
	case TypeVote:
		gc.voted = false
	}
	gc.mu.Unlock()
	gc.notify.Notify("Message may not have reached the host. Try resubmitting.")
}

// Run connects, joins, and processes host messages until the session ends
// or reconnection is exhausted. The initial dial error is returned directly:
// a failed join is a blocking fault, not something to retry silently.
func (gc *GameClient) Run(ctx context.Context) error {
	if err := gc.connect(ctx); err != nil {
		return fmt.Errorf("connect to host: %w", err)
	}

	for {
		var env Envelope
		err := gc.currentConn().ReadJSON(&env)
		if err == nil {
			gc.handleHostMessage(env)
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A closure in the lobby or after the winner screen is an ordinary
		// departure; anything else is a fault worth reconnecting over.
		gc.mu.Lock()
		phase := gc.phase
		gc.mu.Unlock()
		if phase == PhaseLobby || phase == PhaseWinner {
			return nil
		}

		if err := gc.reconnect(ctx); err != nil {
			gc.notify.Notify("Could not reconnect. Returning to home screen.")
			return err
		}
	}
}

func (gc *GameClient) currentConn() *websocket.Conn {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.conn
}

func (gc *GameClient) connect(ctx context.Context) error {
	conn, err := dialHost(ctx, gc.url)
	if err != nil {
		return err
	}

	gc.mu.Lock()
	gc.conn = conn
	gc.mu.Unlock()

	return gc.writeEnvelope(newEnvelope(TypeJoin, JoinPayload{Name: gc.name}))
}

func (gc *GameClient) reconnect(ctx context.Context) error {
	gc.notify.Notify("Connection lost — reconnecting...")

	for attempt := 0; attempt < reconnectAttempts; attempt++ {
		select {
		case <-gc.clock.After(reconnectDelay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := gc.connect(ctx); err != nil {
			gc.log.Debug().Err(err).Int("attempt", attempt+1).Msg("reconnect attempt failed")
			continue
		}
		gc.notify.Notify("Reconnected!")
		return nil
	}
	return fmt.Errorf("gave up after %d reconnect attempts", reconnectAttempts)
}

// SubmitAnswer sends the player's answer through the reliable layer. Safe to
// call from the input goroutine.
func (gc *GameClient) SubmitAnswer(text string) error {
	gc.mu.Lock()
	if gc.phase != PhaseAnswering {
		gc.mu.Unlock()
		return fmt.Errorf("not in an answering phase")
	}
	if gc.answered {
		gc.mu.Unlock()
		return fmt.Errorf("answer already submitted")
	}
	gc.answered = true
	gc.mu.Unlock()

	gc.outbox.SendReliable(newEnvelope(TypeAnswer, AnswerPayload{Text: text}))
	return nil
}

// SubmitVote sends a vote, or an explicit abstain when target is nil.
func (gc *GameClient) SubmitVote(target *string) error {
	gc.mu.Lock()
	if gc.phase != PhaseVoting {
		gc.mu.Unlock()
		return fmt.Errorf("not in a voting phase")
	}
	if gc.voted {
		gc.mu.Unlock()
		return fmt.Errorf("vote already submitted")
	}
	gc.voted = true
	gc.mu.Unlock()

	gc.outbox.SendReliable(newEnvelope(TypeVote, VotePayload{Target: target}))
	return nil
}

// VoteTarget resolves a 1-based choice from the voting list.
func (gc *GameClient) VoteTarget(choice int) (*string, error) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if choice < 1 || choice > len(gc.answers) {
		return nil, fmt.Errorf("pick a number between 1 and %d", len(gc.answers))
	}
	return &gc.answers[choice-1].PlayerID, nil
}

// IsModerator reports whether this player was first into the room, and so
// may start the game and skip scoreboards.
func (gc *GameClient) IsModerator() bool {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return len(gc.players) > 0 && gc.players[0].Name == gc.name
}

// Phase returns the last phase announced by the host.
func (gc *GameClient) Phase() Phase {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.phase
}

// Start asks the host to begin the game. Only honored for the moderator.
func (gc *GameClient) Start() error {
	return gc.writeEnvelope(Envelope{Type: TypeStart})
}

// Continue asks the host to leave the scoreboard early.
func (gc *GameClient) Continue() error {
	return gc.writeEnvelope(Envelope{Type: TypeContinue})
}

func (gc *GameClient) handleHostMessage(env Envelope) {
	if env.Type == TypeAck {
		gc.outbox.Ack(env.MsgID)
		return
	}

	payload, err := decodeEnvelope(env)
	if err != nil {
		gc.log.Debug().Err(err).Msg("bad host message")
		return
	}

	switch msg := payload.(type) {
	case ErrorPayload:
		gc.notify.Notify(msg.Message)

	case PlayerListPayload:
		gc.mu.Lock()
		gc.players = msg.Players
		inLobby := gc.phase == PhaseLobby
		gc.mu.Unlock()
		if inLobby {
			gc.presenter.Lobby(msg.Players)
		}

	case GameStartPayload:
		gc.mu.Lock()
		gc.settings = msg.Settings
		gc.players = msg.Players
		gc.recap = nil
		gc.mu.Unlock()

	case PromptPayload:
		gc.mu.Lock()
		gc.phase = PhaseAnswering
		gc.answered = false
		gc.voted = false
		seconds := gc.settings.AnswerTime
		gc.mu.Unlock()
		gc.presenter.Answering(msg.Prompt, msg.Round, msg.PromptIdx, msg.TotalPrompts, seconds)

	case VotingPayload:
		gc.mu.Lock()
		gc.phase = PhaseVoting
		gc.answers = msg.Answers
		gc.voted = false
		players := gc.players
		seconds := gc.settings.VoteTime
		gc.mu.Unlock()
		gc.presenter.Voting(msg.Prompt, msg.Answers, players, seconds)

	case ResultsPayload:
		gc.mu.Lock()
		gc.phase = PhaseResults
		gc.recap = append(gc.recap, msg.Recap)
		for i := range gc.players {
			if score, ok := msg.Scores[gc.players[i].ID]; ok {
				gc.players[i].PrevScore = gc.players[i].Score
				gc.players[i].Score = score
			}
		}
		players := gc.players
		gc.mu.Unlock()
		gc.presenter.Results(msg.Prompt, msg.Recap, players)

	case ScoreboardPayload:
		gc.mu.Lock()
		gc.phase = PhaseScoreboard
		gc.players = msg.Players
		gc.mu.Unlock()
		gc.presenter.Scoreboard(msg.Players)

	case WinnerPayload:
		gc.mu.Lock()
		gc.phase = PhaseWinner
		gc.players = msg.Players
		gc.mu.Unlock()
		gc.presenter.Winner(msg.Players)

	case ReconnectPayload:
		gc.applySnapshot(msg)
	}
}

// applySnapshot resumes from a reconnect snapshot instead of replaying every
// broadcast that was missed.
func (gc *GameClient) applySnapshot(snap ReconnectPayload) {
	gc.mu.Lock()
	gc.settings = snap.Settings
	gc.players = snap.Players
	gc.recap = snap.Recap
	gc.phase = snap.Phase
	gc.answers = snap.Answers
	gc.answered = false
	gc.voted = false
	gc.mu.Unlock()

	switch snap.Phase {
	case PhaseAnswering:
		gc.presenter.Answering(snap.Prompt, snap.Round, snap.PromptIdx, snap.PromptsPerRound, snap.TimeRemaining)
	case PhaseVoting:
		gc.presenter.Voting(snap.Prompt, snap.Answers, snap.Players, snap.TimeRemaining)
	default:
		gc.notify.Notify("Reconnected! Waiting for the next phase...")
	}
}
