package main

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates every message on the wire. The set is closed:
// decodeEnvelope matches it exhaustively, so adding a new kind without a
// decode arm is a compile-or-test-time failure, not a silent drop.
type MessageType string

const (
	// Host-bound.
	TypeJoin     MessageType = "join"
	TypeStart    MessageType = "start"
	TypeContinue MessageType = "continue"
	TypeAnswer   MessageType = "answer"
	TypeVote     MessageType = "vote"

	// Client-bound.
	TypeAck        MessageType = "ack"
	TypeError      MessageType = "error"
	TypePlayerList MessageType = "player-list"
	TypeGameStart  MessageType = "game-start"
	TypePrompt     MessageType = "prompt"
	TypeVoting     MessageType = "voting"
	TypeResults    MessageType = "results"
	TypeScoreboard MessageType = "scoreboard"
	TypeWinner     MessageType = "winner"
	TypeReconnect  MessageType = "reconnect"
)

// Envelope is the frame every message travels in. MsgID is set on host-bound
// messages that require acknowledgement; an ack echoes it back with no body.
type Envelope struct {
	Type  MessageType     `json:"type"`
	MsgID string          `json:"msgId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Settings are the host-chosen session parameters, in seconds where timed.
type Settings struct {
	Rounds     int `json:"rounds"`
	AnswerTime int `json:"answerTime"`
	VoteTime   int `json:"voteTime"`
}

// PlayerInfo is the roster entry as clients see it.
type PlayerInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Score        int    `json:"score"`
	PrevScore    int    `json:"prevScore"`
	Disconnected bool   `json:"disconnected"`
}

// AnswerEntry pairs a submitted answer with the player who wrote it.
type AnswerEntry struct {
	PlayerID string `json:"playerId"`
	Answer   string `json:"answer"`
}

// RecapEntry records one prompt's outcome for the end-of-game recap.
type RecapEntry struct {
	Prompt     string        `json:"prompt"`
	AllAnswers []RecapAnswer `json:"allAnswers"`
	Winner     *RecapWinner  `json:"winner"`
}

type RecapAnswer struct {
	Name   string `json:"name"`
	Answer string `json:"answer"`
	Votes  int    `json:"votes"`
}

type RecapWinner struct {
	Name   string `json:"name"`
	Answer string `json:"answer"`
}

// JoinPayload asks the host to add (or re-bind, mid-game) a player by name.
type JoinPayload struct {
	Name string `json:"name"`
}

// AnswerPayload carries one player's answer to the current prompt.
type AnswerPayload struct {
	Text string `json:"text"`
}

// VotePayload carries one vote. A nil Target is an explicit abstain.
type VotePayload struct {
	Target *string `json:"target"`
}

// ErrorPayload is sent to a single client when a request is rejected.
type ErrorPayload struct {
	Message string `json:"message"`
}

// PlayerListPayload broadcasts the current roster.
type PlayerListPayload struct {
	Players []PlayerInfo `json:"players"`
}

// GameStartPayload announces the transition out of the lobby.
type GameStartPayload struct {
	Settings Settings     `json:"settings"`
	Players  []PlayerInfo `json:"players"`
}

// PromptPayload starts an answering phase.
type PromptPayload struct {
	Prompt       string `json:"prompt"`
	Round        int    `json:"round"`
	PromptIdx    int    `json:"promptIdx"`
	TotalPrompts int    `json:"totalPrompts"`
}

// VotingPayload starts a voting phase with the eligible answers.
type VotingPayload struct {
	Prompt       string        `json:"prompt"`
	Answers      []AnswerEntry `json:"answers"`
	Round        int           `json:"round"`
	PromptIdx    int           `json:"promptIdx"`
	TotalPrompts int           `json:"totalPrompts"`
}

// ResultsPayload reveals the tally for the prompt just voted on.
type ResultsPayload struct {
	Prompt  string             `json:"prompt"`
	Answers []AnswerEntry      `json:"answers"`
	Votes   map[string]*string `json:"votes"`
	Scores  map[string]int     `json:"scores"`
	Recap   RecapEntry         `json:"recapEntry"`
}

// ScoreboardPayload shows cumulative standings between round-blocks.
type ScoreboardPayload struct {
	Players []PlayerInfo `json:"players"`
}

// WinnerPayload ends the session with final standings.
type WinnerPayload struct {
	Players []PlayerInfo `json:"players"`
}

// ReconnectPayload is the full state snapshot sent to a rejoining client so
// it can resume without replaying every intermediate broadcast. Prompt,
// Answers and TimeRemaining are only set mid-answering or mid-voting.
type ReconnectPayload struct {
	Phase           Phase         `json:"phase"`
	Settings        Settings      `json:"settings"`
	Players         []PlayerInfo  `json:"players"`
	Round           int           `json:"round"`
	TotalRounds     int           `json:"totalRounds"`
	PromptsPerRound int           `json:"promptsPerRound"`
	PromptIdx       int           `json:"promptIdx"`
	Recap           []RecapEntry  `json:"recap"`
	Prompt          string        `json:"prompt,omitempty"`
	Answers         []AnswerEntry `json:"answers,omitempty"`
	TimeRemaining   int           `json:"timeRemaining,omitempty"`
}

func newEnvelope(t MessageType, payload any) Envelope {
	env := Envelope{Type: t}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			// Payload structs are plain data; this cannot fail at runtime.
			panic(fmt.Sprintf("marshal %s payload: %v", t, err))
		}
		env.Data = data
	}
	return env
}

func ackEnvelope(msgID string) Envelope {
	return Envelope{Type: TypeAck, MsgID: msgID}
}

// decodeEnvelope unpacks an envelope into its typed payload. Unknown types
// are an error rather than being ignored, so protocol drift surfaces loudly.
func decodeEnvelope(env Envelope) (any, error) {
	switch env.Type {
	case TypeJoin:
		return decodeInto[JoinPayload](env)
	case TypeStart, TypeContinue, TypeAck:
		return nil, nil
	case TypeAnswer:
		return decodeInto[AnswerPayload](env)
	case TypeVote:
		return decodeInto[VotePayload](env)
	case TypeError:
		return decodeInto[ErrorPayload](env)
	case TypePlayerList:
		return decodeInto[PlayerListPayload](env)
	case TypeGameStart:
		return decodeInto[GameStartPayload](env)
	case TypePrompt:
		return decodeInto[PromptPayload](env)
	case TypeVoting:
		return decodeInto[VotingPayload](env)
	case TypeResults:
		return decodeInto[ResultsPayload](env)
	case TypeScoreboard:
		return decodeInto[ScoreboardPayload](env)
	case TypeWinner:
		return decodeInto[WinnerPayload](env)
	case TypeReconnect:
		return decodeInto[ReconnectPayload](env)
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

func decodeInto[T any](env Envelope) (T, error) {
	var payload T
	if len(env.Data) == 0 {
		return payload, fmt.Errorf("%s message missing payload", env.Type)
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return payload, nil
}
