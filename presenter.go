package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Presenter receives, for each phase transition, exactly the data needed to
// render it. The protocol core is agnostic to how or whether any of this is
// shown; every call is fire-and-forget.
type Presenter interface {
	Lobby(players []PlayerInfo)
	Answering(prompt string, round, promptIdx, totalPrompts, seconds int)
	Voting(prompt string, answers []AnswerEntry, players []PlayerInfo, seconds int)
	Results(prompt string, recap RecapEntry, players []PlayerInfo)
	Scoreboard(players []PlayerInfo)
	Winner(players []PlayerInfo)
}

// Notifier carries transient one-line notices (joins, disconnects, delivery
// warnings). Fire-and-forget, never consulted for control flow.
type Notifier interface {
	Notify(message string)
}

type noopNotifier struct{}

func (noopNotifier) Notify(string) {}

// logNotifier routes room notices into the host's structured log.
type logNotifier struct {
	log zerolog.Logger
}

func (l logNotifier) Notify(message string) {
	l.log.Info().Msg(message)
}

// termPresenter renders phases as plain lines, one event at a time. It is
// the whole of the "UI": answers and votes are typed on stdin (see the join
// command), so everything here is output-only.
type termPresenter struct {
	out io.Writer
}

func newTermPresenter(out io.Writer) *termPresenter {
	return &termPresenter{out: out}
}

func (t *termPresenter) Notify(message string) {
	fmt.Fprintf(t.out, "* %s\n", message)
}

func (t *termPresenter) Lobby(players []PlayerInfo) {
	fmt.Fprintf(t.out, "\nLobby (%d joined):\n", len(players))
	for _, p := range players {
		fmt.Fprintf(t.out, "  - %s\n", p.Name)
	}
}

func (t *termPresenter) Answering(prompt string, round, promptIdx, totalPrompts, seconds int) {
	fmt.Fprintf(t.out, "\n== Round %d, prompt %d of %d (%ds) ==\n", round, promptIdx, totalPrompts, seconds)
	fmt.Fprintf(t.out, "%s\n", prompt)
	fmt.Fprintln(t.out, "Type your answer and press enter:")
}

func (t *termPresenter) Voting(prompt string, answers []AnswerEntry, players []PlayerInfo, seconds int) {
	fmt.Fprintf(t.out, "\n== Vote for the best answer (%ds) ==\n", seconds)
	fmt.Fprintf(t.out, "%s\n", prompt)
	for i, a := range answers {
		fmt.Fprintf(t.out, "  [%d] %s\n", i+1, a.Answer)
	}
	fmt.Fprintln(t.out, "Enter a number to vote, or press enter to abstain:")
}

func (t *termPresenter) Results(prompt string, recap RecapEntry, players []PlayerInfo) {
	fmt.Fprintf(t.out, "\n== Results ==\n%s\n", prompt)
	for _, a := range recap.AllAnswers {
		fmt.Fprintf(t.out, "  %-20s %q — %d vote(s)\n", a.Name, a.Answer, a.Votes)
	}
	if recap.Winner != nil {
		fmt.Fprintf(t.out, "Winner: %s with %q\n", recap.Winner.Name, recap.Winner.Answer)
	}
}

func (t *termPresenter) Scoreboard(players []PlayerInfo) {
	fmt.Fprintf(t.out, "\n== Scoreboard ==\n")
	for i, p := range players {
		fmt.Fprintf(t.out, "  %d. %-20s %d\n", i+1, p.Name, p.Score)
	}
}

func (t *termPresenter) Winner(players []PlayerInfo) {
	fmt.Fprintf(t.out, "\n== Final standings ==\n")
	for i, p := range players {
		marker := ""
		if i == 0 {
			marker = "  <- winner"
		}
		fmt.Fprintf(t.out, "  %d. %-20s %d%s\n", i+1, p.Name, p.Score, marker)
	}
}
