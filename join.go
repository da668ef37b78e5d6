package main

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
)

// RunJoin runs the player process: a terminal client that connects to a
// host, renders phases as they arrive, and maps typed lines onto the
// current phase.
func RunJoin(ctx context.Context, cfg *Config) error {
	presenter := newTermPresenter(os.Stdout)
	gc := newGameClient(cfg.name, cfg.url, clockwork.NewRealClock(), cfg.log, presenter, presenter)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go readInput(ctx, gc, presenter)

	return gc.Run(ctx)
}

// readInput consumes stdin lines for the life of the client. What a line
// means depends on the phase the host last announced.
func readInput(ctx context.Context, gc *GameClient, notify Notifier) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		handleLine(gc, notify, line)
	}
}

func handleLine(gc *GameClient, notify Notifier, line string) {
	switch gc.Phase() {
	case PhaseLobby:
		if strings.EqualFold(line, "start") {
			if !gc.IsModerator() {
				notify.Notify("Only the first player to join can start the game.")
				return
			}
			if err := gc.Start(); err != nil {
				notify.Notify(err.Error())
			}
			return
		}
		notify.Notify("Waiting in the lobby. Type 'start' to begin (moderator only).")

	case PhaseAnswering:
		if line == "" {
			notify.Notify("Type an answer first.")
			return
		}
		if err := gc.SubmitAnswer(line); err != nil {
			notify.Notify(err.Error())
			return
		}
		notify.Notify("Answer submitted.")

	case PhaseVoting:
		if line == "" {
			if err := gc.SubmitVote(nil); err != nil {
				notify.Notify(err.Error())
				return
			}
			notify.Notify("Abstained.")
			return
		}
		choice, err := strconv.Atoi(line)
		if err != nil {
			notify.Notify("Enter the number of the answer you want to vote for.")
			return
		}
		target, err := gc.VoteTarget(choice)
		if err != nil {
			notify.Notify(err.Error())
			return
		}
		if err := gc.SubmitVote(target); err != nil {
			notify.Notify(err.Error())
			return
		}
		notify.Notify("Vote submitted.")

	case PhaseScoreboard:
		if strings.EqualFold(line, "continue") {
			if !gc.IsModerator() {
				notify.Notify("Only the moderator can skip the scoreboard.")
				return
			}
			if err := gc.Continue(); err != nil {
				notify.Notify(err.Error())
			}
			return
		}
		notify.Notify("Scoreboard is up. Type 'continue' to move on (moderator only).")

	default:
		// Results, winner, and transitions between phases take no input.
	}
}
