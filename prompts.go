package main

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"os"
	"strings"
)

// PromptSource supplies the ordered prompt list for a whole session. The
// orchestrator only does selection-count bookkeeping; where the text comes
// from is the source's business.
type PromptSource interface {
	Prompts(count int, players []PlayerInfo) ([]string, error)
}

// packSource draws from a fixed pool, shuffled per session. Returning fewer
// prompts than asked for is fine: the session simply ends when the list runs
// out.
type packSource struct {
	pool []string
}

func newPackSource(pool []string) *packSource {
	return &packSource{pool: pool}
}

func (ps *packSource) Prompts(count int, _ []PlayerInfo) ([]string, error) {
	if len(ps.pool) == 0 {
		return nil, fmt.Errorf("prompt pool is empty")
	}

	shuffled := make([]string, len(ps.pool))
	copy(shuffled, ps.pool)
	shuffle(shuffled)

	if count > len(shuffled) {
		count = len(shuffled)
	}
	return shuffled[:count], nil
}

// loadPromptPack reads a newline-delimited prompt file. Blank lines and
// lines starting with # are skipped.
func loadPromptPack(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prompt pack: %w", err)
	}
	defer f.Close()

	var prompts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read prompt pack: %w", err)
	}
	if len(prompts) == 0 {
		return nil, fmt.Errorf("prompt pack %s contains no prompts", path)
	}
	return prompts, nil
}

// shuffle is an in-place Fisher-Yates using crypto/rand, matching how room
// codes are generated. On the off chance rand fails the element stays put.
func shuffle(items []string) {
	for i := len(items) - 1; i > 0; i-- {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			continue
		}
		j := int(b[0]) % (i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// defaultPrompts keeps `spitwit host` playable out of the box. Real decks
// are expected to come from a PromptSource implementation.
var defaultPrompts = []string{
	"The worst possible name for a cruise ship",
	"A rejected flavor of sparkling water",
	"The first thing you'd do as an invisible person",
	"A terrible slogan for a dentist's office",
	"The real reason the dinosaurs went extinct",
	"Something you should never say at a job interview",
	"The worst theme for a birthday party",
	"A sign you've hired the wrong babysitter",
	"The most useless superpower imaginable",
	"A rejected title for a romance novel",
	"What cats would say if they could talk",
	"The worst item to bring on a desert island",
	"A suspicious thing to whisper during a handshake",
	"The least inspiring motivational poster",
	"Something you'd hate to find in your burrito",
	"A bad opening line for a wedding toast",
	"The worst possible password",
	"A rejected Olympic event",
	"What aliens probably think of us",
	"The worst advice to give a new parent",
	"A strange thing to collect",
	"The most awkward elevator announcement",
	"A terrible name for a law firm",
	"Something you should never microwave",
	"The worst thing to yell in a library",
	"A rejected feature for the next smartphone",
	"The secret ingredient in grandma's cooking",
	"A bad place to take a first date",
	"The worst possible fortune cookie fortune",
	"Something that would ruin a magic show",
}
