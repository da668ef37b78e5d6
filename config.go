package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	// host
	bind           string
	port           int
	prefix         string
	rounds         int
	answerTime     time.Duration
	voteTime       time.Duration
	scoreboardTime time.Duration
	sessionTimeout time.Duration
	promptPack     string
	tlsCert        string
	tlsKey         string
	profile        bool

	// join
	name string
	url  string

	// shared
	verbose bool

	log zerolog.Logger
}

func (c *Config) validateHost() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.rounds < 1 {
		return fmt.Errorf("invalid round count: %d", c.rounds)
	}
	if c.answerTime < time.Second || c.voteTime < time.Second {
		return errors.New("answer and vote times must be at least one second")
	}
	return nil
}

func (c *Config) validateJoin() error {
	if strings.TrimSpace(c.name) == "" {
		return errors.New("a display name is required (--name)")
	}
	if c.url == "" {
		return errors.New("a room URL is required (--url)")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// settings converts the host flags into the wire-visible session settings.
func (c *Config) settings() Settings {
	return Settings{
		Rounds:     c.rounds,
		AnswerTime: int(c.answerTime.Seconds()),
		VoteTime:   int(c.voteTime.Seconds()),
	}
}

func newCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "spitwit",
		Short:         "A fill-in-the-blank party game hosted on one player's device.",
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
	}

	cmd.PersistentFlags().BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SPITWIT_VERBOSE)")

	host := &cobra.Command{
		Use:   "host",
		Short: "Run an authoritative game session that players join directly.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validateHost(); err != nil {
				return err
			}
			cfg.log = newLogger(cfg.verbose)
			return ServeHost(cmd.Context(), cfg)
		},
	}

	fs := host.Flags()
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: SPITWIT_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: SPITWIT_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: SPITWIT_PREFIX)")
	fs.IntVarP(&cfg.rounds, "rounds", "r", 5, "number of rounds per game (env: SPITWIT_ROUNDS)")
	fs.DurationVar(&cfg.answerTime, "answer-time", 60*time.Second, "time allowed for answering each prompt (env: SPITWIT_ANSWER_TIME)")
	fs.DurationVar(&cfg.voteTime, "vote-time", 30*time.Second, "time allowed for voting on answers (env: SPITWIT_VOTE_TIME)")
	fs.DurationVar(&cfg.scoreboardTime, "scoreboard-time", 8*time.Second, "time the between-round scoreboard stays up (env: SPITWIT_SCOREBOARD_TIME)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are ended (env: SPITWIT_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.promptPack, "prompt-pack", "", "path to a newline-delimited prompt file; uses the built-in deck when unset (env: SPITWIT_PROMPT_PACK)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: SPITWIT_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: SPITWIT_TLS_KEY)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: SPITWIT_PROFILE)")

	join := &cobra.Command{
		Use:   "join",
		Short: "Join a running game as a player.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validateJoin(); err != nil {
				return err
			}
			cfg.log = newLogger(cfg.verbose)
			return RunJoin(cmd.Context(), cfg)
		},
	}

	jfs := join.Flags()
	jfs.StringVarP(&cfg.name, "name", "n", "", "display name to play under (env: SPITWIT_NAME)")
	jfs.StringVarP(&cfg.url, "url", "u", "", "room websocket URL, e.g. ws://host:8080/room/AB12/ws (env: SPITWIT_URL)")

	cmd.AddCommand(host, join)

	v := viper.New()
	v.SetEnvPrefix("SPITWIT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, sub := range []*cobra.Command{cmd, host, join} {
		flags := sub.Flags()
		flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
			return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
		})
		flags.VisitAll(func(f *pflag.Flag) {
			_ = v.BindPFlag(f.Name, f)
			_ = v.BindEnv(f.Name)
			if !f.Changed && v.IsSet(f.Name) {
				_ = flags.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
			}
		})
	}

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("spitwit v{{.Version}}\n")

	return cmd
}
