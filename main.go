package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"minimaxing/bots"
	"minimaxing/config"
	"minimaxing/game"
	"minimaxing/ruleset"
	"minimaxing/sandbox"
)

// loadBot turns a command-line bot argument into a bot: "newborn", "random" or
// "random:<seed>", or the path of a rule set JSON file.
func loadBot(arg string, cfg *config.Config, log zerolog.Logger) (bots.ChessBot, error) {
	switch {
	case arg == "newborn":
		return bots.NewNewbornBot(), nil
	case arg == "random":
		return bots.NewRandomBot(1), nil
	case strings.HasPrefix(arg, "random:"):
		seed, err := strconv.ParseInt(strings.TrimPrefix(arg, "random:"), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "seed in %q", arg)
		}
		return bots.NewRandomBot(seed), nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, errors.Wrap(err, "read rule set")
	}
	var rs ruleset.RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, errors.Wrapf(err, "decode %s", arg)
	}
	name := strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
	bot, err := bots.NewRuleSetBot(rs,
		[]bots.EvaluatorOption{
			bots.WithSandbox(sandbox.WithMaxSteps(cfg.Sandbox.MaxSteps), sandbox.WithTimeout(cfg.Sandbox.Timeout)),
			bots.WithEvaluatorLogger(log),
		},
		bots.WithName(fmt.Sprintf("%s (depth %d)", name, rs.SearchDepth)),
		bots.WithRepetitionPenalty(cfg.Engine.RepetitionPenalty),
		bots.WithSearchLogger(log),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "bot %s", arg)
	}
	return bot, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("minimaxing", flag.ContinueOnError)
	fs.SetOutput(stderr)
	white := fs.String("white", "", "white bot: rule set JSON file, newborn, random or random:<seed>")
	black := fs.String("black", "", "black bot, same forms as -white")
	fen := fs.String("fen", "", "start position (default: the initial position)")
	maxPlies := fs.Int("max-plies", 0, "stop after this many plies (default: ENGINE_MAX_PLIES)")
	asJSON := fs.Bool("json", false, "print the full match record as JSON instead of PGN")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *white == "" || *black == "" {
		fs.Usage()
		return errors.New("both -white and -black are required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := config.NewLogger(cfg.Logs, stderr)
	if err != nil {
		return err
	}

	w, err := loadBot(*white, cfg, log)
	if err != nil {
		return err
	}
	b, err := loadBot(*black, cfg, log)
	if err != nil {
		return err
	}

	opts := []game.MatchOption{game.WithMaxPlies(cfg.Engine.MaxPlies), game.WithMatchLogger(log)}
	if *maxPlies > 0 {
		opts = append(opts, game.WithMaxPlies(*maxPlies))
	}
	if *fen != "" {
		opts = append(opts, game.WithStartFEN(*fen))
	}

	rec, err := game.NewMatch(w, b, opts...).Play(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("result", rec.Result).Str("termination", string(rec.Termination)).Int("plies", len(rec.Plies)).Msg("match over")

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	_, err = fmt.Fprintln(stdout, rec.PGN)
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "minimaxing:", err)
		os.Exit(1)
	}
}
