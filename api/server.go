// Package api serves rule sets and matches over HTTP and plays queued
// matches in the background.
package api

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"minimaxing/bots"
	"minimaxing/game"
	"minimaxing/sandbox"
	"minimaxing/store"
)

// queueSize bounds how many match ids may wait for a worker.
const queueSize = 256

var (
	errInterrupted = errors.New("interrupted by a server restart")
	errClosed      = errors.New("match runner is closed")
)

// Engine holds the settings every bot and match is built with.
type Engine struct {
	RepetitionPenalty float64
	MaxPlies          int
	Sandbox           []sandbox.Option
}

func DefaultEngine() Engine {
	return Engine{RepetitionPenalty: bots.DefaultRepetitionPenalty, MaxPlies: game.DefaultMaxPlies}
}

type Server struct {
	store  *store.Store
	engine Engine
	log    zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan string
	done   chan struct{}
}

type Option func(*Server)

func WithEngine(e Engine) Option {
	return func(s *Server) { s.engine = e }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func NewServer(st *store.Store, opts ...Option) *Server {
	s := &Server{
		store:  st,
		engine: DefaultEngine(),
		log:    zerolog.Nop(),
		queue:  make(chan string, queueSize),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches the match runner with the given number of workers. Matches
// left running by a previous process are failed; queued ones are resumed.
func (s *Server) Start(ctx context.Context, workers int) error {
	if workers < 1 {
		workers = 1
	}
	running, err := s.store.ListMatches(ctx, store.StatusRunning)
	if err != nil {
		return err
	}
	for _, m := range running {
		if err := s.store.FailMatch(ctx, m.ID, errInterrupted, game.Record{}); err != nil {
			s.log.Warn().Err(err).Str("match", m.ID).Msg("could not fail stale match")
		}
	}
	queued, err := s.store.ListMatches(ctx, store.StatusQueued)
	if err != nil {
		return err
	}

	go func() {
		var g errgroup.Group
		g.SetLimit(workers)
		for id := range s.queue {
			id := id
			g.Go(func() error {
				s.runMatch(ctx, id)
				return nil
			})
		}
		g.Wait()
		close(s.done)
	}()

	var backlog []string
	for _, m := range queued {
		select {
		case s.queue <- m.ID:
		default:
			backlog = append(backlog, m.ID)
		}
	}
	if len(backlog) > 0 {
		go func() {
			for _, id := range backlog {
				if err := s.enqueue(ctx, id); err != nil {
					s.log.Warn().Err(err).Int("left", len(backlog)).Msg("stopped resuming matches")
					return
				}
			}
		}()
	}
	s.log.Info().Int("workers", workers).Int("resumed", len(queued)).Int("interrupted", len(running)).Msg("match runner started")
	return nil
}

// Close stops accepting matches and waits for queued ones to finish. Start
// must have been called.
func (s *Server) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Server) enqueue(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	select {
	case s.queue <- id:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) evalOpts() []bots.EvaluatorOption {
	return []bots.EvaluatorOption{
		bots.WithSandbox(s.engine.Sandbox...),
		bots.WithEvaluatorLogger(s.log),
	}
}

// runMatch plays one stored match and records the outcome.
func (s *Server) runMatch(ctx context.Context, id string) {
	log := s.log.With().Str("match", id).Logger()
	markFailed := func(err error, rec game.Record) {
		log.Error().Err(err).Msg("match failed")
		if err := s.store.FailMatch(context.WithoutCancel(ctx), id, err, rec); err != nil {
			log.Error().Err(err).Msg("could not record failure")
		}
	}

	m, err := s.store.GetMatch(ctx, id)
	if err != nil {
		log.Error().Err(err).Msg("load match")
		return
	}
	if err := s.store.StartMatch(ctx, id); err != nil {
		log.Error().Err(err).Msg("start match")
		return
	}

	white, err := s.loadBot(ctx, m.WhiteID)
	if err != nil {
		markFailed(errors.Wrap(err, "white"), game.Record{})
		return
	}
	black, err := s.loadBot(ctx, m.BlackID)
	if err != nil {
		markFailed(errors.Wrap(err, "black"), game.Record{})
		return
	}

	rec, err := game.NewMatch(white, black,
		game.WithMatchID(id),
		game.WithMaxPlies(s.engine.MaxPlies),
		game.WithMatchLogger(log),
	).Play(ctx)
	if err != nil {
		markFailed(err, rec)
		return
	}
	if err := s.store.CompleteMatch(ctx, id, rec); err != nil {
		log.Error().Err(err).Msg("record match")
		return
	}
	log.Info().Str("result", rec.Result).Str("termination", string(rec.Termination)).Int("plies", len(rec.Plies)).Msg("match completed")
}

func (s *Server) loadBot(ctx context.Context, id string) (*bots.MinimaxBot, error) {
	rec, err := s.store.GetRuleSet(ctx, id)
	if err != nil {
		return nil, err
	}
	return bots.NewRuleSetBot(rec.RuleSet, s.evalOpts(),
		bots.WithName(rec.Name),
		bots.WithRepetitionPenalty(s.engine.RepetitionPenalty),
		bots.WithSearchLogger(s.log),
	)
}
