package game

import (
	"context"

	"golang.org/x/sync/errgroup"

	"minimaxing/bots"
)

// Job is one match of a batch. Bots must not be shared between jobs.
type Job struct {
	ID           string
	White, Black bots.ChessBot
	Options      []MatchOption
}

type Outcome struct {
	ID     string
	Record Record
	Err    error
}

// RunBatch plays jobs with at most parallel matches at a time. A failing
// match does not stop the others; outcomes are in job order.
func RunBatch(ctx context.Context, jobs []Job, parallel int) []Outcome {
	if parallel < 1 {
		parallel = 1
	}
	out := make([]Outcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(parallel)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			opts := append([]MatchOption{WithMatchID(j.ID)}, j.Options...)
			rec, err := NewMatch(j.White, j.Black, opts...).Play(ctx)
			out[i] = Outcome{ID: j.ID, Record: rec, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
