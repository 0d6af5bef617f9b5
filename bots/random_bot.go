package bots

import (
	"context"
	"math/rand"
	"sync"

	"minimaxing/position"
)

// RandomBot plays a uniformly random legal move. The same seed replays the
// same game against a deterministic opponent.
type RandomBot struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomBot(seed int64) *RandomBot {
	return &RandomBot{rng: rand.New(rand.NewSource(seed))}
}

func (b *RandomBot) BestMove(ctx context.Context, board *position.Board) (SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return SearchResult{}, err
	}
	moves := board.LegalMoves()
	if len(moves) == 0 {
		return SearchResult{}, nil
	}
	b.mu.Lock()
	mv := moves[b.rng.Intn(len(moves))]
	b.mu.Unlock()
	return SearchResult{BestMove: mv, BestUCI: board.UCI(mv), Nodes: 1}, nil
}

func (b *RandomBot) Name() string {
	return "Random Bot"
}
