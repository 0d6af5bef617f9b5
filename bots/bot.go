// bot.go
package bots

import (
	"context"

	"github.com/notnil/chess"

	"minimaxing/position"
)

// ChessBot is the interface for all bots. BestMove must leave b as it found
// it.
type ChessBot interface {
	BestMove(ctx context.Context, b *position.Board) (SearchResult, error)
	Name() string
}

// Scorer scores a position from perspective's point of view.
type Scorer interface {
	Evaluate(b *position.Board, perspective chess.Color) float64
}

// SearchResult is what a bot decided at the root. BestMove is nil only when
// the side to move has no legal move.
type SearchResult struct {
	BestMove *chess.Move
	BestUCI  string
	Score    float64
	// RootScores has one entry per legal root move, keyed by UCI.
	RootScores map[string]float64
	Nodes      int
}
