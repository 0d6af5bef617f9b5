package bots

import (
	"context"

	"minimaxing/position"
)

// NewbornBot plays the first legal move in UCI order.
type NewbornBot struct{}

func NewNewbornBot() *NewbornBot {
	return &NewbornBot{}
}

func (b *NewbornBot) BestMove(ctx context.Context, board *position.Board) (SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return SearchResult{}, err
	}
	moves := board.LegalMoves()
	if len(moves) == 0 {
		return SearchResult{}, nil
	}
	return SearchResult{BestMove: moves[0], BestUCI: board.UCI(moves[0]), Nodes: 1}, nil
}

func (b *NewbornBot) Name() string {
	return "Newborn"
}
