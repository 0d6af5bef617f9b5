package position

import (
	"github.com/notnil/chess"
	"github.com/pkg/errors"
)

// TagPair is a PGN header.
type TagPair struct {
	Key   string
	Value string
}

// PGN renders the history of b as a PGN game with the given headers. The
// move text is replayed through a fresh notnil game from the root FEN.
func (b *Board) PGN(tags ...TagPair) (string, error) {
	root := b.RootFEN()
	if root != StartFEN {
		tags = append(tags, TagPair{Key: "SetUp", Value: "1"}, TagPair{Key: "FEN", Value: root})
	}
	pairs := make([]*chess.TagPair, 0, len(tags))
	for _, t := range tags {
		pairs = append(pairs, &chess.TagPair{Key: t.Key, Value: t.Value})
	}
	opts := []func(*chess.Game){chess.TagPairs(pairs)}
	if root != StartFEN {
		opt, err := chess.FEN(root)
		if err != nil {
			return "", errors.Wrap(err, "pgn root fen")
		}
		opts = append(opts, opt)
	}
	g := chess.NewGame(opts...)
	for _, s := range b.MoveUCIs() {
		m, err := chess.UCINotation{}.Decode(g.Position(), s)
		if err != nil {
			return "", errors.Wrapf(err, "pgn decode %s", s)
		}
		if err := g.Move(m); err != nil {
			return "", errors.Wrapf(err, "pgn replay %s", s)
		}
	}
	return g.String(), nil
}
