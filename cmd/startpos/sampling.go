package main

import (
	"bufio"
	"fmt"
	"io"
	"regexp"

	"github.com/pkg/errors"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/record"
	"github.com/dodgebc/go-linegame/rng"
	"github.com/dodgebc/go-linegame/selfplay"
)

// positionKey identifies a position for deduplication. The hash does not cover
// the last location, which decides the legal moves.
type positionKey struct {
	hash    linegame.Hash128
	lastLoc linegame.Loc
	winLen  int
}

type sampledPosition struct {
	key positionKey
	pos selfplay.StartPos
}

// errSkipped marks games left out by a filter
var errSkipped = errors.New("skipped")

// gameFilter rejects games by length or player name
type gameFilter struct {
	minLength int
	blacklist []*regexp.Regexp
}

func (f gameFilter) check(g record.GameData) (string, error) {
	if len(g.Moves) < f.minLength {
		return "short", errors.Wrapf(errSkipped, "%d moves", len(g.Moves))
	}
	for _, re := range f.blacklist {
		if re.MatchString(g.BlackPlayer) || re.MatchString(g.WhitePlayer) {
			return "blacklist", errors.Wrapf(errSkipped, "player matches %s", re)
		}
	}
	return "", nil
}

func loadBlacklist(r io.Reader) ([]*regexp.Regexp, error) {
	var blacklist []*regexp.Regexp
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if text := scanner.Text(); len(text) > 0 {
			re, err := regexp.Compile("(?i)" + text)
			if err != nil {
				return nil, errors.Wrap(err, "compiling blacklist")
			}
			blacklist = append(blacklist, re)
		}
	}
	return blacklist, errors.Wrap(scanner.Err(), "reading blacklist")
}

// samplePositions replays a game and keeps each position from turn minTurn on
// with probability sample. Finished positions and positions without a legal
// move are never kept.
func samplePositions(g record.GameData, r *rng.Rand, sample float64, minTurn int) ([]sampledPosition, error) {
	b, err := g.StartBoard()
	if err != nil {
		return nil, err
	}
	h := linegame.NewBoardHistory(b, g.StartPla)
	pla := g.StartPla

	var positions []sampledPosition
	for t := 0; t <= len(g.Moves); t++ {
		if h.IsGameFinished {
			break
		}
		if t >= minTurn && r.Bool(sample) && len(b.LegalMoves(pla)) > 0 {
			positions = append(positions, sampledPosition{
				key: positionKey{h.GetSituationHash(&b, pla), b.LastLoc, b.WinLen},
				pos: selfplay.StartPos{Board: b, Next: linegame.PlayerToString(pla), Weight: 1},
			})
		}
		if t == len(g.Moves) {
			break
		}
		m := g.Moves[t]
		if m.Pla != pla {
			return nil, fmt.Errorf("%w: move %d out of turn", record.ErrBadRecord, t)
		}
		if err := h.MakeBoardMove(&b, m.Loc, pla); err != nil {
			return nil, errors.Wrapf(err, "move %d", t)
		}
		pla = linegame.Opp(pla)
	}
	return positions, nil
}
