package linegame

import (
	"errors"
	"fmt"
)

// ErrWrongPlayer means that it is the other player's turn
var ErrWrongPlayer error = errors.New("wrong player")

// ErrOutsideBoard means that the spot is not a cell of the board
var ErrOutsideBoard error = errors.New("outside board")

// ErrSpotNotEmpty means that there is already a stone at the spot
var ErrSpotNotEmpty error = errors.New("spot not empty")

// ErrBadDirection means that the move direction does not follow the previous move
var ErrBadDirection error = errors.New("direction incompatible with previous move")

// ErrNoRoom means that the line through the move has no empty cell left
var ErrNoRoom error = errors.New("no empty cell along direction")

// ErrIllegalMove is the general rejection used when no finer reason applies
var ErrIllegalMove error = errors.New("illegal move")

// ErrGameFinished means that a move was attempted after the game ended
var ErrGameFinished error = errors.New("game already finished")

// ErrInvalidSize means that board dimensions or win length are out of range
var ErrInvalidSize error = errors.New("invalid board size")

// ErrInconsistentBoard means that a board failed its consistency check
var ErrInconsistentBoard error = errors.New("inconsistent board")

// ErrParse means that text could not be parsed into a game object
var ErrParse error = errors.New("parse error")

// GameError wraps an error with additional information about the attempted move
type GameError struct {
	err       error
	attempted Move
}

func (e GameError) Error() string {
	return fmt.Sprintf("move %q invalid: %s", e.attempted, e.err)
}

func (e GameError) Unwrap() error {
	return e.err
}

// Attempted returns the move that was rejected
func (e GameError) Attempted() Move {
	return e.attempted
}
