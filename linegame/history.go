package linegame

import (
	"fmt"
	"io"
)

// NumRecentBoards is the number of boards kept for lookback
const NumRecentBoards = 6

// BoardHistory stores the moves of a game, a ring of recent boards and the game result.
// The current board is held by the caller and passed to the methods that change it.
type BoardHistory struct {
	MoveHistory []Move

	// board and player to move before MoveHistory
	InitialBoard      Board
	InitialPla        Player
	InitialTurnNumber int

	recentBoards          [NumRecentBoards]Board
	currentRecentBoardIdx int

	PresumedNextMovePla Player
	NumTurns            int

	IsGameFinished bool
	Winner         Color // Empty when the game has no winner
	IsResignation  bool
}

// NewBoardHistory starts a history at the given board
func NewBoardHistory(b Board, pla Player) BoardHistory {
	var h BoardHistory
	h.Clear(b, pla)
	return h
}

// Clear drops all history and result information
func (h *BoardHistory) Clear(b Board, pla Player) {
	h.MoveHistory = h.MoveHistory[:0]
	h.InitialBoard = b
	h.InitialPla = pla
	h.InitialTurnNumber = 0
	// lookback past the start returns the starting board
	for i := range h.recentBoards {
		h.recentBoards[i] = b
	}
	h.currentRecentBoardIdx = 0
	h.PresumedNextMovePla = pla
	h.NumTurns = 0
	h.IsGameFinished = false
	h.Winner = Empty
	h.IsResignation = false
}

// SetInitialTurnNumber sets the turn number of the initial board. Affects nothing else.
func (h *BoardHistory) SetInitialTurnNumber(n int) {
	h.InitialTurnNumber = n
}

// CopyToInitial returns a history rewound to its initial board
func (h *BoardHistory) CopyToInitial() BoardHistory {
	h2 := NewBoardHistory(h.InitialBoard, h.InitialPla)
	h2.SetInitialTurnNumber(h.InitialTurnNumber)
	return h2
}

// Copy returns a deep copy sharing no memory with h
func (h *BoardHistory) Copy() BoardHistory {
	h2 := *h
	h2.MoveHistory = make([]Move, len(h.MoveHistory))
	copy(h2.MoveHistory, h.MoveHistory)
	return h2
}

// GetRecentBoard returns a copy of the board numMovesAgo moves ago, 0 being the
// current board. numMovesAgo must be below NumRecentBoards.
func (h *BoardHistory) GetRecentBoard(numMovesAgo int) Board {
	if numMovesAgo < 0 || numMovesAgo >= NumRecentBoards {
		panic(fmt.Sprintf("recent board lookback out of range: %d", numMovesAgo))
	}
	idx := (h.currentRecentBoardIdx - numMovesAgo + NumRecentBoards) % NumRecentBoards
	return h.recentBoards[idx]
}

// IsLegal checks a move against the board
func (h *BoardHistory) IsLegal(b *Board, loc Loc, pla Player) bool {
	return b.IsLegal(loc, pla)
}

// MakeBoardMove plays a move if it is legal
func (h *BoardHistory) MakeBoardMove(b *Board, loc Loc, pla Player) error {
	if err := b.checkMove(loc, pla); err != nil {
		return GameError{err, Move{loc, pla}}
	}
	h.MakeBoardMoveAssumeLegal(b, loc, pla)
	return nil
}

// MakeBoardMoveAssumeLegal plays a move and records it, ending the game if it completes a line
func (h *BoardHistory) MakeBoardMoveAssumeLegal(b *Board, loc Loc, pla Player) {
	h.IsGameFinished = false
	h.Winner = Empty
	h.IsResignation = false

	b.PlayMoveAssumeLegal(loc, pla)
	h.currentRecentBoardIdx = (h.currentRecentBoardIdx + 1) % NumRecentBoards
	h.recentBoards[h.currentRecentBoardIdx] = *b
	h.MoveHistory = append(h.MoveHistory, Move{loc, pla})
	h.NumTurns++
	h.PresumedNextMovePla = Opp(pla)

	if b.CheckGameEnd() {
		h.IsGameFinished = true
		h.Winner = pla
	}
}

// GetCurrentTurnNumber counts turns from the start of the game
func (h *BoardHistory) GetCurrentTurnNumber() int {
	return h.InitialTurnNumber + len(h.MoveHistory)
}

// GetSituationHash is the board hash with the next player folded in
func (h *BoardHistory) GetSituationHash(b *Board, next Player) Hash128 {
	return b.GetSitHash(next)
}

// EndIfNoLegalMoves finishes the game as a draw when pla has nowhere to play
func (h *BoardHistory) EndIfNoLegalMoves(b *Board, pla Player) bool {
	if h.IsGameFinished || len(b.LegalMoves(pla)) > 0 {
		return false
	}
	h.IsGameFinished = true
	h.Winner = Empty
	return true
}

// SetWinnerByResignation ends the game with pla as the winner
func (h *BoardHistory) SetWinnerByResignation(pla Player) {
	h.IsGameFinished = true
	h.IsResignation = true
	h.Winner = pla
}

// PrintBasicInfo writes the board and the game status
func (h *BoardHistory) PrintBasicInfo(w io.Writer, b *Board) {
	fmt.Fprint(w, b.String())
	fmt.Fprintf(w, "Next player: %s\n", PlayerToString(h.PresumedNextMovePla))
	fmt.Fprintf(w, "Turns: %d\n", h.NumTurns)
	if h.IsGameFinished {
		if h.IsResignation {
			fmt.Fprintf(w, "Winner: %s (resignation)\n", PlayerToString(h.Winner))
		} else if h.Winner == Empty {
			fmt.Fprintln(w, "Draw: no legal moves")
		} else {
			fmt.Fprintf(w, "Winner: %s\n", PlayerToString(h.Winner))
		}
	}
}
