package linegame

import (
	"fmt"
	"strings"
)

// Board holds the cells of a game in a padded array surrounded by walls.
// It is a value type, assigning a Board copies it.
type Board struct {
	XSize, YSize int
	WinLen       int
	Colors       [MaxArrSize]Color
	PosHash      Hash128
	LastLoc      Loc
}

// MoveRecord is what Undo needs to take back a move
type MoveRecord struct {
	Loc Loc
	Pla Player
}

// NewBoard creates an empty board
func NewBoard(xSize, ySize, winLen int) (Board, error) {
	var b Board
	if xSize < 0 || ySize < 0 || xSize > MaxLen || ySize > MaxLen {
		return b, fmt.Errorf("%w: %dx%d", ErrInvalidSize, xSize, ySize)
	}
	if winLen <= 0 {
		return b, fmt.Errorf("%w: win length %d", ErrInvalidSize, winLen)
	}
	b.XSize = xSize
	b.YSize = ySize
	b.WinLen = winLen
	b.clear()
	return b, nil
}

// MustNewBoard is NewBoard for dimensions known to be valid
func MustNewBoard(xSize, ySize, winLen int) Board {
	b, err := NewBoard(xSize, ySize, winLen)
	if err != nil {
		panic(err)
	}
	return b
}

// clear removes all stones and resets hash and last location
func (b *Board) clear() {
	for i := range b.Colors {
		b.Colors[i] = Wall
	}
	for y := 0; y < b.YSize; y++ {
		for x := 0; x < b.XSize; x++ {
			b.Colors[GetSpot(x, y, b.XSize)] = Empty
		}
	}
	t := Tables()
	b.PosHash = t.SizeX[b.XSize].Xor(t.SizeY[b.YSize])
	b.LastLoc = NullLoc
}

// IsOnBoard checks if the spot is a cell of the board
func (b *Board) IsOnBoard(s Spot) bool {
	return s >= 0 && int(s) < MaxArrSize && b.Colors[s] != Wall
}

// IsEmpty reports whether no stones have been placed
func (b *Board) IsEmpty() bool {
	return b.NumStonesOnBoard() == 0
}

// NumStonesOnBoard counts stones of both colors
func (b *Board) NumStonesOnBoard() int {
	n := 0
	for y := 0; y < b.YSize; y++ {
		for x := 0; x < b.XSize; x++ {
			if IsPlayer(b.Colors[GetSpot(x, y, b.XSize)]) {
				n++
			}
		}
	}
	return n
}

// NumPlaStonesOnBoard counts the stones of one player
func (b *Board) NumPlaStonesOnBoard(pla Player) int {
	n := 0
	for y := 0; y < b.YSize; y++ {
		for x := 0; x < b.XSize; x++ {
			if b.Colors[GetSpot(x, y, b.XSize)] == pla {
				n++
			}
		}
	}
	return n
}

// checkMove returns why a move is illegal, or nil.
// A move must follow the direction of the previous move and must leave
// an empty cell somewhere along its own line.
func (b *Board) checkMove(loc Loc, pla Player) error {
	if !IsPlayer(pla) {
		return ErrWrongPlayer
	}
	if !b.IsOnBoard(loc.Spot) {
		return ErrOutsideBoard
	}
	if b.Colors[loc.Spot] != Empty {
		return ErrSpotNotEmpty
	}
	if loc.Dir < 0 || loc.Dir >= NumActualDirections {
		return ErrBadDirection
	}

	dx := GetX(loc.Spot, b.XSize) - GetX(b.LastLoc.Spot, b.XSize)
	dy := GetY(loc.Spot, b.XSize) - GetY(b.LastLoc.Spot, b.XSize)
	switch b.LastLoc.Dir {
	case North:
		if dx != 0 || dy == 0 {
			return ErrBadDirection
		}
	case West:
		if dx == 0 || dy != 0 {
			return ErrBadDirection
		}
	case NorthWest:
		if dx != dy {
			return ErrBadDirection
		}
	case NorthEast:
		if dx != -dy {
			return ErrBadDirection
		}
	}

	off := lineOffsets(b.XSize)[loc.Dir]
	for t := loc.Spot + off; b.IsOnBoard(t); t += off {
		if b.Colors[t] == Empty {
			return nil
		}
	}
	for t := loc.Spot - off; b.IsOnBoard(t); t -= off {
		if b.Colors[t] == Empty {
			return nil
		}
	}
	return ErrNoRoom
}

// IsLegal checks if pla may play at loc
func (b *Board) IsLegal(loc Loc, pla Player) bool {
	return b.checkMove(loc, pla) == nil
}

// LegalMoves lists every legal location for pla, spot-major
func (b *Board) LegalMoves(pla Player) []Loc {
	var locs []Loc
	for y := 0; y < b.YSize; y++ {
		for x := 0; x < b.XSize; x++ {
			s := GetSpot(x, y, b.XSize)
			if b.Colors[s] != Empty {
				continue
			}
			for d := Direction(0); d < NumActualDirections; d++ {
				if l := (Loc{s, d}); b.IsLegal(l, pla) {
					locs = append(locs, l)
				}
			}
		}
	}
	return locs
}

// PlayMove plays a move if it is legal
func (b *Board) PlayMove(loc Loc, pla Player) bool {
	if !b.IsLegal(loc, pla) {
		return false
	}
	b.PlayMoveAssumeLegal(loc, pla)
	return true
}

// PlayMoveAssumeLegal places a stone without any legality check
func (b *Board) PlayMoveAssumeLegal(loc Loc, pla Player) {
	b.Colors[loc.Spot] = pla
	b.PosHash = b.PosHash.Xor(Tables().Board[loc.Spot][pla])
	b.LastLoc = loc
}

// PlayMoveRecorded plays a move assumed legal and returns what Undo needs
func (b *Board) PlayMoveRecorded(loc Loc, pla Player) MoveRecord {
	b.PlayMoveAssumeLegal(loc, pla)
	return MoveRecord{loc, pla}
}

// Undo removes the stone of a recorded move. Moves must be undone in reverse order.
// The last location is not restored.
func (b *Board) Undo(r MoveRecord) {
	s := r.Loc.Spot
	b.PosHash = b.PosHash.Xor(Tables().Board[s][b.Colors[s]])
	b.Colors[s] = Empty
}

// SetStone changes a cell for setup purposes, keeping the hash consistent
func (b *Board) SetStone(s Spot, c Color) bool {
	if !b.IsOnBoard(s) {
		return false
	}
	if c != Black && c != White && c != Empty {
		return false
	}
	t := Tables()
	b.PosHash = b.PosHash.Xor(t.Board[s][b.Colors[s]]).Xor(t.Board[s][c])
	b.Colors[s] = c
	return true
}

// SetStones applies placements in order, stopping at the first failure
func (b *Board) SetStones(placements []Placement) bool {
	for _, p := range placements {
		if !b.SetStone(p.Spot, p.Color) {
			return false
		}
	}
	return true
}

// GetSitHash is the position hash with the player to move folded in
func (b *Board) GetSitHash(pla Player) Hash128 {
	return b.PosHash.Xor(Tables().Player[pla])
}

// GetPosHashAfterMove is the position hash that playing loc would produce
func (b *Board) GetPosHashAfterMove(loc Loc, pla Player) Hash128 {
	return b.PosHash.Xor(Tables().Board[loc.Spot][pla])
}

// runLength counts the stones of color c through s along off, s included
func (b *Board) runLength(s Spot, off Spot, c Color) int {
	n := 1
	for t := s + off; b.IsOnBoard(t) && b.Colors[t] == c; t += off {
		n++
	}
	for t := s - off; b.IsOnBoard(t) && b.Colors[t] == c; t -= off {
		n++
	}
	return n
}

// CheckGameEnd reports whether the last move completed a line of WinLen stones
func (b *Board) CheckGameEnd() bool {
	s := b.LastLoc.Spot
	if !b.IsOnBoard(s) {
		return false
	}
	c := b.Colors[s]
	if !IsPlayer(c) {
		return false
	}
	for _, off := range lineOffsets(b.XSize) {
		if b.runLength(s, off, c) >= b.WinLen {
			return true
		}
	}
	return false
}

// FillRowWithLine marks, in a plane of nnXLen*nnYLen floats, the empty cells
// at either end of every maximal line of exactly length stones.
func (b *Board) FillRowWithLine(length int, plane []float32, nnXLen, nnYLen int) {
	var visited [NumActualDirections][MaxArrSize]bool
	mark := func(t Spot) {
		if b.IsOnBoard(t) && b.Colors[t] == Empty {
			x, y := GetX(t, b.XSize), GetY(t, b.XSize)
			if x < nnXLen && y < nnYLen {
				plane[y*nnXLen+x] = 1
			}
		}
	}
	offsets := lineOffsets(b.XSize)
	for s := Spot(0); int(s) < MaxArrSize; s++ {
		c := b.Colors[s]
		if !IsPlayer(c) {
			continue
		}
		for d, off := range offsets {
			if visited[d][s] {
				continue
			}
			start := s
			for b.IsOnBoard(start-off) && b.Colors[start-off] == c {
				start -= off
			}
			end := start
			n := 1
			visited[d][start] = true
			for b.IsOnBoard(end+off) && b.Colors[end+off] == c {
				end += off
				visited[d][end] = true
				n++
			}
			if n == length {
				mark(start - off)
				mark(end + off)
			}
		}
	}
}

// MaxLineLengths returns, for every cell, the longest same-color line through it.
// Empty cells get 0. Rows are YSize by XSize.
func (b *Board) MaxLineLengths() [][]int {
	out := make([][]int, b.YSize)
	offsets := lineOffsets(b.XSize)
	for y := 0; y < b.YSize; y++ {
		out[y] = make([]int, b.XSize)
		for x := 0; x < b.XSize; x++ {
			s := GetSpot(x, y, b.XSize)
			c := b.Colors[s]
			if !IsPlayer(c) {
				continue
			}
			for _, off := range offsets {
				if n := b.runLength(s, off, c); n > out[y][x] {
					out[y][x] = n
				}
			}
		}
	}
	return out
}

// CheckConsistency recomputes the board invariants from scratch
func (b *Board) CheckConsistency() error {
	t := Tables()
	h := t.SizeX[b.XSize].Xor(t.SizeY[b.YSize])
	for s := 0; s < MaxArrSize; s++ {
		x := GetX(Spot(s), b.XSize)
		y := GetY(Spot(s), b.XSize)
		c := b.Colors[s]
		if x < 0 || x >= b.XSize || y < 0 || y >= b.YSize {
			if c != Wall {
				return fmt.Errorf("%w: non-wall value outside of board legal area", ErrInconsistentBoard)
			}
			continue
		}
		switch c {
		case Black, White:
			h = h.Xor(t.Board[s][c])
		case Empty:
		default:
			return fmt.Errorf("%w: non-(black,white,empty) value within board legal area", ErrInconsistentBoard)
		}
	}
	if h != b.PosHash {
		return fmt.Errorf("%w: pos hash does not match expected", ErrInconsistentBoard)
	}
	return nil
}

// Equals compares cells, dimensions, hash and last location
func (b *Board) Equals(b2 Board) bool {
	return b.XSize == b2.XSize && b.YSize == b2.YSize && b.WinLen == b2.WinLen &&
		b.PosHash == b2.PosHash && b.LastLoc == b2.LastLoc && b.Colors == b2.Colors
}

// Copy returns an independent copy of the board
func (b *Board) Copy() Board {
	return *b
}

// CopyFrom overwrites the board with another
func (b *Board) CopyFrom(b2 Board) {
	*b = b2
}

// String draws the board with coordinates, the last move in lowercase
func (b Board) String() string {
	var sb strings.Builder
	sb.WriteString("  ")
	for x := 0; x < b.XSize; x++ {
		sb.WriteByte(' ')
		sb.WriteByte(columnLetters[x])
	}
	sb.WriteByte('\n')
	for y := 0; y < b.YSize; y++ {
		fmt.Fprintf(&sb, "%2d", b.YSize-y)
		for x := 0; x < b.XSize; x++ {
			s := GetSpot(x, y, b.XSize)
			ch := ColorToChar(b.Colors[s])
			if s == b.LastLoc.Spot && IsPlayer(b.Colors[s]) {
				ch = ch - 'A' + 'a'
			}
			sb.WriteByte(' ')
			sb.WriteByte(ch)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
