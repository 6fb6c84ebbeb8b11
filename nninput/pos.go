package nninput

import "github.com/dodgebc/go-linegame/linegame"

// MaxBoardLen bounds the side of the input window
const MaxBoardLen = linegame.MaxLen

// PolicySize counts the real moves of an nnXLen by nnYLen window
func PolicySize(nnXLen, nnYLen int) int {
	return nnXLen * nnYLen * linegame.NumActualDirections
}

// NullPos is the policy index that stands for no move
func NullPos(nnXLen, nnYLen int) int {
	return PolicySize(nnXLen, nnYLen)
}

// XYDToPos gives the policy index of a cell and direction, channel-major
func XYDToPos(x, y int, dir linegame.Direction, nnXLen, nnYLen int) int {
	return int(dir)*nnXLen*nnYLen + y*nnXLen + x
}

// LocToPos gives the policy index of a board location
func LocToPos(loc linegame.Loc, boardXSize, nnXLen, nnYLen int) int {
	if loc.IsNull() || loc.Dir == linegame.NoDirection {
		return NullPos(nnXLen, nnYLen)
	}
	x := linegame.GetX(loc.Spot, boardXSize)
	y := linegame.GetY(loc.Spot, boardXSize)
	return XYDToPos(x, y, loc.Dir, nnXLen, nnYLen)
}

// PosToLoc inverts LocToPos, anything off the board is the null location
func PosToLoc(pos, boardXSize, boardYSize, nnXLen, nnYLen int) linegame.Loc {
	area := nnXLen * nnYLen
	if pos < 0 || pos >= PolicySize(nnXLen, nnYLen) {
		return linegame.NullLoc
	}
	dir := linegame.Direction(pos / area)
	pos %= area
	x := pos % nnXLen
	y := pos / nnXLen
	if x >= boardXSize || y >= boardYSize {
		return linegame.NullLoc
	}
	return linegame.GetLoc(x, y, dir, boardXSize)
}

// XYToPos indexes a cell of a single plane
func XYToPos(x, y, nnXLen int) int {
	return y*nnXLen + x
}

// SpotToPos indexes the cell of a spot in a single plane, the null spot maps past the end
func SpotToPos(s linegame.Spot, boardXSize, nnXLen, nnYLen int) int {
	if s == linegame.NullSpot {
		return nnXLen * nnYLen
	}
	return linegame.GetY(s, boardXSize)*nnXLen + linegame.GetX(s, boardXSize)
}

// PosToSpot inverts SpotToPos
func PosToSpot(pos, boardXSize, boardYSize, nnXLen, nnYLen int) linegame.Spot {
	if pos < 0 || pos >= nnXLen*nnYLen {
		return linegame.NullSpot
	}
	x := pos % nnXLen
	y := pos / nnXLen
	if x >= boardXSize || y >= boardYSize {
		return linegame.NullSpot
	}
	return linegame.GetSpot(x, y, boardXSize)
}
