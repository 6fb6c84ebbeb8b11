package linegame

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const columnLetters = "ABCDEFGHJKLMNOPQRSTUVWXYZ"

// ColorToChar renders a cell as X, O, . or #
func ColorToChar(c Color) byte {
	switch c {
	case Black:
		return 'X'
	case White:
		return 'O'
	case Empty:
		return '.'
	default:
		return '#'
	}
}

// PlayerToString names a color
func PlayerToString(c Color) string {
	switch c {
	case Black:
		return "Black"
	case White:
		return "White"
	case Empty:
		return "Empty"
	default:
		return "Wall"
	}
}

// PlayerToStringShort is the single letter form used in records
func PlayerToStringShort(c Color) string {
	switch c {
	case Black:
		return "B"
	case White:
		return "W"
	case Empty:
		return "E"
	default:
		return ""
	}
}

// ParsePlayer accepts black/b and white/w in any case
func ParsePlayer(s string) (Player, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "black", "b":
		return Black, nil
	case "white", "w":
		return White, nil
	}
	return Empty, fmt.Errorf("%w: player %q", ErrParse, s)
}

// DirectionToString names a direction
func DirectionToString(d Direction) string {
	switch d {
	case North:
		return "north"
	case West:
		return "west"
	case NorthEast:
		return "northeast"
	case NorthWest:
		return "northwest"
	case NoDirection:
		return "none"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// ParseDirection accepts full names, short forms and several spellings of none
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north", "n":
		return North, nil
	case "west", "w":
		return West, nil
	case "northeast", "ne":
		return NorthEast, nil
	case "northwest", "nw":
		return NorthWest, nil
	case "none", "no", "null", "nil", "0":
		return NoDirection, nil
	}
	return NoDirection, fmt.Errorf("%w: direction %q", ErrParse, s)
}

// SpotToString gives a column letter and a row counted from the bottom, like "C4".
// Spots off the board are written as (x,y).
func SpotToString(s Spot, xSize, ySize int) string {
	if s == NullSpot {
		return "null"
	}
	x := GetX(s, xSize)
	y := GetY(s, xSize)
	if x < 0 || x >= xSize || y < 0 || y >= ySize {
		return fmt.Sprintf("(%d,%d)", x, y)
	}
	if x < len(columnLetters) {
		return fmt.Sprintf("%c%d", columnLetters[x], ySize-y)
	}
	return fmt.Sprintf("%c%c%d", columnLetters[x/25-1], columnLetters[x%25], ySize-y)
}

func letterCoordinate(c byte) (int, bool) {
	switch {
	case c >= 'A' && c <= 'H':
		return int(c - 'A'), true
	case c >= 'a' && c <= 'h':
		return int(c - 'a'), true
	case c >= 'J' && c <= 'Z':
		return int(c-'A') - 1, true
	case c >= 'j' && c <= 'z':
		return int(c-'a') - 1, true
	}
	return 0, false
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// ParseSpot reads either the letter form or the (x,y) form of a spot.
// "null" is accepted and yields NullSpot.
func ParseSpot(str string, xSize, ySize int) (Spot, error) {
	s := strings.TrimSpace(str)
	if s == "null" {
		return NullSpot, nil
	}
	bad := fmt.Errorf("%w: spot %q", ErrParse, str)
	if len(s) < 2 {
		return 0, bad
	}
	if s[0] == '(' {
		if s[len(s)-1] != ')' {
			return 0, bad
		}
		pieces := strings.Split(s[1:len(s)-1], ",")
		if len(pieces) != 2 {
			return 0, bad
		}
		x, err1 := strconv.Atoi(strings.TrimSpace(pieces[0]))
		y, err2 := strconv.Atoi(strings.TrimSpace(pieces[1]))
		if err1 != nil || err2 != nil {
			return 0, bad
		}
		// only the surrounding walls can be named this way
		if x < -1 || x >= xSize || y < -1 || y > ySize {
			return 0, fmt.Errorf("%w: spot %q", ErrOutsideBoard, str)
		}
		return GetSpot(x, y, xSize), nil
	}

	x, ok := letterCoordinate(s[0])
	if !ok {
		return 0, bad
	}
	rest := s[1:]
	if isLetter(s[1]) {
		x1, ok := letterCoordinate(s[1])
		if !ok {
			return 0, bad
		}
		x = (x+1)*25 + x1
		rest = s[2:]
	}
	row, err := strconv.Atoi(rest)
	if err != nil {
		return 0, bad
	}
	y := ySize - row
	if x < 0 || y < 0 || x >= xSize || y >= ySize {
		return 0, fmt.Errorf("%w: spot %q", ErrOutsideBoard, str)
	}
	return GetSpot(x, y, xSize), nil
}

// LocToString writes "<spot> <direction>"
func LocToString(l Loc, xSize, ySize int) string {
	return SpotToString(l.Spot, xSize, ySize) + " " + DirectionToString(l.Dir)
}

// ParseLoc reads the output of LocToString
func ParseLoc(s string, xSize, ySize int) (Loc, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return NullLoc, fmt.Errorf("%w: loc %q", ErrParse, s)
	}
	spot, err := ParseSpot(fields[0], xSize, ySize)
	if err != nil {
		return NullLoc, err
	}
	dir, err := ParseDirection(fields[1])
	if err != nil {
		return NullLoc, err
	}
	return Loc{spot, dir}, nil
}

// MoveToString writes "<Player> <spot> <direction>"
func MoveToString(m Move, xSize, ySize int) string {
	return PlayerToString(m.Pla) + " " + LocToString(m.Loc, xSize, ySize)
}

// ParseSequence reads space separated "<spot> <direction>" pairs
func ParseSequence(s string, xSize, ySize int) ([]Loc, error) {
	fields := strings.Fields(s)
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of tokens in sequence", ErrParse)
	}
	locs := make([]Loc, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		l, err := ParseLoc(fields[i]+" "+fields[i+1], xSize, ySize)
		if err != nil {
			return nil, err
		}
		locs = append(locs, l)
	}
	return locs, nil
}

// StringSimple writes one row per line, each followed by delim
func (b *Board) StringSimple(delim byte) string {
	var sb strings.Builder
	for y := 0; y < b.YSize; y++ {
		for x := 0; x < b.XSize; x++ {
			sb.WriteByte(ColorToChar(b.Colors[GetSpot(x, y, b.XSize)]))
		}
		sb.WriteByte(delim)
	}
	return sb.String()
}

// ParseBoard reads a board drawn by String or StringSimple.
// A column header line and leading row numbers are ignored, and cells may be
// separated by single spaces.
func ParseBoard(xSize, ySize, winLen int, text string, delim byte) (Board, error) {
	b, err := NewBoard(xSize, ySize, winLen)
	if err != nil {
		return b, err
	}
	lines := strings.Split(strings.TrimSpace(text), string(delim))
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == ySize+1 && strings.HasPrefix(strings.TrimSpace(lines[0]), "A") {
		lines = lines[1:]
	}
	if len(lines) != ySize {
		return b, fmt.Errorf("%w: board has %d rows, expected %d", ErrParse, len(lines), ySize)
	}

	for y := 0; y < ySize; y++ {
		line := strings.TrimSpace(lines[y])
		line = strings.TrimSpace(strings.TrimLeft(line, "0123456789"))
		if len(line) != xSize && len(line) != 2*xSize-1 {
			return b, fmt.Errorf("%w: row %d has length %d, incompatible with width %d", ErrParse, y, len(line), xSize)
		}
		for x := 0; x < xSize; x++ {
			c := line[x]
			if len(line) != xSize {
				c = line[2*x]
			}
			s := GetSpot(x, y, xSize)
			switch c {
			case '.', ' ', '*', ',', '`':
			case 'o', 'O':
				b.SetStone(s, White)
			case 'x', 'X':
				b.SetStone(s, Black)
			default:
				return b, fmt.Errorf("%w: could not parse board character %q", ErrParse, c)
			}
		}
	}
	return b, nil
}

type boardJSON struct {
	XSize   int    `json:"xSize"`
	YSize   int    `json:"ySize"`
	WinLen  int    `json:"winLen"`
	Stones  string `json:"stones"`
	LastLoc string `json:"lastLoc"`
}

// MarshalJSON writes {"xSize","ySize","winLen","stones","lastLoc"}
func (b Board) MarshalJSON() ([]byte, error) {
	return json.Marshal(boardJSON{
		XSize:   b.XSize,
		YSize:   b.YSize,
		WinLen:  b.WinLen,
		Stones:  b.StringSimple('|'),
		LastLoc: LocToString(b.LastLoc, b.XSize, b.YSize),
	})
}

// UnmarshalJSON reads the format written by MarshalJSON
func (b *Board) UnmarshalJSON(data []byte) error {
	var j boardJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	nb, err := ParseBoard(j.XSize, j.YSize, j.WinLen, j.Stones, '|')
	if err != nil {
		return err
	}
	if j.LastLoc != "" {
		l, err := ParseLoc(j.LastLoc, j.XSize, j.YSize)
		if err != nil {
			return err
		}
		nb.LastLoc = l
	}
	*b = nb
	return nil
}
