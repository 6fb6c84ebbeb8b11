package record

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dodgebc/go-linegame/linegame"
)

var (
	reSquare = regexp.MustCompile("^[0-9]{1,2}$")
	reRect   = regexp.MustCompile("^[0-9]{1,2}:[0-9]{1,2}$")
	reResult = regexp.MustCompile("^([BW])\\+(Line|L|R|Resign)$")
)

// Result endings
const (
	EndLine   = "Line"
	EndResign = "Resign"
	EndDraw   = "Draw"
	// the game was stopped before it ended
	EndVoid = "Void"
)

// ErrParse means that a property was not able to be parsed
type ErrParse struct {
	identifier string
	value      string
}

func (e ErrParse) Error() string {
	return fmt.Sprintf("property parse error: %s %s", e.identifier, e.value)
}

// ParseSize parses "n" or "columns:rows"
func ParseSize(v string) (int, int, error) {
	switch {
	case reSquare.MatchString(v):
		n, _ := strconv.Atoi(v)
		if n >= 1 && n <= linegame.MaxLen {
			return n, n, nil
		}
	case reRect.MatchString(v):
		dims := strings.Split(v, ":")
		cols, _ := strconv.Atoi(dims[0])
		rows, _ := strconv.Atoi(dims[1])
		if cols >= 1 && rows >= 1 && cols <= linegame.MaxLen && rows <= linegame.MaxLen {
			return cols, rows, nil
		}
	}
	return 0, 0, ErrParse{"SZ", v}
}

// ParseWinLen parses the line length needed to win
func ParseWinLen(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, ErrParse{"WL", v}
	}
	return n, nil
}

// ParseHandicap parses the number of extra black stones
func ParseHandicap(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, ErrParse{"HA", v}
	}
	return n, nil
}

// ParseResult parses the winner and how the game ended
func ParseResult(v string) (linegame.Color, string, error) {
	switch v {
	case EndDraw, "0":
		return linegame.Empty, EndDraw, nil
	case EndVoid, "?":
		return linegame.Empty, EndVoid, nil
	}
	m := reResult.FindStringSubmatch(v)
	if len(m) != 3 {
		return linegame.Empty, "", ErrParse{"RE", v}
	}
	winner := linegame.Black
	if m[1] == "W" {
		winner = linegame.White
	}
	if m[2] == "R" || m[2] == EndResign {
		return winner, EndResign, nil
	}
	return winner, EndLine, nil
}

// ParseColor parses "B" or "W"
func ParseColor(identifier, v string) (linegame.Player, error) {
	switch v {
	case "B", "b":
		return linegame.Black, nil
	case "W", "w":
		return linegame.White, nil
	}
	return linegame.Empty, ErrParse{identifier, v}
}

// ParseName trims a player name
func ParseName(identifier, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", ErrParse{identifier, v}
	}
	return v, nil
}

func resultString(winner linegame.Color, special string) string {
	switch special {
	case EndDraw, EndVoid:
		return special
	case EndResign:
		return linegame.PlayerToStringShort(winner) + "+R"
	}
	return linegame.PlayerToStringShort(winner) + "+" + EndLine
}

// escape protects the characters that end or escape a value
func escape(v string) string {
	return strings.NewReplacer("\\", "\\\\", "]", "\\]").Replace(v)
}
