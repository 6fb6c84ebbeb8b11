package record

import (
	"strconv"
	"strings"

	"github.com/dodgebc/go-linegame/linegame"
)

// GameName is the GM value of every record
const GameName = "linegame"

// Format writes a record on one line. Setup stones are listed after the
// game properties, then one node per move.
func Format(g GameData) string {
	var sb strings.Builder
	prop := func(id, v string) {
		sb.WriteString(id)
		sb.WriteByte('[')
		sb.WriteString(escape(v))
		sb.WriteByte(']')
	}

	sb.WriteString("(;")
	prop("GM", GameName)
	if g.XSize == g.YSize {
		prop("SZ", strconv.Itoa(g.XSize))
	} else {
		prop("SZ", strconv.Itoa(g.XSize)+":"+strconv.Itoa(g.YSize))
	}
	prop("WL", strconv.Itoa(g.WinLen))
	if g.BlackPlayer != "" {
		prop("PB", g.BlackPlayer)
	}
	if g.WhitePlayer != "" {
		prop("PW", g.WhitePlayer)
	}
	if g.Special != "" {
		prop("RE", resultString(g.Winner, g.Special))
	}
	if g.Handicap > 0 {
		prop("HA", strconv.Itoa(g.Handicap))
	}
	if g.StartPla != linegame.Black {
		prop("PL", linegame.PlayerToStringShort(g.StartPla))
	}
	if !g.LastLoc.IsNull() {
		prop("LL", linegame.LocToString(g.LastLoc, g.XSize, g.YSize))
	}
	for _, c := range []linegame.Color{linegame.Black, linegame.White} {
		first := true
		for _, p := range g.Setup {
			if p.Color != c {
				continue
			}
			if first {
				sb.WriteString("A" + linegame.PlayerToStringShort(c))
				first = false
			}
			sb.WriteByte('[')
			sb.WriteString(linegame.SpotToString(p.Spot, g.XSize, g.YSize))
			sb.WriteByte(']')
		}
	}
	for _, m := range g.Moves {
		sb.WriteByte(';')
		prop(linegame.PlayerToStringShort(m.Pla), linegame.LocToString(m.Loc, g.XSize, g.YSize))
	}
	sb.WriteByte(')')
	return sb.String()
}
