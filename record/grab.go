/*
Package record reads and writes game records.

A record is SGF-style text:

	(;GM[linegame]SZ[9]WL[5]PB[a]PW[b]RE[B+Line]AB[E5];W[D4 north];B[...])

SZ is "n" or "columns:rows", WL the winning line length and LL the last
location of the starting board. Moves are "<spot> <direction>" with columns
lettered from the left (skipping I) and rows counted from the bottom. Parse
is a fast scraper of the main line, NewGameTree keeps every variation.*/
package record

import (
	"fmt"
	"strings"
	"unicode"
)

// maxValueLen caps stored values, longer ones are comments we do not need
const maxValueLen = 64

// Parse scrapes the main line of every game in a collection
func Parse(text string) ([]GameData, error) {
	var brackOpen bool
	var parensOpen int
	var escaped bool
	var mainBranch bool
	var identWritten bool

	var identifier strings.Builder
	var value strings.Builder
	var game GameData
	var allGames []GameData

	for _, r := range text {
		isValue := false
		isIdent := true
		justDone := false
		if brackOpen {
			isValue = true
			isIdent = false
			if escaped {
				escaped = false
			} else if r == '\\' {
				escaped = true
				continue
			} else if r == ']' {
				brackOpen = false
				isValue = false
				justDone = true
			}
		} else if r == '[' {
			brackOpen = true
			isIdent = false
		} else if r == ']' {
			return nil, fmt.Errorf("missing open bracket")
		}

		if !isValue {
			if r == '(' {
				if parensOpen == 0 {
					mainBranch = true
				}
				parensOpen++
			} else if r == ')' {
				parensOpen--
				mainBranch = false
				if parensOpen < 0 {
					return nil, fmt.Errorf("missing open parenthesis")
				}
				if parensOpen == 0 {
					if err := game.Finalize(); err != nil {
						return nil, err
					}
					allGames = append(allGames, game)
					game = GameData{}
				}
			}
		}

		// variations are skipped
		if !mainBranch {
			continue
		}
		if isValue {
			if value.Len() < maxValueLen {
				value.WriteRune(r)
			}
		} else if isIdent && unicode.IsUpper(r) {
			if identWritten {
				identifier.Reset()
				identWritten = false
			}
			identifier.WriteRune(r)
		} else if justDone {
			if err := game.AddProperty(identifier.String(), value.String()); err != nil {
				// only properties needed to replay the game end the parse
				switch identifier.String() {
				case "SZ", "WL", "PL", "LL", "B", "W", "AB", "AW":
					return nil, err
				}
			}
			value.Reset()
			identWritten = true
		}
	}
	if brackOpen {
		return nil, fmt.Errorf("missing close bracket")
	}
	if parensOpen > 0 {
		return nil, fmt.Errorf("missing close parenthesis")
	}
	return allGames, nil
}
