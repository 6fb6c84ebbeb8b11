package linegame

import (
	"errors"
	"strings"
	"testing"

	"github.com/dodgebc/go-linegame/rng"
)

func BenchmarkRandomGame(b *testing.B) {
	r := rng.New("BenchmarkRandomGame")
	for i := 0; i < b.N; i++ {
		board := MustNewBoard(15, 15, 5)
		hist := NewBoardHistory(board, Black)
		pla := Black
		for j := 0; j < 100 && !hist.IsGameFinished; j++ {
			legal := board.LegalMoves(pla)
			if len(legal) == 0 {
				break
			}
			hist.MakeBoardMoveAssumeLegal(&board, legal[r.Intn(len(legal))], pla)
			pla = Opp(pla)
		}
	}
}

// parseTestMove reads "<player> <spot> <direction>"
func parseTestMove(s string, xSize, ySize int) (Move, error) {
	fields := strings.SplitN(s, " ", 2)
	pla, err := ParsePlayer(fields[0])
	if err != nil {
		return Move{}, err
	}
	l, err := ParseLoc(fields[1], xSize, ySize)
	if err != nil {
		return Move{}, err
	}
	return Move{l, pla}, nil
}

// black wins on the fifth row while white follows one row below
var blackWinSequence = []string{
	"B A5 north", "W A4 northeast",
	"B B5 north", "W B4 northeast",
	"B C5 north", "W C4 northeast",
	"B D5 north", "W D4 northeast",
	"B E5 west",
}

func TestBasicGamePlayCheck(t *testing.T) {

	// "m" is the move string
	// "e" is the expected error
	testTable := []map[string]interface{}{
		{"m": "B A5 north"},
		{"m": "B A4 northeast", "e": ErrWrongPlayer},
		{"m": "W B3 west", "e": ErrBadDirection},
		{"m": "W A5 west", "e": ErrSpotNotEmpty},
		{"m": "W (-1,3) west", "e": ErrOutsideBoard},
		{"m": "W A4 northeast"},
		{"m": "B B5 north"},
		{"m": "W B4 northeast"},
		{"m": "B C5 north"},
		{"m": "W C4 northeast"},
		{"m": "B D5 north"},
		{"m": "W D4 northeast"},
		{"m": "B E5 west"},
		{"m": "W F5 west", "e": ErrGameFinished},
	}

	g, err := NewGame(9, 9, 5)
	if err != nil {
		t.Fatal(err)
	}
	for i := range testTable {
		m, err := parseTestMove(testTable[i]["m"].(string), 9, 9)
		if err != nil {
			t.Fatalf("test contained bad move string: %s", testTable[i]["m"])
		}

		// Play and Check should be consistent
		err1 := g.Check(m)
		err2 := g.Play(m)
		if err1 != err2 {
			t.Fatalf("inconsistent error from Check and Play on move %d: %v, %v", i, err1, err2)
		}

		var expected error
		if testTable[i]["e"] != nil {
			expected = testTable[i]["e"].(error)
		}
		if !errors.Is(err1, expected) {
			t.Fatalf("unexpected game error on move %d: %v", i, err1)
		}
	}
	if !g.History().IsGameFinished || g.History().Winner != Black {
		t.Fatalf("expected black win, got finished=%v winner=%v", g.History().IsGameFinished, g.History().Winner)
	}
}

func TestWinLength(t *testing.T) {
	for _, winLen := range []int{5, 6} {
		b := MustNewBoard(9, 9, winLen)
		h := NewBoardHistory(b, Black)
		for i, ms := range blackWinSequence {
			m, err := parseTestMove(ms, 9, 9)
			if err != nil {
				t.Fatal(err)
			}
			if err := h.MakeBoardMove(&b, m.Loc, m.Pla); err != nil {
				t.Fatalf("move %d rejected: %s", i, err)
			}
			if i < len(blackWinSequence)-1 && h.IsGameFinished {
				t.Fatalf("game ended early at move %d", i)
			}
		}
		if winLen == 5 && (!h.IsGameFinished || h.Winner != Black) {
			t.Fatal("five in a row did not win with win length 5")
		}
		if winLen == 6 && h.IsGameFinished {
			t.Fatal("five in a row won with win length 6")
		}
		if h.NumTurns != len(blackWinSequence) || len(h.MoveHistory) < h.NumTurns {
			t.Fatalf("unexpected turn count %d", h.NumTurns)
		}
	}
}

func TestNoRoom(t *testing.T) {
	b := MustNewBoard(3, 3, 3)
	b.SetStone(GetSpot(0, 0, 3), Black)
	b.SetStone(GetSpot(1, 0, 3), White)
	if err := b.checkMove(GetLoc(2, 0, West, 3), Black); !errors.Is(err, ErrNoRoom) {
		t.Fatalf("expected no room, got %v", err)
	}
	if !b.IsLegal(GetLoc(2, 0, North, 3), Black) {
		t.Fatal("north should still have room")
	}
}

func TestNoLegalMovesIsDraw(t *testing.T) {
	b := MustNewBoard(2, 1, 3)
	h := NewBoardHistory(b, Black)
	// only the horizontal line of each cell has room
	if n := len(b.LegalMoves(Black)); n != 2 {
		t.Fatalf("expected 2 opening moves, got %d", n)
	}
	if h.EndIfNoLegalMoves(&b, Black) {
		t.Fatal("game ended on an empty board")
	}
	h.MakeBoardMoveAssumeLegal(&b, GetLoc(0, 0, West, 2), Black)
	if moves := b.LegalMoves(White); len(moves) != 0 {
		t.Fatalf("expected no legal moves, got %v", moves)
	}
	if !h.EndIfNoLegalMoves(&b, White) {
		t.Fatal("game should end")
	}
	if !h.IsGameFinished || h.Winner != Empty || h.IsResignation {
		t.Fatalf("expected a draw, got finished %t winner %d", h.IsGameFinished, h.Winner)
	}
}

func TestZobristUndo(t *testing.T) {
	r := rng.New("TestZobristUndo")
	sizes := []int{}
	for n := 2; n <= MaxLen; n++ {
		if testing.Short() && n != 2 && n != 3 && n != 7 && n != 12 && n != MaxLen {
			continue
		}
		sizes = append(sizes, n)
	}
	startHashes := make(map[Hash128][2]int)
	for _, xSize := range sizes {
		for _, ySize := range sizes {
			winLen := 2 + r.Intn(4)
			b := MustNewBoard(xSize, ySize, winLen)
			startSit := [2]Hash128{b.GetSitHash(Black), b.GetSitHash(White)}
			if prev, ok := startHashes[b.PosHash]; ok {
				t.Fatalf("%dx%d: empty board hash collides with %dx%d", xSize, ySize, prev[0], prev[1])
			}
			startHashes[b.PosHash] = [2]int{xSize, ySize}

			var records []MoveRecord
			pla := Black
			for !b.CheckGameEnd() {
				legal := b.LegalMoves(pla)
				if len(legal) == 0 {
					break
				}
				loc := legal[r.Intn(len(legal))]
				want := b.GetPosHashAfterMove(loc, pla)
				records = append(records, b.PlayMoveRecorded(loc, pla))
				if b.PosHash != want {
					t.Fatalf("%dx%d move %d: hash after move is not the predicted one", xSize, ySize, len(records))
				}
				if err := b.CheckConsistency(); err != nil {
					t.Fatalf("%dx%d move %d: %v", xSize, ySize, len(records), err)
				}
				pla = Opp(pla)
			}
			if len(records) == 0 {
				t.Fatalf("%dx%d: no move was played", xSize, ySize)
			}
			if b.GetSitHash(Black) == startSit[0] {
				t.Fatalf("%dx%d: moves did not change the hash", xSize, ySize)
			}

			for i := len(records) - 1; i >= 0; i-- {
				b.Undo(records[i])
			}
			if b.GetSitHash(Black) != startSit[0] || b.GetSitHash(White) != startSit[1] {
				t.Fatalf("%dx%d: undo of %d moves did not restore the hash", xSize, ySize, len(records))
			}
			if !b.IsEmpty() {
				t.Fatalf("%dx%d: undo left stones on the board", xSize, ySize)
			}
			if err := b.CheckConsistency(); err != nil {
				t.Fatalf("%dx%d: %v", xSize, ySize, err)
			}
		}
	}
}

func TestSetStoneKeepsHash(t *testing.T) {
	b := MustNewBoard(5, 5, 4)
	b.SetStones([]Placement{{GetSpot(1, 1, 5), Black}, {GetSpot(2, 2, 5), White}, {GetSpot(1, 1, 5), White}})
	if err := b.CheckConsistency(); err != nil {
		t.Fatal(err)
	}
	if b.SetStone(GetSpot(-1, 0, 5), Black) {
		t.Fatal("set a stone on a wall")
	}
	b.Colors[GetSpot(3, 3, 5)] = Black
	if err := b.CheckConsistency(); !errors.Is(err, ErrInconsistentBoard) {
		t.Fatal("consistency check missed a stale hash")
	}
}

func TestLocationBijection(t *testing.T) {
	for _, size := range [][2]int{{1, 1}, {5, 5}, {7, 3}, {19, 19}} {
		seen := make(map[Spot]bool)
		for y := 0; y < size[1]; y++ {
			for x := 0; x < size[0]; x++ {
				s := GetSpot(x, y, size[0])
				if GetX(s, size[0]) != x || GetY(s, size[0]) != y {
					t.Fatalf("spot %d did not map back to (%d,%d)", s, x, y)
				}
				if s == NullSpot || seen[s] || int(s) >= MaxArrSize {
					t.Fatalf("bad spot %d for (%d,%d)", s, x, y)
				}
				seen[s] = true
			}
		}
	}
}

func TestFillRowWithLine(t *testing.T) {
	b := MustNewBoard(9, 9, 5)
	for x := 2; x <= 4; x++ {
		b.SetStone(GetSpot(x, 4, 9), Black)
	}
	for y := 0; y < 4; y++ {
		b.SetStone(GetSpot(7, y, 9), White)
	}
	plane := make([]float32, 9*9)
	b.FillRowWithLine(3, plane, 9, 9)
	for i, v := range plane {
		x, y := i%9, i/9
		want := float32(0)
		if y == 4 && (x == 1 || x == 5) {
			want = 1
		}
		if v != want {
			t.Fatalf("unexpected mark %f at (%d,%d)", v, x, y)
		}
	}

	plane = make([]float32, 9*9)
	b.FillRowWithLine(4, plane, 9, 9)
	if plane[4*9+7] != 1 {
		t.Fatal("missing mark below the white column")
	}
	sum := float32(0)
	for _, v := range plane {
		sum += v
	}
	if sum != 1 {
		t.Fatalf("expected a single mark for the wall-bounded column, got %f", sum)
	}
}

func TestHistoryRecentBoards(t *testing.T) {
	b := MustNewBoard(9, 9, 5)
	h := NewBoardHistory(b, Black)
	for i, ms := range blackWinSequence[:7] {
		m, _ := parseTestMove(ms, 9, 9)
		h.MakeBoardMoveAssumeLegal(&b, m.Loc, m.Pla)
		if recent := h.GetRecentBoard(0); !recent.Equals(b) {
			t.Fatalf("recent board 0 is not current after move %d", i)
		}
	}
	prev, oldest := h.GetRecentBoard(1), h.GetRecentBoard(5)
	if prev.NumStonesOnBoard() != 6 || oldest.NumStonesOnBoard() != 2 {
		t.Fatal("recent boards are out of order")
	}

	// recent boards are copies, changing one leaves the history alone
	prev.SetStone(GetSpot(0, 0, 9), White)
	if again := h.GetRecentBoard(1); again.NumStonesOnBoard() != 6 {
		t.Fatal("changing a recent board changed the history")
	}

	h2 := h.Copy()
	b2 := b
	m, _ := parseTestMove(blackWinSequence[7], 9, 9)
	h2.MakeBoardMoveAssumeLegal(&b2, m.Loc, m.Pla)
	if current := h.GetRecentBoard(0); len(h.MoveHistory) != 7 || current.NumStonesOnBoard() != 7 {
		t.Fatal("copy shares state with the original")
	}

	h0 := h.CopyToInitial()
	if initial := h0.GetRecentBoard(3); len(h0.MoveHistory) != 0 || !initial.IsEmpty() {
		t.Fatal("copy to initial kept moves")
	}
}

func TestGraphHashFromScratch(t *testing.T) {
	b := MustNewBoard(9, 9, 5)
	h := NewBoardHistory(b, Black)
	var graphHash Hash128
	for _, ms := range blackWinSequence {
		m, _ := parseTestMove(ms, 9, 9)
		graphHash = GetGraphHash(graphHash, &h, m.Pla)
		h.MakeBoardMoveAssumeLegal(&b, m.Loc, m.Pla)
	}
	graphHash = GetGraphHash(graphHash, &h, White)
	if graphHash != GetGraphHashFromScratch(&h, White) {
		t.Fatal("incremental and replayed graph hashes differ")
	}
	if GetStateHash(&h, White) == b.GetSitHash(White) {
		t.Fatal("finished game state hash did not include the game over term")
	}
}

func TestCheckLegal(t *testing.T) {
	moves := make([]string, 0, len(blackWinSequence))
	for _, ms := range blackWinSequence {
		moves = append(moves, strings.SplitN(ms, " ", 2)[1])
	}
	ok, err := CheckLegal(9, 9, 5, nil, moves)
	if err != nil || !ok {
		t.Fatalf("legal sequence rejected: %v", err)
	}
	ok, err = CheckLegal(9, 9, 5, nil, []string{"A5 north", "B3 west"})
	if err != nil || ok {
		t.Fatal("illegal sequence accepted")
	}
	if _, err := CheckLegal(9, 9, 5, nil, []string{"A5 sideways"}); !errors.Is(err, ErrParse) {
		t.Fatal("bad move string was not reported")
	}
	if _, err := CheckLegal(30, 9, 5, nil, nil); !errors.Is(err, ErrInvalidSize) {
		t.Fatal("oversized board was not reported")
	}
}
