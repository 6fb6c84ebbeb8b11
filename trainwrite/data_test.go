package trainwrite

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/dodgebc/go-linegame/linegame"
)

// black wins on the fifth row while white follows one row below
var blackWinSequence = []string{
	"A5 north", "A4 northeast",
	"B5 north", "B4 northeast",
	"C5 north", "C4 northeast",
	"D5 north", "D4 northeast",
	"E5 west",
}

// testGame builds a complete record of a short game won by black
func testGame(t testing.TB) *FinishedGameData {
	d := NewFinishedGameData()
	d.BName, d.WName = "b", "w"
	d.StartBoard = linegame.MustNewBoard(9, 9, 5)
	d.StartHist = linegame.NewBoardHistory(d.StartBoard, linegame.Black)
	d.GameHash = linegame.Hash128{Hash0: 0x0123456789ABCDEF, Hash1: 0xFEDCBA9876543210}

	b := d.StartBoard
	h := d.StartHist.Copy()
	pla := linegame.Black
	for i, s := range blackWinSequence {
		l, err := linegame.ParseLoc(s, 9, 9)
		if err != nil {
			t.Fatal(err)
		}
		if i == 4 {
			sp := NewSidePosition(&b, &h, pla, 0)
			sp.WhiteValueTargets = ValueTargets{Win: 0.3, Loss: 0.7}
			d.SidePositions = append(d.SidePositions, sp)
		}
		if err := h.MakeBoardMove(&b, l, pla); err != nil {
			t.Fatalf("move %d %s: %v", i, s, err)
		}
		d.TargetWeightByTurn = append(d.TargetWeightByTurn, 1)
		d.TargetWeightByTurnUnrounded = append(d.TargetWeightByTurnUnrounded, 1)
		d.PolicyTargetsByTurn = append(d.PolicyTargetsByTurn, PolicyTarget{
			Moves:              []PolicyTargetMove{{Loc: l, Target: 10}},
			UnreducedNumVisits: 10,
		})
		d.PolicySurpriseByTurn = append(d.PolicySurpriseByTurn, 0.1)
		d.PolicyEntropyByTurn = append(d.PolicyEntropyByTurn, 0.2)
		d.SearchEntropyByTurn = append(d.SearchEntropyByTurn, 0.3)
		d.WhiteValueTargetsByTurn = append(d.WhiteValueTargetsByTurn, ValueTargets{Win: 0.5, Loss: 0.5})
		d.NNRawStatsByTurn = append(d.NNRawStatsByTurn, NNRawStats{WhiteWinLoss: 0.25, PolicyEntropy: 1})
		pla = linegame.Opp(pla)
	}
	if !h.IsGameFinished || h.Winner != linegame.Black {
		t.Fatalf("scripted game did not end with a black win")
	}
	d.EndHist = h
	d.WhiteValueTargetsByTurn = append(d.WhiteValueTargetsByTurn, ValueTargets{Win: 0, Loss: 1})

	d.FinalFullArea = make([]linegame.Color, linegame.MaxArrSize)
	d.FinalOwnership = make([]linegame.Color, linegame.MaxArrSize)
	d.FinalMaxLength = make([]int, linegame.MaxArrSize)
	lengths := b.MaxLineLengths()
	for y := 0; y < b.YSize; y++ {
		for x := 0; x < b.XSize; x++ {
			s := linegame.GetSpot(x, y, b.XSize)
			d.FinalFullArea[s] = b.Colors[s]
			d.FinalOwnership[s] = b.Colors[s]
			d.FinalMaxLength[s] = lengths[y][x]
		}
	}
	return d
}

func TestValidate(t *testing.T) {
	if err := testGame(t).Validate(); err != nil {
		t.Fatal(err)
	}
	tests := []map[string]interface{}{
		{"m": "short weights", "e": func(d *FinishedGameData) { d.TargetWeightByTurn = d.TargetWeightByTurn[1:] }},
		{"m": "no terminal value", "e": func(d *FinishedGameData) { d.WhiteValueTargetsByTurn = d.WhiteValueTargetsByTurn[1:] }},
		{"m": "wrong final value", "e": func(d *FinishedGameData) { d.WhiteValueTargetsByTurn[9] = ValueTargets{Win: 1} }},
		{"m": "missing ownership", "e": func(d *FinishedGameData) { d.FinalOwnership = nil }},
		{"m": "resignation", "e": func(d *FinishedGameData) { d.EndHist.SetWinnerByResignation(linegame.Black) }},
		{"m": "unfinished", "e": func(d *FinishedGameData) { d.EndHist.IsGameFinished = false }},
	}
	for _, test := range tests {
		d := testGame(t)
		test["e"].(func(*FinishedGameData))(d)
		if err := d.Validate(); !errors.Is(err, ErrInvalidGameData) {
			t.Fatalf("%s: got %v", test["m"], err)
		}
	}
}
