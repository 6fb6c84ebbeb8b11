package selfplay

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/nninput"
	"github.com/dodgebc/go-linegame/rng"
)

// testEvaluator favors legal moves by their position in a fixed cycle and
// reports a constant value. It can switch model names after a number of calls.
type testEvaluator struct {
	name         string
	renamed      string
	renameAfter  int
	calls        int
	whiteWinLoss float32
	xLen, yLen   int
}

func newTestEvaluator(xLen, yLen int) *testEvaluator {
	return &testEvaluator{name: "test", xLen: xLen, yLen: yLen}
}

func (e *testEvaluator) Evaluate(ctx context.Context, b *linegame.Board, h *linegame.BoardHistory, pla linegame.Player, params nninput.MiscParams, includeOwnerMap bool) (*nninput.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.calls++
	out := nninput.NewOutput(e.xLen, e.yLen, includeOwnerMap)
	for i := range out.PolicyProbs {
		out.PolicyProbs[i] = -1
	}
	legal := b.LegalMoves(pla)
	sum := float32(0)
	for i := range legal {
		sum += float32(1 + i%3)
	}
	for i, l := range legal {
		out.PolicyProbs[nninput.LocToPos(l, b.XSize, e.xLen, e.yLen)] = float32(1+i%3) / sum
	}
	out.WhiteWinProb = 0.5 * (1 + e.whiteWinLoss)
	out.WhiteLossProb = 0.5 * (1 - e.whiteWinLoss)
	out.NNHash = nninput.GetHash(b, h, pla, params)
	return out, nil
}

func (e *testEvaluator) ModelName() string {
	if e.renamed != "" && e.calls >= e.renameAfter {
		return e.renamed
	}
	return e.name
}

func (e *testEvaluator) NNXLen() int { return e.xLen }
func (e *testEvaluator) NNYLen() int { return e.yLen }

func testBot(idx int, eval Evaluator) BotSpec {
	params := DefaultSearchParams()
	params.MaxVisits = 50
	return BotSpec{BotIdx: idx, BotName: "bot" + string(rune('A'+idx)), Evaluator: eval, Params: params}
}

func TestChooseIndexWithTemperature(t *testing.T) {
	r := rng.New("TestChooseIndexWithTemperature")
	if i := ChooseIndexWithTemperature(r, []float64{0.1, 0.7, 0.2}, 0); i != 1 {
		t.Fatalf("zero temperature picked %d", i)
	}
	for i := 0; i < 100; i++ {
		if j := ChooseIndexWithTemperature(r, []float64{0, 1, 0}, 1.0); j != 1 {
			t.Fatalf("picked zero weight index %d", j)
		}
	}
	trials := 4000
	hits := 0
	for i := 0; i < trials; i++ {
		if ChooseIndexWithTemperature(r, []float64{1, 3}, 1.0) == 1 {
			hits++
		}
	}
	if frac := float64(hits) / float64(trials); math.Abs(frac-0.75) > 0.04 {
		t.Fatalf("weight 3 of 4 picked with frequency %v", frac)
	}
	// temperature 0.5 squares the weights
	hits = 0
	for i := 0; i < trials; i++ {
		if ChooseIndexWithTemperature(r, []float64{1, 3}, 0.5) == 1 {
			hits++
		}
	}
	if frac := float64(hits) / float64(trials); math.Abs(frac-0.9) > 0.04 {
		t.Fatalf("weight 9 of 10 picked with frequency %v", frac)
	}
}

func TestChooseRandomMoves(t *testing.T) {
	r := rng.New("TestChooseRandomMoves")
	b := linegame.MustNewBoard(2, 1, 3)
	h := linegame.NewBoardHistory(b, linegame.Black)
	ban := linegame.GetLoc(0, 0, linegame.West, 2)
	for i := 0; i < 50; i++ {
		if l := ChooseRandomLegalMove(&b, &h, linegame.Black, r, ban); l != linegame.GetLoc(1, 0, linegame.West, 2) {
			t.Fatalf("expected the only unbanned move, got %v", l)
		}
	}
	if moves := ChooseRandomLegalMoves(&b, &h, linegame.Black, r, 5); len(moves) != 2 {
		t.Fatalf("expected both legal moves, got %v", moves)
	}

	eval := newTestEvaluator(2, 1)
	out, err := eval.Evaluate(context.Background(), &b, &h, linegame.Black, nninput.DefaultMiscParams(), false)
	if err != nil {
		t.Fatal(err)
	}
	if l := ChooseRandomPolicyMove(out, &b, &h, linegame.Black, r, 1.0, ban); l != linegame.GetLoc(1, 0, linegame.West, 2) {
		t.Fatalf("policy move ignored the ban, got %v", l)
	}
	h.MakeBoardMoveAssumeLegal(&b, ban, linegame.Black)
	if l := ChooseRandomLegalMove(&b, &h, linegame.White, r, linegame.NullLoc); !l.IsNull() {
		t.Fatalf("expected no move, got %v", l)
	}
}

func TestPlaceFixedHandicap(t *testing.T) {
	cases := []map[string]interface{}{
		{"size": 9, "n": 2, "e": nil},
		{"size": 9, "n": 4, "e": nil},
		{"size": 9, "n": 5, "e": nil},
		{"size": 13, "n": 9, "e": nil},
		{"size": 7, "n": 4, "e": nil},
		{"size": 6, "n": 2, "e": ErrInvalidHandicap},
		{"size": 8, "n": 5, "e": ErrInvalidHandicap},
		{"size": 7, "n": 5, "e": ErrInvalidHandicap},
		{"size": 9, "n": 1, "e": ErrInvalidHandicap},
		{"size": 9, "n": 10, "e": ErrInvalidHandicap},
	}
	for _, c := range cases {
		size, n := c["size"].(int), c["n"].(int)
		b := linegame.MustNewBoard(size, size, 5)
		err := PlaceFixedHandicap(&b, n)
		if c["e"] != nil {
			if !errors.Is(err, c["e"].(error)) {
				t.Fatalf("size %d handicap %d: expected %v, got %v", size, n, c["e"], err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("size %d handicap %d: %v", size, n, err)
		}
		if got := b.NumPlaStonesOnBoard(linegame.Black); got != n {
			t.Fatalf("size %d handicap %d placed %d stones", size, n, got)
		}
		if err := b.CheckConsistency(); err != nil {
			t.Fatal(err)
		}
	}

	b := linegame.MustNewBoard(9, 9, 5)
	if err := PlaceFixedHandicap(&b, 5); err != nil {
		t.Fatal(err)
	}
	if b.Colors[linegame.GetSpot(4, 4, 9)] != linegame.Black {
		t.Fatal("fifth stone should be in the center")
	}
	if err := PlaceFixedHandicap(&b, 2); !errors.Is(err, ErrInvalidHandicap) {
		t.Fatalf("handicap on a nonempty board: %v", err)
	}
}

func TestGetSearchFactor(t *testing.T) {
	params := DefaultSearchParams()
	params.WinLossUtilityFactor = 1.0
	cases := []map[string]interface{}{
		{"values": []float64{0.95, 0.95}, "pla": linegame.White, "e": 1.0},
		{"values": []float64{0.95, 0.95, 0.95}, "pla": linegame.White, "e": 0.625},
		{"values": []float64{-1, 0.95, 0.95, 0.95}, "pla": linegame.White, "e": 0.625},
		{"values": []float64{0.95, 0.5, 0.95}, "pla": linegame.White, "e": 1.0},
		{"values": []float64{0.95, 0.95, 0.95}, "pla": linegame.Black, "e": 1.0},
		{"values": []float64{-1, -1, -1}, "pla": linegame.Black, "e": 0.25},
	}
	for _, c := range cases {
		got := GetSearchFactor(0.9, 0.25, params, c["values"].([]float64), c["pla"].(linegame.Player))
		if math.Abs(got-c["e"].(float64)) > 1e-9 {
			t.Fatalf("values %v for %s: expected %v, got %v", c["values"], linegame.PlayerToString(c["pla"].(linegame.Player)), c["e"], got)
		}
	}
}

func TestInitializeGameUsingPolicy(t *testing.T) {
	eval := newTestEvaluator(9, 9)
	bot := NewPolicySearcher(testBot(0, eval), "TestInitializeGameUsingPolicy")
	r := rng.New("TestInitializeGameUsingPolicy")
	total := 0
	for i := 0; i < 50; i++ {
		b := linegame.MustNewBoard(9, 9, 5)
		h := linegame.NewBoardHistory(b, linegame.Black)
		pla, err := InitializeGameUsingPolicy(context.Background(), bot, bot, &b, &h, linegame.Black, r, 0.1, 1.0)
		if err != nil {
			t.Fatal(err)
		}
		stones := b.NumStonesOnBoard()
		total += stones
		if (stones%2 == 0) != (pla == linegame.Black) {
			t.Fatalf("%d stones but %s to move", stones, linegame.PlayerToString(pla))
		}
		if len(h.MoveHistory) != 0 || h.IsGameFinished || !h.InitialBoard.Equals(b) {
			t.Fatal("initialization should become the start of the history")
		}
		if stones > 0 {
			row := make([]float32, nninput.NumFeaturesSpatialV1*81)
			global := make([]float32, nninput.NumFeaturesGlobalV1)
			if _, err := nninput.FillRowV1(&b, &h, pla, nninput.DefaultMiscParams(), 9, 9, row, global); err != nil {
				t.Fatal(err)
			}
			// channels 3 to 6 mark the last move by direction
			pos := nninput.SpotToPos(b.LastLoc.Spot, 9, 9, 9)
			if row[(3+int(b.LastLoc.Dir))*81+pos] != 1 {
				t.Fatalf("first position after initialization lost the last move %s", linegame.LocToString(b.LastLoc, 9, 9))
			}
		}
	}
	// expected about 8 stones per game
	if total == 0 {
		t.Fatal("no initialization moves were played")
	}
}
