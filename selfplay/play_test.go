package selfplay

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/rng"
	"github.com/dodgebc/go-linegame/trainwrite"
)

func testSettings() PlaySettings {
	s := DefaultPlaySettings()
	s.InitGamesWithPolicy = false
	s.SidePositionProb = 0
	s.EarlyForkGameProb = 0
	s.ForkGameProb = 0
	s.HintPosProb = 0
	return s
}

func emptySetup(size, winLen int) GameSetup {
	b := linegame.MustNewBoard(size, size, winLen)
	return GameSetup{
		Board:                       b,
		Hist:                        linegame.NewBoardHistory(b, linegame.Black),
		Pla:                         linegame.Black,
		PlayoutDoublingAdvantagePla: linegame.Black,
	}
}

func TestPolicySearcher(t *testing.T) {
	eval := newTestEvaluator(7, 7)
	spec := testBot(0, eval)
	s := NewPolicySearcher(spec, "TestPolicySearcher")
	setup := emptySetup(7, 4)
	if _, _, err := s.GetPlaySelectionValues(10); !errors.Is(err, ErrNoSearch) {
		t.Fatalf("expected no search, got %v", err)
	}
	s.SetPosition(setup.Pla, &setup.Board, &setup.Hist)
	loc, err := s.RunWholeSearchAndGetMove(context.Background(), linegame.Black, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if !setup.Board.IsLegal(loc, linegame.Black) {
		t.Fatalf("searcher picked illegal move %v", loc)
	}
	locs, values, err := s.GetPlaySelectionValues(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(locs) != len(setup.Board.LegalMoves(linegame.Black)) {
		t.Fatalf("%d targets for %d legal moves", len(locs), len(setup.Board.LegalMoves(linegame.Black)))
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	if math.Abs(sum-float64(spec.Params.MaxVisits)) > 1e-6 {
		t.Fatalf("visits sum to %v", sum)
	}
	surprise, searchEntropy, polEntropy, err := s.GetPolicySurpriseAndEntropy()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(surprise) > 1e-9 || math.Abs(searchEntropy-polEntropy) > 1e-9 {
		t.Fatalf("unit root temperature should copy the policy: surprise %v entropies %v %v", surprise, searchEntropy, polEntropy)
	}

	spec.Params.RootPolicyTemperature = 0.5
	s = NewPolicySearcher(spec, "TestPolicySearcher")
	s.SetPosition(setup.Pla, &setup.Board, &setup.Hist)
	if _, err := s.RunWholeSearchAndGetMove(context.Background(), linegame.Black, 0.5); err != nil {
		t.Fatal(err)
	}
	surprise, searchEntropy, polEntropy, _ = s.GetPolicySurpriseAndEntropy()
	if surprise <= 0 || searchEntropy >= polEntropy {
		t.Fatalf("sharpened search should be surprising: surprise %v entropies %v %v", surprise, searchEntropy, polEntropy)
	}
	if s.NumRootVisits() != spec.Params.MaxVisits/2 {
		t.Fatalf("search factor 0.5 gave %d visits", s.NumRootVisits())
	}
	// a small search is scaled up to the requested maximum
	_, values, _ = s.GetPlaySelectionValues(1000)
	maxValue := 0.0
	for _, v := range values {
		maxValue = math.Max(maxValue, v)
	}
	if math.Abs(maxValue-1000) > 1e-6 {
		t.Fatalf("largest play selection value %v", maxValue)
	}
	s.ClearSearch()
	if _, err := s.GetRootValues(); !errors.Is(err, ErrNoSearch) {
		t.Fatalf("expected no search after clearing, got %v", err)
	}
}

func checkGameData(t *testing.T, data *trainwrite.FinishedGameData) {
	t.Helper()
	if err := data.Validate(); err != nil {
		t.Fatal(err)
	}
	if !data.EndHist.IsGameFinished && !data.HitTurnLimit {
		t.Fatal("game neither finished nor hit the turn limit")
	}
	for i, pt := range data.PolicyTargetsByTurn {
		maxTarget := int16(0)
		for _, m := range pt.Moves {
			if m.Target > maxTarget {
				maxTarget = m.Target
			}
		}
		if maxTarget < 10 {
			t.Fatalf("turn %d policy target maximum %d", i, maxTarget)
		}
	}
	for i, w := range data.TargetWeightByTurn {
		if w != float32(math.Floor(float64(w))) {
			t.Fatalf("turn %d weight %v was not rounded", i, w)
		}
	}
}

func TestRunGameRecordsFullData(t *testing.T) {
	eval := newTestEvaluator(7, 7)
	settings := testSettings()
	settings.SidePositionProb = 0.5
	numSide := 0
	for g := 0; g < 5; g++ {
		seed := "TestRunGameRecordsFullData" + string(rune('0'+g))
		bot := NewPolicySearcher(testBot(0, eval), seed)
		data, err := RunGame(context.Background(), emptySetup(7, 4), bot, bot, settings, rng.New(seed), nil)
		if err != nil {
			t.Fatal(err)
		}
		checkGameData(t, data)
		numSide += len(data.SidePositions)
		for _, sp := range data.SidePositions {
			if sp.PolicyTarget == nil || sp.UnreducedNumVisits == 0 {
				t.Fatal("side position was not searched")
			}
			if sp.Hist.IsGameFinished {
				t.Fatal("side position of a finished game")
			}
		}

		dir := t.TempDir()
		w, err := trainwrite.NewTrainingDataWriter(dir, nil, 1, 1000, 1.0, 7, 7, 1, seed)
		if err != nil {
			t.Fatal(err)
		}
		if err := w.WriteGame(data); err != nil {
			t.Fatal(err)
		}
		if _, _, err := w.FlushIfNonempty(); err != nil {
			t.Fatal(err)
		}
	}
	if numSide == 0 {
		t.Fatal("no side positions were recorded")
	}
}

func TestRunGameStops(t *testing.T) {
	eval := newTestEvaluator(7, 7)
	bot := NewPolicySearcher(testBot(0, eval), "TestRunGameStops")
	var stop atomic.Bool
	stop.Store(true)
	if _, err := RunGame(context.Background(), emptySetup(7, 4), bot, bot, testSettings(), rng.New("TestRunGameStops"), &stop); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected a stopped game, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RunGame(ctx, emptySetup(7, 4), bot, bot, testSettings(), rng.New("TestRunGameStops"), nil); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected a cancelled game, got %v", err)
	}
}

func TestRunGameTurnLimit(t *testing.T) {
	eval := newTestEvaluator(9, 9)
	bot := NewPolicySearcher(testBot(0, eval), "TestRunGameTurnLimit")
	settings := testSettings()
	settings.MaxMovesPerGame = 3
	data, err := RunGame(context.Background(), emptySetup(9, 5), bot, bot, settings, rng.New("TestRunGameTurnLimit"), nil)
	if err != nil {
		t.Fatal(err)
	}
	checkGameData(t, data)
	if !data.HitTurnLimit || data.NumMoves() != 3 {
		t.Fatalf("expected 3 moves and the turn limit, got %d moves", data.NumMoves())
	}
	if final := data.WhiteValueTargetsByTurn[3]; final.Win != 0.5 || final.Loss != 0.5 {
		t.Fatalf("unfinished game has final value %v", final)
	}
}

func TestRunGameNeuralNetChange(t *testing.T) {
	eval := newTestEvaluator(7, 7)
	eval.renamed = "test2"
	// each turn evaluates the root and the raw stats once
	eval.renameAfter = 10
	bot := NewPolicySearcher(testBot(0, eval), "TestRunGameNeuralNetChange")
	data, err := RunGame(context.Background(), emptySetup(7, 4), bot, bot, testSettings(), rng.New("TestRunGameNeuralNetChange"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(data.ChangedNeuralNets) != 1 {
		t.Fatalf("expected one network change, got %v", data.ChangedNeuralNets)
	}
	if c := data.ChangedNeuralNets[0]; c.Name != "test2" || c.TurnIdx != 5 {
		t.Fatalf("unexpected network change %v", c)
	}
}

func TestRunGameResignation(t *testing.T) {
	eval := newTestEvaluator(7, 7)
	eval.whiteWinLoss = -0.99
	bot := NewPolicySearcher(testBot(0, eval), "TestRunGameResignation")
	settings := testSettings()
	settings.RecordFullData = false
	settings.AllowResignation = true
	data, err := RunGame(context.Background(), emptySetup(7, 4), bot, bot, settings, rng.New("TestRunGameResignation"), nil)
	if err != nil {
		t.Fatal(err)
	}
	h := data.EndHist
	if h.IsResignation {
		// white resigns on its first turn after the minimum
		if h.Winner != linegame.Black || len(h.MoveHistory) != 11 {
			t.Fatalf("unexpected resignation: winner %d after %d moves", h.Winner, len(h.MoveHistory))
		}
	} else if !h.IsGameFinished {
		t.Fatal("game did not end")
	}
}

func TestReweightBySurprise(t *testing.T) {
	data := trainwrite.NewFinishedGameData()
	data.TargetWeightByTurnUnrounded = []float32{1, 1, 1, 1}
	data.PolicySurpriseByTurn = []float64{0, 0, 0, 4}
	data.NNRawStatsByTurn = make([]trainwrite.NNRawStats, 4)
	data.WhiteValueTargetsByTurn = make([]trainwrite.ValueTargets, 5)
	settings := testSettings()
	settings.PolicySurpriseDataWeight = 0.5
	settings.ValueSurpriseDataWeight = 0
	reweightBySurprise(data, settings)
	want := []float32{0.5, 0.5, 0.5, 2.5}
	total := float32(0)
	for i, w := range data.TargetWeightByTurnUnrounded {
		if math.Abs(float64(w-want[i])) > 1e-6 {
			t.Fatalf("turn %d weight %v, expected %v", i, w, want[i])
		}
		total += w
	}
	if math.Abs(float64(total-4)) > 1e-5 {
		t.Fatalf("total weight changed to %v", total)
	}
}
