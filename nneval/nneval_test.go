package nneval

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/nninput"
	"github.com/dodgebc/go-linegame/rng"
	"github.com/dodgebc/go-linegame/selfplay"
)

var (
	_ selfplay.Evaluator      = (*ONNXEvaluator)(nil)
	_ selfplay.EvaluatorStats = (*ONNXEvaluator)(nil)
	_ selfplay.Evaluator      = (*UniformEvaluator)(nil)
	_ selfplay.EvaluatorStats = (*UniformEvaluator)(nil)
)

// input channels read by fakeNet
const (
	plaChannel      = 1
	oppChannel      = 2
	legalDirChannel = 11
)

// fakeNet works cell by cell like a tiny convolutional net: legal moves get
// logit 3, ownership follows the stones and the value logits are constant
type fakeNet struct {
	e    *ONNXEvaluator
	fail bool
}

func (f *fakeNet) Run() error {
	if f.fail {
		return errors.New("broken net")
	}
	e := f.e
	area := e.nnXLen * e.nnYLen
	binLen := e.numSpatial * area
	policyLen := len(e.policy) / e.maxBatch
	for i := 0; i < e.maxBatch; i++ {
		row := e.binInput[i*binLen : (i+1)*binLen]
		for d := 0; d < linegame.NumActualDirections; d++ {
			for c := 0; c < area; c++ {
				e.policy[i*policyLen+d*area+c] = 3 * row[(legalDirChannel+d)*area+c]
			}
		}
		e.policy[i*policyLen+policyLen-1] = 10
		copy(e.value[i*numValueOutputs:], []float32{2, 1, 0})
		for c := 0; c < area; c++ {
			e.owner[i*area+c] = 10 * (row[plaChannel*area+c] - row[oppChannel*area+c])
		}
	}
	return nil
}

func (f *fakeNet) Destroy() error { return nil }

func newFakeEvaluator(t *testing.T, nnLen, maxBatch int) (*ONNXEvaluator, *fakeNet) {
	t.Helper()
	cfg := DefaultONNXConfig()
	cfg.ModelPath = "models/fake-net.onnx"
	cfg.NNXLen, cfg.NNYLen = nnLen, nnLen
	cfg.MaxBatchSize = maxBatch
	e, err := newONNXEvaluator(cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	net := &fakeNet{e: e}
	e.sess = net
	go e.batchLoop()
	t.Cleanup(func() { e.Close() })
	return e, net
}

func randomPosition(r *rng.Rand, xSize, ySize, numMoves int) (linegame.Board, linegame.BoardHistory, linegame.Player) {
	b := linegame.MustNewBoard(xSize, ySize, 4)
	h := linegame.NewBoardHistory(b, linegame.Black)
	pla := linegame.Black
	for i := 0; i < numMoves; i++ {
		legal := b.LegalMoves(pla)
		if len(legal) == 0 {
			break
		}
		loc := legal[r.Intn(len(legal))]
		bb, hh := b, h.Copy()
		hh.MakeBoardMoveAssumeLegal(&bb, loc, pla)
		if hh.IsGameFinished {
			break
		}
		b, h = bb, hh
		pla = linegame.Opp(pla)
	}
	return b, h, pla
}

func checkOutput(t *testing.T, out *nninput.Output, b *linegame.Board, pla linegame.Player) {
	t.Helper()
	legal := b.LegalMoves(pla)
	want := 1 / float32(len(legal))
	numLegal := 0
	for pos, p := range out.PolicyProbs {
		if p < 0 {
			continue
		}
		numLegal++
		if math.Abs(float64(p-want)) > 1e-6 {
			t.Fatalf("policy index %d is %v, expected %v", pos, p, want)
		}
	}
	if numLegal != len(legal) {
		t.Fatalf("%d moves with policy, %d legal", numLegal, len(legal))
	}

	e2, e1 := math.Exp(2), math.Exp(1)
	moverWin := float32(e2 / (e2 + e1 + 1))
	got := out.WhiteWinProb
	if pla == linegame.Black {
		got = out.WhiteLossProb
	}
	if math.Abs(float64(got-moverWin)) > 1e-5 {
		t.Fatalf("mover win probability %v, expected %v", got, moverWin)
	}

	for y := 0; y < b.YSize; y++ {
		for x := 0; x < b.XSize; x++ {
			o := out.WhiteOwnerMap[nninput.XYToPos(x, y, out.NNXLen)]
			switch b.Colors[linegame.GetSpot(x, y, b.XSize)] {
			case linegame.White:
				if o < 0.99 {
					t.Fatalf("white stone at %d,%d owned %v", x, y, o)
				}
			case linegame.Black:
				if o > -0.99 {
					t.Fatalf("black stone at %d,%d owned %v", x, y, o)
				}
			default:
				if o != 0 {
					t.Fatalf("empty cell %d,%d owned %v", x, y, o)
				}
			}
		}
	}
}

func TestONNXEvaluatorSymmetries(t *testing.T) {
	e, _ := newFakeEvaluator(t, 7, 4)
	r := rng.New("TestONNXEvaluatorSymmetries")
	sizes := [][2]int{{7, 7}, {7, 5}, {4, 6}}
	for _, size := range sizes {
		b, h, pla := randomPosition(r, size[0], size[1], 6)
		for sym := -1; sym < nninput.NumSymmetries; sym++ {
			params := nninput.DefaultMiscParams()
			params.Symmetry = sym
			out, err := e.Evaluate(context.Background(), &b, &h, pla, params, true)
			if err != nil {
				t.Fatal(err)
			}
			if out.NNHash != nninput.GetHash(&b, &h, pla, params) {
				t.Fatal("output hash does not match the position")
			}
			checkOutput(t, out, &b, pla)
		}
	}
	if e.ModelName() != "fake-net" {
		t.Fatalf("model name %q", e.ModelName())
	}
}

func TestONNXEvaluatorBatches(t *testing.T) {
	e, _ := newFakeEvaluator(t, 7, 8)
	r := rng.New("TestONNXEvaluatorBatches")
	b, h, pla := randomPosition(r, 7, 7, 5)
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.Evaluate(context.Background(), &b, &h, pla, nninput.DefaultMiscParams(), false)
			if err == nil && out.WhiteOwnerMap != nil {
				err = errors.New("ownership was not requested")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if n := e.NumRowsProcessed(); n != 20 {
		t.Fatalf("%d rows processed", n)
	}
	if n := e.NumBatchesProcessed(); n < 3 || n > 20 {
		t.Fatalf("%d batches for 20 rows of at most 8", n)
	}
}

func TestONNXEvaluatorErrors(t *testing.T) {
	e, net := newFakeEvaluator(t, 5, 2)
	b := linegame.MustNewBoard(5, 5, 4)
	h := linegame.NewBoardHistory(b, linegame.Black)

	net.fail = true
	if _, err := e.Evaluate(context.Background(), &b, &h, linegame.Black, nninput.DefaultMiscParams(), false); err == nil {
		t.Fatal("expected the failing run to be reported")
	}
	net.fail = false

	big := linegame.MustNewBoard(6, 6, 4)
	bigHist := linegame.NewBoardHistory(big, linegame.Black)
	if _, err := e.Evaluate(context.Background(), &big, &bigHist, linegame.Black, nninput.DefaultMiscParams(), false); err == nil {
		t.Fatal("expected a board larger than the window to be rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Evaluate(ctx, &b, &h, linegame.Black, nninput.DefaultMiscParams(), false); !errors.Is(err, context.Canceled) {
		// the request may have been queued before the cancellation was seen
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
	}

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Evaluate(context.Background(), &b, &h, linegame.Black, nninput.DefaultMiscParams(), false); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected a closed evaluator, got %v", err)
	}
}

func TestONNXConfigValidate(t *testing.T) {
	cases := []map[string]interface{}{
		{"path": "net.onnx", "len": 19, "version": 1, "ok": true},
		{"path": "", "len": 19, "version": 1, "ok": false},
		{"path": "net.onnx", "len": 0, "version": 1, "ok": false},
		{"path": "net.onnx", "len": nninput.MaxBoardLen + 1, "version": 1, "ok": false},
		{"path": "net.onnx", "len": 19, "version": 7, "ok": false},
	}
	for _, c := range cases {
		cfg := DefaultONNXConfig()
		cfg.ModelPath = c["path"].(string)
		cfg.NNXLen, cfg.NNYLen = c["len"].(int), c["len"].(int)
		cfg.ModelVersion = c["version"].(int)
		if err := cfg.Validate(); (err == nil) != c["ok"].(bool) {
			t.Fatalf("%v: got %v", c, err)
		}
	}
}

func TestUniformEvaluator(t *testing.T) {
	u := NewUniformEvaluator(9, 9)
	r := rng.New("TestUniformEvaluator")
	b, h, pla := randomPosition(r, 9, 9, 8)
	out, err := FullSymmetryOutput(context.Background(), u, &b, &h, pla, nninput.DefaultMiscParams(), false)
	if err != nil {
		t.Fatal(err)
	}
	legal := b.LegalMoves(pla)
	sum := float32(0)
	for _, l := range legal {
		p := out.PolicyProbs[nninput.LocToPos(l, b.XSize, 9, 9)]
		if math.Abs(float64(p-1/float32(len(legal)))) > 1e-6 {
			t.Fatalf("move %v has policy %v", l, p)
		}
		sum += p
	}
	if math.Abs(float64(sum-1)) > 1e-5 || out.WhiteWinProb != 0.5 {
		t.Fatalf("policy sums to %v, win probability %v", sum, out.WhiteWinProb)
	}
	if u.NumRowsProcessed() != nninput.NumSymmetries {
		t.Fatalf("%d rows for one full symmetry evaluation", u.NumRowsProcessed())
	}
}

func TestFullSymmetryOutput(t *testing.T) {
	e, _ := newFakeEvaluator(t, 7, 8)
	r := rng.New("TestFullSymmetryOutput")
	b, h, pla := randomPosition(r, 7, 7, 7)
	out, err := FullSymmetryOutput(context.Background(), e, &b, &h, pla, nninput.DefaultMiscParams(), true)
	if err != nil {
		t.Fatal(err)
	}
	checkOutput(t, out, &b, pla)
}
