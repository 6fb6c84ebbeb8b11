package trainwrite

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/nninput"
	"github.com/dodgebc/go-linegame/rng"
)

func TestPackBits(t *testing.T) {
	r := rng.New("TestPackBits")
	for n := 0; n <= 83; n++ {
		floats := make([]float32, n)
		for i := range floats {
			if r.Bool(0.5) {
				floats[i] = 1
			}
		}
		bits := make([]byte, (n+7)/8)
		for i := range bits {
			bits[i] = 0xFF
		}
		PackBits(floats, bits)
		got := UnpackBits(bits, n)
		for i := range floats {
			if got[i] != floats[i] {
				t.Fatalf("length %d: bit %d is %v, expected %v", n, i, got[i], floats[i])
			}
		}
		if n%8 != 0 {
			if tail := bits[len(bits)-1] & (0xFF >> (n % 8)); tail != 0 {
				t.Fatalf("length %d: padding bits %08b not zero", n, tail)
			}
		}
	}
	bits := make([]byte, 1)
	PackBits([]float32{1, 0, 0, 0, 0, 0, 0, 1}, bits)
	if bits[0] != 0x81 {
		t.Fatalf("expected most significant bit first, got %08b", bits[0])
	}
}

func TestFillValueTDTargets(t *testing.T) {
	targets := []ValueTargets{{0.5, 0.5}, {0.8, 0.2}, {1, 0}}
	buf := make([]float32, 2)

	fillValueTDTargets(targets, 0, linegame.White, 1.0, buf)
	if buf[0] != 0.5 || buf[1] != 0.5 {
		t.Fatalf("nowFactor 1 should give the current value, got %v", buf)
	}
	fillValueTDTargets(targets, 0, linegame.White, 0.0, buf)
	if buf[0] != 1 || buf[1] != 0 {
		t.Fatalf("nowFactor 0 should give the final value, got %v", buf)
	}
	fillValueTDTargets(targets, 0, linegame.Black, 0.5, buf)
	// black sees loss as win: 0.5*0.5 + 0.25*0.2 + 0.25*0
	if d := buf[0] - 0.3; d > 1e-6 || d < -1e-6 {
		t.Fatalf("blended win %v", buf[0])
	}
	if d := buf[0] + buf[1] - 1; d > 1e-6 || d < -1e-6 {
		t.Fatalf("blend weights do not sum to one: %v", buf)
	}
}

func TestTerminalRowValueTargets(t *testing.T) {
	d := testGame(t)
	tb, err := NewTrainingWriteBuffers(1, 4, nninput.NumFeaturesSpatialV1, nninput.NumFeaturesGlobalV1, 9, 9)
	if err != nil {
		t.Fatal(err)
	}
	r := rng.New("TestTerminalRowValueTargets")
	b := d.EndHist.GetRecentBoard(0)
	n := d.NumMoves()
	for _, pla := range []linegame.Player{linegame.Black, linegame.White} {
		row := &Row{
			Board:                &b,
			Hist:                 &d.EndHist,
			NextPlayer:           pla,
			TurnIdx:              n,
			TargetWeight:         1,
			WhiteValueTargets:    d.WhiteValueTargetsByTurn,
			WhiteValueTargetsIdx: n,
			FinalOwnership:       d.FinalOwnership,
			FinalMaxLength:       d.FinalMaxLength,
		}
		if err := tb.AddRow(row, d, r); err != nil {
			t.Fatal(err)
		}
	}
	black := tb.globalTargetsNC.row(0)
	white := tb.globalTargetsNC.row(1)
	for c := 0; c < 10; c += 2 {
		if black[c] != 1 || black[c+1] != 0 {
			t.Fatalf("black to move: channels %d-%d are %v %v", c, c+1, black[c], black[c+1])
		}
		if white[c] != 0 || white[c+1] != 1 {
			t.Fatalf("white to move: channels %d-%d are %v %v", c, c+1, white[c], white[c+1])
		}
	}
	if black[63] != 1 || black[25] != 1 || black[26] != 0 || black[27] != 1 || black[33] != 0 {
		t.Fatalf("unexpected weights %v", black)
	}
	for _, c := range []int{23, 24, 29, 34, 35, 47, 48, 52, 54, 58, 61, 62} {
		if black[c] != 0 {
			t.Fatalf("reserved channel %d is %v", c, black[c])
		}
	}
	var hash uint64
	hash = uint64(black[41]) | uint64(black[42])<<22 | uint64(black[43])<<44
	if hash != d.GameHash.Hash0 {
		t.Fatalf("game hash chunks give %X", hash)
	}

	for _, p := range tb.policyTargetsNCMove.row(0) {
		if p != 1 {
			t.Fatalf("missing policy target should be uniform")
		}
	}
	// the winning line through E5 has five stones
	posArea := 81
	e5 := nninput.XYToPos(4, 4, 9)
	if v := tb.valueTargetsNCHW.row(0)[4*posArea+e5]; v != 5 {
		t.Fatalf("max line at E5 is %d", v)
	}
	if tb.valueTargetsNCHW.row(0)[e5] != 1 || tb.valueTargetsNCHW.row(1)[e5] != -1 {
		t.Fatalf("ownership not from the player to move")
	}
}

func TestNpyHeader(t *testing.T) {
	nb := newNumpyBuffer[int16]("<i2", 10, 2, 324)
	for _, rows := range []int{0, 7, 123456} {
		hdr := nb.header(rows)
		if len(hdr)%npyHeaderAlign != 0 {
			t.Fatalf("header of %d bytes not aligned", len(hdr))
		}
		if !bytes.HasPrefix(hdr, []byte("\x93NUMPY\x01\x00")) || hdr[len(hdr)-1] != '\n' {
			t.Fatalf("bad header %q", hdr)
		}
		if !strings.Contains(string(hdr), "'shape': (") || !strings.Contains(string(hdr), ", 2, 324)") {
			t.Fatalf("bad shape in %q", hdr)
		}
	}
	var buf bytes.Buffer
	nb.data[0], nb.data[1] = 1, -2
	if err := nb.writeNpy(&buf, 1); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != len(nb.header(1))+2*2*324 {
		t.Fatalf("wrote %d bytes", buf.Len())
	}
}
