package trainwrite

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/nninput"
	"github.com/dodgebc/go-linegame/rng"
)

// Row format
const (
	PolicyTargetNumChannels       = 2
	GlobalTargetNumChannels       = 64
	ValueSpatialTargetNumChannels = 5

	historyKeepProb        = 0.98
	numHistoryMaskChannels = 5
	futureBoardNear        = 2
	futureBoardFar         = 6
)

// TrainingWriteBuffers hold up to MaxRows training rows.
//
// Global targets, from the perspective of the player to move:
//
//	0-1   game result win, loss
//	2-9   td-like win, loss with nowFactor 1/(1+area*0.176), 1/(1+area*0.056), 1/(1+area*0.016), 1
//	22    expected arrival time of win-loss variance, in turns
//	25    weight of the row as a whole
//	26    weight of the policy target
//	27    weight of the final ownership target
//	28    weight of the next move policy target
//	30-32 policy surprise, policy entropy, search entropy
//	33    weight of the future position targets
//	36-40 whether to use each of the five history moves
//	41-46 game hash in chunks of 22, 22, 20, 22, 22, 20 bits
//	49    1 if an earlier net started this game
//	50    number of nets this move is behind the latest in the game
//	51    turn index
//	53    first turn of the game that is selfplay
//	55    game mode
//	56    initial turn number
//	57    raw net win-loss
//	59    raw net policy entropy
//	60    visits before any reduction
//	63    format version, always 1
//
// Spatial value targets: 0 final ownership, 1 unused, 2-3 the board two and six
// turns ahead, 4 the longest line through each cell at the end.
type TrainingWriteBuffers struct {
	InputsVersion     int
	MaxRows           int
	NumBinaryChannels int
	NumGlobalChannels int
	DataXLen          int
	DataYLen          int
	PackedBoardArea   int

	CurRows int

	binaryInputNCHWUnpacked []float32

	binaryInputNCHWPacked *numpyBuffer[uint8]
	globalInputNC         *numpyBuffer[float32]
	policyTargetsNCMove   *numpyBuffer[int16]
	globalTargetsNC       *numpyBuffer[float32]
	valueTargetsNCHW      *numpyBuffer[int8]
}

// NewTrainingWriteBuffers allocates buffers for maxRows rows
func NewTrainingWriteBuffers(inputsVersion, maxRows, numBinaryChannels, numGlobalChannels, xLen, yLen int) (*TrainingWriteBuffers, error) {
	if inputsVersion < nninput.OldestInputsVersion || inputsVersion > nninput.LatestInputsVersion {
		return nil, errors.Wrapf(nninput.ErrUnsupportedVersion, "training write buffers: inputs version %d", inputsVersion)
	}
	if maxRows <= 0 || xLen <= 0 || yLen <= 0 || xLen > nninput.MaxBoardLen || yLen > nninput.MaxBoardLen {
		return nil, errors.Errorf("training write buffers: bad shape %d rows of %dx%d", maxRows, xLen, yLen)
	}
	packed := (xLen*yLen + 7) / 8
	return &TrainingWriteBuffers{
		InputsVersion:           inputsVersion,
		MaxRows:                 maxRows,
		NumBinaryChannels:       numBinaryChannels,
		NumGlobalChannels:       numGlobalChannels,
		DataXLen:                xLen,
		DataYLen:                yLen,
		PackedBoardArea:         packed,
		binaryInputNCHWUnpacked: make([]float32, numBinaryChannels*xLen*yLen),
		binaryInputNCHWPacked:   newNumpyBuffer[uint8]("|u1", maxRows, numBinaryChannels, packed),
		globalInputNC:           newNumpyBuffer[float32]("<f4", maxRows, numGlobalChannels),
		policyTargetsNCMove:     newNumpyBuffer[int16]("<i2", maxRows, PolicyTargetNumChannels, nninput.PolicySize(xLen, yLen)),
		globalTargetsNC:         newNumpyBuffer[float32]("<f4", maxRows, GlobalTargetNumChannels),
		valueTargetsNCHW:        newNumpyBuffer[int8]("|i1", maxRows, ValueSpatialTargetNumChannels, yLen, xLen),
	}, nil
}

// Clear forgets all rows, keeping the memory
func (tb *TrainingWriteBuffers) Clear() {
	tb.CurRows = 0
}

// PackBits copies 0/1 floats into bits, 8 to a byte, most significant bit first.
// Unused bits of a final partial byte are zero.
func PackBits(binaryFloats []float32, bits []byte) {
	n := len(binaryFloats)
	for i := 0; i < n; i += 8 {
		var b byte
		for di := 0; di < 8 && i+di < n; di++ {
			if binaryFloats[i+di] != 0 {
				b |= 1 << (7 - di)
			}
		}
		bits[i>>3] = b
	}
}

// UnpackBits reverses PackBits for n values
func UnpackBits(bits []byte, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		if bits[i>>3]&(1<<(7-i&7)) != 0 {
			out[i] = 1
		}
	}
	return out
}

func fillPolicyTarget(moves []PolicyTargetMove, boardXSize, xLen, yLen int, target []int16) error {
	for i := range target {
		target[i] = 0
	}
	for _, m := range moves {
		pos := nninput.LocToPos(m.Loc, boardXSize, xLen, yLen)
		if pos < 0 || pos >= len(target) {
			return errors.Errorf("policy target move %v outside the policy", m.Loc)
		}
		target[pos] = m.Target
	}
	return nil
}

func uniformPolicyTarget(target []int16) {
	for i := range target {
		target[i] = 1
	}
}

// fillValueTDTargets blends future value targets, putting nowFactor of the remaining
// weight on each turn and everything left on the last one
func fillValueTDTargets(whiteValueTargets []ValueTargets, idx int, next linegame.Player, nowFactor float64, buf []float32) {
	winValue, lossValue := 0.0, 0.0
	weightLeft := 1.0
	for i := idx; i < len(whiteValueTargets); i++ {
		var weightNow float64
		if i == len(whiteValueTargets)-1 {
			weightNow = weightLeft
			weightLeft = 0
		} else {
			weightNow = weightLeft * nowFactor
			weightLeft *= 1 - nowFactor
		}
		t := whiteValueTargets[i]
		if next == linegame.White {
			winValue += weightNow * float64(t.Win)
			lossValue += weightNow * float64(t.Loss)
		} else {
			winValue += weightNow * float64(t.Loss)
			lossValue += weightNow * float64(t.Win)
		}
	}
	buf[0] = float32(winValue)
	buf[1] = float32(lossValue)
}

// Row is one training position with its targets
type Row struct {
	Board      *linegame.Board
	Hist       *linegame.BoardHistory
	NextPlayer linegame.Player
	TurnIdx    int

	TargetWeight       float32
	UnreducedNumVisits int64
	// nil for no target
	PolicyTarget0 []PolicyTargetMove
	PolicyTarget1 []PolicyTargetMove

	PolicySurprise float64
	PolicyEntropy  float64
	SearchEntropy  float64

	WhiteValueTargets    []ValueTargets
	WhiteValueTargetsIdx int
	NNRawStats           NNRawStats

	// nil for rows without final board targets
	FinalOwnership []linegame.Color
	FinalMaxLength []int
	// boards after each turn, aligned with WhiteValueTargets
	FutureBoards []linegame.Board

	IsSidePosition            bool
	NumNeuralNetsBehindLatest int
}

// AddRow encodes a row into the next free slot
func (tb *TrainingWriteBuffers) AddRow(row *Row, data *FinishedGameData, r *rng.Rand) error {
	if tb.CurRows >= tb.MaxRows {
		return errors.Errorf("training write buffers full at %d rows", tb.MaxRows)
	}
	if row.WhiteValueTargetsIdx < 0 || row.WhiteValueTargetsIdx >= len(row.WhiteValueTargets) {
		return errors.Errorf("value target index %d out of %d", row.WhiteValueTargetsIdx, len(row.WhiteValueTargets))
	}
	b := row.Board
	next := row.NextPlayer
	opp := linegame.Opp(next)
	posArea := tb.DataXLen * tb.DataYLen

	params := nninput.DefaultMiscParams()
	if !row.IsSidePosition {
		params.PlayoutDoublingAdvantage = data.PlayoutDoublingAdvantage
		if opp == data.PlayoutDoublingAdvantagePla {
			params.PlayoutDoublingAdvantage = -data.PlayoutDoublingAdvantage
		}
	}
	rowGlobalInput := tb.globalInputNC.row(tb.CurRows)
	if _, err := nninput.FillRowV1(b, row.Hist, next, params, tb.DataXLen, tb.DataYLen, tb.binaryInputNCHWUnpacked, rowGlobalInput); err != nil {
		return errors.Wrap(err, "filling input row")
	}
	packed := tb.binaryInputNCHWPacked.row(tb.CurRows)
	for c := 0; c < tb.NumBinaryChannels; c++ {
		PackBits(tb.binaryInputNCHWUnpacked[c*posArea:(c+1)*posArea], packed[c*tb.PackedBoardArea:(c+1)*tb.PackedBoardArea])
	}

	g := tb.globalTargetsNC.row(tb.CurRows)
	for i := range g {
		g[i] = 0
	}
	g[25] = row.TargetWeight

	policySize := nninput.PolicySize(tb.DataXLen, tb.DataYLen)
	policy := tb.policyTargetsNCMove.row(tb.CurRows)
	for c, target := range [][]PolicyTargetMove{row.PolicyTarget0, row.PolicyTarget1} {
		dst := policy[c*policySize : (c+1)*policySize]
		if target == nil {
			uniformPolicyTarget(dst)
			continue
		}
		if err := fillPolicyTarget(target, b.XSize, tb.DataXLen, tb.DataYLen, dst); err != nil {
			return err
		}
		if c == 0 {
			g[26] = 1
		} else {
			g[28] = 1
		}
	}

	area := float64(b.XSize * b.YSize)
	vt, idx := row.WhiteValueTargets, row.WhiteValueTargetsIdx
	fillValueTDTargets(vt, idx, next, 0.0, g[0:])
	fillValueTDTargets(vt, idx, next, 1.0/(1.0+area*0.176), g[2:])
	fillValueTDTargets(vt, idx, next, 1.0/(1.0+area*0.056), g[4:])
	fillValueTDTargets(vt, idx, next, 1.0/(1.0+area*0.016), g[6:])
	fillValueTDTargets(vt, idx, next, 1.0, g[8:])

	sum := 0.0
	for i := idx + 1; i < len(vt); i++ {
		prevWL := float64(vt[i-1].Win - vt[i-1].Loss)
		nextWL := float64(vt[i].Win - vt[i].Loss)
		sum += float64(i-idx) * (nextWL - prevWL) * (nextWL - prevWL)
	}
	g[22] = float32(sum)

	g[30] = float32(row.PolicySurprise)
	g[31] = float32(row.PolicyEntropy)
	g[32] = float32(row.SearchEntropy)

	use := true
	for i := 0; i < numHistoryMaskChannels; i++ {
		use = use && r.Float64() < historyKeepProb
		if use {
			g[36+i] = 1
		}
	}

	h0, h1 := data.GameHash.Hash0, data.GameHash.Hash1
	g[41] = float32(h0 & 0x3FFFFF)
	g[42] = float32((h0 >> 22) & 0x3FFFFF)
	g[43] = float32((h0 >> 44) & 0xFFFFF)
	g[44] = float32(h1 & 0x3FFFFF)
	g[45] = float32((h1 >> 22) & 0x3FFFFF)
	g[46] = float32((h1 >> 44) & 0xFFFFF)

	if len(data.ChangedNeuralNets) > 0 {
		g[49] = 1
	}
	g[50] = float32(row.NumNeuralNetsBehindLatest)
	g[51] = float32(row.TurnIdx)
	g[53] = float32(len(data.StartHist.MoveHistory))
	g[55] = float32(data.Mode)
	g[56] = float32(row.Hist.InitialTurnNumber)
	if next == linegame.White {
		g[57] = float32(row.NNRawStats.WhiteWinLoss)
	} else {
		g[57] = float32(-row.NNRawStats.WhiteWinLoss)
	}
	g[59] = float32(row.NNRawStats.PolicyEntropy)
	g[60] = float32(row.UnreducedNumVisits)
	g[63] = 1

	v := tb.valueTargetsNCHW.row(tb.CurRows)
	for i := range v {
		v[i] = 0
	}
	sign := func(c linegame.Color) int8 {
		switch c {
		case next:
			return 1
		case opp:
			return -1
		}
		return 0
	}
	var near, far *linegame.Board
	if row.FutureBoards != nil {
		if len(row.FutureBoards) != len(vt) {
			return errors.Errorf("%d future boards for %d value targets", len(row.FutureBoards), len(vt))
		}
		end := len(row.FutureBoards) - 1
		near = &row.FutureBoards[min(idx+futureBoardNear, end)]
		far = &row.FutureBoards[min(idx+futureBoardFar, end)]
		g[33] = 1
	}
	if row.FinalOwnership != nil {
		g[27] = 1
	}
	for y := 0; y < b.YSize; y++ {
		for x := 0; x < b.XSize; x++ {
			pos := nninput.XYToPos(x, y, tb.DataXLen)
			s := linegame.GetSpot(x, y, b.XSize)
			if row.FinalOwnership != nil {
				v[pos] = sign(row.FinalOwnership[s])
			}
			if near != nil {
				v[2*posArea+pos] = sign(near.Colors[s])
				v[3*posArea+pos] = sign(far.Colors[s])
			}
			if row.FinalMaxLength != nil {
				v[4*posArea+pos] = int8(row.FinalMaxLength[s])
			}
		}
	}

	tb.CurRows++
	return nil
}

// WriteToZipFile writes the filled rows as an .npz archive
func (tb *TrainingWriteBuffers) WriteToZipFile(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating training file")
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "closing training file")
		}
	}()
	bw := bufio.NewWriter(f)
	zw := zip.NewWriter(bw)
	entries := []struct {
		name  string
		write func(io.Writer, int) error
	}{
		{"binaryInputNCHWPacked", tb.binaryInputNCHWPacked.writeNpy},
		{"globalInputNC", tb.globalInputNC.writeNpy},
		{"policyTargetsNCMove", tb.policyTargetsNCMove.writeNpy},
		{"globalTargetsNC", tb.globalTargetsNC.writeNpy},
		{"valueTargetsNCHW", tb.valueTargetsNCHW.writeNpy},
	}
	for _, e := range entries {
		w, err := zw.Create(e.name + ".npy")
		if err != nil {
			return errors.Wrapf(err, "adding %s", e.name)
		}
		if err := e.write(w, tb.CurRows); err != nil {
			return errors.Wrapf(err, "writing %s", e.name)
		}
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "finishing archive")
	}
	return errors.Wrap(bw.Flush(), "flushing training file")
}

func writeTextArray[T npyElem](w io.Writer, name string, nb *numpyBuffer[T], numRows int, format string) {
	fmt.Fprintln(w, name)
	hdr := nb.header(numRows)
	for _, c := range hdr[:10] {
		fmt.Fprintf(w, "%d ", c)
	}
	fmt.Fprintf(w, "%s\n", hdr[10:])
	rowLen := nb.rowLen()
	for i, x := range nb.data[:numRows*rowLen] {
		fmt.Fprintf(w, format, x)
		if (i+1)%rowLen == 0 {
			fmt.Fprintln(w)
		}
	}
	fmt.Fprintln(w)
}

// WriteToText dumps the filled rows in a readable form
func (tb *TrainingWriteBuffers) WriteToText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	writeTextArray(bw, "binaryInputNCHWPacked", tb.binaryInputNCHWPacked, tb.CurRows, "%02X")
	writeTextArray(bw, "globalInputNC", tb.globalInputNC, tb.CurRows, "%g ")
	writeTextArray(bw, "policyTargetsNCMove", tb.policyTargetsNCMove, tb.CurRows, "%d ")
	writeTextArray(bw, "globalTargetsNC", tb.globalTargetsNC, tb.CurRows, "%g ")
	writeTextArray(bw, "valueTargetsNCHW", tb.valueTargetsNCHW, tb.CurRows, "%d ")
	return errors.Wrap(bw.Flush(), "writing training text")
}
