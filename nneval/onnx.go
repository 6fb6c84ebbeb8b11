/*
Package nneval evaluates positions with neural networks.

ONNXEvaluator runs an exported model through ONNX Runtime. Requests from many
game goroutines are queued and run together in batches by a single goroutine
that owns the session and its bound tensors. Encoding and post-processing
happen on the calling goroutine. UniformEvaluator needs no model at all.*/
package nneval

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
	"lukechampine.com/frand"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/nninput"
)

// ErrClosed is returned by evaluations after Close
var ErrClosed error = errors.New("evaluator closed")

// Tensor names of exported models
const (
	InputSpatialName  = "bin_inputs"
	InputGlobalName   = "global_inputs"
	OutputPolicyName  = "policy"
	OutputValueName   = "value"
	OutputOwnerName   = "ownership"
	numValueOutputs   = 3
	defaultBatchSize  = 64
	defaultBatchDelay = time.Millisecond
)

// ONNXConfig describes a model and how to run it
type ONNXConfig struct {
	ModelPath string `json:"modelPath"`
	// path of the onnxruntime shared library, empty for the platform default
	SharedLibraryPath string `json:"sharedLibraryPath"`
	ModelVersion      int    `json:"modelVersion"`

	NNXLen int `json:"nnXLen"`
	NNYLen int `json:"nnYLen"`

	MaxBatchSize int           `json:"maxBatchSize"`
	BatchTimeout time.Duration `json:"batchTimeout"`
	NumThreads   int           `json:"numThreads"`
	UseCUDA      bool          `json:"useCUDA"`
}

// DefaultONNXConfig runs a version 1 model on a 19x19 window
func DefaultONNXConfig() ONNXConfig {
	return ONNXConfig{
		ModelVersion: nninput.LatestModelVersion,
		NNXLen:       19,
		NNYLen:       19,
		MaxBatchSize: defaultBatchSize,
		BatchTimeout: defaultBatchDelay,
	}
}

// session is the part of an ONNX Runtime session the batch loop needs
type session interface {
	Run() error
	Destroy() error
}

type evalRequest struct {
	rowBin    []float32
	rowGlobal []float32
	result    chan evalResult
}

type evalResult struct {
	policy []float32
	value  []float32
	owner  []float32
	err    error
}

// ONNXEvaluator batches evaluations through one ONNX Runtime session
type ONNXEvaluator struct {

	// configuration
	name        string
	nnXLen      int
	nnYLen      int
	numSpatial  int
	numGlobal   int
	maxBatch    int
	batchDelay  time.Duration
	hasOwnerMap bool

	// bound to the session tensors, touched only by the batch loop
	sess        session
	tensors     []ort.Value
	binInput    []float32
	globalInput []float32
	policy      []float32
	value       []float32
	owner       []float32

	queue     chan evalRequest
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// counters
	numRows    atomic.Int64
	numBatches atomic.Int64
}

// NewONNXEvaluator loads a model and starts its batch loop.
// The ONNX Runtime environment is initialized on first use.
func NewONNXEvaluator(cfg ONNXConfig) (*ONNXEvaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !ort.IsInitialized() {
		if cfg.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "initializing onnxruntime")
		}
	}

	_, outputsInfo, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading model %s", cfg.ModelPath)
	}
	hasOwnerMap := false
	for _, info := range outputsInfo {
		if info.Name == OutputOwnerName {
			hasOwnerMap = true
		}
	}

	e, err := newONNXEvaluator(cfg, hasOwnerMap)
	if err != nil {
		return nil, err
	}
	n, x, y := int64(e.maxBatch), int64(e.nnXLen), int64(e.nnYLen)
	shapes := []ort.Shape{
		ort.NewShape(n, int64(e.numSpatial), y, x),
		ort.NewShape(n, int64(e.numGlobal)),
		ort.NewShape(n, int64(len(e.policy))/n),
		ort.NewShape(n, numValueOutputs),
		ort.NewShape(n, 1, y, x),
	}
	buffers := [][]float32{e.binInput, e.globalInput, e.policy, e.value, e.owner}
	if !hasOwnerMap {
		shapes, buffers = shapes[:4], buffers[:4]
	}
	for i, shape := range shapes {
		t, err := ort.NewTensor(shape, buffers[i])
		if err != nil {
			e.destroyTensors()
			return nil, errors.Wrap(err, "allocating tensors")
		}
		e.tensors = append(e.tensors, t)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		e.destroyTensors()
		return nil, errors.Wrap(err, "creating session options")
	}
	defer opts.Destroy()
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			e.destroyTensors()
			return nil, errors.Wrap(err, "setting thread count")
		}
	}
	if cfg.UseCUDA {
		if err := appendCUDA(opts); err != nil {
			log.Warn().Err(err).Msg("CUDA unavailable, running on CPU")
		}
	}

	outputNames := []string{OutputPolicyName, OutputValueName}
	if hasOwnerMap {
		outputNames = append(outputNames, OutputOwnerName)
	}
	sess, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{InputSpatialName, InputGlobalName}, outputNames,
		e.tensors[:2], e.tensors[2:], opts)
	if err != nil {
		e.destroyTensors()
		return nil, errors.Wrapf(err, "creating session for %s", cfg.ModelPath)
	}
	e.sess = sess

	log.Info().
		Str("model", e.name).
		Int("maxBatch", e.maxBatch).
		Bool("ownership", hasOwnerMap).
		Msg("loaded neural net")
	go e.batchLoop()
	return e, nil
}

func appendCUDA(opts *ort.SessionOptions) error {
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cudaOpts.Destroy()
	return opts.AppendExecutionProviderCUDA(cudaOpts)
}

// newONNXEvaluator allocates the batch buffers. The caller binds a session
// and starts the batch loop.
func newONNXEvaluator(cfg ONNXConfig, hasOwnerMap bool) (*ONNXEvaluator, error) {
	numSpatial, err := nninput.NumSpatialFeatures(cfg.ModelVersion)
	if err != nil {
		return nil, err
	}
	numGlobal, err := nninput.NumGlobalFeatures(cfg.ModelVersion)
	if err != nil {
		return nil, err
	}
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = defaultBatchSize
	}
	delay := cfg.BatchTimeout
	if delay <= 0 {
		delay = defaultBatchDelay
	}
	area := cfg.NNXLen * cfg.NNYLen
	e := &ONNXEvaluator{
		name:        strings.TrimSuffix(filepath.Base(cfg.ModelPath), filepath.Ext(cfg.ModelPath)),
		nnXLen:      cfg.NNXLen,
		nnYLen:      cfg.NNYLen,
		numSpatial:  numSpatial,
		numGlobal:   numGlobal,
		maxBatch:    maxBatch,
		batchDelay:  delay,
		hasOwnerMap: hasOwnerMap,
		binInput:    make([]float32, maxBatch*numSpatial*area),
		globalInput: make([]float32, maxBatch*numGlobal),
		policy:      make([]float32, maxBatch*(nninput.PolicySize(cfg.NNXLen, cfg.NNYLen)+1)),
		value:       make([]float32, maxBatch*numValueOutputs),
		queue:       make(chan evalRequest, maxBatch*4),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	if hasOwnerMap {
		e.owner = make([]float32, maxBatch*area)
	}
	return e, nil
}

// Validate checks the model settings
func (c ONNXConfig) Validate() error {
	if c.ModelPath == "" {
		return errors.New("no model path")
	}
	if c.NNXLen < 1 || c.NNYLen < 1 || c.NNXLen > nninput.MaxBoardLen || c.NNYLen > nninput.MaxBoardLen {
		return errors.Errorf("input window %dx%d not within [1,%d]", c.NNXLen, c.NNYLen, nninput.MaxBoardLen)
	}
	if _, err := nninput.InputsVersion(c.ModelVersion); err != nil {
		return err
	}
	return nil
}

func (e *ONNXEvaluator) ModelName() string { return e.name }
func (e *ONNXEvaluator) NNXLen() int       { return e.nnXLen }
func (e *ONNXEvaluator) NNYLen() int       { return e.nnYLen }

func (e *ONNXEvaluator) NumRowsProcessed() int64    { return e.numRows.Load() }
func (e *ONNXEvaluator) NumBatchesProcessed() int64 { return e.numBatches.Load() }

// Close stops the batch loop and frees the session. Pending and later
// evaluations fail with ErrClosed.
func (e *ONNXEvaluator) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.done)
		<-e.stopped
		if e.sess != nil {
			err = e.sess.Destroy()
		}
		e.destroyTensors()
	})
	return err
}

func (e *ONNXEvaluator) destroyTensors() {
	for _, t := range e.tensors {
		if err := t.Destroy(); err != nil {
			log.Warn().Err(err).Msg("destroying tensor")
		}
	}
	e.tensors = nil
}

// Evaluate encodes a position, waits for its batch to run and converts the
// raw outputs to white's perspective. A negative params.Symmetry picks one
// of the eight symmetries at random.
func (e *ONNXEvaluator) Evaluate(ctx context.Context, b *linegame.Board, h *linegame.BoardHistory, pla linegame.Player, params nninput.MiscParams, includeOwnerMap bool) (*nninput.Output, error) {
	sym := params.Symmetry
	if sym < 0 {
		sym = frand.Intn(nninput.NumSymmetries)
	}
	sym = fitSymmetry(b, sym, e.nnXLen, e.nnYLen)

	sb, sh := nninput.GetSymHistory(h, sym)
	req := evalRequest{
		rowBin:    make([]float32, e.numSpatial*e.nnXLen*e.nnYLen),
		rowGlobal: make([]float32, e.numGlobal),
		result:    make(chan evalResult, 1),
	}
	if _, err := nninput.FillRowV1(&sb, &sh, pla, params, e.nnXLen, e.nnYLen, req.rowBin, req.rowGlobal); err != nil {
		return nil, err
	}

	select {
	case e.queue <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, ErrClosed
	}
	var res evalResult
	select {
	case res = <-req.result:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.stopped:
		select {
		case res = <-req.result:
		default:
			return nil, ErrClosed
		}
	}
	if res.err != nil {
		return nil, res.err
	}

	out := nninput.NewOutput(e.nnXLen, e.nnYLen, includeOwnerMap && res.owner != nil)
	out.NNHash = nninput.GetHash(b, h, pla, params)
	postProcess(out, res, b, &sb, h, pla, sym, params.NNPolicyTemperature)
	return out, nil
}

// fitSymmetry drops the transpose when the transposed board would not fit the window
func fitSymmetry(b *linegame.Board, sym, nnXLen, nnYLen int) int {
	if nninput.IsTranspose(sym) && (b.YSize > nnXLen || b.XSize > nnYLen) {
		return sym &^ 0x4
	}
	return sym
}

// postProcess fills out from raw network outputs computed on the board
// transformed by sym. Policy is a softmax over the legal moves, values and
// ownership are converted from the mover's perspective to white's.
func postProcess(out *nninput.Output, res evalResult, b, sb *linegame.Board, h *linegame.BoardHistory, pla linegame.Player, sym int, policyTemp float64) {
	for i := range out.PolicyProbs {
		out.PolicyProbs[i] = -1
	}
	var legal []linegame.Loc
	if !h.IsGameFinished {
		legal = b.LegalMoves(pla)
	}
	if len(legal) > 0 {
		if policyTemp <= 0 || math.IsNaN(policyTemp) {
			policyTemp = 1
		}
		logits := make([]float64, len(legal))
		maxLogit := math.Inf(-1)
		for i, l := range legal {
			symLoc := nninput.GetSymLoc(l, b.XSize, b.YSize, sym)
			logits[i] = float64(res.policy[nninput.LocToPos(symLoc, sb.XSize, out.NNXLen, out.NNYLen)]) / policyTemp
			maxLogit = math.Max(maxLogit, logits[i])
		}
		sum := 0.0
		for i := range logits {
			logits[i] = math.Exp(logits[i] - maxLogit)
			sum += logits[i]
		}
		for i, l := range legal {
			p := 1.0 / float64(len(legal))
			if sum > 0 && !math.IsInf(sum, 0) && !math.IsNaN(sum) {
				p = logits[i] / sum
			}
			out.PolicyProbs[nninput.LocToPos(l, b.XSize, out.NNXLen, out.NNYLen)] = float32(p)
		}
	}

	v := res.value
	maxV := math.Max(float64(v[0]), math.Max(float64(v[1]), float64(v[2])))
	e0 := math.Exp(float64(v[0]) - maxV)
	e1 := math.Exp(float64(v[1]) - maxV)
	e2 := math.Exp(float64(v[2]) - maxV)
	sum := e0 + e1 + e2
	win, loss := float32(e0/sum), float32(e1/sum)
	if pla == linegame.White {
		out.WhiteWinProb, out.WhiteLossProb = win, loss
	} else {
		out.WhiteWinProb, out.WhiteLossProb = loss, win
	}

	if out.WhiteOwnerMap != nil {
		sign := float32(1)
		if pla == linegame.Black {
			sign = -1
		}
		for y := 0; y < b.YSize; y++ {
			for x := 0; x < b.XSize; x++ {
				sx, sy := nninput.GetSymXY(x, y, b.XSize, b.YSize, sym)
				raw := float64(res.owner[nninput.XYToPos(sx, sy, out.NNXLen)])
				out.WhiteOwnerMap[nninput.XYToPos(x, y, out.NNXLen)] = sign * float32(math.Tanh(raw))
			}
		}
	}
}

func (e *ONNXEvaluator) batchLoop() {
	defer close(e.stopped)
	reqs := make([]evalRequest, 0, e.maxBatch)
	for {
		reqs = reqs[:0]
		select {
		case r := <-e.queue:
			reqs = append(reqs, r)
		case <-e.done:
			return
		}

		timer := time.NewTimer(e.batchDelay)
	collect:
		for len(reqs) < e.maxBatch {
			select {
			case r := <-e.queue:
				reqs = append(reqs, r)
			case <-timer.C:
				break collect
			case <-e.done:
				break collect
			}
		}
		timer.Stop()
		e.runBatch(reqs)
	}
}

// runBatch copies request rows into the bound tensors, runs the session and
// hands each request a copy of its output rows
func (e *ONNXEvaluator) runBatch(reqs []evalRequest) {
	binLen := len(e.binInput) / e.maxBatch
	globalLen := len(e.globalInput) / e.maxBatch
	for i, r := range reqs {
		copy(e.binInput[i*binLen:(i+1)*binLen], r.rowBin)
		copy(e.globalInput[i*globalLen:(i+1)*globalLen], r.rowGlobal)
	}
	for i := len(reqs) * binLen; i < len(e.binInput); i++ {
		e.binInput[i] = 0
	}
	for i := len(reqs) * globalLen; i < len(e.globalInput); i++ {
		e.globalInput[i] = 0
	}

	if err := e.sess.Run(); err != nil {
		log.Error().Err(err).Int("batch", len(reqs)).Msg("neural net run failed")
		for _, r := range reqs {
			r.result <- evalResult{err: errors.Wrap(err, "running neural net")}
		}
		return
	}
	e.numBatches.Add(1)
	e.numRows.Add(int64(len(reqs)))

	policyLen := len(e.policy) / e.maxBatch
	area := e.nnXLen * e.nnYLen
	for i, r := range reqs {
		res := evalResult{
			policy: append([]float32(nil), e.policy[i*policyLen:(i+1)*policyLen]...),
			value:  append([]float32(nil), e.value[i*numValueOutputs:(i+1)*numValueOutputs]...),
		}
		if e.hasOwnerMap {
			res.owner = append([]float32(nil), e.owner[i*area:(i+1)*area]...)
		}
		r.result <- res
	}
}
