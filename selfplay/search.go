/*
Package selfplay plays games between bots and records them for training.

A MatchPairer hands out matchups, a GameInitializer builds the starting
position, RunGame plays the game move by move through Searchers and fills a
trainwrite.FinishedGameData, and a GameRunner ties these together for one
worker. Positions worth revisiting are passed between games through ForkData.*/
package selfplay

import (
	"context"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/nninput"
)

// Evaluator is a neural network (or a stand-in) that evaluates positions
type Evaluator interface {
	Evaluate(ctx context.Context, b *linegame.Board, h *linegame.BoardHistory, pla linegame.Player, params nninput.MiscParams, includeOwnerMap bool) (*nninput.Output, error)
	// ModelName identifies the network, a change means a new net is in use
	ModelName() string
	NNXLen() int
	NNYLen() int
}

// EvaluatorStats is implemented by evaluators that count their work
type EvaluatorStats interface {
	NumRowsProcessed() int64
	NumBatchesProcessed() int64
}

// ReportedSearchValues summarize the root of a search from white's perspective
type ReportedSearchValues struct {
	WinValue     float64
	LossValue    float64
	WinLossValue float64
	Utility      float64
	Weight       float64
	Visits       int64
}

// NewReportedSearchValues derives win and loss from a clamped winLoss value
func NewReportedSearchValues(winLoss, utility, weight float64, visits int64) ReportedSearchValues {
	if winLoss > 1 {
		winLoss = 1
	} else if winLoss < -1 {
		winLoss = -1
	}
	return ReportedSearchValues{
		WinValue:     0.5 * (1 + winLoss),
		LossValue:    0.5 * (1 - winLoss),
		WinLossValue: winLoss,
		Utility:      utility,
		Weight:       weight,
		Visits:       visits,
	}
}

// Searcher picks moves for one bot. It keeps its own copy of the game.
type Searcher interface {
	Name() string
	Evaluator() Evaluator
	Params() SearchParams

	SetPosition(pla linegame.Player, b *linegame.Board, h *linegame.BoardHistory)
	// MakeMove advances the internal game, false if the move is illegal there
	MakeMove(loc linegame.Loc, pla linegame.Player) bool
	ClearSearch()
	IsLegal(loc linegame.Loc, pla linegame.Player) bool

	// RunWholeSearchAndGetMove searches with the effort scaled by searchFactor.
	// It returns NullLoc only when it has no move at all.
	RunWholeSearchAndGetMove(ctx context.Context, pla linegame.Player, searchFactor float64) (linegame.Loc, error)

	// The methods below describe the last search
	GetPlaySelectionValues(scaleMaxToAtLeast float64) ([]linegame.Loc, []float64, error)
	GetRootValues() (ReportedSearchValues, error)
	GetPolicySurpriseAndEntropy() (policySurprise, searchEntropy, policyEntropy float64, err error)
	RootOutput() *nninput.Output
	NumRootVisits() int64
}

// SearchParams configure a bot
type SearchParams struct {
	MaxVisits int64 `json:"maxVisits"`

	// temperature of the move actually played, decaying from the early value
	ChosenMoveTemperatureEarly    float64 `json:"chosenMoveTemperatureEarly"`
	ChosenMoveTemperature         float64 `json:"chosenMoveTemperature"`
	ChosenMoveTemperatureHalflife float64 `json:"chosenMoveTemperatureHalflife"`

	// sharpens (<1) or flattens (>1) the search distribution relative to the raw policy
	RootPolicyTemperature float64 `json:"rootPolicyTemperature"`

	WinLossUtilityFactor float64 `json:"winLossUtilityFactor"`

	PlayoutDoublingAdvantage    float64         `json:"playoutDoublingAdvantage"`
	PlayoutDoublingAdvantagePla linegame.Player `json:"-"`
}

// DefaultSearchParams are the settings of a plain self-play bot
func DefaultSearchParams() SearchParams {
	return SearchParams{
		MaxVisits:                     600,
		ChosenMoveTemperatureEarly:    0.75,
		ChosenMoveTemperature:         0.15,
		ChosenMoveTemperatureHalflife: 19,
		RootPolicyTemperature:         1.0,
		WinLossUtilityFactor:          1.0,
	}
}

// BotSpec names a bot and how to build its searcher
type BotSpec struct {
	BotIdx    int
	BotName   string
	Evaluator Evaluator
	Params    SearchParams
}

// NewSearcherFunc creates a searcher for a bot with a seed of its own
type NewSearcherFunc func(spec BotSpec, seed string) Searcher
