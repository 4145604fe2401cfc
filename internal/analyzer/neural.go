package analyzer

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"DigitPulse/internal/domain/models"
)

const (
	neuralInputSize  = 20
	neuralHiddenSize = 15
	neuralOutputSize = 10
	neuralWindow     = 2000
	neuralFloor      = 0.6
	neuralValidity   = 40 * time.Second
)

type neuralWeights struct {
	input  [][]float64 // 20x15
	hidden [][]float64 // 15x15
	output [][]float64 // 15x10
}

// marketPerformance tracks settled-trade accuracy per market and feeds the
// adaptive weight back into scoring.
type marketPerformance struct {
	accuracy float64
	trades   int
}

// Neural scores the digit stream with a fixed three-layer forward pass.
// The weights are seeded, never trained; it is a deterministic heuristic,
// not a learning system.
type Neural struct {
	mu      sync.Mutex
	history map[string]*digitHistory
	perf    map[string]*marketPerformance
	weights neuralWeights
}

// NewNeural builds the analyzer with weights drawn from the given seed so
// that identical seeds score identically.
func NewNeural(seed int64) *Neural {
	rng := rand.New(rand.NewSource(seed))
	randomMatrix := func(rows, cols int) [][]float64 {
		m := make([][]float64, rows)
		for i := range m {
			m[i] = make([]float64, cols)
			for j := range m[i] {
				m[i][j] = (rng.Float64() - 0.5) * 2
			}
		}
		return m
	}

	n := &Neural{
		history: make(map[string]*digitHistory),
		perf:    make(map[string]*marketPerformance),
		weights: neuralWeights{
			input:  randomMatrix(neuralInputSize, neuralHiddenSize),
			hidden: randomMatrix(neuralHiddenSize, neuralHiddenSize),
			output: randomMatrix(neuralHiddenSize, neuralOutputSize),
		},
	}
	for _, market := range volatilityMarkets {
		n.history[market] = newDigitHistory(neuralWindow)
		n.perf[market] = &marketPerformance{accuracy: 0.5}
	}
	return n
}

func (n *Neural) Name() string                { return "neural" }
func (n *Neural) Source() models.SignalSource { return models.SourceNeural }
func (n *Neural) Markets() []string           { return volatilityMarkets }
func (n *Neural) Interval() time.Duration     { return 7 * time.Second }

func (n *Neural) OnDigit(market string, digit int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if h, ok := n.history[market]; ok {
		h.push(digit)
	}
}

func (n *Neural) Generate(now time.Time) []models.Signal {
	n.mu.Lock()
	defer n.mu.Unlock()

	var signals []models.Signal
	for _, market := range volatilityMarkets {
		if s := n.generateForMarket(now, market); s != nil {
			signals = append(signals, *s)
		}
	}
	return signals
}

func (n *Neural) generateForMarket(now time.Time, market string) *models.Signal {
	h := n.history[market]
	if h.size() < neuralInputSize+10 {
		return nil
	}

	input := make([]float64, neuralInputSize)
	for i, d := range h.tail(neuralInputSize) {
		input[i] = float64(d) / 9
	}

	prediction := n.forwardPass(input)
	predicted, confidence := argmax(prediction)
	if confidence < neuralFloor {
		return nil
	}

	data := h.digits
	sentimentLabel, sentimentConf := marketSentiment(data)
	adaptive := adaptiveWeight(n.perf[market])

	combined := confidence*0.6 + adaptive*0.2 + sentimentConf*0.2
	band := models.ConfidenceLow
	if combined > 0.8 {
		band = models.ConfidenceHigh
	} else if combined > 0.6 {
		band = models.ConfidenceMedium
	}

	typ := models.SignalUnder
	if predicted >= 5 {
		typ = models.SignalOver
	}

	reason := fmt.Sprintf("Neural forward pass predicts digit %d with %.1f%% confidence. Market sentiment is %s.",
		predicted, confidence*100, sentimentLabel)

	s := newSignal(now, market, models.SourceNeural, "AI Neural Network",
		typ, predicted, neuralValidity, band, reason)
	recent := data
	if len(recent) > 100 {
		recent = recent[len(recent)-100:]
	}
	s.Analysis = digitAnalysis(recent, predicted)
	return &s
}

func (n *Neural) forwardPass(input []float64) []float64 {
	h1 := sigmoidAll(matVec(input, n.weights.input))
	h2 := sigmoidAll(matVec(h1, n.weights.hidden))
	out := sigmoidAll(matVec(h2, n.weights.output))
	return softmax(out)
}

// UpdatePerformance folds one settled outcome into the market's running
// accuracy.
func (n *Neural) UpdatePerformance(market string, wasCorrect bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.perf[market]
	if !ok {
		return
	}
	hit := 0.0
	if wasCorrect {
		hit = 1.0
	}
	p.accuracy = (p.accuracy*float64(p.trades) + hit) / float64(p.trades+1)
	p.trades++
}

func matVec(v []float64, m [][]float64) []float64 {
	cols := len(m[0])
	out := make([]float64, cols)
	for j := 0; j < cols; j++ {
		var sum float64
		for k := range m {
			sum += v[k] * m[k][j]
		}
		out[j] = sum
	}
	return out
}

func sigmoidAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = 1 / (1 + math.Exp(-x))
	}
	return out
}

func softmax(v []float64) []float64 {
	maxVal := v[0]
	for _, x := range v[1:] {
		if x > maxVal {
			maxVal = x
		}
	}
	out := make([]float64, len(v))
	var sum float64
	for i, x := range v {
		out[i] = math.Exp(x - maxVal)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func argmax(v []float64) (int, float64) {
	best, bestVal := 0, v[0]
	for i, x := range v[1:] {
		if x > bestVal {
			best, bestVal = i+1, x
		}
	}
	return best, bestVal
}

func adaptiveWeight(p *marketPerformance) float64 {
	base := 0.5
	bonus := (p.accuracy - 0.5) * 0.5
	experience := math.Min(float64(p.trades)/100, 0.2)
	return math.Max(0.1, math.Min(1.0, base+bonus+experience))
}

// marketSentiment votes four indicators (three trend horizons plus
// volatility) into a bullish/bearish/neutral label with a ratio confidence.
func marketSentiment(data []int) (string, float64) {
	recent := data
	if len(recent) > 50 {
		recent = recent[len(recent)-50:]
	}

	bullish, bearish, neutral := 0, 0, 0
	vote := func(trend, upper, lower float64) {
		switch {
		case trend > upper:
			bullish++
		case trend < lower:
			bearish++
		default:
			neutral++
		}
	}
	vote(relativeTrend(tailOf(recent, 20)), 0.1, -0.1)
	vote(relativeTrend(tailOf(recent, 30)), 0.05, -0.05)
	vote(relativeTrend(tailOf(recent, 50)), 0.02, -0.02)

	switch vol := volatility(recent); {
	case vol > 2.5:
		bearish++
	case vol < 1.5:
		bullish++
	default:
		neutral++
	}

	total := float64(bullish + bearish + neutral)
	bullRatio := float64(bullish) / total
	bearRatio := float64(bearish) / total
	switch {
	case bullRatio > 0.6:
		return "bullish", bullRatio
	case bearRatio > 0.6:
		return "bearish", bearRatio
	default:
		return "neutral", math.Max(bullRatio, bearRatio)
	}
}

// relativeTrend is the second-half vs first-half average change relative to
// the first half, unlike momentum which normalizes by the digit range.
func relativeTrend(data []int) float64 {
	if len(data) < 2 {
		return 0
	}
	half := len(data) / 2
	var first, second float64
	for _, d := range data[:half] {
		first += float64(d)
	}
	for _, d := range data[half:] {
		second += float64(d)
	}
	first /= float64(half)
	second /= float64(len(data) - half)
	if first == 0 {
		return 0
	}
	return (second - first) / first
}

func tailOf(data []int, n int) []int {
	if n >= len(data) {
		return data
	}
	return data[len(data)-n:]
}
