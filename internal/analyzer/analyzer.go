package analyzer

import (
	"math"
	"sort"
	"time"

	"DigitPulse/internal/domain/models"

	"github.com/google/uuid"
)

// Analyzer is the shared contract for the five scoring strategies. Each one
// owns its private digit history per market; the engine feeds ticks via
// OnDigit and calls Generate on the analyzer's own cadence.
type Analyzer interface {
	Name() string
	Source() models.SignalSource
	Markets() []string
	OnDigit(market string, digit int)
	Interval() time.Duration
	Generate(now time.Time) []models.Signal
}

// Maintainer is implemented by analyzers with a heavier periodic rebuild
// (zone reclassification, pattern-table rebuild) decoupled from emission.
type Maintainer interface {
	MaintenanceInterval() time.Duration
	Maintain()
}

// volatilityMarkets is the standard index set most analyzers watch.
var volatilityMarkets = []string{"R_10", "R_25", "R_50", "R_75", "R_100"}

// digitHistory is a bounded append-only window of last digits.
type digitHistory struct {
	max    int
	digits []int
}

func newDigitHistory(max int) *digitHistory {
	return &digitHistory{max: max}
}

func (h *digitHistory) push(d int) {
	h.digits = append(h.digits, d)
	if len(h.digits) > h.max {
		h.digits = h.digits[1:]
	}
}

func (h *digitHistory) size() int { return len(h.digits) }

// tail returns up to the last n digits without copying.
func (h *digitHistory) tail(n int) []int {
	if n >= len(h.digits) {
		return h.digits
	}
	return h.digits[len(h.digits)-n:]
}

func (h *digitHistory) last() int {
	if len(h.digits) == 0 {
		return 0
	}
	return h.digits[len(h.digits)-1]
}

// gapSince reports how many ticks have passed since digit last occurred;
// the full length when it never occurred.
func (h *digitHistory) gapSince(digit int) int {
	for i := len(h.digits) - 1; i >= 0; i-- {
		if h.digits[i] == digit {
			return len(h.digits) - 1 - i
		}
	}
	return len(h.digits)
}

func countFrequency(data []int) map[int]int {
	freq := make(map[int]int, 10)
	for _, d := range data {
		freq[d]++
	}
	return freq
}

// rankedDigits returns all observed digits ordered by count, hottest first.
func rankedDigits(freq map[int]int) []int {
	out := make([]int, 0, len(freq))
	for d := range freq {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if freq[out[i]] != freq[out[j]] {
			return freq[out[i]] > freq[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

func hotDigits(freq map[int]int) []int {
	ranked := rankedDigits(freq)
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	return ranked
}

func coldDigits(freq map[int]int) []int {
	ranked := rankedDigits(freq)
	out := make([]int, 0, 3)
	for i := len(ranked) - 1; i >= 0 && len(out) < 3; i-- {
		out = append(out, ranked[i])
	}
	return out
}

func evenRatio(data []int) float64 {
	if len(data) == 0 {
		return 0
	}
	even := 0
	for _, d := range data {
		if d%2 == 0 {
			even++
		}
	}
	return float64(even) / float64(len(data))
}

// momentum compares first-half vs second-half averages, normalized by the
// maximum possible digit average.
func momentum(data []int) float64 {
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
	return (second - first) / 4.5
}

// volatility is the standard deviation of absolute tick-to-tick changes.
func volatility(data []int) float64 {
	if len(data) < 2 {
		return 0
	}
	changes := make([]float64, 0, len(data)-1)
	var sum float64
	for i := 1; i < len(data); i++ {
		c := math.Abs(float64(data[i] - data[i-1]))
		changes = append(changes, c)
		sum += c
	}
	mean := sum / float64(len(changes))
	var variance float64
	for _, c := range changes {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(len(changes))
	return math.Sqrt(variance)
}

// entropy is the Shannon entropy of the digit distribution in bits.
func entropy(freq map[int]int, total int) float64 {
	if total == 0 {
		return 0
	}
	var e float64
	for digit := 0; digit <= 9; digit++ {
		p := float64(freq[digit]) / float64(total)
		if p > 0 {
			e -= p * math.Log2(p)
		}
	}
	return e
}

func digitAnalysis(data []int, recommendation int) *models.DigitAnalysis {
	freq := countFrequency(data)
	prob := make(map[int]float64, 10)
	for digit := 0; digit <= 9; digit++ {
		prob[digit] = float64(freq[digit]) / float64(len(data))
	}
	return &models.DigitAnalysis{
		HotDigits:      hotDigits(freq),
		ColdDigits:     coldDigits(freq),
		Frequency:      freq,
		Probability:    prob,
		Recommendation: recommendation,
	}
}

func newSignal(now time.Time, market string, source models.SignalSource, strategy string,
	typ models.SignalType, entry int, validity time.Duration, confidence models.Confidence,
	reason string) models.Signal {
	return models.Signal{
		ID:            uuid.NewString(),
		CreatedAt:     now,
		Market:        market,
		MarketDisplay: models.MarketDisplay(market),
		Type:          typ,
		Entry:         entry,
		EntryDigit:    entry,
		Duration:      "1t",
		Confidence:    confidence,
		Strategy:      strategy,
		Source:        source,
		Status:        models.SignalActive,
		ExpiresAt:     now.Add(validity),
		Reason:        reason,
	}
}
