package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"DigitPulse/internal/domain/models"
)

const (
	minPatternLength = 3
	maxPatternLength = 8
	minOccurrences   = 3
	patternFloor     = 0.65
	patternLookback  = 1500
	patternValidity  = 35 * time.Second
)

type patternEntry struct {
	occurrences int
	nextDigits  []int
	lastSeen    int
	confidence  float64
}

// PatternMatch is one table row exposed for inspection.
type PatternMatch struct {
	Pattern       []int   `json:"pattern"`
	Occurrences   int     `json:"occurrences"`
	LastSeen      int     `json:"last_seen"`
	PredictedNext []int   `json:"predicted_next"`
	Confidence    float64 `json:"confidence"`
}

// Pattern indexes digit subsequences of length 3-8 per market and predicts
// the digit that historically follows the current tail. The table rebuild is
// heavier than emission and runs on its own maintenance cadence.
type Pattern struct {
	mu      sync.Mutex
	history map[string]*digitHistory
	tables  map[string]map[string]*patternEntry
}

func NewPattern() *Pattern {
	p := &Pattern{
		history: make(map[string]*digitHistory),
		tables:  make(map[string]map[string]*patternEntry),
	}
	for _, m := range volatilityMarkets {
		p.history[m] = newDigitHistory(patternLookback)
		p.tables[m] = make(map[string]*patternEntry)
	}
	return p
}

func (p *Pattern) Name() string                    { return "pattern" }
func (p *Pattern) Source() models.SignalSource     { return models.SourcePattern }
func (p *Pattern) Markets() []string               { return volatilityMarkets }
func (p *Pattern) Interval() time.Duration         { return 6 * time.Second }
func (p *Pattern) MaintenanceInterval() time.Duration { return 15 * time.Second }

func (p *Pattern) OnDigit(market string, digit int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.history[market]; ok {
		h.push(digit)
	}
}

// Maintain rebuilds every market's pattern table from the current window.
func (p *Pattern) Maintain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, market := range volatilityMarkets {
		p.rebuildTable(market)
	}
}

func (p *Pattern) rebuildTable(market string) {
	data := p.history[market].digits
	table := make(map[string]*patternEntry)
	p.tables[market] = table
	if len(data) < minPatternLength+1 {
		return
	}

	for length := minPatternLength; length <= maxPatternLength; length++ {
		for i := 0; i+length < len(data); i++ {
			key := joinDigits(data[i : i+length])
			e, ok := table[key]
			if !ok {
				e = &patternEntry{}
				table[key] = e
			}
			e.occurrences++
			e.nextDigits = append(e.nextDigits, data[i+length])
			e.lastSeen = i + length
		}
	}

	for _, e := range table {
		if e.occurrences < minOccurrences {
			e.confidence = 0
			continue
		}
		modeShare := float64(modeCount(e.nextDigits)) / float64(len(e.nextDigits))
		recency := math.Max(0.5, 1-float64(e.lastSeen)/1000)
		frequency := math.Min(1.5, 1+float64(e.occurrences)/10)
		e.confidence = modeShare * recency * frequency
	}
}

func (p *Pattern) Generate(now time.Time) []models.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()

	var signals []models.Signal
	for _, market := range volatilityMarkets {
		if s := p.generateForMarket(now, market); s != nil {
			signals = append(signals, *s)
		}
	}
	return signals
}

func (p *Pattern) generateForMarket(now time.Time, market string) *models.Signal {
	data := p.history[market].digits
	table := p.tables[market]
	if len(data) < minPatternLength || len(table) == 0 {
		return nil
	}

	bestKey, bestPattern, bestScore := p.bestMatch(data, table)
	if bestKey == "" || bestScore < patternFloor {
		return nil
	}

	entry := table[bestKey]
	if len(entry.nextDigits) == 0 {
		return nil
	}
	predicted, count := modeDigit(entry.nextDigits)
	predConfidence := float64(count) / float64(len(entry.nextDigits))

	typ := models.SignalUnder
	if predicted >= 5 {
		typ = models.SignalOver
	}

	reason := fmt.Sprintf("Pattern %s detected with %.1f%% confidence. Historical analysis predicts next digit: %d (%.1f%% accuracy).",
		bestKey, bestScore*100, predicted, predConfidence*100)

	s := newSignal(now, market, models.SourcePattern, "Pattern Recognition",
		typ, predicted, patternValidity, models.BandForScore(predConfidence), reason)
	s.Pattern = append([]int(nil), bestPattern...)
	return &s
}

// bestMatch scans the current tail longest-first, including suffix matches
// of longer stored patterns at a 0.8 discount.
func (p *Pattern) bestMatch(data []int, table map[string]*patternEntry) (string, []int, float64) {
	var bestKey string
	var bestPattern []int
	bestScore := 0.0

	for length := maxPatternLength; length >= minPatternLength; length-- {
		if len(data) < length {
			continue
		}
		tail := data[len(data)-length:]
		key := joinDigits(tail)
		if e, ok := table[key]; ok && e.confidence > bestScore {
			bestKey, bestPattern, bestScore = key, tail, e.confidence
		}
		if length > minPatternLength {
			for k, e := range table {
				stored := splitDigits(k)
				if len(stored) <= length {
					continue
				}
				if digitsEqual(stored[len(stored)-length:], tail) {
					discounted := e.confidence * 0.8
					if discounted > bestScore {
						bestKey, bestPattern, bestScore = k, stored, discounted
					}
				}
			}
		}
	}
	return bestKey, bestPattern, bestScore
}

// TopPatterns returns the strongest table rows for a market, best first.
func (p *Pattern) TopPatterns(market string, n int) []PatternMatch {
	p.mu.Lock()
	defer p.mu.Unlock()
	table := p.tables[market]
	out := make([]PatternMatch, 0, len(table))
	for key, e := range table {
		if e.confidence < patternFloor {
			continue
		}
		out = append(out, PatternMatch{
			Pattern:       splitDigits(key),
			Occurrences:   e.occurrences,
			LastSeen:      e.lastSeen,
			PredictedNext: topNextDigits(e.nextDigits),
			Confidence:    e.confidence,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// ClearHistory wipes one market's window and table, or all of them when
// market is empty.
func (p *Pattern) ClearHistory(market string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if market != "" {
		if _, ok := p.history[market]; ok {
			p.history[market] = newDigitHistory(patternLookback)
			p.tables[market] = make(map[string]*patternEntry)
		}
		return
	}
	for _, m := range volatilityMarkets {
		p.history[m] = newDigitHistory(patternLookback)
		p.tables[m] = make(map[string]*patternEntry)
	}
}

func joinDigits(digits []int) string {
	parts := make([]string, len(digits))
	for i, d := range digits {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func splitDigits(key string) []int {
	parts := strings.Split(key, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		out[i], _ = strconv.Atoi(p)
	}
	return out
}

func digitsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func modeDigit(digits []int) (int, int) {
	counts := countFrequency(digits)
	best, bestCount := 0, 0
	for d := 0; d <= 9; d++ {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best, bestCount
}

func modeCount(digits []int) int {
	_, c := modeDigit(digits)
	return c
}

func topNextDigits(digits []int) []int {
	counts := countFrequency(digits)
	ranked := rankedDigits(counts)
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	return ranked
}
