package analyzer

import (
	"fmt"
	"sync"
	"time"

	"DigitPulse/internal/domain/models"
)

const (
	freqLookback   = 1000
	freqMinHistory = 100
)

// MarketStats is the derived statistics snapshot the frequency analyzer
// maintains per market.
type MarketStats struct {
	TickCount  int             `json:"tick_count"`
	Frequency  map[int]int     `json:"frequency"`
	Volatility float64         `json:"volatility"`
	Entropy    float64         `json:"entropy"`
	HotDigits  []int           `json:"hot_digits"`
	ColdDigits []int           `json:"cold_digits"`
	LastSeen   map[int]int     `json:"last_seen"`
	LastUpdate time.Time       `json:"last_update"`
	Params     models.MarketParams `json:"-"`
}

// Frequency is the statistical analyzer: over/under imbalance reversal,
// even/odd imbalance reversal, and cold-digit targeting, tuned per market
// by entropy thresholds.
type Frequency struct {
	mu      sync.Mutex
	markets []string
	history map[string]*digitHistory
	stats   map[string]*MarketStats
}

func NewFrequency() *Frequency {
	f := &Frequency{
		markets: models.AllMarkets(),
		history: make(map[string]*digitHistory),
		stats:   make(map[string]*MarketStats),
	}
	for _, m := range f.markets {
		f.history[m] = newDigitHistory(freqLookback)
	}
	return f
}

func (f *Frequency) Name() string                { return "frequency" }
func (f *Frequency) Source() models.SignalSource { return models.SourceFreq }
func (f *Frequency) Markets() []string           { return f.markets }
func (f *Frequency) Interval() time.Duration     { return 8 * time.Second }

func (f *Frequency) OnDigit(market string, digit int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.history[market]; ok {
		h.push(digit)
	}
}

func (f *Frequency) Generate(now time.Time) []models.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()

	var signals []models.Signal
	for _, market := range f.markets {
		h := f.history[market]
		if h.size() < freqMinHistory {
			continue
		}
		stats := f.refreshStats(now, market, h)
		if s := f.overUnderSignal(now, market, h, stats); s != nil {
			signals = append(signals, *s)
		}
		if s := f.evenOddSignal(now, market, h, stats); s != nil {
			signals = append(signals, *s)
		}
		if s := f.coldDigitSignal(now, market, h, stats); s != nil {
			signals = append(signals, *s)
		}
	}
	return signals
}

func (f *Frequency) refreshStats(now time.Time, market string, h *digitHistory) *MarketStats {
	freq := countFrequency(h.digits)
	lastSeen := make(map[int]int, 10)
	for i, d := range h.digits {
		lastSeen[d] = i
	}
	stats := &MarketStats{
		TickCount:  h.size(),
		Frequency:  freq,
		Volatility: volatility(h.digits),
		Entropy:    entropy(freq, h.size()),
		HotDigits:  hotDigits(freq),
		ColdDigits: coldDigits(freq),
		LastSeen:   lastSeen,
		LastUpdate: now,
		Params:     models.ParamsFor(market),
	}
	f.stats[market] = stats
	return stats
}

// overUnderSignal looks for dominance in the last 50 digits and predicts the
// reversal. Low distribution entropy for the market demotes the band.
func (f *Frequency) overUnderSignal(now time.Time, market string, h *digitHistory, stats *MarketStats) *models.Signal {
	recent := h.tail(50)
	over := 0
	for _, d := range recent {
		if d >= 5 {
			over++
		}
	}
	overRatio := float64(over) / float64(len(recent))
	underRatio := 1 - overRatio

	if len(stats.HotDigits) == 0 {
		return nil
	}
	entry := stats.HotDigits[0]

	var typ models.SignalType
	var ratio float64
	switch {
	case overRatio > 0.7:
		typ, ratio = models.SignalUnder, overRatio
	case underRatio > 0.7:
		typ, ratio = models.SignalOver, underRatio
	default:
		return nil
	}

	band := models.ConfidenceMedium
	if ratio > 0.8 {
		band = models.ConfidenceHigh
	}
	if stats.Entropy < stats.Params.EntropyThreshold {
		band = demote(band)
	}

	side := "Under"
	if typ == models.SignalUnder {
		side = "Over"
	}
	reason := fmt.Sprintf("%s dominance (%.1f%%) suggests %s reversal. Entry digit: %d",
		side, ratio*100, typ, entry)

	s := newSignal(now, market, models.SourceFreq, "Patel Statistical Analysis",
		typ, entry, 45*time.Second, band, reason)
	s.Analysis = digitAnalysis(h.digits, firstOrZero(stats.ColdDigits))
	return &s
}

func (f *Frequency) evenOddSignal(now time.Time, market string, h *digitHistory, stats *MarketStats) *models.Signal {
	recent := h.tail(30)
	even := evenRatio(recent)
	odd := 1 - even

	var typ models.SignalType
	var ratio float64
	switch {
	case even > 0.75:
		typ, ratio = models.SignalOdd, even
	case odd > 0.75:
		typ, ratio = models.SignalEven, odd
	default:
		return nil
	}

	band := models.ConfidenceMedium
	if ratio > 0.85 {
		band = models.ConfidenceHigh
	}

	side := "Even"
	if typ == models.SignalEven {
		side = "Odd"
	}
	reason := fmt.Sprintf("%s dominance (%.1f%%) suggests %s reversal", side, ratio*100, typ)

	s := newSignal(now, market, models.SourceFreq, "Patel Even/Odd Analysis",
		typ, h.last(), 40*time.Second, band, reason)
	s.Analysis = digitAnalysis(h.digits, firstOrZero(stats.ColdDigits))
	return &s
}

// coldDigitSignal targets the coldest digit when it has been absent for more
// than 50 ticks.
func (f *Frequency) coldDigitSignal(now time.Time, market string, h *digitHistory, stats *MarketStats) *models.Signal {
	if len(stats.ColdDigits) == 0 {
		return nil
	}
	target := stats.ColdDigits[0]
	gap := h.size() - stats.LastSeen[target]
	if _, seen := stats.LastSeen[target]; !seen {
		gap = h.size()
	}
	if gap <= 50 {
		return nil
	}

	typ := models.SignalOdd
	if target%2 == 0 {
		typ = models.SignalEven
	}
	band := models.ConfidenceMedium
	if gap > 100 {
		band = models.ConfidenceHigh
	}

	reason := fmt.Sprintf("Digit %d is cold (%d ticks since last occurrence)", target, gap)
	s := newSignal(now, market, models.SourceFreq, "Patel Cold Digit Targeting",
		typ, target, 50*time.Second, band, reason)
	s.Analysis = digitAnalysis(h.digits, target)
	return &s
}

// MarketStatistics returns the latest derived snapshot for a market, nil
// before enough history accumulates.
func (f *Frequency) MarketStatistics(market string) *MarketStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats[market]
}

// DigitHistory copies the current window for a market.
func (f *Frequency) DigitHistory(market string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.history[market]
	if !ok {
		return nil
	}
	return append([]int(nil), h.digits...)
}

func demote(c models.Confidence) models.Confidence {
	if c == models.ConfidenceHigh {
		return models.ConfidenceMedium
	}
	return models.ConfidenceLow
}

func firstOrZero(digits []int) int {
	if len(digits) == 0 {
		return 0
	}
	return digits[0]
}
