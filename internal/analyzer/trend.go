package analyzer

import (
	"fmt"
	"sync"
	"time"

	"DigitPulse/internal/domain/models"
)

const (
	trendLookback   = 1000
	trendMinHistory = 50
	trendValidity   = 35 * time.Second
	trendFloor      = 0.6
)

// Trend emits even/odd dominance reversals and short repeated-pattern
// continuations on the fastest cadence of the five analyzers.
type Trend struct {
	mu      sync.Mutex
	history map[string]*digitHistory
}

func NewTrend() *Trend {
	t := &Trend{history: make(map[string]*digitHistory)}
	for _, m := range volatilityMarkets {
		t.history[m] = newDigitHistory(trendLookback)
	}
	return t
}

func (t *Trend) Name() string                { return "trend" }
func (t *Trend) Source() models.SignalSource { return models.SourceTrend }
func (t *Trend) Markets() []string           { return volatilityMarkets }
func (t *Trend) Interval() time.Duration     { return 5 * time.Second }

func (t *Trend) OnDigit(market string, digit int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.history[market]; ok {
		h.push(digit)
	}
}

func (t *Trend) Generate(now time.Time) []models.Signal {
	t.mu.Lock()
	defer t.mu.Unlock()

	var signals []models.Signal
	for _, market := range volatilityMarkets {
		h := t.history[market]
		if h.size() < trendMinHistory {
			continue
		}
		if s := t.dominanceSignal(now, market, h); s != nil {
			signals = append(signals, *s)
		}
		if s := t.repeatSignal(now, market, h); s != nil {
			signals = append(signals, *s)
		}
	}
	return signals
}

func (t *Trend) dominanceSignal(now time.Time, market string, h *digitHistory) *models.Signal {
	recent := h.tail(30)
	even := evenRatio(recent)
	odd := 1 - even

	var typ models.SignalType
	var ratio float64
	switch {
	case even > 0.7:
		typ, ratio = models.SignalOdd, even
	case odd > 0.7:
		typ, ratio = models.SignalEven, odd
	default:
		return nil
	}

	band := models.ConfidenceMedium
	if ratio > 0.8 {
		band = models.ConfidenceHigh
	}

	side := "even"
	if typ == models.SignalEven {
		side = "odd"
	}
	reason := fmt.Sprintf("Strong %s trend (%.1f%%) suggests %s reversal", side, ratio*100, typ)

	s := newSignal(now, market, models.SourceTrend, "Trend Analysis",
		typ, h.last(), trendValidity, band, reason)
	return &s
}

// repeatSignal checks whether the last five digits form a subsequence seen
// at least three times and predicts the digit that usually follows it.
func (t *Trend) repeatSignal(now time.Time, market string, h *digitHistory) *models.Signal {
	data := h.digits
	tail := h.tail(5)
	if len(tail) < 5 {
		return nil
	}

	var followers []int
	for i := 0; i+len(tail) < len(data); i++ {
		if digitsEqual(data[i:i+len(tail)], tail) {
			followers = append(followers, data[i+len(tail)])
		}
	}
	// the tail itself counts as an occurrence
	if len(followers)+1 < 3 {
		return nil
	}
	if len(followers) == 0 {
		return nil
	}

	predicted, count := modeDigit(followers)
	confidence := float64(count) / float64(len(followers))
	if confidence < trendFloor {
		return nil
	}

	typ := models.SignalOdd
	if predicted%2 == 0 {
		typ = models.SignalEven
	}
	band := models.ConfidenceMedium
	if confidence > 0.8 {
		band = models.ConfidenceHigh
	}

	reason := fmt.Sprintf("Pattern %s found %d times, predicting digit %d (%.1f%% confidence)",
		joinDigits(tail), len(followers)+1, predicted, confidence*100)

	s := newSignal(now, market, models.SourceTrend, "Pattern Recognition",
		typ, predicted, trendValidity, band, reason)
	s.Pattern = append([]int(nil), tail...)
	return &s
}
