package analyzer

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"DigitPulse/internal/domain/models"
)

const (
	zoneLookback  = 200
	hotThreshold  = 1.3
	coldThreshold = 0.7
	zoneValidity  = 45 * time.Second
)

// ZoneData is the hot/cold classification for one market.
type ZoneData struct {
	HotDigits     []int           `json:"hot_digits"`
	ColdDigits    []int           `json:"cold_digits"`
	NeutralDigits []int           `json:"neutral_digits"`
	ZoneStrength  map[int]float64 `json:"zone_strength"`
	LastUpdate    time.Time       `json:"last_update"`
}

// Zones classifies digits as hot or cold against the uniform expectation
// over a fixed lookback and proposes entries on cold digits due to appear
// or on exhaustion of hot digits. Reclassification runs on its own cadence.
type Zones struct {
	mu      sync.Mutex
	history map[string]*digitHistory
	zones   map[string]*ZoneData
	now     func() time.Time
}

func NewZones(now func() time.Time) *Zones {
	z := &Zones{
		history: make(map[string]*digitHistory),
		zones:   make(map[string]*ZoneData),
		now:     now,
	}
	for _, m := range volatilityMarkets {
		z.history[m] = newDigitHistory(zoneLookback * 2)
	}
	return z
}

func (z *Zones) Name() string                       { return "zones" }
func (z *Zones) Source() models.SignalSource        { return models.SourceZones }
func (z *Zones) Markets() []string                  { return volatilityMarkets }
func (z *Zones) Interval() time.Duration            { return 8 * time.Second }
func (z *Zones) MaintenanceInterval() time.Duration { return 10 * time.Second }

func (z *Zones) OnDigit(market string, digit int) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if h, ok := z.history[market]; ok {
		h.push(digit)
	}
}

// Maintain reclassifies every market's zones from the last lookback window.
func (z *Zones) Maintain() {
	z.mu.Lock()
	defer z.mu.Unlock()
	for _, market := range volatilityMarkets {
		h := z.history[market]
		if h.size() < zoneLookback {
			continue
		}
		z.zones[market] = classifyZones(h.tail(zoneLookback), z.now())
	}
}

func classifyZones(data []int, now time.Time) *ZoneData {
	freq := countFrequency(data)
	expected := float64(len(data)) / 10

	zd := &ZoneData{ZoneStrength: make(map[int]float64, 10), LastUpdate: now}
	for digit := 0; digit <= 9; digit++ {
		ratio := float64(freq[digit]) / expected
		zd.ZoneStrength[digit] = math.Min(1, math.Abs(ratio-1))
		switch {
		case ratio >= hotThreshold:
			zd.HotDigits = append(zd.HotDigits, digit)
		case ratio <= coldThreshold:
			zd.ColdDigits = append(zd.ColdDigits, digit)
		default:
			zd.NeutralDigits = append(zd.NeutralDigits, digit)
		}
	}
	byStrength := func(digits []int) {
		sort.Slice(digits, func(i, j int) bool {
			return zd.ZoneStrength[digits[i]] > zd.ZoneStrength[digits[j]]
		})
	}
	byStrength(zd.HotDigits)
	byStrength(zd.ColdDigits)
	return zd
}

func (z *Zones) Generate(now time.Time) []models.Signal {
	z.mu.Lock()
	defer z.mu.Unlock()

	var signals []models.Signal
	for _, market := range volatilityMarkets {
		if s := z.generateForMarket(now, market); s != nil {
			signals = append(signals, *s)
		}
	}
	return signals
}

func (z *Zones) generateForMarket(now time.Time, market string) *models.Signal {
	h := z.history[market]
	zd := z.zones[market]
	if zd == nil || h.size() < 50 {
		return nil
	}

	entry, confidence, reasoning := optimalEntry(h, zd)
	if entry < 0 || confidence < 0.6 {
		return nil
	}

	typ := models.SignalUnder
	if entry >= 5 {
		typ = models.SignalOver
	}

	short := momentum(h.tail(10))
	medium := momentum(h.tail(30))
	long := momentum(h.tail(100))
	avg := (short + medium + long) / 3
	label := "neutral"
	if avg > 0.1 {
		label = "bullish"
	} else if avg < -0.1 {
		label = "bearish"
	}

	reason := fmt.Sprintf("%s. Market momentum is %s (Short: %.1f%%, Medium: %.1f%%, Long: %.1f%%).",
		reasoning, label, short*100, medium*100, long*100)

	s := newSignal(now, market, models.SourceZones, "Entry Point Detection",
		typ, entry, zoneValidity, models.BandForScore(confidence), reason)
	return &s
}

// optimalEntry prefers cold digits with a long absence; if nothing clears
// 0.6 it falls back to hot-digit exhaustion, predicting the strongest
// opposite-zone digit.
func optimalEntry(h *digitHistory, zd *ZoneData) (int, float64, string) {
	entry := -1
	best := 0.0
	reasoning := ""

	for _, digit := range zd.ColdDigits {
		gap := h.gapSince(digit)
		confidence := 0.0
		if gap > 50 {
			confidence = math.Min(0.9, 0.5+float64(gap)/100)
		}
		confidence *= 1 + zd.ZoneStrength[digit]
		if confidence > best {
			best = confidence
			entry = digit
			reasoning = fmt.Sprintf("Cold digit %d absent for %d ticks suggests high probability of appearance", digit, gap)
		}
	}

	if best < 0.6 {
		recent := h.tail(30)
		for _, digit := range zd.HotDigits {
			occurrences := 0
			for _, d := range recent {
				if d == digit {
					occurrences++
				}
			}
			overheating := float64(occurrences) / float64(len(recent))
			if overheating <= 0.4 {
				continue
			}
			confidence := math.Min(0.8, overheating)
			if confidence <= best {
				continue
			}
			opposite := zd.ColdDigits
			if len(opposite) == 0 {
				opposite = zd.NeutralDigits
			}
			if len(opposite) == 0 {
				continue
			}
			best = confidence
			entry = opposite[0]
			reasoning = fmt.Sprintf("Hot digit %d overheating (%.1f%%), predicting cold digit %d",
				digit, overheating*100, entry)
		}
	}

	if entry < 0 || best < 0.5 {
		return -1, 0, ""
	}
	return entry, best, reasoning
}

// ZonesFor exposes the current classification for a market.
func (z *Zones) ZonesFor(market string) *ZoneData {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.zones[market]
}
