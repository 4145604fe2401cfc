package models

import "time"

// SignalType is the contract direction a signal recommends.
type SignalType string

const (
	SignalRise  SignalType = "RISE"
	SignalFall  SignalType = "FALL"
	SignalEven  SignalType = "EVEN"
	SignalOdd   SignalType = "ODD"
	SignalOver  SignalType = "OVER"
	SignalUnder SignalType = "UNDER"
)

// Confidence is the coarse band consumers see; analyzers map raw scores onto
// bands and never expose the raw value downstream.
type Confidence string

const (
	ConfidenceHigh         Confidence = "HIGH"
	ConfidenceMedium       Confidence = "MEDIUM"
	ConfidenceLow          Confidence = "LOW"
	ConfidenceConservative Confidence = "CONSERVATIVE"
	ConfidenceAggressive   Confidence = "AGGRESSIVE"
)

// BandForScore maps a raw [0,1] score to its confidence band.
func BandForScore(score float64) Confidence {
	switch {
	case score >= 0.8:
		return ConfidenceHigh
	case score >= 0.65:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// SignalStatus tracks a signal's lifecycle. ACTIVE is the only state a signal
// is created in; transitions are driven by execution outcome or expiry.
type SignalStatus string

const (
	SignalActive  SignalStatus = "ACTIVE"
	SignalWon     SignalStatus = "WON"
	SignalLost    SignalStatus = "LOST"
	SignalExpired SignalStatus = "EXPIRED"
)

// SignalSource identifies the analyzer that produced a signal.
type SignalSource string

const (
	SourceNeural  SignalSource = "Neural Intelligence"
	SourceFreq    SignalSource = "Frequency Analysis"
	SourceZones   SignalSource = "Hot/Cold Zones"
	SourcePattern SignalSource = "Pattern Recognition"
	SourceTrend   SignalSource = "Trend Analysis"
)

// DigitAnalysis carries the supporting statistics attached to a signal.
type DigitAnalysis struct {
	HotDigits      []int           `json:"hot_digits"`
	ColdDigits     []int           `json:"cold_digits"`
	Frequency      map[int]int     `json:"frequency"`
	Probability    map[int]float64 `json:"probability"`
	Recommendation int             `json:"recommendation"`
}

// Signal is a time-bounded, typed trading recommendation produced by exactly
// one analyzer. Immutable after creation except for Status.
type Signal struct {
	ID            string         `json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	Market        string         `json:"market"`
	MarketDisplay string         `json:"market_display"`
	Type          SignalType     `json:"type"`
	Entry         int            `json:"entry"`
	EntryDigit    int            `json:"entry_digit"`
	Duration      string         `json:"duration"`
	Confidence    Confidence     `json:"confidence"`
	Strategy      string         `json:"strategy"`
	Source        SignalSource   `json:"source"`
	Status        SignalStatus   `json:"status"`
	Pattern       []int          `json:"pattern,omitempty"`
	ExpiresAt     time.Time      `json:"expires_at"`
	Reason        string         `json:"reason,omitempty"`
	Analysis      *DigitAnalysis `json:"analysis,omitempty"`
}

// Valid reports whether the signal can still be acted on at the given time.
func (s *Signal) Valid(now time.Time) bool {
	if s.Status != SignalActive {
		return false
	}
	return !now.After(s.ExpiresAt)
}
