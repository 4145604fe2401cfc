package models

// MarketParams carry per-market tuning derived from each index's volatility
// characteristics. Entropy below the threshold demotes frequency-based
// confidence one band.
type MarketParams struct {
	VolatilityFactor float64
	PatternWeight    float64
	EntropyThreshold float64
}

// ConnectionQuality classifies the health of one pooled connection.
type ConnectionQuality string

const (
	QualityExcellent    ConnectionQuality = "EXCELLENT"
	QualityGood         ConnectionQuality = "GOOD"
	QualityPoor         ConnectionQuality = "POOR"
	QualityDisconnected ConnectionQuality = "DISCONNECTED"
)

// PoolStatus is the aggregate state across all pooled connections.
type PoolStatus string

const (
	PoolConnected    PoolStatus = "CONNECTED"
	PoolDegraded     PoolStatus = "DEGRADED"
	PoolDisconnected PoolStatus = "DISCONNECTED"
)

// ConnectionStatus is the externally visible state of one pooled connection.
type ConnectionStatus struct {
	ClientID    string            `json:"client_id"`
	IsConnected bool              `json:"is_connected"`
	Quality     ConnectionQuality `json:"quality"`
	TickCount   int64             `json:"tick_count"`
	LastPing    int64             `json:"last_ping"` // epoch millis
}

var marketDisplay = map[string]string{
	"R_10":       "Volatility 10 Index",
	"R_25":       "Volatility 25 Index",
	"R_50":       "Volatility 50 Index",
	"R_75":       "Volatility 75 Index",
	"R_100":      "Volatility 100 Index",
	"R_150":      "Volatility 150 Index",
	"R_250":      "Volatility 250 Index",
	"1HZ10V":     "Volatility 10 (1s) Index",
	"1HZ25V":     "Volatility 25 (1s) Index",
	"1HZ50V":     "Volatility 50 (1s) Index",
	"1HZ75V":     "Volatility 75 (1s) Index",
	"1HZ100V":    "Volatility 100 (1s) Index",
	"JD10":       "Jump 10 Index",
	"JD25":       "Jump 25 Index",
	"JD50":       "Jump 50 Index",
	"JD75":       "Jump 75 Index",
	"JD100":      "Jump 100 Index",
	"CRASH300N":  "Crash 300 Index",
	"CRASH500N":  "Crash 500 Index",
	"CRASH1000N": "Crash 1000 Index",
	"BOOM300N":   "Boom 300 Index",
	"BOOM500N":   "Boom 500 Index",
	"BOOM1000N":  "Boom 1000 Index",
}

// AllMarkets lists every supported market symbol in a stable order.
func AllMarkets() []string {
	return []string{
		"R_10", "R_25", "R_50", "R_75", "R_100", "R_150", "R_250",
		"1HZ10V", "1HZ25V", "1HZ50V", "1HZ75V", "1HZ100V",
		"JD10", "JD25", "JD50", "JD75", "JD100",
		"CRASH300N", "CRASH500N", "CRASH1000N",
		"BOOM300N", "BOOM500N", "BOOM1000N",
	}
}

// MarketDisplay returns the human-readable name for a market symbol, falling
// back to the symbol itself.
func MarketDisplay(market string) string {
	if d, ok := marketDisplay[market]; ok {
		return d
	}
	return market
}

var marketParams = map[string]MarketParams{
	"R_10":       {1.0, 0.8, 2.1},
	"R_25":       {1.2, 0.9, 2.3},
	"R_50":       {1.5, 1.0, 2.5},
	"R_75":       {1.8, 1.1, 2.7},
	"R_100":      {2.0, 1.2, 2.9},
	"R_150":      {2.5, 1.3, 3.1},
	"R_250":      {3.0, 1.4, 3.3},
	"1HZ10V":     {1.0, 0.9, 2.0},
	"1HZ25V":     {1.2, 1.0, 2.2},
	"1HZ50V":     {1.5, 1.1, 2.4},
	"1HZ75V":     {1.8, 1.2, 2.6},
	"1HZ100V":    {2.0, 1.3, 2.8},
	"JD10":       {1.1, 0.7, 2.4},
	"JD25":       {1.3, 0.8, 2.6},
	"JD50":       {1.6, 0.9, 2.8},
	"JD75":       {1.9, 1.0, 3.0},
	"JD100":      {2.1, 1.1, 3.2},
	"CRASH300N":  {4.0, 0.6, 3.5},
	"CRASH500N":  {5.0, 0.5, 3.7},
	"CRASH1000N": {6.0, 0.4, 3.9},
	"BOOM300N":   {4.0, 0.6, 3.5},
	"BOOM500N":   {5.0, 0.5, 3.7},
	"BOOM1000N":  {6.0, 0.4, 3.9},
}

// ParamsFor returns the tuning parameters for a market. Unknown markets get
// neutral parameters.
func ParamsFor(market string) MarketParams {
	if p, ok := marketParams[market]; ok {
		return p
	}
	return MarketParams{VolatilityFactor: 1.0, PatternWeight: 1.0, EntropyThreshold: 2.5}
}
