package execution

import "DigitPulse/internal/domain/models"

// Upstream contract type identifiers.
const (
	contractCall       = "CALL"
	contractPut        = "PUT"
	contractDigitEven  = "DIGITEVEN"
	contractDigitOdd   = "DIGITODD"
	contractDigitOver  = "DIGITOVER"
	contractDigitUnder = "DIGITUNDER"
)

func contractTypeFor(t models.SignalType) string {
	switch t {
	case models.SignalRise:
		return contractCall
	case models.SignalFall:
		return contractPut
	case models.SignalEven:
		return contractDigitEven
	case models.SignalOdd:
		return contractDigitOdd
	case models.SignalOver:
		return contractDigitOver
	case models.SignalUnder:
		return contractDigitUnder
	default:
		return contractCall
	}
}

// buildBuyRequest assembles the upstream buy payload for a one-tick contract.
// Digit over/under contracts carry the fixed barrier digit.
func buildBuyRequest(signal models.Signal, stake float64) map[string]interface{} {
	params := map[string]interface{}{
		"amount":        stake,
		"basis":         "stake",
		"contract_type": contractTypeFor(signal.Type),
		"currency":      "USD",
		"symbol":        signal.Market,
		"duration":      1,
		"duration_unit": "t",
	}
	if signal.Type == models.SignalOver || signal.Type == models.SignalUnder {
		params["barrier"] = "5"
	}

	return map[string]interface{}{
		"buy":        1,
		"price":      stake,
		"parameters": params,
	}
}
