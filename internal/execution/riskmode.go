package execution

import "DigitPulse/internal/domain/models"

// applyRiskMode returns a copy of the signal with its contract type remapped
// for the configured risk mode. The stored signal is never mutated.
func applyRiskMode(mode models.RiskMode, signal models.Signal) models.Signal {
	out := signal

	switch mode {
	case models.RiskLessRisky:
		if signal.Type == models.SignalRise || signal.Type == models.SignalFall {
			if signal.EntryDigit%2 == 0 {
				out.Type = models.SignalEven
			} else {
				out.Type = models.SignalOdd
			}
		}
	case models.RiskOver3Under:
		if signal.EntryDigit <= 3 {
			out.Type = models.SignalOver
		} else if signal.EntryDigit >= 6 {
			out.Type = models.SignalUnder
		}
	}

	return out
}
