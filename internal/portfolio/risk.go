// Package portfolio computes the portfolio-level risk ratio that gates new
// entries.
package portfolio

// PercentAtRisk returns the share of balance, in percent, that would be lost
// if every open position hit its stop and each one risks riskAmount.
// A non-positive balance is treated as fully at risk.
func PercentAtRisk(balance float64, openPositions int, riskAmount float64) float64 {
	if balance <= 0 {
		return 100
	}
	if openPositions <= 0 || riskAmount <= 0 {
		return 0
	}
	return float64(openPositions) * riskAmount * 100 / balance
}
