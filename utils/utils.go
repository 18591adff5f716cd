package utils

import "math"

// RoundTo rounds n to the given number of decimal places. Token amounts are
// rounded before leaving the allocator so on-chain and ledger values agree.
func RoundTo(n float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(n*pow) / pow
}
