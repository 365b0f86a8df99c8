package domain

import "time"

// Wallet holds rolling trade statistics for an address.
type Wallet struct {
	Address         string
	TradeCount      int
	ProfitableCount int
	FirstSeen       time.Time
	LastActive      time.Time
}

// WinRate returns profitable/total, 0 for a wallet without resolved trades.
func (w *Wallet) WinRate() float64 {
	if w.TradeCount == 0 {
		return 0
	}
	return float64(w.ProfitableCount) / float64(w.TradeCount)
}

// IsSmartMoney reports whether the wallet clears the win-rate threshold
// with at least minSamples resolved trades.
func (w *Wallet) IsSmartMoney(minWinRate float64, minSamples int) bool {
	if w.TradeCount < minSamples || w.TradeCount == 0 {
		return false
	}
	return w.WinRate() >= minWinRate
}
