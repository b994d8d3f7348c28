package domain

// TradeResult is the outcome of a buy or sell. Validation failures are
// expected and frequent: they are values, not errors.
type TradeResult int

const (
	TradeSuccess TradeResult = iota
	TradeInsufficientFunds
	TradeCooldown
	TradeInsufficientHoldings
	TradeInvalidStock
	TradeOversized
	TradeError
)

func (r TradeResult) String() string {
	switch r {
	case TradeSuccess:
		return "SUCCESS"
	case TradeInsufficientFunds:
		return "INSUFFICIENT_FUNDS"
	case TradeCooldown:
		return "COOLDOWN"
	case TradeInsufficientHoldings:
		return "INSUFFICIENT_HOLDINGS"
	case TradeInvalidStock:
		return "INVALID_STOCK"
	case TradeOversized:
		return "OVERSIZED"
	default:
		return "ERROR"
	}
}

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)
