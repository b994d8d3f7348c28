package domain

// CurrencyLedger is the external money service the engine trades against.
// RemoveMoney returns false on insufficient funds and must not apply a
// partial debit. AddMoney always succeeds. Implementations are expected to
// be local and non-blocking: both calls run inside the engine lock.
type CurrencyLedger interface {
	RemoveMoney(actor string, amount int64) bool
	AddMoney(actor string, amount int64)
}

// TradeJournal records executed trades. Journaling is fire-and-forget from
// the engine's point of view: failures are logged, never surfaced.
type TradeJournal interface {
	RecordTrade(rec *TradeRecord) error
}
