package domain

import (
	"time"
)

// TradeRecord is one executed trade, journaled for audit. Notional is the
// exact price*qty product stored as a decimal string; the currency ledger
// moves the rounded amount.
type TradeRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Actor     string    `gorm:"index" json:"actor"`
	StockID   string    `gorm:"index" json:"stock_id"`
	Side      string    `json:"side"` // "BUY" or "SELL"
	Quantity  int64     `json:"quantity"`
	Price     float64   `json:"price"`
	Notional  string    `json:"notional"`
	CreatedAt time.Time `json:"created_at"`
}

// Account is one wallet row for the bundled currency ledger.
type Account struct {
	Actor     string    `gorm:"primaryKey" json:"actor"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}
