package domain

import "time"

// StockView is the read-only rendering of one instrument, including the
// chronological history series used for sparklines.
type StockView struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Price   float64   `json:"price"`
	History []float64 `json:"history"`
}

// PositionView is the read-only rendering of one holding with the current
// market price attached.
type PositionView struct {
	StockID  string  `json:"stock_id"`
	Name     string  `json:"name"`
	Quantity int64   `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
	Price    float64 `json:"price"`
}

// MarketSnapshot is the full market state pushed to presentation layers
// after every change notification.
type MarketSnapshot struct {
	At     time.Time   `json:"at"`
	Stocks []StockView `json:"stocks"`
}
