package domain

import "sync"

// MinPrice is the hard floor for any instrument price.
const MinPrice = 0.01

// Stock is a single tradable instrument. The current price is owned by the
// market engine and mutated only under its lock. The price history ring is
// guarded by the stock's own mutex so that rendering a sparkline never
// blocks a concurrent price update for long.
type Stock struct {
	ID         string
	Name       string
	Price      float64
	Volatility float64
	Liquidity  float64

	histMu      sync.Mutex
	history     []float64
	historyHead int
}

// NewStock creates a stock with a flat history: every slot starts at the
// initial price so a freshly listed instrument renders as a flat line.
func NewStock(id, name string, price, volatility, liquidity float64, historySize int) *Stock {
	s := &Stock{
		ID:         id,
		Name:       name,
		Price:      price,
		Volatility: volatility,
		Liquidity:  liquidity,
		history:    make([]float64, historySize),
	}
	for i := range s.history {
		s.history[i] = price
	}
	return s
}

// AppendHistory advances the head index and overwrites that slot. O(1).
func (s *Stock) AppendHistory(p float64) {
	s.histMu.Lock()
	defer s.histMu.Unlock()

	if len(s.history) == 0 {
		return
	}
	s.historyHead = (s.historyHead + 1) % len(s.history)
	s.history[s.historyHead] = p
}

// SnapshotHistory returns the ring contents oldest-first. Length always
// equals the capacity fixed at creation.
func (s *Stock) SnapshotHistory() []float64 {
	s.histMu.Lock()
	defer s.histMu.Unlock()

	out := make([]float64, len(s.history))
	for i := range s.history {
		out[i] = s.history[(s.historyHead+1+i)%len(s.history)]
	}
	return out
}

// HistorySize returns the fixed capacity of the history ring.
func (s *Stock) HistorySize() int {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	return len(s.history)
}
