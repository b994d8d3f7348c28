package domain

// Holding is one actor's position in a single stock. A holding with zero
// quantity is deleted from the ledger, never stored.
type Holding struct {
	Quantity int64   `json:"quantity"`
	AvgCost  float64 `json:"avgCost"`
}

// Add blends qty shares acquired at price into the holding using
// volume-weighted cost averaging. Sells never go through here: a partial
// sell leaves the remaining shares at the same average cost.
func (h *Holding) Add(qty int64, price float64) {
	newQty := h.Quantity + qty
	h.AvgCost = (h.AvgCost*float64(h.Quantity) + price*float64(qty)) / float64(newQty)
	h.Quantity = newQty
}
