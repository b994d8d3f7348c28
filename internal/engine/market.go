package engine

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"marketcraft/internal/domain"
	"marketcraft/internal/infra"
	"marketcraft/internal/infra/storage"
	"marketcraft/internal/notify"
)

// maxTickMove caps the absolute per-tick price move at ±20% of the
// pre-tick price, regardless of how large impact and noise get.
const maxTickMove = 0.20

// Config holds the trading and simulation tunables of one market engine.
type Config struct {
	TickInterval  time.Duration
	TradeCooldown time.Duration
	MaxTradeQty   int64
	// ImpactScale is the k in impact = netVolume/(liquidity+1) * k. It is
	// a tunable, not a constant: liquidity magnitudes are catalog-defined.
	ImpactScale float64
}

// Market is the engine for one game session: the instrument catalog, the
// per-actor holdings ledger, the net-volume accumulator feeding the price
// simulation, and the cooldown tracker. One coarse mutex serializes every
// state-mutating operation against the simulation tick, so a trade's cost
// is always computed against a price that cannot move mid-operation.
type Market struct {
	cfg     Config
	docs    *storage.Documents
	ledger  domain.CurrencyLedger
	journal domain.TradeJournal
	bus     *notify.Bus
	log     *slog.Logger

	mu        sync.Mutex
	stocks    map[string]*domain.Stock
	holdings  map[string]map[string]*domain.Holding
	netVolume map[string]int64
	lastTrade map[string]time.Time

	rand *rand.Rand
	now  func() time.Time
}

// NewMarket builds an engine and loads both documents. A malformed catalog
// leaves the registry empty; a malformed holdings document keeps every
// entry that parses.
func NewMarket(cfg Config, docs *storage.Documents, ledger domain.CurrencyLedger, journal domain.TradeJournal, log *slog.Logger) *Market {
	if log == nil {
		log = slog.Default()
	}
	m := &Market{
		cfg:       cfg,
		docs:      docs,
		ledger:    ledger,
		journal:   journal,
		bus:       notify.NewBus(),
		log:       log,
		stocks:    make(map[string]*domain.Stock),
		holdings:  make(map[string]map[string]*domain.Holding),
		netVolume: make(map[string]int64),
		lastTrade: make(map[string]time.Time),
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
	m.Reload()
	m.loadHoldings()
	return m
}

func (m *Market) loadHoldings() {
	holdings, err := m.docs.LoadHoldings()
	if err != nil {
		m.log.Error("failed to load holdings document", slog.Any("error", err))
	}
	m.mu.Lock()
	m.holdings = holdings
	m.mu.Unlock()
}

// Reload clears the catalog and re-reads the catalog document. A parse
// failure is logged and results in an empty catalog, never a partial one.
func (m *Market) Reload() {
	stocks, err := m.docs.LoadCatalog()
	if err != nil {
		m.log.Error("failed to load catalog document", slog.Any("error", err))
	}
	m.mu.Lock()
	m.stocks = stocks
	m.mu.Unlock()
}

// Save rewrites both documents from the in-memory state.
func (m *Market) Save() {
	m.mu.Lock()
	m.saveLocked()
	m.mu.Unlock()
}

// saveLocked persists both documents. Write failures are logged and do not
// roll back in-memory state: memory stays the source of truth until the
// next successful write.
func (m *Market) saveLocked() {
	if err := m.docs.SaveCatalog(m.stocks); err != nil {
		infra.GlobalMetrics.RecordSaveFailure()
		m.log.Error("failed to save catalog document", slog.Any("error", err))
	}
	if err := m.docs.SaveHoldings(m.holdings); err != nil {
		infra.GlobalMetrics.RecordSaveFailure()
		m.log.Error("failed to save holdings document", slog.Any("error", err))
	}
}

// List returns a read-only view of every instrument, sorted by id.
func (m *Market) List() []domain.StockView {
	m.mu.Lock()
	out := make([]domain.StockView, 0, len(m.stocks))
	for _, s := range m.stocks {
		out = append(out, domain.StockView{
			ID:      s.ID,
			Name:    s.Name,
			Price:   s.Price,
			History: s.SnapshotHistory(),
		})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the view of a single instrument.
func (m *Market) Get(id string) (domain.StockView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stocks[id]
	if !ok {
		return domain.StockView{}, false
	}
	return domain.StockView{
		ID:      s.ID,
		Name:    s.Name,
		Price:   s.Price,
		History: s.SnapshotHistory(),
	}, true
}

// History returns the chronological price series for one instrument.
func (m *Market) History(id string) ([]float64, error) {
	m.mu.Lock()
	s, ok := m.stocks[id]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrUnknownStock
	}
	return s.SnapshotHistory(), nil
}

// Positions returns a copy of the actor's positions. Never nil and never
// a reference into engine state.
func (m *Market) Positions(actor string) map[string]domain.Holding {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]domain.Holding)
	for id, h := range m.holdings[actor] {
		out[id] = *h
	}
	return out
}

// Buy purchases qty shares for the actor at the current price. Validation
// order is a contract: invalid stock, cooldown, oversized, funds.
func (m *Market) Buy(actor, stockID string, qty int64) domain.TradeResult {
	res := m.buy(actor, stockID, qty)
	infra.GlobalMetrics.RecordTrade(res == domain.TradeSuccess)
	if res == domain.TradeSuccess {
		m.publish()
	}
	return res
}

func (m *Market) buy(actor, stockID string, qty int64) domain.TradeResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stocks[stockID]
	if !ok || qty <= 0 {
		return domain.TradeInvalidStock
	}
	now := m.now()
	if last, ok := m.lastTrade[actor]; ok && now.Sub(last) < m.cfg.TradeCooldown {
		return domain.TradeCooldown
	}
	if qty > m.cfg.MaxTradeQty {
		return domain.TradeOversized
	}
	cost := int64(math.Round(s.Price * float64(qty)))
	if !m.ledger.RemoveMoney(actor, cost) {
		return domain.TradeInsufficientFunds
	}

	positions, ok := m.holdings[actor]
	if !ok {
		positions = make(map[string]*domain.Holding)
		m.holdings[actor] = positions
	}
	if h, ok := positions[stockID]; ok {
		h.Add(qty, s.Price)
	} else {
		positions[stockID] = &domain.Holding{Quantity: qty, AvgCost: s.Price}
	}

	m.netVolume[stockID] += qty
	m.lastTrade[actor] = now
	m.journalTrade(actor, stockID, domain.SideBuy, qty, s.Price)
	m.saveLocked()
	return domain.TradeSuccess
}

// Sell disposes qty shares for the actor at the current price. Validation
// order is a contract: invalid stock, cooldown, holdings.
func (m *Market) Sell(actor, stockID string, qty int64) domain.TradeResult {
	res := m.sell(actor, stockID, qty)
	infra.GlobalMetrics.RecordTrade(res == domain.TradeSuccess)
	if res == domain.TradeSuccess {
		m.publish()
	}
	return res
}

func (m *Market) sell(actor, stockID string, qty int64) domain.TradeResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stocks[stockID]
	if !ok || qty <= 0 {
		return domain.TradeInvalidStock
	}
	now := m.now()
	if last, ok := m.lastTrade[actor]; ok && now.Sub(last) < m.cfg.TradeCooldown {
		return domain.TradeCooldown
	}
	positions := m.holdings[actor]
	h, ok := positions[stockID]
	if !ok || h.Quantity < qty {
		return domain.TradeInsufficientHoldings
	}

	proceeds := int64(math.Round(s.Price * float64(qty)))
	h.Quantity -= qty
	if h.Quantity <= 0 {
		delete(positions, stockID)
	}
	m.ledger.AddMoney(actor, proceeds)

	m.netVolume[stockID] -= qty
	m.lastTrade[actor] = now
	m.journalTrade(actor, stockID, domain.SideSell, qty, s.Price)
	m.saveLocked()
	return domain.TradeSuccess
}

// journalTrade appends the trade to the journal. The notional is the exact
// price*qty product in decimal, not the rounded amount that moved through
// the currency ledger, so the journal keeps the sub-unit precision.
func (m *Market) journalTrade(actor, stockID, side string, qty int64, price float64) {
	if m.journal == nil {
		return
	}
	rec := &domain.TradeRecord{
		Actor:    actor,
		StockID:  stockID,
		Side:     side,
		Quantity: qty,
		Price:    price,
		Notional: decimal.NewFromFloat(price).Mul(decimal.NewFromInt(qty)).String(),
	}
	if err := m.journal.RecordTrade(rec); err != nil {
		m.log.Error("failed to journal trade", slog.String("actor", actor),
			slog.String("stock", stockID), slog.Any("error", err))
	}
}

// SetPrice is the administrative price override. The price is clamped to
// the floor, appended to history, persisted and fanned out.
func (m *Market) SetPrice(stockID string, price float64) error {
	m.mu.Lock()
	s, ok := m.stocks[stockID]
	if !ok {
		m.mu.Unlock()
		return domain.ErrUnknownStock
	}
	s.Price = math.Max(domain.MinPrice, price)
	s.AppendHistory(s.Price)
	m.saveLocked()
	m.mu.Unlock()

	m.publish()
	return nil
}

// AddPosition is the administrative grant: it bypasses cooldown and funds
// checks, creates or cost-averages the position, and persists. A
// non-positive qty is a no-op.
func (m *Market) AddPosition(actor, stockID string, qty int64, cost float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stocks[stockID]; !ok {
		return domain.ErrUnknownStock
	}
	if qty <= 0 {
		return nil
	}
	positions, ok := m.holdings[actor]
	if !ok {
		positions = make(map[string]*domain.Holding)
		m.holdings[actor] = positions
	}
	if h, ok := positions[stockID]; ok {
		h.Add(qty, cost)
	} else {
		positions[stockID] = &domain.Holding{Quantity: qty, AvgCost: cost}
	}
	m.saveLocked()
	return nil
}

// SimulateTick applies one round of the price walk to every instrument:
// accumulated net trade volume dampened by liquidity, plus symmetric noise
// scaled by volatility. The absolute move is clamped to ±20% of the
// pre-tick price, then the floor is enforced after the clamp.
func (m *Market) SimulateTick() {
	m.mu.Lock()
	for id, s := range m.stocks {
		vol := m.netVolume[id]
		impact := (float64(vol) / (s.Liquidity + 1.0)) * m.cfg.ImpactScale
		noise := (m.rand.Float64() - 0.5) * s.Volatility * s.Price
		candidate := s.Price*(1.0+impact) + noise

		maxMove := s.Price * maxTickMove
		delta := candidate - s.Price
		if delta > maxMove {
			delta = maxMove
		}
		if delta < -maxMove {
			delta = -maxMove
		}
		s.Price = math.Max(domain.MinPrice, s.Price+delta)
		s.AppendHistory(s.Price)
	}
	m.netVolume = make(map[string]int64)
	m.saveLocked()
	m.mu.Unlock()

	infra.GlobalMetrics.RecordTick()
	m.publish()
}

// StartSimulation runs the recurring price simulation until ctx is done.
func (m *Market) StartSimulation(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.TickInterval)
		defer ticker.Stop()
		m.log.Info("price simulation started", slog.Duration("interval", m.cfg.TickInterval))
		for {
			select {
			case <-ctx.Done():
				m.log.Info("price simulation stopped")
				return
			case <-ticker.C:
				m.SimulateTick()
			}
		}
	}()
}

// Subscribe registers a change callback and returns its token. Callbacks
// run outside the engine lock, so they may call back into the engine.
func (m *Market) Subscribe(fn func()) int {
	return m.bus.Subscribe(fn)
}

// Unsubscribe removes a change callback by token.
func (m *Market) Unsubscribe(token int) {
	m.bus.Unsubscribe(token)
}

func (m *Market) publish() {
	infra.GlobalMetrics.RecordNotification()
	m.bus.Publish()
}

// Snapshot returns the full market view for broadcast consumers.
func (m *Market) Snapshot() domain.MarketSnapshot {
	return domain.MarketSnapshot{
		At:     m.now(),
		Stocks: m.List(),
	}
}
