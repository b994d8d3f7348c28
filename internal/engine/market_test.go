package engine

import (
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"marketcraft/internal/domain"
	"marketcraft/internal/infra/storage"
)

const acmeCatalog = `{
  "ACME": { "name": "Acme Corp", "price": 10.0, "volatility": 0.0, "liquidity": 1000.0, "historySize": 9 }
}`

type fakeLedger struct {
	balances map[string]int64
	debits   []int64
	credits  []int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[string]int64)}
}

func (f *fakeLedger) fund(actor string, amount int64) {
	f.balances[actor] = amount
}

func (f *fakeLedger) RemoveMoney(actor string, amount int64) bool {
	if f.balances[actor] < amount {
		return false
	}
	f.balances[actor] -= amount
	f.debits = append(f.debits, amount)
	return true
}

func (f *fakeLedger) AddMoney(actor string, amount int64) {
	f.balances[actor] += amount
	f.credits = append(f.credits, amount)
}

type fakeJournal struct {
	records []domain.TradeRecord
}

func (f *fakeJournal) RecordTrade(rec *domain.TradeRecord) error {
	f.records = append(f.records, *rec)
	return nil
}

func testConfig() Config {
	return Config{
		TickInterval:  time.Second,
		TradeCooldown: 2 * time.Second,
		MaxTradeQty:   1000,
		ImpactScale:   0.01,
	}
}

// newTestMarket builds an engine over a temp document dir seeded with the
// given catalog, with a deterministic clock the caller can advance.
func newTestMarket(t *testing.T, catalog string, ledger domain.CurrencyLedger) (*Market, func(time.Duration)) {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "stocks.json"), []byte(catalog), 0644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}
	docs, err := storage.NewDocuments(dir, slog.Default())
	if err != nil {
		t.Fatalf("failed to open documents: %v", err)
	}

	m := NewMarket(testConfig(), docs, ledger, nil, slog.Default())

	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	m.rand = rand.New(rand.NewSource(42))

	return m, func(d time.Duration) { now = now.Add(d) }
}

func TestBuySellRoundTrip(t *testing.T) {
	ledger := newFakeLedger()
	ledger.fund("alice", 5000)
	m, advance := newTestMarket(t, acmeCatalog, ledger)

	if res := m.Buy("alice", "ACME", 100); res != domain.TradeSuccess {
		t.Fatalf("buy failed: %s", res)
	}
	if ledger.balances["alice"] != 4000 {
		t.Errorf("expected 1000 debited, balance %d", ledger.balances["alice"])
	}
	pos := m.Positions("alice")
	if pos["ACME"].Quantity != 100 || pos["ACME"].AvgCost != 10.0 {
		t.Errorf("expected 100@10.00, got %+v", pos["ACME"])
	}

	advance(3 * time.Second)
	if res := m.Sell("alice", "ACME", 40); res != domain.TradeSuccess {
		t.Fatalf("sell failed: %s", res)
	}
	if ledger.balances["alice"] != 4400 {
		t.Errorf("expected 400 credited, balance %d", ledger.balances["alice"])
	}
	pos = m.Positions("alice")
	if pos["ACME"].Quantity != 60 || pos["ACME"].AvgCost != 10.0 {
		t.Errorf("partial sell must not touch avg cost, got %+v", pos["ACME"])
	}

	advance(3 * time.Second)
	if res := m.Sell("alice", "ACME", 60); res != domain.TradeSuccess {
		t.Fatalf("final sell failed: %s", res)
	}
	if _, ok := m.Positions("alice")["ACME"]; ok {
		t.Error("zero-quantity position must be removed, not stored")
	}
	if ledger.balances["alice"] != 5000 {
		t.Errorf("constant-price round trip must be money-neutral, balance %d", ledger.balances["alice"])
	}
}

func TestBuy_CostAveraging(t *testing.T) {
	ledger := newFakeLedger()
	ledger.fund("alice", 100_000)
	m, advance := newTestMarket(t, acmeCatalog, ledger)

	if res := m.Buy("alice", "ACME", 100); res != domain.TradeSuccess {
		t.Fatalf("first buy failed: %s", res)
	}
	if err := m.SetPrice("ACME", 20.0); err != nil {
		t.Fatalf("set price failed: %v", err)
	}
	advance(3 * time.Second)
	if res := m.Buy("alice", "ACME", 300); res != domain.TradeSuccess {
		t.Fatalf("second buy failed: %s", res)
	}

	want := (10.0*100 + 20.0*300) / 400
	got := m.Positions("alice")["ACME"].AvgCost
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected avg cost %v, got %v", want, got)
	}
}

func TestSell_InsufficientHoldings(t *testing.T) {
	ledger := newFakeLedger()
	ledger.fund("alice", 5000)
	m, advance := newTestMarket(t, acmeCatalog, ledger)

	if res := m.Sell("alice", "ACME", 10); res != domain.TradeInsufficientHoldings {
		t.Errorf("expected INSUFFICIENT_HOLDINGS with no position, got %s", res)
	}

	m.Buy("alice", "ACME", 50)
	advance(3 * time.Second)
	if res := m.Sell("alice", "ACME", 51); res != domain.TradeInsufficientHoldings {
		t.Errorf("expected INSUFFICIENT_HOLDINGS, got %s", res)
	}
	if got := m.Positions("alice")["ACME"].Quantity; got != 50 {
		t.Errorf("rejected sell must leave the position unchanged, got %d", got)
	}
	if len(ledger.credits) != 0 {
		t.Error("rejected sell must not credit the ledger")
	}
}

func TestTradeCooldown(t *testing.T) {
	ledger := newFakeLedger()
	ledger.fund("alice", 100_000)
	m, advance := newTestMarket(t, acmeCatalog, ledger)

	if res := m.Buy("alice", "ACME", 10); res != domain.TradeSuccess {
		t.Fatalf("first buy failed: %s", res)
	}

	advance(time.Second)
	if res := m.Buy("alice", "ACME", 10); res != domain.TradeCooldown {
		t.Errorf("trade inside cooldown must be rejected, got %s", res)
	}
	if res := m.Sell("alice", "ACME", 5); res != domain.TradeCooldown {
		t.Errorf("sells honor the cooldown too, got %s", res)
	}

	advance(time.Second) // exactly at the cooldown boundary now
	if res := m.Buy("alice", "ACME", 10); res != domain.TradeSuccess {
		t.Errorf("trade at the cooldown boundary must succeed, got %s", res)
	}
}

func TestBuy_Oversized(t *testing.T) {
	ledger := newFakeLedger()
	ledger.fund("alice", 1_000_000)
	m, _ := newTestMarket(t, acmeCatalog, ledger)

	if res := m.Buy("alice", "ACME", 1001); res != domain.TradeOversized {
		t.Fatalf("expected OVERSIZED, got %s", res)
	}
	if len(ledger.debits) != 0 {
		t.Error("oversized buy must not touch the currency ledger")
	}
	if len(m.Positions("alice")) != 0 {
		t.Error("oversized buy must not create a position")
	}
}

func TestBuy_InvalidStock(t *testing.T) {
	ledger := newFakeLedger()
	ledger.fund("alice", 5000)
	m, _ := newTestMarket(t, acmeCatalog, ledger)

	if res := m.Buy("alice", "NOPE", 10); res != domain.TradeInvalidStock {
		t.Errorf("unknown instrument: expected INVALID_STOCK, got %s", res)
	}
	if res := m.Buy("alice", "ACME", 0); res != domain.TradeInvalidStock {
		t.Errorf("zero quantity: expected INVALID_STOCK, got %s", res)
	}
	if res := m.Sell("alice", "ACME", -5); res != domain.TradeInvalidStock {
		t.Errorf("negative quantity: expected INVALID_STOCK, got %s", res)
	}
}

func TestBuy_InsufficientFunds(t *testing.T) {
	ledger := newFakeLedger()
	ledger.fund("alice", 999)
	m, _ := newTestMarket(t, acmeCatalog, ledger)

	if res := m.Buy("alice", "ACME", 100); res != domain.TradeInsufficientFunds {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %s", res)
	}
	if ledger.balances["alice"] != 999 {
		t.Error("failed debit must not change the balance")
	}
	if len(m.Positions("alice")) != 0 {
		t.Error("failed buy must not create a position")
	}
}

func TestJournalNotionalKeepsPrecision(t *testing.T) {
	ledger := newFakeLedger()
	ledger.fund("alice", 100_000)
	m, advance := newTestMarket(t, acmeCatalog, ledger)
	journal := &fakeJournal{}
	m.journal = journal

	if err := m.SetPrice("ACME", 10.25); err != nil {
		t.Fatalf("set price failed: %v", err)
	}
	if res := m.Buy("alice", "ACME", 3); res != domain.TradeSuccess {
		t.Fatalf("buy failed: %s", res)
	}
	advance(3 * time.Second)
	if res := m.Sell("alice", "ACME", 3); res != domain.TradeSuccess {
		t.Fatalf("sell failed: %s", res)
	}

	if len(journal.records) != 2 {
		t.Fatalf("expected 2 journal rows, got %d", len(journal.records))
	}
	buy := journal.records[0]
	if buy.Side != domain.SideBuy || buy.Quantity != 3 || buy.Price != 10.25 {
		t.Errorf("unexpected buy row: %+v", buy)
	}
	// The ledger moves round(10.25*3)=31; the journal keeps the exact 30.75.
	if buy.Notional != "30.75" {
		t.Errorf("expected notional 30.75, got %s", buy.Notional)
	}
	if ledger.debits[0] != 31 {
		t.Errorf("expected 31 debited, got %d", ledger.debits[0])
	}
	if sell := journal.records[1]; sell.Side != domain.SideSell || sell.Notional != "30.75" {
		t.Errorf("unexpected sell row: %+v", sell)
	}
}

func TestSimulateTick_ImpactScenario(t *testing.T) {
	ledger := newFakeLedger()
	ledger.fund("alice", 100_000)
	m, advance := newTestMarket(t, acmeCatalog, ledger)

	m.Buy("alice", "ACME", 100)
	advance(3 * time.Second)
	m.Sell("alice", "ACME", 40)

	// Net volume +60, liquidity 1000, volatility 0:
	// impact = (60/1001)*0.01, new price = 10 * (1 + impact).
	m.SimulateTick()

	want := 10.0 * (1.0 + (60.0/1001.0)*0.01)
	got, _ := m.Get("ACME")
	if math.Abs(got.Price-want) > 1e-9 {
		t.Errorf("expected price %v, got %v", want, got.Price)
	}

	hist := got.History
	if hist[len(hist)-1] != got.Price {
		t.Error("tick must append the new price to history")
	}

	// The accumulator resets after the tick: a no-trade tick is flat.
	m.SimulateTick()
	after, _ := m.Get("ACME")
	if math.Abs(after.Price-want) > 1e-9 {
		t.Errorf("second tick with no volume must not move price, got %v", after.Price)
	}
}

func TestSimulateTick_ClampAndFloor(t *testing.T) {
	// Huge volatility forces candidates far outside the clamp window.
	catalog := `{"WILD": {"price": 10.0, "volatility": 50.0, "liquidity": 5.0, "historySize": 4}}`
	m, _ := newTestMarket(t, catalog, newFakeLedger())

	for i := 0; i < 500; i++ {
		before, _ := m.Get("WILD")
		m.SimulateTick()
		after, _ := m.Get("WILD")

		if after.Price < domain.MinPrice {
			t.Fatalf("tick %d: price %v broke the 0.01 floor", i, after.Price)
		}
		maxMove := before.Price * 0.20
		if math.Abs(after.Price-before.Price) > maxMove+1e-12 {
			// The floor may legitimately shrink a downward move; it can
			// never enlarge one.
			if after.Price != domain.MinPrice {
				t.Fatalf("tick %d: move %v exceeds 20%% of %v", i, after.Price-before.Price, before.Price)
			}
		}
	}
}

func TestSetPrice(t *testing.T) {
	m, _ := newTestMarket(t, acmeCatalog, newFakeLedger())

	if err := m.SetPrice("ACME", 55.5); err != nil {
		t.Fatalf("set price failed: %v", err)
	}
	got, _ := m.Get("ACME")
	if got.Price != 55.5 {
		t.Errorf("expected 55.5, got %v", got.Price)
	}
	if got.History[len(got.History)-1] != 55.5 {
		t.Error("set price must append to history")
	}

	if err := m.SetPrice("ACME", -3.0); err != nil {
		t.Fatalf("set price failed: %v", err)
	}
	got, _ = m.Get("ACME")
	if got.Price != domain.MinPrice {
		t.Errorf("expected clamp to %v, got %v", domain.MinPrice, got.Price)
	}

	if err := m.SetPrice("NOPE", 1.0); err != domain.ErrUnknownStock {
		t.Errorf("expected ErrUnknownStock, got %v", err)
	}
}

func TestAddPosition(t *testing.T) {
	ledger := newFakeLedger()
	m, _ := newTestMarket(t, acmeCatalog, ledger)

	if err := m.AddPosition("bob", "ACME", 100, 8.0); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if len(ledger.debits) != 0 {
		t.Error("grants bypass the currency ledger")
	}
	if got := m.Positions("bob")["ACME"]; got.Quantity != 100 || got.AvgCost != 8.0 {
		t.Errorf("expected 100@8.00, got %+v", got)
	}

	if err := m.AddPosition("bob", "ACME", 100, 12.0); err != nil {
		t.Fatalf("second grant failed: %v", err)
	}
	if got := m.Positions("bob")["ACME"].AvgCost; math.Abs(got-10.0) > 1e-9 {
		t.Errorf("grants cost-average, expected 10.0, got %v", got)
	}

	if err := m.AddPosition("bob", "ACME", 0, 5.0); err != nil {
		t.Errorf("non-positive quantity is a no-op, got %v", err)
	}
	if got := m.Positions("bob")["ACME"].Quantity; got != 200 {
		t.Errorf("no-op grant must not change quantity, got %d", got)
	}

	if err := m.AddPosition("bob", "NOPE", 10, 1.0); err != domain.ErrUnknownStock {
		t.Errorf("expected ErrUnknownStock, got %v", err)
	}
}

func TestCatalogRoundTrip(t *testing.T) {
	ledger := newFakeLedger()
	ledger.fund("alice", 100_000)
	m, _ := newTestMarket(t, acmeCatalog, ledger)

	m.Buy("alice", "ACME", 100)
	m.SimulateTick()
	before, _ := m.Get("ACME")

	m.Save()
	m.Reload()

	after, ok := m.Get("ACME")
	if !ok {
		t.Fatal("ACME missing after reload")
	}
	if after.Name != "Acme Corp" {
		t.Errorf("name did not round-trip: %s", after.Name)
	}
	if math.Abs(after.Price-before.Price) > 1e-9 {
		t.Errorf("price did not round-trip: %v vs %v", after.Price, before.Price)
	}
	if len(after.History) != len(before.History) {
		t.Errorf("history length did not round-trip: %d vs %d", len(after.History), len(before.History))
	}
	// History contents are rebuilt as a flat line from the saved price.
	for i, p := range after.History {
		if math.Abs(p-after.Price) > 1e-9 {
			t.Errorf("slot %d: expected flat reload history, got %v", i, p)
		}
	}
}

func TestReload_MalformedCatalogLeavesRegistryEmpty(t *testing.T) {
	m, _ := newTestMarket(t, acmeCatalog, newFakeLedger())

	if err := os.WriteFile(filepath.Join(m.docs.Dir(), "stocks.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	m.Reload()

	if got := len(m.List()); got != 0 {
		t.Errorf("malformed catalog must yield an empty registry, got %d entries", got)
	}
}

func TestHoldingsSurviveRestart(t *testing.T) {
	ledger := newFakeLedger()
	ledger.fund("alice", 100_000)
	m, _ := newTestMarket(t, acmeCatalog, ledger)

	m.Buy("alice", "ACME", 100)

	m2 := NewMarket(testConfig(), m.docs, ledger, nil, slog.Default())
	pos := m2.Positions("alice")
	if pos["ACME"].Quantity != 100 || pos["ACME"].AvgCost != 10.0 {
		t.Errorf("expected 100@10.00 after restart, got %+v", pos["ACME"])
	}
}

func TestChangeNotifications(t *testing.T) {
	ledger := newFakeLedger()
	ledger.fund("alice", 100_000)
	m, advance := newTestMarket(t, acmeCatalog, ledger)

	var count int
	token := m.Subscribe(func() { count++ })

	m.Buy("alice", "ACME", 10)
	if count != 1 {
		t.Errorf("buy must notify once, got %d", count)
	}

	m.Buy("alice", "ACME", 10) // rejected by cooldown
	if count != 1 {
		t.Errorf("rejected trades must not notify, got %d", count)
	}

	m.SimulateTick()
	if count != 2 {
		t.Errorf("tick must notify exactly once for all instruments, got %d", count)
	}

	advance(3 * time.Second)
	m.Unsubscribe(token)
	m.Buy("alice", "ACME", 10)
	if count != 2 {
		t.Errorf("unsubscribed listener must not fire, got %d", count)
	}
}

func TestPositions_ReturnsCopy(t *testing.T) {
	ledger := newFakeLedger()
	ledger.fund("alice", 100_000)
	m, _ := newTestMarket(t, acmeCatalog, ledger)

	m.Buy("alice", "ACME", 100)

	pos := m.Positions("alice")
	h := pos["ACME"]
	h.Quantity = 1
	pos["ACME"] = h

	if got := m.Positions("alice")["ACME"].Quantity; got != 100 {
		t.Errorf("mutating the returned map must not affect the ledger, got %d", got)
	}

	if got := m.Positions("nobody"); got == nil {
		t.Error("unknown actors get an empty map, never nil")
	}
}

func TestRegistry(t *testing.T) {
	built := 0
	r := NewRegistry(func(session string) (*Market, error) {
		built++
		dir := t.TempDir()
		docs, err := storage.NewDocuments(dir, slog.Default())
		if err != nil {
			return nil, err
		}
		return NewMarket(testConfig(), docs, newFakeLedger(), nil, slog.Default()), nil
	}, slog.Default())

	m1, err := r.Get("alpha")
	if err != nil {
		t.Fatal(err)
	}
	m2, err := r.Get("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if m1 != m2 {
		t.Error("same session must resolve to the same engine")
	}
	if built != 1 {
		t.Errorf("factory must run once per session, ran %d times", built)
	}

	if _, err := r.Get("beta"); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 engines, got %d", r.Len())
	}

	r.Shutdown()
	if r.Len() != 0 {
		t.Errorf("shutdown must clear the registry, got %d", r.Len())
	}
}
