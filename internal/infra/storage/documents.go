package storage

import (
	_ "embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"marketcraft/internal/domain"
)

//go:embed default_stocks.json
var defaultCatalog []byte

// Catalog field defaults applied when a record omits them. The catalog
// document is human-editable, so every field is optional.
const (
	defaultPrice       = 1.0
	defaultVolatility  = 0.01
	defaultLiquidity   = 1000.0
	defaultHistorySize = 9
)

// catalogRecord mirrors one catalog document entry. Pointer fields
// distinguish "absent" from zero; unknown extra fields are ignored.
type catalogRecord struct {
	Name        *string  `json:"name,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Volatility  *float64 `json:"volatility,omitempty"`
	Liquidity   *float64 `json:"liquidity,omitempty"`
	HistorySize *int     `json:"historySize,omitempty"`
}

type savedRecord struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Volatility  float64 `json:"volatility"`
	Liquidity   float64 `json:"liquidity"`
	HistorySize int     `json:"historySize"`
}

// Documents reads and writes the two durable market documents: the stock
// catalog and the holdings ledger. Both are rewritten in full on every
// save; history contents are deliberately not persisted (only the length),
// the ring is rebuilt as a flat line from the saved price on reload.
type Documents struct {
	catalogPath  string
	holdingsPath string
	log          *slog.Logger
}

// NewDocuments prepares the document directory and seeds the catalog from
// the bundled default on first run.
func NewDocuments(dir string, log *slog.Logger) (*Documents, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	d := &Documents{
		catalogPath:  filepath.Join(dir, "stocks.json"),
		holdingsPath: filepath.Join(dir, "holdings.json"),
		log:          log,
	}
	if _, err := os.Stat(d.catalogPath); errors.Is(err, fs.ErrNotExist) {
		d.seedDefault()
	}
	return d, nil
}

// Dir returns the directory holding both documents.
func (d *Documents) Dir() string {
	return filepath.Dir(d.catalogPath)
}

func (d *Documents) seedDefault() {
	if len(defaultCatalog) == 0 {
		d.log.Warn("bundled default catalog is empty, creating empty catalog",
			slog.String("path", d.catalogPath))
		if err := os.WriteFile(d.catalogPath, []byte("{}\n"), 0644); err != nil {
			d.log.Error("failed to create empty catalog", slog.Any("error", err))
		}
		return
	}
	if err := os.WriteFile(d.catalogPath, defaultCatalog, 0644); err != nil {
		d.log.Error("failed to seed catalog from bundled default", slog.Any("error", err))
		return
	}
	d.log.Info("created catalog from bundled default", slog.String("path", d.catalogPath))
}

// LoadCatalog reads the catalog document into stock entries. A missing
// document yields an empty catalog; a malformed one returns an error so
// the caller ends up with an empty registry rather than a partial one.
func (d *Documents) LoadCatalog() (map[string]*domain.Stock, error) {
	stocks := make(map[string]*domain.Stock)

	data, err := os.ReadFile(d.catalogPath)
	if errors.Is(err, fs.ErrNotExist) {
		return stocks, nil
	}
	if err != nil {
		return stocks, err
	}

	var root map[string]catalogRecord
	if err := json.Unmarshal(data, &root); err != nil {
		return make(map[string]*domain.Stock), err
	}

	for id, rec := range root {
		price := defaultPrice
		if rec.Price != nil {
			price = *rec.Price
		}
		volatility := defaultVolatility
		if rec.Volatility != nil {
			volatility = *rec.Volatility
		}
		liquidity := defaultLiquidity
		if rec.Liquidity != nil {
			liquidity = *rec.Liquidity
		}
		historySize := defaultHistorySize
		if rec.HistorySize != nil {
			historySize = *rec.HistorySize
		}
		if historySize < 0 {
			d.log.Warn("negative historySize in catalog record, using default",
				slog.String("stock", id), slog.Int("historySize", historySize))
			historySize = defaultHistorySize
		}
		name := id
		if rec.Name != nil {
			name = *rec.Name
		}
		stocks[id] = domain.NewStock(id, name, price, volatility, liquidity, historySize)
	}
	return stocks, nil
}

// SaveCatalog rewrites the catalog document in full.
func (d *Documents) SaveCatalog(stocks map[string]*domain.Stock) error {
	root := make(map[string]savedRecord, len(stocks))
	for id, s := range stocks {
		root[id] = savedRecord{
			Name:        s.Name,
			Price:       s.Price,
			Volatility:  s.Volatility,
			Liquidity:   s.Liquidity,
			HistorySize: s.HistorySize(),
		}
	}
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(d.catalogPath, data, 0644)
}

// LoadHoldings reads the holdings document. The document is parsed
// entry-by-entry so one malformed actor record is skipped with a warning
// instead of discarding everyone else's positions. Zero-quantity holdings
// are dropped on load.
func (d *Documents) LoadHoldings() (map[string]map[string]*domain.Holding, error) {
	holdings := make(map[string]map[string]*domain.Holding)

	data, err := os.ReadFile(d.holdingsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return holdings, nil
	}
	if err != nil {
		return holdings, err
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return holdings, err
	}

	for actor, raw := range root {
		var m map[string]*domain.Holding
		if err := json.Unmarshal(raw, &m); err != nil {
			d.log.Warn("failed to parse holdings entry, skipping",
				slog.String("actor", actor), slog.Any("error", err))
			continue
		}
		positions := make(map[string]*domain.Holding)
		for stockID, h := range m {
			if h == nil || h.Quantity <= 0 {
				continue
			}
			positions[stockID] = h
		}
		holdings[actor] = positions
	}
	return holdings, nil
}

// SaveHoldings rewrites the holdings document in full.
func (d *Documents) SaveHoldings(holdings map[string]map[string]*domain.Holding) error {
	data, err := json.MarshalIndent(holdings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(d.holdingsPath, data, 0644)
}
