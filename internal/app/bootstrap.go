package app

import (
	"log/slog"
	"os"
	"path/filepath"

	"marketcraft/internal/engine"
	"marketcraft/internal/infra"
	"marketcraft/internal/infra/storage"
	"marketcraft/internal/wallet"
)

// StarterBalance is the wallet balance granted to an actor on first trade.
const StarterBalance = int64(25_000)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config   *infra.Config
	Storage  *storage.Storage
	Wallet   *wallet.Wallet
	Registry *engine.Registry
	Market   *engine.Market
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration, installs the logger, opens storage and
// builds the default session's market engine.
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Paths.DataDir == "" {
		cfg.Paths.DataDir = defaultDataDir()
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	store, err := storage.NewStorage(filepath.Join(cfg.Paths.DataDir, "marketcraft.db"))
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("journal and wallet storage initialized")

	b.Wallet = wallet.New(store, StarterBalance, logger)

	engineCfg := engine.Config{
		TickInterval:  cfg.TickInterval(),
		TradeCooldown: cfg.TradeCooldown(),
		MaxTradeQty:   cfg.Market.MaxTradeQty,
		ImpactScale:   cfg.Market.ImpactScale,
	}
	b.Registry = engine.NewRegistry(func(session string) (*engine.Market, error) {
		docs, err := storage.NewDocuments(filepath.Join(cfg.Paths.DataDir, session), logger)
		if err != nil {
			return nil, err
		}
		return engine.NewMarket(engineCfg, docs, b.Wallet, store, logger), nil
	}, logger)

	market, err := b.Registry.Get("default")
	if err != nil {
		return err
	}
	b.Market = market
	slog.Info("market engine ready", slog.Int("stocks", len(market.List())))

	return nil
}

func defaultDataDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(configDir, "marketcraft")
}
