package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"marketcraft/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage is the SQLite-backed side store: the trade journal and the
// wallet accounts of the bundled currency ledger. The human-editable
// market documents live next to it as JSON files, see documents.go.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at path.
func NewStorage(path string) (*Storage, error) {
	dbDir := filepath.Dir(path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.TradeRecord{}, &domain.Account{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// ======================================================================================
// Trade Journal
// ======================================================================================

// RecordTrade appends one executed trade to the journal.
func (s *Storage) RecordTrade(rec *domain.TradeRecord) error {
	return s.db.Create(rec).Error
}

// RecentTrades returns the newest trades, most recent first.
func (s *Storage) RecentTrades(limit int) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	err := s.db.Order("id DESC").Limit(limit).Find(&trades).Error
	return trades, err
}

// TradesByActor returns every journaled trade for one actor, oldest first.
func (s *Storage) TradesByActor(actor string) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	err := s.db.Where("actor = ?", actor).Order("id ASC").Find(&trades).Error
	return trades, err
}

// ======================================================================================
// Wallet Accounts
// ======================================================================================

// EnsureAccount creates the actor's account with the starting balance if
// it does not exist yet.
func (s *Storage) EnsureAccount(actor string, starting int64) error {
	acc := domain.Account{Actor: actor, Balance: starting, UpdatedAt: time.Now()}
	return s.db.Where(domain.Account{Actor: actor}).FirstOrCreate(&acc).Error
}

// Debit atomically removes amount from the actor's balance. Returns false
// without mutating anything when the balance is insufficient.
func (s *Storage) Debit(actor string, amount int64) (bool, error) {
	res := s.db.Model(&domain.Account{}).
		Where("actor = ? AND balance >= ?", actor, amount).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Credit adds amount to the actor's balance.
func (s *Storage) Credit(actor string, amount int64) error {
	res := s.db.Model(&domain.Account{}).
		Where("actor = ?", actor).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Balance returns the actor's current balance, zero when no account exists.
func (s *Storage) Balance(actor string) (int64, error) {
	var acc domain.Account
	err := s.db.First(&acc, "actor = ?", actor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return acc.Balance, err
}
