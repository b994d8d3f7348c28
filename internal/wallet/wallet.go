package wallet

import (
	"log/slog"

	"marketcraft/internal/infra/storage"
)

// Wallet is the bundled currency ledger: SQLite-backed accounts opened on
// first use with a configurable starting balance. It satisfies
// domain.CurrencyLedger so the engine stays decoupled from the concrete
// money service behind it.
type Wallet struct {
	store    *storage.Storage
	starting int64
	log      *slog.Logger
}

func New(store *storage.Storage, starting int64, log *slog.Logger) *Wallet {
	if log == nil {
		log = slog.Default()
	}
	return &Wallet{store: store, starting: starting, log: log}
}

// RemoveMoney debits amount from the actor. Returns false on insufficient
// funds with no partial debit applied.
func (w *Wallet) RemoveMoney(actor string, amount int64) bool {
	if amount < 0 {
		return false
	}
	if err := w.store.EnsureAccount(actor, w.starting); err != nil {
		w.log.Error("wallet account lookup failed", slog.String("actor", actor), slog.Any("error", err))
		return false
	}
	ok, err := w.store.Debit(actor, amount)
	if err != nil {
		w.log.Error("wallet debit failed", slog.String("actor", actor), slog.Any("error", err))
		return false
	}
	return ok
}

// AddMoney credits amount to the actor. Credits always succeed from the
// caller's point of view; storage failures are logged.
func (w *Wallet) AddMoney(actor string, amount int64) {
	if amount < 0 {
		return
	}
	if err := w.store.EnsureAccount(actor, w.starting); err != nil {
		w.log.Error("wallet account lookup failed", slog.String("actor", actor), slog.Any("error", err))
		return
	}
	if err := w.store.Credit(actor, amount); err != nil {
		w.log.Error("wallet credit failed", slog.String("actor", actor), slog.Any("error", err))
	}
}

// Balance returns the actor's balance, the starting balance for actors
// that have never traded.
func (w *Wallet) Balance(actor string) int64 {
	if err := w.store.EnsureAccount(actor, w.starting); err != nil {
		w.log.Error("wallet account lookup failed", slog.String("actor", actor), slog.Any("error", err))
		return 0
	}
	balance, err := w.store.Balance(actor)
	if err != nil {
		w.log.Error("wallet balance read failed", slog.String("actor", actor), slog.Any("error", err))
		return 0
	}
	return balance
}
