// Package bank implements the single serialized native-value ledger the
// deposit pooling system runs on. Every movement of value between user
// accounts, pools, the factory, and the beacon deposit registry goes
// through a Ledger; each operation is atomic with respect to all others.
package bank

import (
	"errors"
	"sync"

	"github.com/eth2030/stakepool/core/types"
	"github.com/holiman/uint256"
)

// Ledger errors.
var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrNilAmount           = errors.New("bank: nil amount")
)

// Ledger maps accounts to native-value balances in wei. The zero balance is
// implicit: accounts never seen before hold zero.
type Ledger struct {
	mu       sync.RWMutex
	balances map[types.Address]*uint256.Int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[types.Address]*uint256.Int),
	}
}

// Mint credits the account with new value. Used to seed genesis balances.
func (l *Ledger) Mint(addr types.Address, amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, amount)
}

// BalanceOf returns a copy of the account's balance.
func (l *Ledger) BalanceOf(addr types.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.balances[addr]; ok {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

// Transfer moves amount from one account to another. A zero-amount
// transfer succeeds without effect. The transfer is atomic: on error the
// ledger is unchanged.
func (l *Ledger) Transfer(from, to types.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	if amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.balances[from]
	if !ok || b.Lt(amount) {
		return ErrInsufficientBalance
	}
	b.Sub(b, amount)
	l.credit(to, amount)
	return nil
}

// credit adds amount to an account. Caller holds the lock.
func (l *Ledger) credit(addr types.Address, amount *uint256.Int) {
	if b, ok := l.balances[addr]; ok {
		b.Add(b, amount)
		return
	}
	l.balances[addr] = new(uint256.Int).Set(amount)
}
