// Package registry implements the canonical beacon deposit registry the
// pools forward validator deposits to. It mirrors the deposit contract's
// intake checks: parameter lengths, gwei granularity, the minimum deposit
// amount, and recomputation of the deposit data root from the submitted
// parameters.
package registry

import (
	"bytes"
	"errors"
	"sync"

	"github.com/eth2030/stakepool/bank"
	"github.com/eth2030/stakepool/core/types"
	"github.com/eth2030/stakepool/log"
	"github.com/eth2030/stakepool/ssz"
	"github.com/holiman/uint256"
)

const (
	// PubkeyLength is the length of a BLS12-381 public key.
	PubkeyLength = 48

	// WithdrawalCredentialsLength is the length of withdrawal credentials.
	WithdrawalCredentialsLength = 32

	// SignatureLength is the length of a BLS12-381 signature.
	SignatureLength = 96

	// MinDepositAmountGwei is the minimum accepted deposit (1 ETH).
	MinDepositAmountGwei uint64 = 1_000_000_000
)

// weiPerGwei converts between the ledger's wei amounts and the registry's
// gwei granularity.
var weiPerGwei = uint256.NewInt(1_000_000_000)

// Registry errors.
var (
	ErrInvalidPubkeyLength      = errors.New("registry: invalid pubkey length")
	ErrInvalidCredentialsLength = errors.New("registry: invalid withdrawal credentials length")
	ErrInvalidSignatureLength   = errors.New("registry: invalid signature length")
	ErrDepositTooSmall          = errors.New("registry: deposit below minimum")
	ErrNotGweiMultiple          = errors.New("registry: deposit not a gwei multiple")
	ErrRootMismatch             = errors.New("registry: reconstructed deposit data root mismatch")
)

// Deposit is one accepted validator deposit, in intake order.
type Deposit struct {
	Pubkey                []byte
	WithdrawalCredentials []byte
	AmountGwei            uint64
	Signature             []byte
	Index                 uint64
}

// BeaconDepositRegistry accepts validator deposits and keeps them in
// intake order. It is safe for concurrent use.
type BeaconDepositRegistry struct {
	mu       sync.Mutex
	ledger   *bank.Ledger
	addr     types.Address
	logger   *log.Logger
	deposits []*Deposit
}

// New creates a registry holding funds at the given ledger account.
func New(ledger *bank.Ledger, addr types.Address, logger *log.Logger) *BeaconDepositRegistry {
	if logger == nil {
		logger = log.Default()
	}
	return &BeaconDepositRegistry{
		ledger: ledger,
		addr:   addr,
		logger: logger.Module("registry"),
	}
}

// Address returns the registry's ledger account.
func (r *BeaconDepositRegistry) Address() types.Address { return r.addr }

// Deposit validates and accepts a validator deposit, moving amount wei
// from the submitting account into the registry. The deposit data root is
// recomputed from the submitted parameters and must match; a mismatch
// rejects the deposit with no effect.
func (r *BeaconDepositRegistry) Deposit(from types.Address, pubkey, withdrawalCredentials, signature []byte, depositDataRoot types.Hash, amount *uint256.Int) error {
	if len(pubkey) != PubkeyLength {
		return ErrInvalidPubkeyLength
	}
	if len(withdrawalCredentials) != WithdrawalCredentialsLength {
		return ErrInvalidCredentialsLength
	}
	if len(signature) != SignatureLength {
		return ErrInvalidSignatureLength
	}

	gwei := new(uint256.Int)
	rem := new(uint256.Int)
	gwei.DivMod(amount, weiPerGwei, rem)
	if !rem.IsZero() {
		return ErrNotGweiMultiple
	}
	amountGwei := gwei.Uint64()
	if amountGwei < MinDepositAmountGwei {
		return ErrDepositTooSmall
	}

	var wc [32]byte
	copy(wc[:], withdrawalCredentials)
	root := ssz.HashTreeRootContainer(
		ssz.HashTreeRootByteVector(pubkey),
		wc,
		ssz.HashTreeRootUint64(amountGwei),
		ssz.HashTreeRootByteVector(signature),
	)
	if !bytes.Equal(root[:], depositDataRoot.Bytes()) {
		return ErrRootMismatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ledger.Transfer(from, r.addr, amount); err != nil {
		return err
	}

	d := &Deposit{
		Pubkey:                append([]byte(nil), pubkey...),
		WithdrawalCredentials: append([]byte(nil), withdrawalCredentials...),
		AmountGwei:            amountGwei,
		Signature:             append([]byte(nil), signature...),
		Index:                 uint64(len(r.deposits)),
	}
	r.deposits = append(r.deposits, d)

	r.logger.Info("deposit accepted",
		"from", from.Hex(),
		"index", d.Index,
		"amountGwei", amountGwei,
	)
	return nil
}

// Count returns the number of accepted deposits.
func (r *BeaconDepositRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deposits)
}

// DepositAt returns the accepted deposit at the given index, or nil.
func (r *BeaconDepositRegistry) DepositAt(i int) *Deposit {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.deposits) {
		return nil
	}
	return r.deposits[i]
}
