// Package factory deploys and funds validator funding pools. Pool
// addresses are deterministic: they derive from the factory address, a
// caller-supplied salt, and the canonical pool implementation, so callers
// can compute them before deployment. The factory also carries the global
// operator address and commission rate that every pool copies at
// creation, and can fund many pools in a single atomic batch.
package factory

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eth2030/stakepool/bank"
	"github.com/eth2030/stakepool/core/types"
	"github.com/eth2030/stakepool/events"
	"github.com/eth2030/stakepool/log"
	"github.com/eth2030/stakepool/pool"
	"github.com/holiman/uint256"
)

// DefaultMinimumDeposit is the smallest funding-room a pool must have for
// batch funding to consider it without force: 0.1 ETH in wei.
var DefaultMinimumDeposit = uint256.MustFromDecimal("100000000000000000")

// Factory errors.
var (
	ErrNotOperator     = errors.New("factory: caller is not the operator")
	ErrZeroAddress     = errors.New("factory: zero address")
	ErrCommissionRate  = errors.New("factory: commission rate exceeds scale")
	ErrSaltTaken       = errors.New("factory: contract already deployed for salt")
	ErrUnknownContract = errors.New("factory: no contract deployed for salt")
	ErrNilAmount       = errors.New("factory: nil amount")
	ErrNoCommitments   = errors.New("factory: no commitments supplied")
	ErrNoLedger        = errors.New("factory: config requires a ledger")
	ErrNoDeposits      = errors.New("factory: config requires a deposit contract")
)

// Config carries the factory's construction parameters.
type Config struct {
	// Ledger is the native-value ledger shared with the pools.
	Ledger *bank.Ledger

	// Address is the factory's own account, part of every derived pool
	// address.
	Address types.Address

	// Operator is the initial operator address, copied into pools at
	// creation.
	Operator types.Address

	// CommissionRate is the initial commission rate in parts per
	// million, copied into pools at creation.
	CommissionRate uint64

	// MinimumDeposit overrides DefaultMinimumDeposit. Optional.
	MinimumDeposit *uint256.Int

	// DepositContract is handed to every created pool.
	DepositContract pool.DepositContract

	// Bus receives factory and pool events. Optional.
	Bus *events.Bus

	// Logger for structured logging. Optional.
	Logger *log.Logger

	// MaxSecondsInExitQueue is handed to every created pool. Zero
	// selects the pool default.
	MaxSecondsInExitQueue uint64

	// Now overrides the clock handed to created pools. Optional.
	Now func() time.Time

	// Implementation overrides the canonical pool implementation
	// address baked into derived pool addresses. Zero derives one from
	// the factory address.
	Implementation types.Address
}

// Factory deploys pools at deterministic addresses and funds them in
// batches. All exported methods are safe for concurrent use.
type Factory struct {
	mu sync.Mutex

	ledger          *bank.Ledger
	addr            types.Address
	operator        types.Address
	commissionRate  uint64
	minimumDeposit  *uint256.Int
	depositContract pool.DepositContract
	bus             *events.Bus
	logger          *log.Logger

	maxSecondsInExitQueue uint64
	now                   func() time.Time

	implementation    types.Address
	proxyInitCodeHash types.Hash

	pools  map[types.Address]*pool.Pool
	bySalt map[types.Hash]types.Address
}

// New creates a factory.
func New(cfg Config) (*Factory, error) {
	if cfg.Ledger == nil {
		return nil, ErrNoLedger
	}
	if cfg.DepositContract == nil {
		return nil, ErrNoDeposits
	}
	if cfg.Operator.IsZero() {
		return nil, ErrZeroAddress
	}
	if cfg.CommissionRate > pool.CommissionRateScale {
		return nil, ErrCommissionRate
	}

	minDeposit := cfg.MinimumDeposit
	if minDeposit == nil {
		minDeposit = new(uint256.Int).Set(DefaultMinimumDeposit)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	impl := cfg.Implementation
	if impl.IsZero() {
		impl = deriveImplementationAddress(cfg.Address)
	}

	f := &Factory{
		ledger:                cfg.Ledger,
		addr:                  cfg.Address,
		operator:              cfg.Operator,
		commissionRate:        cfg.CommissionRate,
		minimumDeposit:        minDeposit,
		depositContract:       cfg.DepositContract,
		bus:                   cfg.Bus,
		logger:                logger.Module("factory"),
		maxSecondsInExitQueue: cfg.MaxSecondsInExitQueue,
		now:                   cfg.Now,
		implementation:        impl,
		proxyInitCodeHash:     proxyInitCodeHash(impl),
		pools:                 make(map[types.Address]*pool.Pool),
		bySalt:                make(map[types.Hash]types.Address),
	}
	f.logger.Info("factory initialized",
		"operator", cfg.Operator.Hex(),
		"commissionRate", cfg.CommissionRate,
		"implementation", impl.Hex(),
	)
	return f, nil
}

// OperatorAddress returns the current operator address.
func (f *Factory) OperatorAddress() types.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.operator
}

// CommissionRate returns the current commission rate in parts per million.
func (f *Factory) CommissionRate() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commissionRate
}

// MinimumDeposit returns the batch-funding minimum deposit threshold.
func (f *Factory) MinimumDeposit() *uint256.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(uint256.Int).Set(f.minimumDeposit)
}

// Implementation returns the canonical pool implementation address.
func (f *Factory) Implementation() types.Address { return f.implementation }

// Pool returns the deployed pool at the given address, or nil.
func (f *Factory) Pool(addr types.Address) *pool.Pool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pools[addr]
}

// PoolBySalt returns the pool deployed for the given salt, or nil.
func (f *Factory) PoolBySalt(salt types.Hash) *pool.Pool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if addr, ok := f.bySalt[salt]; ok {
		return f.pools[addr]
	}
	return nil
}

// ChangeOperatorAddress changes the operator copied into pools created
// from now on. Current operator only; the zero address is rejected.
// Already-created pools are unaffected.
func (f *Factory) ChangeOperatorAddress(caller, newOperator types.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if caller != f.operator {
		return ErrNotOperator
	}
	if newOperator.IsZero() {
		return ErrZeroAddress
	}
	f.operator = newOperator
	f.logger.Info("operator changed", "operator", newOperator.Hex())
	return nil
}

// ChangeCommissionRate changes the commission rate copied into pools
// created from now on. Current operator only; the rate must not exceed
// the commission rate scale. Already-created pools are unaffected.
func (f *Factory) ChangeCommissionRate(caller types.Address, rate uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if caller != f.operator {
		return ErrNotOperator
	}
	if rate > pool.CommissionRateScale {
		return ErrCommissionRate
	}
	f.commissionRate = rate
	f.logger.Info("commission rate changed", "rate", rate)
	return nil
}

// ChangeMinimumDeposit changes the batch-funding minimum deposit
// threshold. Current operator only.
func (f *Factory) ChangeMinimumDeposit(caller types.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if caller != f.operator {
		return ErrNotOperator
	}
	f.minimumDeposit = new(uint256.Int).Set(amount)
	return nil
}

// CreateContract deploys a pool at the address derived from salt,
// initialized with the current operator address, commission rate, and the
// given commitment. A non-zero value becomes the caller's initial deposit
// into the new pool, with the usual room clamp. Re-using a salt fails and
// leaves the prior deployment untouched.
func (f *Factory) CreateContract(caller types.Address, salt, commitment types.Hash, value *uint256.Int) (*pool.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createContract(caller, salt, commitment, value)
}

// CreateMultipleContracts deploys one pool per commitment, assigning
// salts baseSalt, baseSalt+1, baseSalt+2, ... in order. Salt collisions
// are checked for the whole batch up front, so a collision anywhere
// deploys nothing. A non-zero value becomes the caller's initial deposit
// into the first pool.
func (f *Factory) CreateMultipleContracts(caller types.Address, baseSalt types.Hash, commitments []types.Hash, value *uint256.Int) ([]*pool.Pool, error) {
	if len(commitments) == 0 {
		return nil, ErrNoCommitments
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	salts := make([]types.Hash, len(commitments))
	counter := new(uint256.Int).SetBytes(baseSalt.Bytes())
	for i := range commitments {
		salts[i] = types.Hash(counter.Bytes32())
		if _, taken := f.bySalt[salts[i]]; taken {
			return nil, fmt.Errorf("%w: %s", ErrSaltTaken, salts[i])
		}
		counter.AddUint64(counter, 1)
	}

	pools := make([]*pool.Pool, len(commitments))
	for i, commitment := range commitments {
		v := uint256.NewInt(0)
		if i == 0 && value != nil {
			v = value
		}
		p, err := f.createContract(caller, salts[i], commitment, v)
		if err != nil {
			return nil, err
		}
		pools[i] = p
	}
	return pools, nil
}

// createContract deploys a single pool. Caller holds the factory lock.
func (f *Factory) createContract(caller types.Address, salt, commitment types.Hash, value *uint256.Int) (*pool.Pool, error) {
	addr := f.poolAddress(salt)
	if _, ok := f.pools[addr]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSaltTaken, salt)
	}

	p, err := pool.New(pool.Config{
		Address:               addr,
		Operator:              f.operator,
		CommissionRate:        f.commissionRate,
		Commitment:            commitment,
		Ledger:                f.ledger,
		DepositContract:       f.depositContract,
		Bus:                   f.bus,
		Logger:                f.logger,
		MaxSecondsInExitQueue: f.maxSecondsInExitQueue,
		Now:                   f.now,
	})
	if err != nil {
		return nil, err
	}

	f.pools[addr] = p
	f.bySalt[salt] = addr

	// Initial funding is part of the creation: on failure the deployment
	// is undone and no creation is announced to subscribers.
	if value != nil && !value.IsZero() {
		if _, err := p.DepositOnBehalfOf(caller, caller, value); err != nil {
			delete(f.pools, addr)
			delete(f.bySalt, salt)
			return nil, err
		}
	}

	f.logger.Info("contract created", "salt", salt.Hex(), "address", addr.Hex())
	if f.bus != nil {
		f.bus.Publish(events.EventContractCreated, f.addr, events.ContractCreated{
			Salt: salt,
		})
	}
	return p, nil
}

// FundMultipleContracts distributes value across the pools derived from
// salts, in array order, through each pool's standard deposit entry
// point. Pools no longer accepting deposits are skipped, as are pools
// whose funding room is below the minimum deposit threshold unless force
// is true. The whole batch is validated before any value moves: an
// unknown salt or an underfunded caller aborts the batch with no effect.
// Unspent value never leaves the caller. Returns the total amount
// deposited.
func (f *Factory) FundMultipleContracts(caller types.Address, salts []types.Hash, force bool, value *uint256.Int) (*uint256.Int, error) {
	if value == nil {
		return nil, ErrNilAmount
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Validation pass: resolve every salt and decide per-pool plans so
	// the execution pass cannot fail partway.
	type plan struct {
		p      *pool.Pool
		amount *uint256.Int
	}
	if f.ledger.BalanceOf(caller).Lt(value) {
		return nil, bank.ErrInsufficientBalance
	}

	plans := make([]plan, 0, len(salts))
	remaining := new(uint256.Int).Set(value)
	for _, salt := range salts {
		addr, ok := f.bySalt[salt]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownContract, salt)
		}
		p := f.pools[addr]
		if p.State() != pool.StatePreDeposit {
			continue
		}

		room := new(uint256.Int)
		total := p.TotalDeposits()
		if total.Lt(pool.FullDeposit) {
			room.Sub(pool.FullDeposit, total)
		}
		if !force && room.Lt(f.minimumDeposit) {
			continue
		}

		amount := new(uint256.Int).Set(remaining)
		if amount.Gt(room) {
			amount.Set(room)
		}
		if amount.IsZero() {
			continue
		}
		plans = append(plans, plan{p: p, amount: amount})
		remaining.Sub(remaining, amount)
		if remaining.IsZero() {
			break
		}
	}

	spent := new(uint256.Int)
	for _, pl := range plans {
		accepted, err := pl.p.DepositOnBehalfOf(caller, caller, pl.amount)
		if err != nil {
			// Pool state is re-verified here because pools take direct
			// calls outside the factory lock; one that left PreDeposit
			// since validation is skipped and its share stays with the
			// caller.
			if errors.Is(err, pool.ErrWrongState) {
				continue
			}
			return nil, err
		}
		spent.Add(spent, accepted)
	}

	f.logger.Info("batch funding complete",
		"pools", len(plans),
		"spent", spent.String(),
		"refunded", remaining.String(),
	)
	return spent, nil
}
