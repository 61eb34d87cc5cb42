// Package pool implements the validator funding pool: a deposit ledger
// and state machine that collects third-party capital up to the 32 ETH
// validator deposit, activates the validator against an operator
// commitment, and after exit distributes the realized balance back to
// depositors proportionally, minus the operator commission.
//
// Every state-changing operation is atomic under the pool mutex; no
// operation ever leaves a partial mutation behind on error.
package pool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eth2030/stakepool/bank"
	"github.com/eth2030/stakepool/core/types"
	"github.com/eth2030/stakepool/events"
	"github.com/eth2030/stakepool/log"
	"github.com/holiman/uint256"
)

const (
	// CommissionRateScale is the fixed-point scale of commission rates:
	// rates are expressed in parts per million of realized profit.
	CommissionRateScale uint64 = 1_000_000

	// DefaultMaxSecondsInExitQueue bounds how long after the exit date
	// only the operator may end service. Past exitDate plus this grace
	// period, any account may end service.
	DefaultMaxSecondsInExitQueue uint64 = 360 * 24 * 3600

	// PubkeyLength is the length of a BLS12-381 public key.
	PubkeyLength = 48

	// SignatureLength is the length of a BLS12-381 signature.
	SignatureLength = 96
)

// FullDeposit is the validator deposit amount: 32 ETH in wei.
var FullDeposit = uint256.MustFromDecimal("32000000000000000000")

// State is the lifecycle state of a pool. States are monotonic; a pool
// never regresses.
type State uint8

const (
	// StateNotInitialized: allocated but not yet configured.
	StateNotInitialized State = iota
	// StatePreDeposit: accepting deposits, validator not yet created.
	StatePreDeposit
	// StatePostDeposit: validator active, funds at stake, ledger frozen.
	StatePostDeposit
	// StateWithdrawn: service ended, depositors claim proceeds.
	StateWithdrawn
)

// String returns the human-readable name of a State.
func (s State) String() string {
	switch s {
	case StateNotInitialized:
		return "notInitialized"
	case StatePreDeposit:
		return "preDeposit"
	case StatePostDeposit:
		return "postDeposit"
	case StateWithdrawn:
		return "withdrawn"
	default:
		return "unknown"
	}
}

// Pool errors.
var (
	ErrNotOperator           = errors.New("pool: caller is not the operator")
	ErrWrongState            = errors.New("pool: operation not allowed in current state")
	ErrNotEnoughBalance      = errors.New("pool: balance below full deposit")
	ErrEmptyBalance          = errors.New("pool: balance is zero")
	ErrCommitmentMismatch    = errors.New("pool: commitment mismatch")
	ErrTooEarly              = errors.New("pool: exit conditions not met yet")
	ErrInsufficientDeposit   = errors.New("pool: withdrawal amount exceeds deposit")
	ErrInsufficientAllowance = errors.New("pool: amount exceeds allowance")
	ErrNilAmount             = errors.New("pool: nil amount")
	ErrZeroAddress           = errors.New("pool: zero address")
)

// DepositContract is the canonical beacon deposit registry interface the
// pool forwards the validator deposit to at activation.
type DepositContract interface {
	// Deposit moves amount wei from the given account into the registry
	// together with the validator parameters. The call either fully
	// succeeds or leaves no effect.
	Deposit(from types.Address, pubkey []byte, withdrawalCredentials []byte, signature []byte, depositDataRoot types.Hash, amount *uint256.Int) error
}

// Config carries the creation-time parameters of a pool. Operator address
// and commission rate are value-copied from the factory at creation and
// immutable for the pool's lifetime.
type Config struct {
	// Address is the pool's own account on the ledger.
	Address types.Address

	// Operator may create the validator and end service at exit date.
	Operator types.Address

	// CommissionRate is the operator's share of realized profit, in
	// parts per million. Must not exceed CommissionRateScale.
	CommissionRate uint64

	// Commitment is the operator commitment hash fixed at creation.
	Commitment types.Hash

	// Ledger is the native-value ledger the pool lives on.
	Ledger *bank.Ledger

	// DepositContract receives the 32 ETH validator deposit.
	DepositContract DepositContract

	// Bus receives the pool's observable events. Optional.
	Bus *events.Bus

	// Logger for structured logging. Optional.
	Logger *log.Logger

	// MaxSecondsInExitQueue overrides the exit queue grace period.
	// Zero selects DefaultMaxSecondsInExitQueue.
	MaxSecondsInExitQueue uint64

	// Now overrides the clock used for exit timing guards. Optional.
	Now func() time.Time
}

// allowanceKey identifies one (owner, spender) allowance entry.
type allowanceKey struct {
	owner   types.Address
	spender types.Address
}

// Pool is one validator funding pool. All exported methods are safe for
// concurrent use.
type Pool struct {
	mu sync.Mutex

	addr           types.Address
	operator       types.Address
	commissionRate uint64
	commitment     types.Hash
	exitDate       uint64
	state          State

	ledger          *bank.Ledger
	depositContract DepositContract
	bus             *events.Bus
	logger          *log.Logger

	maxSecondsInExitQueue uint64
	now                   func() time.Time

	deposits            map[types.Address]*uint256.Int
	totalDeposits       uint256.Int
	withdrawalAllowance map[allowanceKey]*uint256.Int
	transferAllowance   map[allowanceKey]*uint256.Int
	operatorClaimable   uint256.Int
}

// Config validation errors.
var (
	ErrNoLedger          = errors.New("pool: config requires a ledger")
	ErrNoDepositContract = errors.New("pool: config requires a deposit contract")
	ErrCommissionRate    = errors.New("pool: commission rate exceeds scale")
)

// New initializes a pool in the PreDeposit state. The operator address,
// commission rate, and commitment are fixed for the pool's lifetime.
func New(cfg Config) (*Pool, error) {
	if cfg.Ledger == nil {
		return nil, ErrNoLedger
	}
	if cfg.DepositContract == nil {
		return nil, ErrNoDepositContract
	}
	if cfg.Operator.IsZero() {
		return nil, ErrZeroAddress
	}
	if cfg.CommissionRate > CommissionRateScale {
		return nil, ErrCommissionRate
	}

	maxQueue := cfg.MaxSecondsInExitQueue
	if maxQueue == 0 {
		maxQueue = DefaultMaxSecondsInExitQueue
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	p := &Pool{
		addr:                  cfg.Address,
		operator:              cfg.Operator,
		commissionRate:        cfg.CommissionRate,
		commitment:            cfg.Commitment,
		state:                 StatePreDeposit,
		ledger:                cfg.Ledger,
		depositContract:       cfg.DepositContract,
		bus:                   cfg.Bus,
		logger:                logger.Module("pool").With("pool", cfg.Address.Hex()),
		maxSecondsInExitQueue: maxQueue,
		now:                   now,
		deposits:              make(map[types.Address]*uint256.Int),
		withdrawalAllowance:   make(map[allowanceKey]*uint256.Int),
		transferAllowance:     make(map[allowanceKey]*uint256.Int),
	}
	p.logger.Info("pool initialized",
		"operator", cfg.Operator.Hex(),
		"commissionRate", cfg.CommissionRate,
	)
	return p, nil
}

// Address returns the pool's account address.
func (p *Pool) Address() types.Address { return p.addr }

// Operator returns the pool's operator address.
func (p *Pool) Operator() types.Address { return p.operator }

// CommissionRate returns the pool's commission rate in parts per million.
func (p *Pool) CommissionRate() uint64 { return p.commissionRate }

// Commitment returns the operator commitment hash.
func (p *Pool) Commitment() types.Hash { return p.commitment }

// State returns the pool's current lifecycle state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ExitDate returns the validator exit date (unix seconds), zero before
// activation.
func (p *Pool) ExitDate() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitDate
}

// Balance returns the pool account's ledger balance in wei.
func (p *Pool) Balance() *uint256.Int {
	return p.ledger.BalanceOf(p.addr)
}

// DepositOf returns the deposit ledger entry of an account.
func (p *Pool) DepositOf(account types.Address) *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.deposits[account]; ok {
		return new(uint256.Int).Set(d)
	}
	return uint256.NewInt(0)
}

// TotalDeposits returns the sum of all deposit ledger entries.
func (p *Pool) TotalDeposits() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(uint256.Int).Set(&p.totalDeposits)
}

// OperatorClaimable returns the commission still claimable by the
// operator.
func (p *Pool) OperatorClaimable() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(uint256.Int).Set(&p.operatorClaimable)
}

// WithdrawalAllowance returns the remaining withdrawal allowance granted
// by owner to spender.
func (p *Pool) WithdrawalAllowance(owner, spender types.Address) *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.withdrawalAllowance[allowanceKey{owner, spender}]; ok {
		return new(uint256.Int).Set(a)
	}
	return uint256.NewInt(0)
}

// TransferAllowance returns the remaining transfer allowance granted by
// owner to spender.
func (p *Pool) TransferAllowance(owner, spender types.Address) *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.transferAllowance[allowanceKey{owner, spender}]; ok {
		return new(uint256.Int).Set(a)
	}
	return uint256.NewInt(0)
}

// wrongState builds a state guard error naming the current state.
func (p *Pool) wrongState() error {
	return fmt.Errorf("%w: %s", ErrWrongState, p.state)
}

// publish emits an event on the bus if one is configured.
func (p *Pool) publish(t events.EventType, data interface{}) {
	if p.bus != nil {
		p.bus.Publish(t, p.addr, data)
	}
}
