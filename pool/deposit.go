package pool

import (
	"github.com/eth2030/stakepool/bank"
	"github.com/eth2030/stakepool/core/types"
	"github.com/eth2030/stakepool/events"
	"github.com/holiman/uint256"
)

// Deposit accepts value wei from the caller into the caller's own deposit
// ledger entry. See DepositOnBehalfOf.
func (p *Pool) Deposit(caller types.Address, value *uint256.Int) (*uint256.Int, error) {
	return p.DepositOnBehalfOf(caller, caller, value)
}

// DepositOnBehalfOf accepts value wei from the caller and credits the
// beneficiary's deposit ledger entry. The caller must hold the full
// offered value, as a native value transfer would require. The accepted
// amount is clamped to the pool's remaining room (32 ETH minus total
// deposits); the surplus never leaves the caller's account, which is
// equivalent to an atomic same-call refund. A Deposit event is emitted
// with the accepted amount, which may be zero when the pool is already
// full. Only allowed in the PreDeposit state.
//
// Returns the accepted amount.
func (p *Pool) DepositOnBehalfOf(caller, beneficiary types.Address, value *uint256.Int) (*uint256.Int, error) {
	if value == nil {
		return nil, ErrNilAmount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// The offered value arrives with the call before anything else, so
	// the balance guard precedes the state guard and covers the whole
	// value, not just the clamped intake.
	if p.ledger.BalanceOf(caller).Lt(value) {
		return nil, bank.ErrInsufficientBalance
	}

	if p.state != StatePreDeposit {
		return nil, p.wrongState()
	}

	room := new(uint256.Int)
	if p.totalDeposits.Lt(FullDeposit) {
		room.Sub(FullDeposit, &p.totalDeposits)
	}

	accepted := new(uint256.Int).Set(value)
	if accepted.Gt(room) {
		accepted.Set(room)
	}

	if err := p.ledger.Transfer(caller, p.addr, accepted); err != nil {
		return nil, err
	}

	p.credit(beneficiary, accepted)
	p.totalDeposits.Add(&p.totalDeposits, accepted)

	p.logger.Debug("deposit accepted",
		"beneficiary", beneficiary.Hex(),
		"accepted", accepted.String(),
		"totalDeposits", p.totalDeposits.String(),
	)
	p.publish(events.EventDeposit, events.Deposit{
		Beneficiary: beneficiary,
		Amount:      new(uint256.Int).Set(accepted),
	})
	return accepted, nil
}

// Receive models a plain value transfer into the pool carrying no call
// data. It is rejected while depositing (accounting must stay exact) and
// accepted once the validator is active or the service has ended, which
// is how the validator's exit balance arrives. It never touches the
// deposit ledger.
func (p *Pool) Receive(from types.Address, value *uint256.Int) error {
	if value == nil {
		return ErrNilAmount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePostDeposit && p.state != StateWithdrawn {
		return p.wrongState()
	}
	return p.ledger.Transfer(from, p.addr, value)
}

// credit adds amount to an account's deposit ledger entry. Caller holds
// the pool lock.
func (p *Pool) credit(account types.Address, amount *uint256.Int) {
	if d, ok := p.deposits[account]; ok {
		d.Add(d, amount)
		return
	}
	p.deposits[account] = new(uint256.Int).Set(amount)
}
