package pool

import (
	"github.com/eth2030/stakepool/core/types"
	"github.com/eth2030/stakepool/events"
	"github.com/holiman/uint256"
)

// Withdraw removes amount from the caller's deposit ledger entry and pays
// out the caller's proportional share of the pool balance. See withdraw.
func (p *Pool) Withdraw(caller types.Address, amount *uint256.Int) error {
	return p.WithdrawTo(caller, amount, caller)
}

// WithdrawAll withdraws the caller's entire deposit ledger entry.
func (p *Pool) WithdrawAll(caller types.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	amount := uint256.NewInt(0)
	if d, ok := p.deposits[caller]; ok {
		amount.Set(d)
	}
	return p.withdraw(caller, caller, amount)
}

// WithdrawTo withdraws amount from the caller's deposit ledger entry,
// paying out to recipient.
func (p *Pool) WithdrawTo(caller types.Address, amount *uint256.Int, recipient types.Address) error {
	if amount == nil {
		return ErrNilAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.withdraw(caller, recipient, amount)
}

// WithdrawFrom withdraws amount from owner's deposit ledger entry on the
// strength of a withdrawal allowance granted to the caller, paying out to
// recipient. The allowance is decremented by exactly the amount consumed.
func (p *Pool) WithdrawFrom(caller, owner, recipient types.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	key := allowanceKey{owner, caller}
	allowance, ok := p.withdrawalAllowance[key]
	if !ok || allowance.Lt(amount) {
		return ErrInsufficientAllowance
	}
	if err := p.withdraw(owner, recipient, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	return nil
}

// withdraw debits amount from owner's deposit ledger entry and transfers
// the proportional payout to recipient. The payout ratio
//
//	amount * (balance - unclaimed commission) / totalDeposits
//
// is recomputed on every call, so sequential partial withdrawals each get
// the instantaneously fair share; integer division leaves the remainder
// in the pool for the last withdrawer. In PreDeposit the balance equals
// total deposits and the payout is exactly the amount. Caller holds the
// pool lock.
func (p *Pool) withdraw(owner, recipient types.Address, amount *uint256.Int) error {
	if p.state != StatePreDeposit && p.state != StateWithdrawn {
		return p.wrongState()
	}

	payout := new(uint256.Int)
	if !amount.IsZero() {
		deposit, ok := p.deposits[owner]
		if !ok || deposit.Lt(amount) {
			return ErrInsufficientDeposit
		}

		redeemable := p.ledger.BalanceOf(p.addr)
		redeemable.Sub(redeemable, &p.operatorClaimable)
		payout.Mul(amount, redeemable)
		payout.Div(payout, &p.totalDeposits)

		if err := p.ledger.Transfer(p.addr, recipient, payout); err != nil {
			return err
		}
		deposit.Sub(deposit, amount)
		p.totalDeposits.Sub(&p.totalDeposits, amount)
	}

	p.logger.Debug("withdrawal",
		"owner", owner.Hex(),
		"recipient", recipient.Hex(),
		"amount", amount.String(),
		"payout", payout.String(),
	)
	p.publish(events.EventWithdrawal, events.Withdrawal{
		Owner:     owner,
		Recipient: recipient,
		Amount:    new(uint256.Int).Set(amount),
		Value:     payout,
	})
	return nil
}

// ApproveWithdrawal sets the withdrawal allowance granted by the caller
// to spender. The new amount replaces the previous allowance.
func (p *Pool) ApproveWithdrawal(caller, spender types.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.withdrawalAllowance[allowanceKey{caller, spender}] = new(uint256.Int).Set(amount)
	p.publish(events.EventWithdrawalApproval, events.WithdrawalApproval{
		Owner:   caller,
		Spender: spender,
		Amount:  new(uint256.Int).Set(amount),
	})
	return nil
}

// ApproveTransfer sets the transfer allowance granted by the caller to
// spender. The new amount replaces the previous allowance. Transfer
// allowances are independent from withdrawal allowances.
func (p *Pool) ApproveTransfer(caller, spender types.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.transferAllowance[allowanceKey{caller, spender}] = new(uint256.Int).Set(amount)
	p.publish(events.EventTransferApproval, events.TransferApproval{
		Owner:   caller,
		Spender: spender,
		Amount:  new(uint256.Int).Set(amount),
	})
	return nil
}

// TransferDeposit moves amount of the caller's deposit ledger entry to
// recipient. This is a pure ledger move: no value moves and no profit is
// realized, so it is allowed in every state given sufficient balance.
func (p *Pool) TransferDeposit(caller, recipient types.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transferDeposit(caller, recipient, amount)
}

// TransferDepositFrom moves amount of owner's deposit ledger entry to
// recipient on the strength of a transfer allowance granted to the
// caller. The allowance is decremented by exactly the amount consumed.
func (p *Pool) TransferDepositFrom(caller, owner, recipient types.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	key := allowanceKey{owner, caller}
	allowance, ok := p.transferAllowance[key]
	if !ok || allowance.Lt(amount) {
		return ErrInsufficientAllowance
	}
	if err := p.transferDeposit(owner, recipient, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	return nil
}

// transferDeposit performs the ledger move. Caller holds the pool lock.
func (p *Pool) transferDeposit(from, to types.Address, amount *uint256.Int) error {
	deposit, ok := p.deposits[from]
	if !ok || deposit.Lt(amount) {
		return ErrInsufficientDeposit
	}

	deposit.Sub(deposit, amount)
	p.credit(to, amount)

	p.publish(events.EventTransfer, events.Transfer{
		From:   from,
		To:     to,
		Amount: new(uint256.Int).Set(amount),
	})
	return nil
}
