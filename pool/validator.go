package pool

import (
	"encoding/binary"

	"github.com/eth2030/stakepool/core/types"
	"github.com/eth2030/stakepool/crypto"
	"github.com/eth2030/stakepool/events"
	"github.com/holiman/uint256"
)

// CreateValidator activates the validator: it verifies the presented
// parameters against the operator commitment fixed at creation, forwards
// exactly 32 ETH together with the parameters to the deposit registry,
// records the exit date, and moves the pool to PostDeposit.
//
// Only the operator may call this, only in the PreDeposit state, and only
// once the pool balance has reached the full deposit. Verification is a
// single equality test on the recomputed commitment hash: any altered
// parameter fails with the same undifferentiated error, so the failure
// reveals nothing about which field differed.
func (p *Pool) CreateValidator(caller types.Address, pubkey, signature []byte, depositDataRoot types.Hash, exitDate uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.operator {
		return ErrNotOperator
	}
	if p.state != StatePreDeposit {
		return p.wrongState()
	}
	if p.ledger.BalanceOf(p.addr).Lt(FullDeposit) {
		return ErrNotEnoughBalance
	}
	if commitmentHash(p.addr, pubkey, signature, depositDataRoot, exitDate) != p.commitment {
		return ErrCommitmentMismatch
	}

	wc := withdrawalCredentials(p.addr)
	err := p.depositContract.Deposit(
		p.addr, pubkey, wc[:], signature, depositDataRoot, FullDeposit)
	if err != nil {
		return err
	}

	p.exitDate = exitDate
	p.state = StatePostDeposit

	p.logger.Info("validator created",
		"pubkey", types.BytesToHash(pubkey).Hex(),
		"exitDate", exitDate,
	)
	p.publish(events.EventValidatorActivated, events.ValidatorActivated{
		Pubkey: append([]byte(nil), pubkey...),
	})
	return nil
}

// EndOperatorServices ends the pool's service after the validator has
// exited: it realizes profit as the difference between the pool balance
// and total deposits, accrues the operator commission on positive profit,
// and moves the pool to Withdrawn so depositors can claim.
//
// The operator may call this from the exit date onward; any account may
// call it once the exit queue grace period has also elapsed. If the
// validator was slashed and the balance came back below total deposits,
// the commission is zero and depositors absorb the shortfall through the
// proportional payout ratio.
func (p *Pool) EndOperatorServices(caller types.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePostDeposit {
		return p.wrongState()
	}

	balance := p.ledger.BalanceOf(p.addr)
	if balance.IsZero() {
		return ErrEmptyBalance
	}

	now := uint64(p.now().Unix())
	deadline := p.exitDate
	if caller != p.operator {
		deadline += p.maxSecondsInExitQueue
	}
	if now < deadline {
		return ErrTooEarly
	}

	if balance.Gt(&p.totalDeposits) {
		profit := new(uint256.Int).Sub(balance, &p.totalDeposits)
		commission := profit.Mul(profit, uint256.NewInt(p.commissionRate))
		commission.Div(commission, uint256.NewInt(CommissionRateScale))
		p.operatorClaimable.Set(commission)
	}

	p.state = StateWithdrawn

	p.logger.Info("operator services ended",
		"balance", balance.String(),
		"commission", p.operatorClaimable.String(),
	)
	p.publish(events.EventServiceEnd, events.ServiceEnd{
		Balance: balance,
	})
	return nil
}

// OperatorClaim pays the accrued commission to the operator. Anyone may
// trigger the claim; the funds always go to the operator. Claiming with
// nothing accrued is a no-op, so a second claim can never double pay.
func (p *Pool) OperatorClaim(caller types.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.operatorClaimable.IsZero() {
		return nil
	}

	amount := new(uint256.Int).Set(&p.operatorClaimable)
	if err := p.ledger.Transfer(p.addr, p.operator, amount); err != nil {
		return err
	}
	p.operatorClaimable.Clear()

	p.logger.Info("commission claimed", "amount", amount.String())
	p.publish(events.EventCommissionClaimed, events.CommissionClaimed{
		Operator: p.operator,
		Amount:   amount,
	})
	return nil
}

// commitmentHash recomputes the operator commitment over the tightly
// packed activation parameters:
//
//	pool(20) || pubkey(48) || signature(96) || depositDataRoot(32) || exitDate(8, big-endian)
func commitmentHash(pool types.Address, pubkey, signature []byte, depositDataRoot types.Hash, exitDate uint64) types.Hash {
	var exitBytes [8]byte
	binary.BigEndian.PutUint64(exitBytes[:], exitDate)
	return crypto.Keccak256Hash(
		pool.Bytes(),
		pubkey,
		signature,
		depositDataRoot.Bytes(),
		exitBytes[:],
	)
}

// withdrawalCredentials builds the pool's execution-layer withdrawal
// credentials: version byte 0x01, eleven zero bytes, pool address.
func withdrawalCredentials(pool types.Address) [32]byte {
	var wc [32]byte
	wc[0] = 0x01
	copy(wc[12:], pool.Bytes())
	return wc
}
