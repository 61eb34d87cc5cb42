// Package events provides the typed publish/subscribe bus carrying the
// externally observable events of the deposit pooling system. Pools and
// the factory publish onto a shared bus; indexers and tests subscribe.
package events

import (
	"github.com/eth2030/stakepool/core/types"
	"github.com/holiman/uint256"
)

// EventType identifies the kind of event published on the bus.
type EventType string

// Event types emitted by pools and the factory.
const (
	EventDeposit            EventType = "pool.deposit"
	EventValidatorActivated EventType = "pool.validatorActivated"
	EventServiceEnd         EventType = "pool.serviceEnd"
	EventWithdrawal         EventType = "pool.withdrawal"
	EventWithdrawalApproval EventType = "pool.withdrawalApproval"
	EventTransfer           EventType = "pool.transfer"
	EventTransferApproval   EventType = "pool.transferApproval"
	EventCommissionClaimed  EventType = "pool.commissionClaimed"
	EventContractCreated    EventType = "factory.contractCreated"
)

// Deposit is emitted for every deposit intake, including intakes where the
// accepted amount is zero because the pool was already full.
type Deposit struct {
	Beneficiary types.Address
	Amount      *uint256.Int
}

// ValidatorActivated is emitted when a pool transitions to PostDeposit.
type ValidatorActivated struct {
	Pubkey []byte
}

// ServiceEnd is emitted when a pool transitions to Withdrawn, carrying the
// realized balance at that moment.
type ServiceEnd struct {
	Balance *uint256.Int
}

// Withdrawal is emitted for every ledger withdrawal. Amount is the deposit
// ledger units removed, Value the wei actually paid out.
type Withdrawal struct {
	Owner     types.Address
	Recipient types.Address
	Amount    *uint256.Int
	Value     *uint256.Int
}

// WithdrawalApproval is emitted when a withdrawal allowance is set.
type WithdrawalApproval struct {
	Owner   types.Address
	Spender types.Address
	Amount  *uint256.Int
}

// Transfer is emitted for pure deposit-ledger moves.
type Transfer struct {
	From   types.Address
	To     types.Address
	Amount *uint256.Int
}

// TransferApproval is emitted when a transfer allowance is set.
type TransferApproval struct {
	Owner   types.Address
	Spender types.Address
	Amount  *uint256.Int
}

// CommissionClaimed is emitted when the operator commission is paid out.
type CommissionClaimed struct {
	Operator types.Address
	Amount   *uint256.Int
}

// ContractCreated is emitted by the factory for every deployed pool.
type ContractCreated struct {
	Salt types.Hash
}
