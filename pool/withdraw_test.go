package pool

import (
	"errors"
	"testing"
	"time"

	"github.com/eth2030/stakepool/events"
	"github.com/holiman/uint256"
)

// endService runs the full path to the Withdrawn state with the given
// exit balance.
func (e *env) endService(t *testing.T, balance *uint256.Int) {
	t.Helper()
	e.exitWith(t, balance)
	e.clock = time.Unix(int64(e.exitDate), 0)
	if err := e.pool.EndOperatorServices(operator); err != nil {
		t.Fatalf("ending service: %v", err)
	}
}

func TestWithdrawBeforeActivation(t *testing.T) {
	e := newEnv(t, 0)
	if _, err := e.pool.Deposit(alice, eth(10)); err != nil {
		t.Fatal(err)
	}

	// Before activation the balance equals total deposits, so a partial
	// withdrawal pays out exactly its amount.
	if err := e.pool.Withdraw(alice, eth(4)); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if got := e.ledger.BalanceOf(alice); !got.Eq(eth(94)) {
		t.Errorf("alice balance = %s, want 94 ETH", got)
	}
	if got := e.pool.DepositOf(alice); !got.Eq(eth(6)) {
		t.Errorf("deposit entry = %s, want 6 ETH", got)
	}
	if got := e.pool.TotalDeposits(); !got.Eq(eth(6)) {
		t.Errorf("total deposits = %s, want 6 ETH", got)
	}
}

func TestWithdrawProportionalSplit(t *testing.T) {
	e := newEnv(t, 0)
	if _, err := e.pool.Deposit(alice, eth(20)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.pool.Deposit(bob, eth(12)); err != nil {
		t.Fatal(err)
	}
	if err := e.pool.CreateValidator(operator, e.dd.Pubkey, e.dd.Signature, e.dd.DepositDataRoot, e.exitDate); err != nil {
		t.Fatal(err)
	}
	e.endService(t, eth(40))

	// Ratio recomputed per withdrawal: alice 20*40/32 = 25, then bob
	// 12*15/12 = 15. Everything is paid out.
	if err := e.pool.WithdrawAll(alice); err != nil {
		t.Fatalf("alice withdraw: %v", err)
	}
	if got := e.ledger.BalanceOf(alice); !got.Eq(eth(105)) {
		t.Errorf("alice balance = %s, want 105 ETH", got)
	}
	if err := e.pool.WithdrawAll(bob); err != nil {
		t.Fatalf("bob withdraw: %v", err)
	}
	if got := e.ledger.BalanceOf(bob); !got.Eq(eth(103)) {
		t.Errorf("bob balance = %s, want 103 ETH", got)
	}
	if !e.pool.Balance().IsZero() {
		t.Errorf("pool balance = %s after full payout, want 0", e.pool.Balance())
	}
}

func TestWithdrawExcludesUnclaimedCommission(t *testing.T) {
	e := newEnv(t, 250_000)
	e.activate(t)
	e.endService(t, eth(40))

	// Profit 8 ETH, commission 2 ETH: depositors share 38 ETH whether or
	// not the operator has claimed yet. Alice holds the whole 32.
	if err := e.pool.WithdrawAll(alice); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	want := new(uint256.Int).Add(eth(100), eth(6)) // 100 - 32 + 38
	if got := e.ledger.BalanceOf(alice); !got.Eq(want) {
		t.Errorf("alice balance = %s, want %s", got, want)
	}
	if got := e.pool.Balance(); !got.Eq(eth(2)) {
		t.Errorf("pool balance = %s, want the 2 ETH commission", got)
	}
}

func TestWithdrawWhileStaked(t *testing.T) {
	e := newEnv(t, 0)
	e.activate(t)

	if err := e.pool.Withdraw(alice, eth(1)); !errors.Is(err, ErrWrongState) {
		t.Errorf("err = %v, want ErrWrongState", err)
	}
}

func TestWithdrawInsufficientDeposit(t *testing.T) {
	e := newEnv(t, 0)
	if _, err := e.pool.Deposit(alice, eth(5)); err != nil {
		t.Fatal(err)
	}

	if err := e.pool.Withdraw(alice, eth(6)); !errors.Is(err, ErrInsufficientDeposit) {
		t.Errorf("over-withdraw err = %v, want ErrInsufficientDeposit", err)
	}
	if err := e.pool.Withdraw(bob, eth(1)); !errors.Is(err, ErrInsufficientDeposit) {
		t.Errorf("stranger withdraw err = %v, want ErrInsufficientDeposit", err)
	}
}

func TestWithdrawZeroAmount(t *testing.T) {
	e := newEnv(t, 0)
	sub := e.bus.Subscribe(events.EventWithdrawal)

	// A zero withdrawal succeeds with no effect, even for an account with
	// no deposit entry, and still emits the event.
	if err := e.pool.Withdraw(carol, uint256.NewInt(0)); err != nil {
		t.Fatalf("zero withdraw failed: %v", err)
	}
	ev := expectEvent(t, sub, events.EventWithdrawal)
	w := ev.Data.(events.Withdrawal)
	if !w.Amount.IsZero() || !w.Value.IsZero() {
		t.Errorf("event = %+v, want zero amount and value", w)
	}
}

func TestWithdrawAllWithoutDeposit(t *testing.T) {
	e := newEnv(t, 0)
	if err := e.pool.WithdrawAll(carol); err != nil {
		t.Errorf("WithdrawAll without a deposit errored: %v", err)
	}
}

func TestWithdrawTo(t *testing.T) {
	e := newEnv(t, 0)
	if _, err := e.pool.Deposit(alice, eth(10)); err != nil {
		t.Fatal(err)
	}

	if err := e.pool.WithdrawTo(alice, eth(3), carol); err != nil {
		t.Fatalf("WithdrawTo failed: %v", err)
	}
	if got := e.ledger.BalanceOf(carol); !got.Eq(eth(103)) {
		t.Errorf("recipient balance = %s, want 103 ETH", got)
	}
	if got := e.pool.DepositOf(alice); !got.Eq(eth(7)) {
		t.Errorf("owner entry = %s, want 7 ETH", got)
	}
}

func TestWithdrawFrom(t *testing.T) {
	e := newEnv(t, 0)
	if _, err := e.pool.Deposit(alice, eth(10)); err != nil {
		t.Fatal(err)
	}

	if err := e.pool.WithdrawFrom(bob, alice, carol, eth(5)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("no allowance err = %v, want ErrInsufficientAllowance", err)
	}

	if err := e.pool.ApproveWithdrawal(alice, bob, eth(7)); err != nil {
		t.Fatal(err)
	}
	if err := e.pool.WithdrawFrom(bob, alice, carol, eth(5)); err != nil {
		t.Fatalf("WithdrawFrom failed: %v", err)
	}

	// The allowance shrinks by exactly the spent amount.
	if got := e.pool.WithdrawalAllowance(alice, bob); !got.Eq(eth(2)) {
		t.Errorf("remaining allowance = %s, want 2 ETH", got)
	}
	if got := e.ledger.BalanceOf(carol); !got.Eq(eth(105)) {
		t.Errorf("recipient balance = %s, want 105 ETH", got)
	}

	if err := e.pool.WithdrawFrom(bob, alice, carol, eth(3)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("exhausted allowance err = %v, want ErrInsufficientAllowance", err)
	}
}

func TestApproveWithdrawalReplaces(t *testing.T) {
	e := newEnv(t, 0)

	if err := e.pool.ApproveWithdrawal(alice, bob, eth(7)); err != nil {
		t.Fatal(err)
	}
	if err := e.pool.ApproveWithdrawal(alice, bob, eth(3)); err != nil {
		t.Fatal(err)
	}
	// Approvals replace; they never accumulate.
	if got := e.pool.WithdrawalAllowance(alice, bob); !got.Eq(eth(3)) {
		t.Errorf("allowance = %s, want 3 ETH", got)
	}
}

func TestTransferDeposit(t *testing.T) {
	e := newEnv(t, 0)
	if _, err := e.pool.Deposit(alice, eth(10)); err != nil {
		t.Fatal(err)
	}
	sub := e.bus.Subscribe(events.EventTransfer)

	if err := e.pool.TransferDeposit(alice, bob, eth(4)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if got := e.pool.DepositOf(alice); !got.Eq(eth(6)) {
		t.Errorf("sender entry = %s, want 6 ETH", got)
	}
	if got := e.pool.DepositOf(bob); !got.Eq(eth(4)) {
		t.Errorf("recipient entry = %s, want 4 ETH", got)
	}
	// Pure ledger move: totals and pool balance unchanged.
	if got := e.pool.TotalDeposits(); !got.Eq(eth(10)) {
		t.Errorf("total deposits = %s, want 10 ETH", got)
	}
	if got := e.pool.Balance(); !got.Eq(eth(10)) {
		t.Errorf("pool balance = %s, want 10 ETH", got)
	}
	expectEvent(t, sub, events.EventTransfer)
}

func TestTransferDepositWhileStaked(t *testing.T) {
	e := newEnv(t, 0)
	e.activate(t)

	// Withdrawals are frozen while staked, but transfers realize no
	// profit and stay allowed in every state.
	if err := e.pool.TransferDeposit(alice, bob, eth(4)); err != nil {
		t.Fatalf("transfer while staked failed: %v", err)
	}
	if got := e.pool.DepositOf(bob); !got.Eq(eth(4)) {
		t.Errorf("recipient entry = %s, want 4 ETH", got)
	}
}

func TestTransferDepositInsufficient(t *testing.T) {
	e := newEnv(t, 0)
	if _, err := e.pool.Deposit(alice, eth(2)); err != nil {
		t.Fatal(err)
	}
	if err := e.pool.TransferDeposit(alice, bob, eth(3)); !errors.Is(err, ErrInsufficientDeposit) {
		t.Errorf("err = %v, want ErrInsufficientDeposit", err)
	}
}

func TestTransferDepositFrom(t *testing.T) {
	e := newEnv(t, 0)
	if _, err := e.pool.Deposit(alice, eth(10)); err != nil {
		t.Fatal(err)
	}

	if err := e.pool.TransferDepositFrom(bob, alice, carol, eth(4)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("no allowance err = %v, want ErrInsufficientAllowance", err)
	}

	if err := e.pool.ApproveTransfer(alice, bob, eth(6)); err != nil {
		t.Fatal(err)
	}
	if err := e.pool.TransferDepositFrom(bob, alice, carol, eth(4)); err != nil {
		t.Fatalf("TransferDepositFrom failed: %v", err)
	}
	if got := e.pool.TransferAllowance(alice, bob); !got.Eq(eth(2)) {
		t.Errorf("remaining allowance = %s, want 2 ETH", got)
	}
	if got := e.pool.DepositOf(carol); !got.Eq(eth(4)) {
		t.Errorf("recipient entry = %s, want 4 ETH", got)
	}
}

func TestAllowancesAreIndependent(t *testing.T) {
	e := newEnv(t, 0)
	if _, err := e.pool.Deposit(alice, eth(10)); err != nil {
		t.Fatal(err)
	}

	// A withdrawal allowance grants no transfer rights and vice versa.
	if err := e.pool.ApproveWithdrawal(alice, bob, eth(5)); err != nil {
		t.Fatal(err)
	}
	if err := e.pool.TransferDepositFrom(bob, alice, carol, eth(1)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("transfer with withdrawal allowance err = %v, want ErrInsufficientAllowance", err)
	}
	if got := e.pool.TransferAllowance(alice, bob); !got.IsZero() {
		t.Errorf("transfer allowance = %s, want 0", got)
	}
}
