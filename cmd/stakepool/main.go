// Command stakepool runs a scripted end-to-end lifecycle of the pooled
// validator deposit system: it deploys a factory, creates a pool, funds
// it from several depositors, activates the validator against the
// operator commitment, simulates the validator exit, ends the operator
// service, and pays everyone out.
//
// Usage:
//
//	stakepool [flags]
//
// Flags:
//
//	--commission   Commission rate in parts per million (default: 20000)
//	--verbosity    Log level 0-5 (default: 3)
//	--version      Print version and exit
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/holiman/uint256"

	"github.com/eth2030/stakepool/bank"
	"github.com/eth2030/stakepool/core/types"
	"github.com/eth2030/stakepool/events"
	"github.com/eth2030/stakepool/factory"
	"github.com/eth2030/stakepool/log"
	"github.com/eth2030/stakepool/oracle"
	"github.com/eth2030/stakepool/pool"
	"github.com/eth2030/stakepool/registry"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0"
var version = "v0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	fs := flag.NewFlagSet("stakepool", flag.ContinueOnError)
	commission := fs.Uint64("commission", 20_000, "commission rate in parts per million")
	verbosity := fs.Int("verbosity", 3, "log level 0-5")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Printf("stakepool %s\n", version)
		return 0
	}
	if *commission > pool.CommissionRateScale {
		fmt.Fprintf(os.Stderr, "Error: commission exceeds scale %d\n", pool.CommissionRateScale)
		return 2
	}

	logger := log.New(verbosityToLevel(*verbosity))
	log.SetDefault(logger)

	if err := lifecycle(logger, *commission); err != nil {
		logger.Error("lifecycle failed", "err", err)
		return 1
	}
	return 0
}

// lifecycle runs the scripted deposit-to-payout sequence.
func lifecycle(logger *log.Logger, commission uint64) error {
	ledger := bank.NewLedger()
	bus := events.NewBus(64)
	defer bus.Close()

	operator := types.HexToAddress("0x0f00000000000000000000000000000000000001")
	alice := types.HexToAddress("0xa11ce00000000000000000000000000000000001")
	bob := types.HexToAddress("0xb0b0000000000000000000000000000000000002")

	eth := func(n uint64) *uint256.Int {
		v := uint256.NewInt(n)
		return v.Mul(v, uint256.NewInt(1_000_000_000_000_000_000))
	}
	ledger.Mint(alice, eth(25))
	ledger.Mint(bob, eth(20))

	// A fake clock the script advances past the exit date.
	clock := time.Unix(1_700_000_000, 0)
	now := func() time.Time { return clock }

	reg := registry.New(ledger, types.HexToAddress("0x00000000219ab540356cbb839cbe05303d7705fa"), logger)
	f, err := factory.New(factory.Config{
		Ledger:          ledger,
		Address:         types.HexToAddress("0xfac0000000000000000000000000000000000001"),
		Operator:        operator,
		CommissionRate:  commission,
		DepositContract: reg,
		Bus:             bus,
		Logger:          logger,
		Now:             now,
	})
	if err != nil {
		return err
	}

	// The operator derives and commits to the validator parameters before
	// the pool exists, using the precomputed pool address.
	salt := types.HexToHash("0x01")
	poolAddr := f.PoolAddress(salt)
	signer := oracle.NewInsecureSigner(42)
	dd, err := oracle.OperatorDepositData(signer, poolAddr)
	if err != nil {
		return err
	}
	exitDate := uint64(clock.Unix()) + 30*24*3600
	commitment := oracle.Commitment(poolAddr, dd.Pubkey, dd.Signature, dd.DepositDataRoot, exitDate)

	p, err := f.CreateContract(alice, salt, commitment, eth(25))
	if err != nil {
		return err
	}
	if _, err := p.Deposit(bob, eth(10)); err != nil {
		return err
	}
	logger.Info("pool funded",
		"alice", p.DepositOf(alice).String(),
		"bob", p.DepositOf(bob).String(),
		"bobRefundKept", ledger.BalanceOf(bob).String(),
	)

	if err := p.CreateValidator(operator, dd.Pubkey, dd.Signature, dd.DepositDataRoot, exitDate); err != nil {
		return err
	}

	// Validator exits with a reward; its balance returns to the pool.
	clock = clock.Add(31 * 24 * time.Hour)
	rewards := eth(33)
	ledger.Mint(types.HexToAddress("0xc0ffee0000000000000000000000000000000001"), rewards)
	if err := p.Receive(types.HexToAddress("0xc0ffee0000000000000000000000000000000001"), rewards); err != nil {
		return err
	}

	if err := p.EndOperatorServices(operator); err != nil {
		return err
	}
	if err := p.OperatorClaim(alice); err != nil {
		return err
	}
	if err := p.WithdrawAll(alice); err != nil {
		return err
	}
	if err := p.WithdrawAll(bob); err != nil {
		return err
	}

	logger.Info("lifecycle complete",
		"operatorBalance", ledger.BalanceOf(operator).String(),
		"aliceBalance", ledger.BalanceOf(alice).String(),
		"bobBalance", ledger.BalanceOf(bob).String(),
		"poolBalance", p.Balance().String(),
		"registryDeposits", reg.Count(),
	)
	return nil
}

// verbosityToLevel maps the 0-5 verbosity flag to a log level.
func verbosityToLevel(v int) log.Level {
	switch {
	case v <= 0:
		return log.LevelError
	case v == 1:
		return log.LevelWarn
	case v <= 3:
		return log.LevelInfo
	default:
		return log.LevelDebug
	}
}
