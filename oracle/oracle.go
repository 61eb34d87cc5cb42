// Package oracle implements the off-chain side of the deposit pooling
// protocol: derivation of validator deposit data (public key, deposit
// signature, deposit data root) for a target pool, and the operator
// commitment hash that binds all of it to the pool address and exit date.
//
// The pool contract only ever sees the commitment hash; the raw deposit
// parameters stay with the operator until activation. The byte layout of
// the commitment and of the SSZ roots here must match the pool's
// verification bit for bit.
package oracle

import (
	"encoding/binary"

	"github.com/eth2030/stakepool/core/types"
	"github.com/eth2030/stakepool/crypto"
	"github.com/eth2030/stakepool/ssz"
)

const (
	// PubkeyLength is the length of a BLS12-381 public key.
	PubkeyLength = 48

	// SignatureLength is the length of a BLS12-381 signature.
	SignatureLength = 96

	// DepositAmountGwei is the validator deposit amount (32 ETH in Gwei).
	DepositAmountGwei uint64 = 32_000_000_000

	// WithdrawalCredentialsVersion is the version byte of execution-layer
	// withdrawal credentials (0x01: withdrawals to an execution address).
	WithdrawalCredentialsVersion = 0x01

	// DomainTypeDeposit is the BLS domain type for deposit signatures.
	DomainTypeDeposit = 0x03
)

// DepositData is the operator-derived parameter set forwarded to the
// beacon deposit registry at activation.
type DepositData struct {
	Pubkey          []byte // 48 bytes
	Signature       []byte // 96 bytes
	DepositDataRoot types.Hash
}

// WithdrawalCredentials returns the 32-byte withdrawal credentials that
// route a validator's withdrawn balance back to the pool: a 0x01 version
// byte, eleven zero bytes, and the pool's 20-byte address.
func WithdrawalCredentials(pool types.Address) [32]byte {
	var wc [32]byte
	wc[0] = WithdrawalCredentialsVersion
	copy(wc[12:], pool.Bytes())
	return wc
}

// DepositDomain returns the BLS signing domain for deposit messages:
// the deposit domain type followed by the first 28 bytes of the fork data
// root over the genesis fork version and a zero genesis validators root,
// per the consensus spec's compute_domain for deposits.
func DepositDomain() [32]byte {
	return ComputeDomain(DomainTypeDeposit, [4]byte{}, [32]byte{})
}

// ComputeDomain derives a 32-byte signing domain from a domain type, a
// fork version, and a genesis validators root.
func ComputeDomain(domainType byte, forkVersion [4]byte, genesisValidatorsRoot [32]byte) [32]byte {
	forkDataRoot := ssz.HashTreeRootContainer(
		ssz.HashTreeRootByteVector(forkVersion[:]),
		genesisValidatorsRoot,
	)
	var domain [32]byte
	domain[0] = domainType
	copy(domain[4:], forkDataRoot[:28])
	return domain
}

// DepositMessageRoot computes the SSZ hash tree root of the deposit
// message (pubkey, withdrawal credentials, amount in Gwei).
func DepositMessageRoot(pubkey []byte, withdrawalCredentials [32]byte, amountGwei uint64) [32]byte {
	return ssz.HashTreeRootContainer(
		ssz.HashTreeRootByteVector(pubkey),
		withdrawalCredentials,
		ssz.HashTreeRootUint64(amountGwei),
	)
}

// SigningRoot mixes a message root with a signing domain.
func SigningRoot(root, domain [32]byte) [32]byte {
	return ssz.HashTreeRootContainer(root, domain)
}

// DepositDataRoot computes the SSZ hash tree root of the full deposit data
// (pubkey, withdrawal credentials, amount in Gwei, signature). This is the
// root the beacon deposit registry verifies on intake.
func DepositDataRoot(pubkey []byte, withdrawalCredentials [32]byte, amountGwei uint64, signature []byte) [32]byte {
	return ssz.HashTreeRootContainer(
		ssz.HashTreeRootByteVector(pubkey),
		withdrawalCredentials,
		ssz.HashTreeRootUint64(amountGwei),
		ssz.HashTreeRootByteVector(signature),
	)
}

// OperatorDepositData derives the full deposit parameter set for a
// validator funding the given pool: the deposit message is signed over the
// deposit domain with the pool's withdrawal credentials embedded, so the
// withdrawn validator balance lands back at the pool.
func OperatorDepositData(signer Signer, pool types.Address) (*DepositData, error) {
	pubkey := signer.PublicKey()
	wc := WithdrawalCredentials(pool)

	msgRoot := DepositMessageRoot(pubkey[:], wc, DepositAmountGwei)
	signingRoot := SigningRoot(msgRoot, DepositDomain())

	sig, err := signer.Sign(signingRoot)
	if err != nil {
		return nil, err
	}

	root := DepositDataRoot(pubkey[:], wc, DepositAmountGwei, sig[:])
	return &DepositData{
		Pubkey:          pubkey[:],
		Signature:       sig[:],
		DepositDataRoot: types.Hash(root),
	}, nil
}

// Commitment computes the operator commitment hash binding a pool address
// to a validator pubkey, deposit signature, deposit data root, and exit
// date. Layout: keccak256 of the tightly packed concatenation
//
//	pool(20) || pubkey(48) || signature(96) || depositDataRoot(32) || exitDate(8, big-endian)
//
// The pool recomputes this at activation and compares for equality.
func Commitment(pool types.Address, pubkey, signature []byte, depositDataRoot types.Hash, exitDate uint64) types.Hash {
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
