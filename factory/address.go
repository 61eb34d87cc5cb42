package factory

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/eth2030/stakepool/core/types"
	"github.com/eth2030/stakepool/crypto"
)

// Minimal proxy creation code, split around the embedded implementation
// address. Deployed pools are thin proxies delegating to one canonical
// implementation, which is what makes their addresses a pure function of
// factory, salt, and implementation.
var (
	proxyCodePrefix = []byte{
		0x3d, 0x60, 0x2d, 0x80, 0x60, 0x0a, 0x3d, 0x39, 0x81, 0xf3,
		0x36, 0x3d, 0x3d, 0x37, 0x3d, 0x3d, 0x3d, 0x36, 0x3d, 0x73,
	}
	proxyCodeSuffix = []byte{
		0x5a, 0xf4, 0x3d, 0x82, 0x80, 0x3e, 0x90, 0x3d, 0x91, 0x60,
		0x2b, 0x57, 0xfd, 0x5b, 0xf3,
	}
)

// proxyInitCode assembles the minimal proxy creation code for the given
// implementation address.
func proxyInitCode(implementation types.Address) []byte {
	code := make([]byte, 0, len(proxyCodePrefix)+types.AddressLength+len(proxyCodeSuffix))
	code = append(code, proxyCodePrefix...)
	code = append(code, implementation.Bytes()...)
	code = append(code, proxyCodeSuffix...)
	return code
}

// proxyInitCodeHash hashes the minimal proxy creation code for the given
// implementation address.
func proxyInitCodeHash(implementation types.Address) types.Hash {
	return crypto.Keccak256Hash(proxyInitCode(implementation))
}

// deriveImplementationAddress derives a stable implementation address for
// a factory that was not configured with one. The pools are plain objects
// here rather than deployed code, so the implementation address only
// feeds address derivation; any stable function of the factory address
// keeps pool addresses deterministic.
func deriveImplementationAddress(factory types.Address) types.Address {
	h := crypto.Keccak256(append([]byte("stakepool.implementation."), factory.Bytes()...))
	return types.BytesToAddress(h[12:])
}

// PoolAddress returns the deterministic address of the pool deployed for
// salt, whether or not it exists yet. Callers use this to precompute
// addresses, for example to commit to withdrawal credentials before
// deployment.
func (f *Factory) PoolAddress(salt types.Hash) types.Address {
	addr := ethcrypto.CreateAddress2(
		common.Address(f.addr),
		common.Hash(salt),
		f.proxyInitCodeHash.Bytes(),
	)
	return types.Address(addr)
}

// poolAddress is PoolAddress without exported-method overhead; the two
// are identical and both are safe without the factory lock, the inputs
// being immutable after construction.
func (f *Factory) poolAddress(salt types.Hash) types.Address {
	return f.PoolAddress(salt)
}
