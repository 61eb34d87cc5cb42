package oracle

import (
	"crypto/sha256"
	"encoding/binary"
)

// Signer produces BLS deposit signatures for a validator key. The
// production implementation is BlstSigner (build tag "blst"); tests and
// demos use InsecureSigner.
type Signer interface {
	// PublicKey returns the 48-byte compressed validator public key.
	PublicKey() [PubkeyLength]byte

	// Sign signs a 32-byte signing root, returning a 96-byte signature.
	Sign(root [32]byte) ([SignatureLength]byte, error)
}

// InsecureSigner is a deterministic stand-in for a BLS signer. It derives
// the public key and signatures from a seed with SHA-256, so derived
// deposit data is stable across runs but carries no cryptographic meaning.
// It must never be used with a real deposit registry.
type InsecureSigner struct {
	seed [32]byte
}

// NewInsecureSigner creates a deterministic signer from a seed.
func NewInsecureSigner(seed uint64) *InsecureSigner {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seed)
	return &InsecureSigner{seed: sha256.Sum256(b[:])}
}

// PublicKey returns a 48-byte key derived from the seed.
func (s *InsecureSigner) PublicKey() [PubkeyLength]byte {
	var pk [PubkeyLength]byte
	h1 := sha256.Sum256(append(s.seed[:], 'p', 'k', 0))
	h2 := sha256.Sum256(append(s.seed[:], 'p', 'k', 1))
	copy(pk[:32], h1[:])
	copy(pk[32:], h2[:])
	return pk
}

// Sign returns a 96-byte pseudo-signature over the root.
func (s *InsecureSigner) Sign(root [32]byte) ([SignatureLength]byte, error) {
	var sig [SignatureLength]byte
	for i := 0; i < 3; i++ {
		h := sha256.Sum256(append(append(s.seed[:], root[:]...), byte(i)))
		copy(sig[i*32:], h[:])
	}
	return sig, nil
}
