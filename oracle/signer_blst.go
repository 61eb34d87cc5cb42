//go:build blst

// Real BLS12-381 signer backed by the supranational/blst library, using the
// MinPk scheme as required for Ethereum validator deposits:
//   - Public keys in G1 (48-byte compressed)
//   - Signatures in G2 (96-byte compressed)
//   - DST: BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_
//
// Build with: go build -tags blst
package oracle

import (
	"errors"

	blst "github.com/supranational/blst/bindings/go"
)

// blstDST is the domain separation tag for Ethereum BLS signatures.
var blstDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

// Blst signer errors.
var (
	ErrBlstInvalidIKM   = errors.New("oracle: IKM must be at least 32 bytes")
	ErrBlstKeyGenFailed = errors.New("oracle: key generation failed")
	ErrBlstSignFailed   = errors.New("oracle: signing failed")
)

// BlstSigner implements Signer with a real BLS12-381 secret key.
type BlstSigner struct {
	sk *blst.SecretKey
	pk [PubkeyLength]byte
}

// NewBlstSigner derives a signer from input key material (>= 32 bytes),
// per the EIP-2333 style KeyGen of blst.
func NewBlstSigner(ikm []byte) (*BlstSigner, error) {
	if len(ikm) < 32 {
		return nil, ErrBlstInvalidIKM
	}
	sk := blst.KeyGen(ikm)
	if sk == nil {
		return nil, ErrBlstKeyGenFailed
	}
	var pk [PubkeyLength]byte
	compressed := new(blst.P1Affine).From(sk).Compress()
	copy(pk[:], compressed)
	return &BlstSigner{sk: sk, pk: pk}, nil
}

// PublicKey returns the 48-byte compressed G1 public key.
func (s *BlstSigner) PublicKey() [PubkeyLength]byte {
	return s.pk
}

// Sign signs the 32-byte root, returning the 96-byte compressed G2
// signature.
func (s *BlstSigner) Sign(root [32]byte) ([SignatureLength]byte, error) {
	var out [SignatureLength]byte
	sig := new(blst.P2Affine).Sign(s.sk, root[:], blstDST)
	if sig == nil {
		return out, ErrBlstSignFailed
	}
	copy(out[:], sig.Compress())
	return out, nil
}
