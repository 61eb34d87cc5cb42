package types

import "testing"

func TestBytesToHashPadding(t *testing.T) {
	h := BytesToHash([]byte{0x01, 0x02})
	if h[HashLength-1] != 0x02 || h[HashLength-2] != 0x01 {
		t.Errorf("short input should be left-padded, got %s", h.Hex())
	}
	for i := 0; i < HashLength-2; i++ {
		if h[i] != 0 {
			t.Errorf("byte %d should be zero, got %#x", i, h[i])
		}
	}
}

func TestBytesToHashTruncation(t *testing.T) {
	long := make([]byte, HashLength+4)
	for i := range long {
		long[i] = byte(i)
	}
	h := BytesToHash(long)
	// Keeps the rightmost 32 bytes.
	if h[0] != long[4] || h[HashLength-1] != long[len(long)-1] {
		t.Errorf("long input should keep rightmost bytes, got %s", h.Hex())
	}
}

func TestHexToHashRoundTrip(t *testing.T) {
	s := "0x00000000000000000000000000000000000000000000000000000000000000ff"
	h := HexToHash(s)
	if h.Hex() != s {
		t.Errorf("round trip mismatch: %s != %s", h.Hex(), s)
	}
	// Without prefix and with odd length.
	if HexToHash("ff") != h {
		t.Errorf("prefix-less parse mismatch")
	}
	if HexToHash("0xf") != BytesToHash([]byte{0x0f}) {
		t.Errorf("odd-length parse mismatch")
	}
}

func TestHashIsZero(t *testing.T) {
	var h Hash
	if !h.IsZero() {
		t.Error("zero hash should report IsZero")
	}
	h[0] = 1
	if h.IsZero() {
		t.Error("non-zero hash should not report IsZero")
	}
}

func TestAddressRoundTrip(t *testing.T) {
	s := "0xa11ce00000000000000000000000000000000001"
	a := HexToAddress(s)
	if a.Hex() != s {
		t.Errorf("round trip mismatch: %s != %s", a.Hex(), s)
	}
	if a.IsZero() {
		t.Error("non-zero address should not report IsZero")
	}
	var zero Address
	if !zero.IsZero() {
		t.Error("zero address should report IsZero")
	}
}

func TestAddressSetBytesTruncation(t *testing.T) {
	long := make([]byte, AddressLength+5)
	for i := range long {
		long[i] = byte(i + 1)
	}
	a := BytesToAddress(long)
	if a[0] != long[5] || a[AddressLength-1] != long[len(long)-1] {
		t.Errorf("long input should keep rightmost bytes, got %s", a.Hex())
	}
}
