package cqltype

import "math/big"

// EncodeVarint returns the minimal-length signed big-endian two's
// complement encoding of n:
//
//   - non-negative n: minimal big-endian unsigned; if the high bit of
//     the first byte is set, prepend 0x00 so the value doesn't read
//     as negative.
//   - negative n: encode two's complement of (-n-1); if the high bit
//     of the first byte is not set, prepend 0xFF so the value doesn't
//     read as positive.
func EncodeVarint(n *big.Int) []byte {
	if n.Sign() == 0 {
		return []byte{0}
	}
	if n.Sign() > 0 {
		b := n.Bytes()
		if len(b) == 0 || b[0]&0x80 != 0 {
			b = append([]byte{0}, b...)
		}
		return b
	}
	// negative: two's complement of (-n - 1), i.e. bitwise-not of |n|-1
	abs := new(big.Int).Neg(n)          // -n == |n|
	abs.Sub(abs, big.NewInt(1))         // |n| - 1
	b := abs.Bytes()
	if len(b) == 0 {
		b = []byte{0}
	}
	// flip every bit (two's complement of a non-negative magnitude)
	for i := range b {
		b[i] = ^b[i]
	}
	if b[0]&0x80 == 0 {
		b = append([]byte{0xFF}, b...)
	}
	return b
}

// DecodeVarint parses a minimal-length signed big-endian two's
// complement byte slice back into a *big.Int.
func DecodeVarint(b []byte) *big.Int {
	if len(b) == 0 {
		return big.NewInt(0)
	}
	if b[0]&0x80 == 0 {
		return new(big.Int).SetBytes(b)
	}
	// negative: flip bits to get |n| - 1, then add 1 and negate
	flipped := make([]byte, len(b))
	for i, c := range b {
		flipped[i] = ^c
	}
	n := new(big.Int).SetBytes(flipped)
	n.Add(n, big.NewInt(1))
	n.Neg(n)
	return n
}
