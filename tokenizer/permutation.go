package tokenizer

import "fmt"

// BytePermutation is a bijection on byte values applied to raw input bytes
// before merging. The inverse is computed once at construction.
type BytePermutation struct {
	forward [NumBytes]byte
	inverse [NumBytes]byte
}

// NewBytePermutation builds a permutation from a 256 entry table where
// table[b] is the image of byte b.
func NewBytePermutation(table []int) (*BytePermutation, error) {
	if len(table) != NumBytes {
		return nil, fmt.Errorf("%w: byte permutation has %d entries, want %d", ErrInvalidState, len(table), NumBytes)
	}

	var p BytePermutation
	var seen [NumBytes]bool
	for b, v := range table {
		if v < 0 || v >= NumBytes {
			return nil, fmt.Errorf("%w: byte permutation maps %d to %d", ErrInvalidState, b, v)
		}

		if seen[v] {
			return nil, fmt.Errorf("%w: byte permutation maps more than one byte to %d", ErrInvalidState, v)
		}

		seen[v] = true
		p.forward[b] = byte(v)
		p.inverse[v] = byte(b)
	}

	return &p, nil
}

// Apply maps a raw byte into permuted space.
func (p *BytePermutation) Apply(b byte) byte {
	return p.forward[b]
}

// Invert maps a permuted byte back to the raw byte.
func (p *BytePermutation) Invert(b byte) byte {
	return p.inverse[b]
}

// Table returns the forward mapping as ints.
func (p *BytePermutation) Table() []int {
	t := make([]int, NumBytes)
	for i, v := range p.forward {
		t[i] = int(v)
	}
	return t
}
