package tokenizer

// NumBytes is the size of the base alphabet. Ids below NumBytes are raw bytes.
const NumBytes = 256

// Vocabulary maps token ids to the byte sequences they stand for. The first
// NumBytes entries are the single bytes; every following entry is the
// concatenation of its merge parents.
type Vocabulary struct {
	values [][]byte
}

func newBaseVocabulary(capacity int) *Vocabulary {
	v := &Vocabulary{values: make([][]byte, NumBytes, max(capacity, NumBytes))}
	for i := range NumBytes {
		v.values[i] = []byte{byte(i)}
	}
	return v
}

// Len returns the number of entries, special tokens excluded.
func (v *Vocabulary) Len() int {
	return len(v.values)
}

// Bytes returns a copy of the byte sequence for id.
func (v *Vocabulary) Bytes(id int32) ([]byte, bool) {
	if id < 0 || int(id) >= len(v.values) {
		return nil, false
	}
	return append([]byte(nil), v.values[id]...), true
}

// AppendInto appends the bytes for id to dst and reports whether the id exists.
// Internal storage never escapes.
func (v *Vocabulary) AppendInto(dst []byte, id int32) ([]byte, bool) {
	if id < 0 || int(id) >= len(v.values) {
		return dst, false
	}
	return append(dst, v.values[id]...), true
}

func (v *Vocabulary) add(left, right int32) {
	l, r := v.values[left], v.values[right]
	b := make([]byte, len(l)+len(r))
	copy(b, l)
	copy(b[len(l):], r)
	v.values = append(v.values, b)
}
