package tokenizer

import (
	"cmp"
	"fmt"

	heap "github.com/emirpasic/gods/v2/trees/binaryheap"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ollama/minbpe/logutil"
)

// AllowedSpecial controls how registered special tokens in the input are
// treated.
type AllowedSpecial int

const (
	// AllowAll encodes special token literals to their ids.
	AllowAll AllowedSpecial = iota
	// AllowNone encodes special token literals as ordinary text.
	AllowNone
	// AllowNoneRaise fails with ErrMalformedInput if a special token
	// literal occurs in the input.
	AllowNoneRaise
)

func (a AllowedSpecial) String() string {
	switch a {
	case AllowAll:
		return "all"
	case AllowNone:
		return "none"
	case AllowNoneRaise:
		return "none_raise"
	default:
		return fmt.Sprintf("AllowedSpecial(%d)", int(a))
	}
}

// ParseAllowedSpecial accepts "all", "none" and "none_raise". The empty
// string means "all".
func ParseAllowedSpecial(s string) (AllowedSpecial, error) {
	if s == "" {
		return AllowAll, nil
	}

	for _, a := range []AllowedSpecial{AllowAll, AllowNone, AllowNoneRaise} {
		if a.String() == s {
			return a, nil
		}
	}

	return 0, fmt.Errorf("%w: allowed special must be all, none or none_raise, got %q", ErrInvalidConfiguration, s)
}

// Encoder turns text into token ids with a fixed State. It is safe for
// concurrent use.
type Encoder struct {
	state *State
	cache *lru.Cache[string, []int32]
}

type EncoderOption func(*Encoder) error

// WithCache memoizes the ids of up to size distinct chunks. A size of zero
// or less disables the cache.
func WithCache(size int) EncoderOption {
	return func(e *Encoder) error {
		if size <= 0 {
			e.cache = nil
			return nil
		}

		cache, err := lru.New[string, []int32](size)
		if err != nil {
			return err
		}

		e.cache = cache
		return nil
	}
}

func NewEncoder(s *State, opts ...EncoderOption) (*Encoder, error) {
	e := &Encoder{state: s}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Encoder) State() *State {
	return e.state
}

// Encode encodes text, mapping special token literals to their ids.
func (e *Encoder) Encode(text string) ([]int32, error) {
	return e.EncodeSpecial(text, AllowAll)
}

// EncodeOrdinary encodes text without looking for special tokens.
func (e *Encoder) EncodeOrdinary(text string) []int32 {
	ids := e.appendOrdinary(make([]int32, 0, len(text)/2), text)
	logutil.Trace("encoded", "string", text, "ids", lazyIDs(ids))
	return ids
}

func (e *Encoder) EncodeSpecial(text string, allowed AllowedSpecial) ([]int32, error) {
	switch allowed {
	case AllowAll:
	case AllowNone:
		return e.EncodeOrdinary(text), nil
	case AllowNoneRaise:
		if e.state.specials.Contains(text) {
			return nil, fmt.Errorf("%w: special token found in text", ErrMalformedInput)
		}
		return e.EncodeOrdinary(text), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfiguration, allowed)
	}

	ids := make([]int32, 0, len(text)/2)
	for _, frag := range e.state.specials.Split(text) {
		if frag.Special {
			ids = append(ids, frag.ID)
			continue
		}

		ids = e.appendOrdinary(ids, frag.Text)
	}

	logutil.Trace("encoded", "string", text, "ids", lazyIDs(ids))
	return ids, nil
}

func (e *Encoder) appendOrdinary(ids []int32, text string) []int32 {
	for piece := range e.state.segmenter.Split(text) {
		if e.cache != nil {
			if cached, ok := e.cache.Get(piece); ok {
				ids = append(ids, cached...)
				continue
			}
		}

		chunk := e.state.encodeChunk([]byte(piece))
		if e.cache != nil {
			e.cache.Add(piece, chunk)
		}

		ids = append(ids, chunk...)
	}

	return ids
}

// Encode is a convenience for encoding with an uncached Encoder.
func (s *State) Encode(text string) ([]int32, error) {
	return (&Encoder{state: s}).Encode(text)
}

// EncodeOrdinary is a convenience for encoding without special tokens.
func (s *State) EncodeOrdinary(text string) []int32 {
	return (&Encoder{state: s}).EncodeOrdinary(text)
}

type node struct {
	id   int32
	p, n int
}

type candidate struct {
	a, b int
	pair Pair
	rank int
	id   int32
}

// encodeChunk merges the bytes of a single chunk. The lowest ranked pair
// is merged first and equal ranks are merged left to right, which matches
// replacing every non-overlapping occurrence of each merge in rank order.
func (s *State) encodeChunk(b []byte) []int32 {
	nodes := make([]node, len(b))
	for i, c := range b {
		if s.permutation != nil {
			c = s.permutation.Apply(c)
		}

		nodes[i] = node{id: int32(c), p: i - 1, n: i + 1}
	}

	if len(nodes) < 2 {
		return nodeIDs(nodes)
	}

	pairwise := func(a, b int) *candidate {
		if a < 0 || b >= len(nodes) {
			return nil
		}

		p := Pair{nodes[a].id, nodes[b].id}
		rank, id, ok := s.merges.Lookup(p)
		if !ok {
			return nil
		}

		return &candidate{a: a, b: b, pair: p, rank: rank, id: id}
	}

	candidates := heap.NewWith(func(i, j *candidate) int {
		return cmp.Or(cmp.Compare(i.rank, j.rank), cmp.Compare(i.a, j.a))
	})

	for i := range len(nodes) - 1 {
		if c := pairwise(i, i+1); c != nil {
			candidates.Push(c)
		}
	}

	for !candidates.Empty() {
		c, _ := candidates.Pop()

		left, right := nodes[c.a], nodes[c.b]
		if left.id < 0 || right.id < 0 || left.n != c.b ||
			left.id != c.pair.Left || right.id != c.pair.Right {
			continue
		}

		nodes[c.a].id = c.id
		nodes[c.a].n = right.n
		nodes[c.b].id = -1
		if right.n < len(nodes) {
			nodes[right.n].p = c.a
		}

		if c := pairwise(nodes[c.a].p, c.a); c != nil {
			candidates.Push(c)
		}

		if c := pairwise(c.a, nodes[c.a].n); c != nil {
			candidates.Push(c)
		}
	}

	return nodeIDs(nodes)
}

func nodeIDs(nodes []node) []int32 {
	ids := make([]int32, 0, len(nodes))
	for _, n := range nodes {
		if n.id >= 0 {
			ids = append(ids, n.id)
		}
	}
	return ids
}
