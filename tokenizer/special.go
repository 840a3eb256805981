package tokenizer

import (
	"cmp"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
)

// SpecialToken is a literal that always encodes to ID and never goes through
// byte pair merging.
type SpecialToken struct {
	Text string
	ID   int32
}

// SpecialTokens is an immutable set of special tokens. The zero value and nil
// are empty sets.
type SpecialTokens struct {
	byText map[string]int32
	byID   map[int32]string

	// literals sorted longest first so the first hit at a position is the
	// longest match
	sorted []string
	first  [NumBytes]bool
}

// NewSpecialTokens registers tokens. floor is the first id after the merge
// space; lower ids collide with byte or merge ids.
func NewSpecialTokens(floor int32, tokens ...SpecialToken) (*SpecialTokens, error) {
	return (*SpecialTokens)(nil).With(floor, tokens...)
}

// With returns a new set holding the current tokens plus tokens. The
// receiver is not modified.
func (s *SpecialTokens) With(floor int32, tokens ...SpecialToken) (*SpecialTokens, error) {
	n := &SpecialTokens{
		byText: make(map[string]int32, s.Len()+len(tokens)),
		byID:   make(map[int32]string, s.Len()+len(tokens)),
	}

	if s != nil {
		maps.Copy(n.byText, s.byText)
		maps.Copy(n.byID, s.byID)
	}

	for _, t := range tokens {
		if t.Text == "" {
			return nil, fmt.Errorf("%w: special token %d is empty", ErrInvalidConfiguration, t.ID)
		}

		if t.ID < floor {
			return nil, fmt.Errorf("%w: %q requested id %d, merge ids end at %d", ErrIDCollision, t.Text, t.ID, floor-1)
		}

		if id, ok := n.byText[t.Text]; ok {
			return nil, fmt.Errorf("%w: %q already registered as %d", ErrDuplicateSpecialToken, t.Text, id)
		}

		if text, ok := n.byID[t.ID]; ok {
			return nil, fmt.Errorf("%w: id %d already registered as %q", ErrDuplicateSpecialToken, t.ID, text)
		}

		n.byText[t.Text] = t.ID
		n.byID[t.ID] = t.Text
	}

	n.index()
	return n, nil
}

func (s *SpecialTokens) index() {
	s.sorted = slices.SortedFunc(maps.Keys(s.byText), func(a, b string) int {
		return cmp.Or(cmp.Compare(len(b), len(a)), strings.Compare(a, b))
	})

	for _, text := range s.sorted {
		s.first[text[0]] = true
	}
}

// Len returns the number of registered tokens.
func (s *SpecialTokens) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byText)
}

// Lookup returns the id registered for text.
func (s *SpecialTokens) Lookup(text string) (int32, bool) {
	if s == nil {
		return 0, false
	}
	id, ok := s.byText[text]
	return id, ok
}

// Text returns the literal registered for id.
func (s *SpecialTokens) Text(id int32) (string, bool) {
	if s == nil {
		return "", false
	}
	text, ok := s.byID[id]
	return text, ok
}

// MaxID returns the largest special token id, or -1 for an empty set.
func (s *SpecialTokens) MaxID() int32 {
	maxID := int32(-1)
	if s == nil {
		return maxID
	}

	for id := range s.byID {
		maxID = max(maxID, id)
	}
	return maxID
}

// Map returns a copy of the literal to id mapping.
func (s *SpecialTokens) Map() map[string]int32 {
	m := make(map[string]int32, s.Len())
	if s != nil {
		maps.Copy(m, s.byText)
	}
	return m
}

// All iterates tokens in id order.
func (s *SpecialTokens) All() iter.Seq[SpecialToken] {
	return func(yield func(SpecialToken) bool) {
		if s == nil {
			return
		}

		for _, id := range slices.Sorted(maps.Keys(s.byID)) {
			if !yield(SpecialToken{Text: s.byID[id], ID: id}) {
				return
			}
		}
	}
}

// Fragment is a span of input text. Special fragments carry the id of the
// special token they matched.
type Fragment struct {
	Text    string
	ID      int32
	Special bool
}

// Split partitions text into ordinary and special fragments, scanning left
// to right and taking the longest special token at each position. Empty
// input yields no fragments.
func (s *SpecialTokens) Split(text string) []Fragment {
	if text == "" {
		return nil
	}

	if s.Len() == 0 {
		return []Fragment{{Text: text}}
	}

	var fragments []Fragment
	var start int
	for i := 0; i < len(text); {
		literal, ok := s.matchAt(text, i)
		if !ok {
			i++
			continue
		}

		if i > start {
			fragments = append(fragments, Fragment{Text: text[start:i]})
		}

		fragments = append(fragments, Fragment{Text: literal, ID: s.byText[literal], Special: true})
		i += len(literal)
		start = i
	}

	if start < len(text) {
		fragments = append(fragments, Fragment{Text: text[start:]})
	}

	return fragments
}

// Contains reports whether any special token occurs in text.
func (s *SpecialTokens) Contains(text string) bool {
	for i := 0; i < len(text); i++ {
		if _, ok := s.matchAt(text, i); ok {
			return true
		}
	}
	return false
}

func (s *SpecialTokens) matchAt(text string, i int) (string, bool) {
	if s.Len() == 0 || !s.first[text[i]] {
		return "", false
	}

	for _, literal := range s.sorted {
		if strings.HasPrefix(text[i:], literal) {
			return literal, true
		}
	}

	return "", false
}
