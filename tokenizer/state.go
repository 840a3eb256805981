package tokenizer

import (
	"cmp"
	"fmt"
	"slices"
)

// Variant is the closed set of tokenizer flavours. Each declares which
// optional components it carries.
type Variant string

const (
	// Basic merges over the whole input with no pre-segmentation.
	Basic Variant = "basic"
	// Regex splits input with a pattern before merging.
	Regex Variant = "regex"
	// GPT4 is the pretrained cl100k_base tokenizer. It cannot be trained.
	GPT4 Variant = "gpt4"
)

// Variants lists every supported variant.
var Variants = []Variant{Basic, Regex, GPT4}

// ParseVariant validates s as a variant name.
func ParseVariant(s string) (Variant, error) {
	if v := Variant(s); slices.Contains(Variants, v) {
		return v, nil
	}
	return "", fmt.Errorf("%w: unknown tokenizer type %q", ErrInvalidConfiguration, s)
}

// Trainable reports whether merges for v are learned rather than fixed.
func (v Variant) Trainable() bool { return v != GPT4 }

// UsesPattern reports whether v pre-segments text with a pattern.
func (v Variant) UsesPattern() bool { return v == Regex || v == GPT4 }

// UsesPermutation reports whether v shuffles raw bytes before merging.
func (v Variant) UsesPermutation() bool { return v == GPT4 }

// DefaultPattern is the pattern used when none is configured.
func (v Variant) DefaultPattern() string {
	if v.UsesPattern() {
		return GPT4Pattern
	}
	return ""
}

// Parts is the raw material of a State. Ids in Merges must be contiguous
// from NumBytes and special token ids must lie above them.
type Parts struct {
	Variant       Variant
	Merges        []MergeRule
	SpecialTokens map[string]int32
	// Pattern defaults to Variant.DefaultPattern when empty.
	Pattern string
	// Permutation is the 256 entry byte shuffle, required by variants that
	// use one and rejected by the others.
	Permutation []int
}

// State is a complete tokenizer: merges, the derived vocabulary, special
// tokens, segmenter and byte permutation. It is immutable and safe for
// concurrent use.
type State struct {
	variant     Variant
	merges      *MergeTable
	vocab       *Vocabulary
	specials    *SpecialTokens
	segmenter   Segmenter
	permutation *BytePermutation
}

// FromParts validates p and builds a State. Nothing is built unless every
// part is valid.
func FromParts(p Parts) (*State, error) {
	if _, err := ParseVariant(string(p.Variant)); err != nil {
		return nil, err
	}

	pattern := p.Pattern
	switch {
	case !p.Variant.UsesPattern() && pattern != "":
		return nil, fmt.Errorf("%w: %s tokenizer does not take a pattern", ErrInvalidState, p.Variant)
	case pattern == "":
		pattern = p.Variant.DefaultPattern()
	}

	var permutation *BytePermutation
	switch {
	case p.Variant.UsesPermutation() && p.Permutation == nil:
		return nil, fmt.Errorf("%w: %s tokenizer requires a byte shuffle", ErrInvalidState, p.Variant)
	case !p.Variant.UsesPermutation() && p.Permutation != nil:
		return nil, fmt.Errorf("%w: %s tokenizer does not take a byte shuffle", ErrInvalidState, p.Variant)
	case p.Permutation != nil:
		var err error
		if permutation, err = NewBytePermutation(p.Permutation); err != nil {
			return nil, err
		}
	}

	merges, err := NewMergeTable(p.Merges)
	if err != nil {
		return nil, err
	}

	segmenter, err := NewSegmenter(pattern)
	if err != nil {
		return nil, err
	}

	specials, err := NewSpecialTokens(merges.NextID(), sortedSpecials(p.SpecialTokens)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	return &State{
		variant:     p.Variant,
		merges:      merges,
		vocab:       merges.Vocabulary(),
		specials:    specials,
		segmenter:   segmenter,
		permutation: permutation,
	}, nil
}

func sortedSpecials(m map[string]int32) []SpecialToken {
	tokens := make([]SpecialToken, 0, len(m))
	for text, id := range m {
		tokens = append(tokens, SpecialToken{Text: text, ID: id})
	}

	slices.SortFunc(tokens, func(a, b SpecialToken) int {
		return cmp.Or(cmp.Compare(a.ID, b.ID), cmp.Compare(a.Text, b.Text))
	})
	return tokens
}

// WithSpecialTokens returns a copy of s with tokens registered in addition
// to the existing ones.
func (s *State) WithSpecialTokens(tokens map[string]int32) (*State, error) {
	specials, err := s.specials.With(s.merges.NextID(), sortedSpecials(tokens)...)
	if err != nil {
		return nil, err
	}

	n := *s
	n.specials = specials
	return &n, nil
}

// Parts returns the parts s was built from.
func (s *State) Parts() Parts {
	p := Parts{
		Variant:       s.variant,
		Merges:        s.merges.Rules(),
		SpecialTokens: s.specials.Map(),
		Pattern:       s.segmenter.Pattern(),
	}

	if s.permutation != nil {
		p.Permutation = s.permutation.Table()
	}

	return p
}

func (s *State) Variant() Variant { return s.variant }
func (s *State) Merges() *MergeTable { return s.merges }
func (s *State) Vocabulary() *Vocabulary { return s.vocab }
func (s *State) SpecialTokens() *SpecialTokens { return s.specials }
func (s *State) Pattern() string { return s.segmenter.Pattern() }
func (s *State) Permutation() *BytePermutation { return s.permutation }
func (s *State) Segmenter() Segmenter { return s.segmenter }

// VocabSize is the number of merge vocabulary entries, special tokens
// excluded.
func (s *State) VocabSize() int {
	return s.vocab.Len()
}

// MaxID is the largest id s can decode.
func (s *State) MaxID() int32 {
	return max(int32(s.vocab.Len()-1), s.specials.MaxID())
}
