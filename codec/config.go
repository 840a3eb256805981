// Package codec persists tokenizer state as a Config record.
package codec

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ollama/minbpe/tokenizer"
	"github.com/ollama/minbpe/version"
)

// Implementation identifies records written by this package.
const Implementation = "go"

// Config is the persisted form of a tokenizer. Field names match records
// written by other implementations so configs can be exchanged.
type Config struct {
	Type          string           `json:"type"`
	VocabSize     int              `json:"vocab_size"`
	Merges        []Merge          `json:"merges"`
	SpecialTokens map[string]int32 `json:"special_tokens"`
	Pattern       string           `json:"pattern"`
	ByteShuffle   map[int]int      `json:"byte_shuffle,omitempty"`
	Metadata      Metadata         `json:"metadata"`
}

type Metadata struct {
	Implementation string `json:"implementation"`
	Version        string `json:"version"`
}

// Merge is one merge rule, encoded as [[left, right], id].
type Merge struct {
	_    struct{} `cbor:",toarray"`
	Pair [2]int32
	ID   int32
}

func (m Merge) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{m.Pair, m.ID})
}

func (m *Merge) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	if len(raw) != 2 {
		return fmt.Errorf("merge must have 2 elements, got %d", len(raw))
	}

	if err := json.Unmarshal(raw[0], &m.Pair); err != nil {
		return fmt.Errorf("merge pair: %w", err)
	}

	if err := json.Unmarshal(raw[1], &m.ID); err != nil {
		return fmt.Errorf("merge id: %w", err)
	}

	return nil
}

// Export captures s as a Config.
func Export(s *tokenizer.State) *Config {
	rules := s.Merges().Rules()
	merges := make([]Merge, len(rules))
	for i, rule := range rules {
		merges[i] = Merge{Pair: [2]int32{rule.Left, rule.Right}, ID: rule.ID}
	}

	c := Config{
		Type:          string(s.Variant()),
		VocabSize:     s.VocabSize(),
		Merges:        merges,
		SpecialTokens: s.SpecialTokens().Map(),
		Pattern:       s.Pattern(),
		Metadata: Metadata{
			Implementation: Implementation,
			Version:        version.Version,
		},
	}

	if p := s.Permutation(); p != nil {
		c.ByteShuffle = make(map[int]int, tokenizer.NumBytes)
		for b, v := range p.Table() {
			c.ByteShuffle[b] = v
		}
	}

	return &c
}

// Import rebuilds the state described by c. Merges are ordered by id
// before validation. A gpt4 config without merges or without a byte
// shuffle takes the missing parts from the pretrained state.
func Import(c *Config) (*tokenizer.State, error) {
	variant, err := tokenizer.ParseVariant(c.Type)
	if err != nil {
		return nil, err
	}

	parts := tokenizer.Parts{
		Variant:       variant,
		Merges:        make([]tokenizer.MergeRule, len(c.Merges)),
		SpecialTokens: c.SpecialTokens,
		Pattern:       c.Pattern,
	}

	for i, m := range c.Merges {
		parts.Merges[i] = tokenizer.MergeRule{
			Pair: tokenizer.Pair{Left: m.Pair[0], Right: m.Pair[1]},
			ID:   m.ID,
		}
	}

	slices.SortStableFunc(parts.Merges, func(a, b tokenizer.MergeRule) int {
		return cmp.Compare(a.ID, b.ID)
	})

	if c.ByteShuffle != nil {
		if parts.Permutation, err = byteShuffle(c.ByteShuffle); err != nil {
			return nil, err
		}
	}

	if variant == tokenizer.GPT4 && (len(parts.Merges) == 0 || parts.Permutation == nil) {
		pretrained, err := tokenizer.Pretrained(variant)
		if err != nil {
			return nil, err
		}

		defaults := pretrained.Parts()
		if len(parts.Merges) == 0 {
			parts.Merges = defaults.Merges
		}

		if parts.Permutation == nil {
			parts.Permutation = defaults.Permutation
		}

		if len(parts.SpecialTokens) == 0 {
			parts.SpecialTokens = defaults.SpecialTokens
		}
	}

	s, err := tokenizer.FromParts(parts)
	if err != nil {
		return nil, err
	}

	if c.VocabSize != 0 && c.VocabSize != s.VocabSize() {
		slog.Warn("config vocab_size does not match merges", "vocab_size", c.VocabSize, "actual", s.VocabSize())
	}

	slog.Debug("imported tokenizer", "type", variant, "merges", s.Merges().Len(), "special_tokens", s.SpecialTokens().Len(), "implementation", c.Metadata.Implementation)
	return s, nil
}

func byteShuffle(m map[int]int) ([]int, error) {
	if len(m) != tokenizer.NumBytes {
		return nil, fmt.Errorf("%w: byte_shuffle has %d entries, want %d", tokenizer.ErrInvalidState, len(m), tokenizer.NumBytes)
	}

	table := make([]int, tokenizer.NumBytes)
	for b := range tokenizer.NumBytes {
		v, ok := m[b]
		if !ok {
			return nil, fmt.Errorf("%w: byte_shuffle is missing byte %d", tokenizer.ErrInvalidState, b)
		}
		table[b] = v
	}

	return table, nil
}
