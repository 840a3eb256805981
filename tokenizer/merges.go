package tokenizer

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
)

// Pair is two adjacent token ids.
type Pair struct {
	Left, Right int32
}

// Compare orders pairs numerically by left id, then right id.
func (p Pair) Compare(o Pair) int {
	return cmp.Or(cmp.Compare(p.Left, o.Left), cmp.Compare(p.Right, o.Right))
}

// MergeRule rewrites Pair into ID. Its rank is its position in a MergeTable.
type MergeRule struct {
	Pair
	ID int32
}

// MergeTable is the ordered list of learned merges. Rank 0 is the first merge
// learned and produces id 256.
type MergeTable struct {
	rules []MergeRule
	ranks map[Pair]int
}

// NewMergeTable validates rules and indexes them by pair. Result ids must be
// contiguous from NumBytes in rank order, pairs must be unique, and both
// parents of a rule must be defined before it.
func NewMergeTable(rules []MergeRule) (*MergeTable, error) {
	m := &MergeTable{
		rules: slices.Clone(rules),
		ranks: make(map[Pair]int, len(rules)),
	}

	for rank, rule := range m.rules {
		if want := int32(NumBytes + rank); rule.ID != want {
			return nil, fmt.Errorf("%w: merge rank %d has id %d, want %d", ErrInvalidState, rank, rule.ID, want)
		}

		if rule.Left < 0 || rule.Right < 0 || rule.Left >= rule.ID || rule.Right >= rule.ID {
			return nil, fmt.Errorf("%w: merge %d uses undefined parent (%d, %d)", ErrInvalidState, rule.ID, rule.Left, rule.Right)
		}

		if prev, ok := m.ranks[rule.Pair]; ok {
			return nil, fmt.Errorf("%w: pair (%d, %d) merged twice, ids %d and %d", ErrInvalidState, rule.Left, rule.Right, m.rules[prev].ID, rule.ID)
		}

		m.ranks[rule.Pair] = rank
	}

	return m, nil
}

// Len returns the number of merges.
func (m *MergeTable) Len() int {
	return len(m.rules)
}

// NextID is the id the next learned merge would receive.
func (m *MergeTable) NextID() int32 {
	return int32(NumBytes + len(m.rules))
}

// Lookup returns the rank and result id of p.
func (m *MergeTable) Lookup(p Pair) (rank int, id int32, ok bool) {
	rank, ok = m.ranks[p]
	if !ok {
		return -1, -1, false
	}
	return rank, m.rules[rank].ID, true
}

// Rules returns a copy of the rules in rank order.
func (m *MergeTable) Rules() []MergeRule {
	return slices.Clone(m.rules)
}

// All iterates rules in rank order.
func (m *MergeTable) All() iter.Seq2[int, MergeRule] {
	return func(yield func(int, MergeRule) bool) {
		for rank, rule := range m.rules {
			if !yield(rank, rule) {
				return
			}
		}
	}
}

// Vocabulary replays the merges over the byte alphabet.
func (m *MergeTable) Vocabulary() *Vocabulary {
	v := newBaseVocabulary(NumBytes + len(m.rules))
	for _, rule := range m.rules {
		v.add(rule.Left, rule.Right)
	}
	return v
}
