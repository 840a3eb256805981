package tokenizer

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ollama/minbpe/logutil"
)

// TieBreak selects between pairs with equal counts during training.
type TieBreak int

const (
	// TieBreakLowestPair picks the numerically smallest (left, right) pair.
	TieBreakLowestPair TieBreak = iota
	// TieBreakFirstOccurrence picks the pair that appears first in the
	// corpus, matching tokenizers that select from an insertion ordered map.
	TieBreakFirstOccurrence
)

func (t TieBreak) String() string {
	switch t {
	case TieBreakLowestPair:
		return "lowest-pair"
	case TieBreakFirstOccurrence:
		return "first-occurrence"
	default:
		return fmt.Sprintf("TieBreak(%d)", int(t))
	}
}

// ParseTieBreak is the inverse of TieBreak.String.
func ParseTieBreak(s string) (TieBreak, error) {
	for _, t := range []TieBreak{TieBreakLowestPair, TieBreakFirstOccurrence} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown tie break %q", ErrInvalidConfiguration, s)
}

// MergeEvent describes a merge the moment it is learned.
type MergeEvent struct {
	Rank  int
	Pair  Pair
	ID    int32
	Count int
	// Bytes is the byte sequence the new id stands for.
	Bytes []byte
	// Target is the number of merges requested.
	Target int
}

type TrainOptions struct {
	// Variant defaults to Basic.
	Variant Variant
	// Pattern overrides the variant's default pattern.
	Pattern string

	// SpecialTokens are registered on the trained state. Their ids must lie
	// above the merge space.
	SpecialTokens map[string]int32

	// Workers bounds pair counting concurrency. Zero uses every CPU.
	Workers  int
	TieBreak TieBreak

	// OnMerge, when set, is called synchronously after every merge.
	OnMerge func(MergeEvent)
}

// Train learns vocabSize-NumBytes merges from text. Training stops early
// when no adjacent pair remains. The result does not depend on
// opts.Workers.
func Train(ctx context.Context, text string, vocabSize int, opts TrainOptions) (*State, error) {
	variant := cmp.Or(opts.Variant, Basic)
	if _, err := ParseVariant(string(variant)); err != nil {
		return nil, err
	}

	if !variant.Trainable() {
		return nil, fmt.Errorf("%w: %s tokenizer is pretrained", ErrInvalidOperation, variant)
	}

	if vocabSize < NumBytes {
		return nil, fmt.Errorf("%w: vocab size %d is smaller than the %d byte alphabet", ErrInvalidConfiguration, vocabSize, NumBytes)
	}

	if !variant.UsesPattern() && opts.Pattern != "" {
		return nil, fmt.Errorf("%w: %s tokenizer does not take a pattern", ErrInvalidConfiguration, variant)
	}

	segmenter, err := NewSegmenter(cmp.Or(opts.Pattern, variant.DefaultPattern()))
	if err != nil {
		return nil, err
	}

	t := trainer{
		chunks:   poolChunks(segmenter, text),
		workers:  cmp.Or(max(opts.Workers, 0), runtime.NumCPU()),
		tieBreak: opts.TieBreak,
	}

	target := vocabSize - NumBytes
	vocab := newBaseVocabulary(vocabSize)
	rules := make([]MergeRule, 0, target)

	start := time.Now()
	for len(rules) < target {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		stats, err := t.count(ctx)
		if err != nil {
			return nil, err
		}

		pair, stat, ok := t.best(stats)
		if !ok {
			slog.Debug("no pairs left to merge", "merges", len(rules), "target", target)
			break
		}

		id := int32(NumBytes + len(rules))
		if err := t.merge(ctx, pair, id); err != nil {
			return nil, err
		}

		rules = append(rules, MergeRule{Pair: pair, ID: id})
		vocab.add(pair.Left, pair.Right)

		b, _ := vocab.Bytes(id)
		logutil.Trace("merge", "rank", len(rules)-1, "left", pair.Left, "right", pair.Right, "id", id, "count", stat.count, "token", lazyToken(b))
		if opts.OnMerge != nil {
			opts.OnMerge(MergeEvent{
				Rank:   len(rules) - 1,
				Pair:   pair,
				ID:     id,
				Count:  stat.count,
				Bytes:  b,
				Target: target,
			})
		}
	}

	slog.Debug("trained tokenizer", "type", variant, "merges", len(rules), "chunks", len(t.chunks), "workers", t.workers, "elapsed", time.Since(start))
	return FromParts(Parts{
		Variant:       variant,
		Merges:        rules,
		SpecialTokens: opts.SpecialTokens,
		Pattern:       opts.Pattern,
	})
}

// chunk is a distinct segment of the corpus and the number of times it
// occurs. Chunks are kept in order of first occurrence.
type chunk struct {
	ids    []int32
	weight int
}

func poolChunks(s Segmenter, text string) []chunk {
	index := make(map[string]int)
	var chunks []chunk
	for piece := range s.Split(text) {
		// single bytes never form a pair
		if len(piece) < 2 {
			continue
		}

		if i, ok := index[piece]; ok {
			chunks[i].weight++
			continue
		}

		ids := make([]int32, len(piece))
		for i := range len(piece) {
			ids[i] = int32(piece[i])
		}

		index[piece] = len(chunks)
		chunks = append(chunks, chunk{ids: ids, weight: 1})
	}

	return chunks
}

type pairStat struct {
	count int
	// first is the chunk index in the high bits and the position within
	// the chunk in the low bits of the earliest occurrence
	first int64
}

type trainer struct {
	chunks   []chunk
	workers  int
	tieBreak TieBreak
}

type span struct{ lo, hi int }

// shards splits chunk indexes into contiguous ranges, one per worker.
func (t *trainer) shards() []span {
	n := min(t.workers, len(t.chunks))
	if n == 0 {
		return nil
	}

	size := (len(t.chunks) + n - 1) / n
	spans := make([]span, 0, n)
	for lo := 0; lo < len(t.chunks); lo += size {
		spans = append(spans, span{lo, min(lo+size, len(t.chunks))})
	}
	return spans
}

// count tallies adjacent pairs across every chunk. Shards are counted
// concurrently and combined with commutative operations so the result is
// independent of scheduling.
func (t *trainer) count(ctx context.Context) (map[Pair]pairStat, error) {
	shards := t.shards()
	partial := make([]map[Pair]pairStat, len(shards))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for i, s := range shards {
		g.Go(func() error {
			stats := make(map[Pair]pairStat)
			for c := s.lo; c < s.hi; c++ {
				ids, weight := t.chunks[c].ids, t.chunks[c].weight
				for j := 0; j+1 < len(ids); j++ {
					p := Pair{ids[j], ids[j+1]}
					stat, ok := stats[p]
					if !ok {
						stat.first = int64(c)<<32 | int64(j)
					}

					stat.count += weight
					stats[p] = stat
				}
			}

			partial[i] = stats
			return ctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(partial) == 0 {
		return map[Pair]pairStat{}, nil
	}

	stats := partial[0]
	for _, other := range partial[1:] {
		for p, o := range other {
			stat, ok := stats[p]
			if !ok {
				stats[p] = o
				continue
			}

			stat.count += o.count
			stat.first = min(stat.first, o.first)
			stats[p] = stat
		}
	}

	return stats, nil
}

func (t *trainer) best(stats map[Pair]pairStat) (Pair, pairStat, bool) {
	var best Pair
	var bestStat pairStat
	var found bool
	for p, stat := range stats {
		if !found || t.less(p, stat, best, bestStat) {
			best, bestStat, found = p, stat, true
		}
	}
	return best, bestStat, found
}

// less reports whether p should be merged before q.
func (t *trainer) less(p Pair, ps pairStat, q Pair, qs pairStat) bool {
	if ps.count != qs.count {
		return ps.count > qs.count
	}

	if t.tieBreak == TieBreakFirstOccurrence {
		return ps.first < qs.first
	}

	return p.Compare(q) < 0
}

func (t *trainer) merge(ctx context.Context, p Pair, id int32) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for _, s := range t.shards() {
		g.Go(func() error {
			for c := s.lo; c < s.hi; c++ {
				t.chunks[c].ids = replacePair(t.chunks[c].ids, p, id)
			}
			return ctx.Err()
		})
	}
	return g.Wait()
}

// replacePair rewrites non-overlapping occurrences of p, scanning left to
// right. ids is reused for the result.
func replacePair(ids []int32, p Pair, id int32) []int32 {
	out := ids[:0]
	for i := 0; i < len(ids); i++ {
		if i+1 < len(ids) && ids[i] == p.Left && ids[i+1] == p.Right {
			out = append(out, id)
			i++
			continue
		}
		out = append(out, ids[i])
	}
	return out
}
