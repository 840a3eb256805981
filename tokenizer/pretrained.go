package tokenizer

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const cl100kBase = "https://openaipublic.blob.core.windows.net/encodings/cl100k_base.tiktoken"

// GPT4SpecialTokens are the cl100k_base special tokens.
var GPT4SpecialTokens = map[string]int32{
	"<|endoftext|>":   100257,
	"<|fim_prefix|>":  100258,
	"<|fim_middle|>":  100259,
	"<|fim_suffix|>":  100260,
	"<|endofprompt|>": 100276,
}

var (
	gpt4Once  sync.Once
	gpt4State *State
	gpt4Err   error
)

// Pretrained returns the fixed state of a pretrained variant. Only GPT4 has
// one. The cl100k_base ranks are embedded and parsed on first use.
func Pretrained(v Variant) (*State, error) {
	if v != GPT4 {
		return nil, fmt.Errorf("%w: %s tokenizer has no pretrained state", ErrInvalidOperation, v)
	}

	gpt4Once.Do(func() {
		start := time.Now()
		ranks, err := tiktoken_loader.NewOfflineLoader().LoadTiktokenBpe(cl100kBase)
		if err != nil {
			gpt4Err = fmt.Errorf("load cl100k_base: %w", err)
			return
		}

		gpt4State, gpt4Err = fromMergeableRanks(GPT4, ranks, GPT4SpecialTokens)
		slog.Debug("loaded pretrained tokenizer", "type", v, "ranks", len(ranks), "elapsed", time.Since(start))
	})

	return gpt4State, gpt4Err
}

// fromMergeableRanks converts tiktoken style ranks, where every token is
// ranked by byte string, into merges over a permuted byte alphabet. Single
// bytes must hold ranks 0 to 255; their ranks form the permutation. Each
// longer token is split back into the two parts byte pair encoding would
// join last.
func fromMergeableRanks(v Variant, ranks map[string]int, specials map[string]int32) (*State, error) {
	permutation := make([]int, NumBytes)
	for b := range NumBytes {
		rank, ok := ranks[string([]byte{byte(b)})]
		if !ok {
			return nil, fmt.Errorf("%w: byte %d has no rank", ErrInvalidState, b)
		}

		if rank >= NumBytes {
			return nil, fmt.Errorf("%w: byte %d has rank %d", ErrInvalidState, b, rank)
		}

		permutation[b] = rank
	}

	rules := make([]MergeRule, 0, len(ranks)-NumBytes)
	for token, rank := range ranks {
		if len(token) < 2 {
			continue
		}

		parts := splitLast(ranks, []byte(token), rank)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: token %q with rank %d does not split into a pair", ErrInvalidState, token, rank)
		}

		rules = append(rules, MergeRule{
			Pair: Pair{int32(ranks[string(parts[0])]), int32(ranks[string(parts[1])])},
			ID:   int32(rank),
		})
	}

	slices.SortFunc(rules, func(a, b MergeRule) int {
		return cmp.Compare(a.ID, b.ID)
	})

	return FromParts(Parts{
		Variant:       v,
		Merges:        rules,
		SpecialTokens: specials,
		Permutation:   permutation,
	})
}

// splitLast runs byte pair encoding on token using only ranks below
// maxRank.
func splitLast(ranks map[string]int, token []byte, maxRank int) [][]byte {
	parts := make([][]byte, len(token))
	for i := range token {
		parts[i] = token[i : i+1]
	}

	for {
		best, bestRank := -1, maxRank
		for i := 0; i+1 < len(parts); i++ {
			rank, ok := ranks[string(parts[i])+string(parts[i+1])]
			if ok && rank < bestRank {
				best, bestRank = i, rank
			}
		}

		if best < 0 {
			return parts
		}

		merged := token[offsetOf(parts, best) : offsetOf(parts, best)+len(parts[best])+len(parts[best+1])]
		parts = slices.Replace(parts, best, best+2, merged)
	}
}

func offsetOf(parts [][]byte, i int) int {
	var n int
	for _, p := range parts[:i] {
		n += len(p)
	}
	return n
}
