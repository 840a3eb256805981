package tokenizer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromMergeableRanks(t *testing.T) {
	// single bytes are ranked in reverse order
	ranks := make(map[string]int)
	for b := range NumBytes {
		ranks[string([]byte{byte(b)})] = NumBytes - 1 - b
	}
	ranks["ab"] = 256
	ranks["cd"] = 257
	ranks["abcd"] = 258
	ranks["abc"] = 259

	s, err := fromMergeableRanks(GPT4, ranks, map[string]int32{"<|end|>": 300})
	if err != nil {
		t.Fatal(err)
	}

	a, b, c, d := int32(255-'a'), int32(255-'b'), int32(255-'c'), int32(255-'d')
	want := []MergeRule{
		{Pair{a, b}, 256},
		{Pair{c, d}, 257},
		{Pair{256, 257}, 258},
		{Pair{256, c}, 259},
	}

	if diff := cmp.Diff(want, s.Merges().Rules()); diff != "" {
		t.Errorf("merges mismatch (-want +got):\n%s", diff)
	}

	if got := s.Permutation().Apply('a'); got != byte(a) {
		t.Errorf("expected 'a' to map to %d, got %d", a, got)
	}

	ids, err := s.Encode("abcd<|end|>abc")
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int32{258, 300, 259}, ids); diff != "" {
		t.Errorf("encode mismatch (-want +got):\n%s", diff)
	}

	text, err := s.Decode(ids)
	if err != nil || text != "abcd<|end|>abc" {
		t.Errorf("expected round trip, got %q, %v", text, err)
	}

	delete(ranks, "\x00")
	if _, err := fromMergeableRanks(GPT4, ranks, nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestPretrainedGPT4(t *testing.T) {
	if testing.Short() {
		t.Skip("loads cl100k_base")
	}

	s, err := Pretrained(GPT4)
	if err != nil {
		t.Fatal(err)
	}

	if s.Variant() != GPT4 || s.Pattern() != GPT4Pattern {
		t.Errorf("unexpected variant %s or pattern %s", s.Variant(), s.Pattern())
	}

	if s.VocabSize() != 100256 {
		t.Errorf("expected 100256 entries, got %d", s.VocabSize())
	}

	cases := []struct {
		input string
		want  []int32
	}{
		{"hello world", []int32{15339, 1917}},
		{"<|endoftext|>", []int32{100257}},
	}

	for _, tt := range cases {
		t.Run(tt.input, func(t *testing.T) {
			ids, err := s.Encode(tt.input)
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("encode mismatch (-want +got):\n%s", diff)
			}
		})
	}

	for _, input := range []string{corpus, "hello world", "\x00 bytes \xff"} {
		ids, err := s.Encode(input)
		if err != nil {
			t.Fatal(err)
		}

		b, err := s.DecodeBytes(ids)
		if err != nil {
			t.Fatal(err)
		}

		if string(b) != input {
			t.Errorf("round trip: expected %q, got %q", input, b)
		}
	}

	if _, err := Pretrained(Regex); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("expected ErrInvalidOperation, got %v", err)
	}
}
