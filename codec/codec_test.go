package codec

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ollama/minbpe/tokenizer"
)

const corpus = `It was the best of times, it was the worst of times, it was the age of
wisdom, it was the age of foolishness, it was the epoch of belief, it was the
epoch of incredulity 1859. Ünïcödé too.`

func trained(t *testing.T, variant tokenizer.Variant) *tokenizer.State {
	t.Helper()

	s, err := tokenizer.Train(t.Context(), corpus, tokenizer.NumBytes+40, tokenizer.TrainOptions{
		Variant:       variant,
		SpecialTokens: map[string]int32{"<|endoftext|>": 1000},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestMergeJSON(t *testing.T) {
	c, err := Unmarshal([]byte(`{
  "type": "basic",
  "vocab_size": 258,
  "merges": [[[97, 97], 256], [[256, 98], 257]],
  "special_tokens": {},
  "pattern": "",
  "metadata": {"implementation": "python", "version": "1.0"}
}`), FormatJSON)
	if err != nil {
		t.Fatal(err)
	}

	want := []Merge{
		{Pair: [2]int32{97, 97}, ID: 256},
		{Pair: [2]int32{256, 98}, ID: 257},
	}

	if diff := cmp.Diff(want, c.Merges, cmpopts.IgnoreUnexported(Merge{})); diff != "" {
		t.Errorf("merges mismatch (-want +got):\n%s", diff)
	}

	b, err := Marshal(c, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(string(b), "[\n    [\n      [\n        97,\n        97\n      ],\n      256\n    ],") {
		t.Errorf("unexpected merge encoding:\n%s", b)
	}

	for _, bad := range []string{`[[97, 97]]`, `[97, 256]`, `[[97, 97], "x"]`} {
		var m Merge
		if err := m.UnmarshalJSON([]byte(bad)); err == nil {
			t.Errorf("%s: expected error", bad)
		}
	}
}

func TestExportImport(t *testing.T) {
	for _, variant := range []tokenizer.Variant{tokenizer.Basic, tokenizer.Regex} {
		t.Run(string(variant), func(t *testing.T) {
			s := trained(t, variant)

			c := Export(s)
			if c.Type != string(variant) || c.VocabSize != s.VocabSize() || c.Metadata.Implementation != "go" {
				t.Errorf("unexpected config header: %+v", c)
			}

			if c.ByteShuffle != nil {
				t.Error("trainable variants have no byte shuffle")
			}

			imported, err := Import(c)
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff(s.Parts(), imported.Parts()); diff != "" {
				t.Errorf("parts mismatch (-want +got):\n%s", diff)
			}

			if diff := cmp.Diff(c, Export(imported), cmpopts.IgnoreUnexported(Merge{})); diff != "" {
				t.Errorf("export not idempotent (-want +got):\n%s", diff)
			}

			for _, text := range []string{corpus, "unseen words<|endoftext|>"} {
				want, err := s.Encode(text)
				if err != nil {
					t.Fatal(err)
				}

				got, err := imported.Encode(text)
				if err != nil {
					t.Fatal(err)
				}

				if diff := cmp.Diff(want, got); diff != "" {
					t.Errorf("encode mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestImportSortsMerges(t *testing.T) {
	c := &Config{
		Type: "basic",
		Merges: []Merge{
			{Pair: [2]int32{256, 98}, ID: 257},
			{Pair: [2]int32{97, 97}, ID: 256},
		},
	}

	s, err := Import(c)
	if err != nil {
		t.Fatal(err)
	}

	ids, err := s.Encode("aab")
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int32{257}, ids); diff != "" {
		t.Errorf("no match (-want +got):\n%s", diff)
	}
}

func TestImportErrors(t *testing.T) {
	shuffle := func(mutate func(map[int]int)) map[int]int {
		m := make(map[int]int, tokenizer.NumBytes)
		for b := range tokenizer.NumBytes {
			m[b] = b
		}
		mutate(m)
		return m
	}

	cases := []struct {
		name string
		c    Config
		err  error
	}{
		{"unknown type", Config{Type: "unigram"}, tokenizer.ErrInvalidConfiguration},
		{"gap", Config{Type: "basic", Merges: []Merge{{Pair: [2]int32{97, 97}, ID: 256}, {Pair: [2]int32{97, 98}, ID: 258}}}, tokenizer.ErrInvalidState},
		{"duplicate id", Config{Type: "basic", Merges: []Merge{{Pair: [2]int32{97, 97}, ID: 256}, {Pair: [2]int32{97, 98}, ID: 256}}}, tokenizer.ErrInvalidState},
		{"duplicate pair", Config{Type: "basic", Merges: []Merge{{Pair: [2]int32{97, 97}, ID: 256}, {Pair: [2]int32{97, 97}, ID: 257}}}, tokenizer.ErrInvalidState},
		{"special collides", Config{Type: "basic", Merges: []Merge{{Pair: [2]int32{97, 97}, ID: 256}}, SpecialTokens: map[string]int32{"<s>": 256}}, tokenizer.ErrIDCollision},
		{"special collides invalid state", Config{Type: "basic", Merges: []Merge{{Pair: [2]int32{97, 97}, ID: 256}}, SpecialTokens: map[string]int32{"<s>": 256}}, tokenizer.ErrInvalidState},
		{"shuffle on regex", Config{Type: "regex", ByteShuffle: shuffle(func(map[int]int) {})}, tokenizer.ErrInvalidState},
		{"short shuffle", Config{Type: "gpt4", Merges: []Merge{{Pair: [2]int32{97, 97}, ID: 256}}, ByteShuffle: shuffle(func(m map[int]int) { delete(m, 7) })}, tokenizer.ErrInvalidState},
		{"shuffle not bijective", Config{Type: "gpt4", Merges: []Merge{{Pair: [2]int32{97, 97}, ID: 256}}, ByteShuffle: shuffle(func(m map[int]int) { m[7] = 8 })}, tokenizer.ErrInvalidState},
		{"basic with pattern", Config{Type: "basic", Pattern: `\w+`}, tokenizer.ErrInvalidState},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Import(&tt.c); !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
		})
	}
}

func TestImportGPT4Shuffle(t *testing.T) {
	m := make(map[int]int, tokenizer.NumBytes)
	for b := range tokenizer.NumBytes {
		m[b] = tokenizer.NumBytes - 1 - b
	}

	c := &Config{
		Type:          "gpt4",
		Merges:        []Merge{{Pair: [2]int32{255 - 'h', 255 - 'i'}, ID: 256}},
		SpecialTokens: map[string]int32{"<|endoftext|>": 300},
		ByteShuffle:   m,
	}

	s, err := Import(c)
	if err != nil {
		t.Fatal(err)
	}

	ids, err := s.Encode("hi<|endoftext|>")
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int32{256, 300}, ids); diff != "" {
		t.Errorf("no match (-want +got):\n%s", diff)
	}

	text, err := s.Decode(ids)
	if err != nil || text != "hi<|endoftext|>" {
		t.Errorf("expected round trip, got %q, %v", text, err)
	}

	if diff := cmp.Diff(m, Export(s).ByteShuffle); diff != "" {
		t.Errorf("byte shuffle mismatch (-want +got):\n%s", diff)
	}
}

func TestFiles(t *testing.T) {
	s := trained(t, tokenizer.Regex)
	c := Export(s)

	for _, name := range []string{"tok.json", "tok.cbor", "tok.json.zst", "tok.cbor.zst", "tok.json.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := WriteFile(path, c); err != nil {
				t.Fatal(err)
			}

			got, err := ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff(c, got, cmpopts.IgnoreUnexported(Merge{}), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFormatFor(t *testing.T) {
	cases := map[string]Format{
		"a.json":     FormatJSON,
		"a.cbor":     FormatCBOR,
		"a.CBOR":     FormatCBOR,
		"a.cbor.zst": FormatCBOR,
		"a.json.gz":  FormatJSON,
		"a":          FormatJSON,
	}

	for name, want := range cases {
		if got := FormatFor(name); got != want {
			t.Errorf("%s: expected %s, got %s", name, want, got)
		}
	}
}
