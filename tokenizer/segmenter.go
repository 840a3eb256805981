package tokenizer

import (
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

const (
	// GPT2Pattern is the GPT-2 pre-tokenization pattern.
	GPT2Pattern = `'(?:[sdmt]|ll|ve|re)| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

	// GPT4Pattern is the cl100k_base pre-tokenization pattern. It is kept in
	// its original form with possessive quantifiers; see compilePattern.
	GPT4Pattern = `'(?i:[sdmt]|ll|ve|re)|[^\r\n\p{L}\p{N}]?+\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]++[\r\n]*|\s*[\r\n]|\s+(?!\S)|\s+`
)

// Segmenter splits text into chunks that are merged independently. Joining
// the chunks always reproduces the input.
type Segmenter interface {
	Split(s string) iter.Seq[string]
	// Pattern is the source pattern, empty for the identity segmenter.
	Pattern() string
}

type identitySegmenter struct{}

func (identitySegmenter) Split(s string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if s != "" {
			yield(s)
		}
	}
}

func (identitySegmenter) Pattern() string { return "" }

type regexSegmenter struct {
	pattern string
	re      *regexp2.Regexp
}

// NewSegmenter compiles pattern. An empty pattern returns a segmenter that
// yields its input as a single chunk.
func NewSegmenter(pattern string) (Segmenter, error) {
	if pattern == "" {
		return identitySegmenter{}, nil
	}

	re, err := compilePattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern %q: %v", ErrInvalidConfiguration, pattern, err)
	}

	return &regexSegmenter{pattern: pattern, re: re}, nil
}

func (s *regexSegmenter) Pattern() string { return s.pattern }

// Split yields every match of the pattern. Text between matches is yielded
// as its own chunk so no input is dropped. Chunks are slices of text, so
// invalid UTF-8 passes through unchanged.
func (s *regexSegmenter) Split(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if text == "" {
			return
		}

		r, offsets := runeOffsets(text)
		var offset int
		for m, _ := s.re.FindRunesMatch(r); m != nil; m, _ = s.re.FindNextMatch(m) {
			if m.Length == 0 {
				continue
			}

			if m.Index > offset {
				if !yield(text[offsets[offset]:offsets[m.Index]]) {
					return
				}
			}

			if !yield(text[offsets[m.Index]:offsets[m.Index+m.Length]]) {
				return
			}

			offset = m.Index + m.Length
		}

		if offset < len(r) {
			yield(text[offsets[offset]:])
		}
	}
}

// runeOffsets decodes text into runes and records the byte offset of each
// rune, plus len(text) at the end. Invalid bytes decode to one
// utf8.RuneError each.
func runeOffsets(text string) ([]rune, []int) {
	r := make([]rune, 0, len(text))
	offsets := make([]int, 0, len(text)+1)
	for i := 0; i < len(text); {
		c, size := utf8.DecodeRuneInString(text[i:])
		r = append(r, c)
		offsets = append(offsets, i)
		i += size
	}
	return r, append(offsets, len(text))
}

// compilePattern compiles a pre-tokenization pattern. regexp2 follows .NET
// syntax, which has no possessive quantifiers, so possessive quantifiers on
// single atoms are rewritten into the equivalent atomic groups first.
func compilePattern(pattern string) (*regexp2.Regexp, error) {
	return regexp2.Compile(atomicPossessive(pattern), regexp2.None)
}

// atomicPossessive rewrites X?+, X*+, X++ and X{n,m}+ into (?>X?), (?>X*),
// (?>X+) and (?>X{n,m}) where X is a character class, an escape or a literal.
// Possessive quantifiers on groups are left untouched.
func atomicPossessive(p string) string {
	if !strings.Contains(p, "+") {
		return p
	}

	var sb strings.Builder
	for i := 0; i < len(p); {
		end, atom := atomEnd(p, i)
		q := quantifierEnd(p, end)
		if atom && q > end && q < len(p) && p[q] == '+' {
			sb.WriteString("(?>")
			sb.WriteString(p[i:q])
			sb.WriteString(")")
			i = q + 1
			continue
		}

		sb.WriteString(p[i:end])
		i = end
	}

	return sb.String()
}

func atomEnd(p string, i int) (int, bool) {
	switch p[i] {
	case '\\':
		if i+1 >= len(p) {
			return len(p), false
		}

		if (p[i+1] == 'p' || p[i+1] == 'P') && i+2 < len(p) && p[i+2] == '{' {
			if j := strings.IndexByte(p[i:], '}'); j > 0 {
				return i + j + 1, true
			}
		}

		_, size := utf8.DecodeRuneInString(p[i+1:])
		return i + 1 + size, true
	case '[':
		j := i + 1
		if j < len(p) && p[j] == '^' {
			j++
		}

		if j < len(p) && p[j] == ']' {
			j++
		}

		for j < len(p) {
			switch p[j] {
			case '\\':
				j += 2
				continue
			case ']':
				return j + 1, true
			}
			j++
		}

		return len(p), false
	case '(', ')', '|', '?', '*', '+', '{', '}', '^', '$':
		return i + 1, false
	default:
		_, size := utf8.DecodeRuneInString(p[i:])
		return i + size, true
	}
}

func quantifierEnd(p string, i int) int {
	if i >= len(p) {
		return i
	}

	switch p[i] {
	case '?', '*', '+':
		return i + 1
	case '{':
		j := i + 1
		digits := 0
		for j < len(p) && (p[j] >= '0' && p[j] <= '9' || p[j] == ',') {
			if p[j] != ',' {
				digits++
			}
			j++
		}

		if digits > 0 && j < len(p) && p[j] == '}' {
			return j + 1
		}
	}

	return i
}
