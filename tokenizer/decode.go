package tokenizer

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ollama/minbpe/logutil"
)

// DecodeBytes returns the raw bytes ids stand for. Special ids produce
// their literal; other ids are looked up in the vocabulary and mapped back
// through the byte permutation when there is one.
func (s *State) DecodeBytes(ids []int32) ([]byte, error) {
	buf := make([]byte, 0, len(ids)*4)
	for i, id := range ids {
		if text, ok := s.specials.Text(id); ok {
			buf = append(buf, text...)
			continue
		}

		n := len(buf)
		var ok bool
		if buf, ok = s.vocab.AppendInto(buf, id); !ok {
			return nil, fmt.Errorf("%w: unknown token id %d at position %d", ErrMalformedInput, id, i)
		}

		if s.permutation != nil {
			for j := n; j < len(buf); j++ {
				buf[j] = s.permutation.Invert(buf[j])
			}
		}
	}

	return buf, nil
}

// Decode returns the text ids stand for. Byte sequences that are not valid
// UTF-8 are replaced with U+FFFD.
func (s *State) Decode(ids []int32) (string, error) {
	b, err := s.DecodeBytes(ids)
	if err != nil {
		return "", err
	}

	text := replaceInvalid(b)
	logutil.Trace("decoded", "string", text, "from", lazyIDs(ids))
	return text, nil
}

func replaceInvalid(b []byte) string {
	out, _, err := transform.Bytes(xunicode.UTF8.NewDecoder(), b)
	if err != nil {
		// the UTF-8 decoder replaces rather than fails
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return string(out)
}

// RenderToken returns a printable form of b for vocabulary listings.
// Malformed UTF-8 is replaced as in Decode and control characters are
// escaped as \uXXXX.
func RenderToken(b []byte) string {
	text := replaceInvalid(b)

	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if unicode.Is(unicode.C, r) {
			fmt.Fprintf(&sb, `\u%04x`, r)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// RenderVocabulary returns every decodable id with its rendered token.
// Special tokens map to their literal.
func (s *State) RenderVocabulary() map[int32]string {
	out := make(map[int32]string, s.vocab.Len()+s.specials.Len())
	for id := range int32(s.vocab.Len()) {
		b, _ := s.DecodeBytes([]int32{id})
		out[id] = RenderToken(b)
	}

	for tok := range s.specials.All() {
		out[tok.ID] = tok.Text
	}

	return out
}

type lazyIDs []int32

func (l lazyIDs) LogValue() slog.Value {
	return slog.AnyValue(fmt.Sprint([]int32(l)))
}

type lazyToken []byte

func (l lazyToken) LogValue() slog.Value {
	return slog.StringValue(RenderToken(l))
}
