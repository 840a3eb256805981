package tokenizer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is returned for requests that can never succeed
	// with the given settings, e.g. a vocabulary smaller than the byte alphabet.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidOperation is returned when a variant does not support the
	// requested operation. It also matches ErrInvalidConfiguration.
	ErrInvalidOperation = fmt.Errorf("%w: operation not supported by tokenizer type", ErrInvalidConfiguration)

	// ErrInvalidState is returned when merges, special tokens or a byte
	// permutation fail structural checks.
	ErrInvalidState = errors.New("invalid tokenizer state")

	ErrDuplicateSpecialToken = errors.New("duplicate special token")
	ErrIDCollision           = errors.New("special token id collides with merge ids")

	// ErrMalformedInput is returned when decoding an id the state does not know.
	ErrMalformedInput = errors.New("malformed input")
)
