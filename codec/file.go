package codec

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type compressor int

const (
	none compressor = iota
	zstdCompressor
	gzipCompressor
)

// compression strips a compression suffix from name.
func compression(name string) (string, compressor) {
	switch {
	case strings.HasSuffix(name, ".zst"):
		return strings.TrimSuffix(name, ".zst"), zstdCompressor
	case strings.HasSuffix(name, ".gz"):
		return strings.TrimSuffix(name, ".gz"), gzipCompressor
	default:
		return name, none
	}
}

// WriteFile writes c to name in the format its extension selects,
// compressing with zstd or gzip when name ends in .zst or .gz.
func WriteFile(name string, c *Config) error {
	b, err := Marshal(c, FormatFor(name))
	if err != nil {
		return err
	}

	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.WriteCloser
	switch _, kind := compression(name); kind {
	case zstdCompressor:
		if w, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
	case gzipCompressor:
		w = gzip.NewWriter(f)
	}

	if w == nil {
		if _, err := f.Write(b); err != nil {
			return err
		}
		return f.Close()
	}

	if _, err := w.Write(b); err != nil {
		w.Close()
		return err
	}

	if err := w.Close(); err != nil {
		return err
	}

	return f.Close()
}

// ReadFile reads a Config written by WriteFile or by another
// implementation.
func ReadFile(name string) (*Config, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}

	switch _, kind := compression(name); kind {
	case zstdCompressor:
		d, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer d.Close()

		if b, err = d.DecodeAll(b, nil); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	case gzipCompressor:
		r, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		defer r.Close()

		if b, err = io.ReadAll(r); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	c, err := Unmarshal(b, FormatFor(name))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return c, nil
}
