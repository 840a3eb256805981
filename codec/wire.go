package codec

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

type Format int

const (
	FormatJSON Format = iota
	FormatCBOR
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCBOR:
		return "cbor"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FormatFor picks the wire format for a file name. Compression suffixes
// are ignored; anything other than .cbor is JSON.
func FormatFor(name string) Format {
	name, _ = compression(name)
	if strings.EqualFold(filepath.Ext(name), ".cbor") {
		return FormatCBOR
	}
	return FormatJSON
}

var cborEncMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Marshal encodes c. JSON output is indented by two spaces.
func Marshal(c *Config, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return json.MarshalIndent(c, "", "  ")
	case FormatCBOR:
		return cborEncMode.Marshal(c)
	default:
		return nil, fmt.Errorf("unknown format %s", f)
	}
}

func Unmarshal(b []byte, f Format) (*Config, error) {
	var c Config
	switch f {
	case FormatJSON:
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	case FormatCBOR:
		if err := cbor.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown format %s", f)
	}

	return &c, nil
}
