package typedesc

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

const catalogFormatVersion = 1

type encCatalog struct {
	Version int          `msgpack:"v"`
	Types   []Descriptor `msgpack:"t"`
}

// Marshal encodes the catalog with msgpack.
func Marshal(c *Catalog) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(&buf)
	if err := enc.Encode(encCatalog{Version: catalogFormatVersion, Types: c.Descriptors()}); err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes and validates a catalog produced by Marshal.
func Unmarshal(data []byte) (*Catalog, error) {
	var enc encCatalog
	if err := msgpack.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if enc.Version != catalogFormatVersion {
		return nil, fmt.Errorf("decode catalog: unsupported version %d", enc.Version)
	}
	return NewCatalog(enc.Types...)
}
