package cache

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// minCompressSize is the smallest body worth compressing.
const minCompressSize = 128

const encodingZstd = "zstd"

// record is the stored form of a CacheEntry.
type record struct {
	CacheEntry
	Encoding string `json:"encoding,omitempty"`
}

// Codec encodes entries for storage. Bodies are zstd-compressed when that
// makes them smaller.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	enabled bool
}

// NewCodec creates a codec. With compress false bodies are stored as-is but
// compressed records written earlier can still be decoded.
func NewCodec(compress bool) (*Codec, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	c := &Codec{decoder: decoder, enabled: compress}
	if compress {
		encoder, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			decoder.Close()
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		c.encoder = encoder
	}
	return c, nil
}

// DefaultCodec returns a compressing codec.
func DefaultCodec() *Codec {
	c, err := NewCodec(true)
	if err != nil {
		panic(err)
	}
	return c
}

// Encode serializes an entry.
func (c *Codec) Encode(entry *CacheEntry) ([]byte, error) {
	if entry == nil {
		return nil, fmt.Errorf("cache entry cannot be nil")
	}

	rec := record{CacheEntry: *entry}
	if c.enabled && len(entry.Data) >= minCompressSize {
		compressed := c.encoder.EncodeAll(entry.Data, make([]byte, 0, len(entry.Data)))
		if len(compressed) < len(entry.Data) {
			rec.Data = compressed
			rec.Encoding = encodingZstd
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

// Decode is the inverse of Encode.
func (c *Codec) Decode(data []byte) (*CacheEntry, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	switch rec.Encoding {
	case "":
	case encodingZstd:
		body, err := c.decoder.DecodeAll(rec.Data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress body: %v", ErrInvalidEntry, err)
		}
		rec.Data = body
	default:
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrInvalidEntry, rec.Encoding)
	}

	entry := rec.CacheEntry
	return &entry, nil
}

// Close releases the zstd encoder and decoder.
func (c *Codec) Close() error {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}
