package codec

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cuemby/filebox/pkg/types"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// ErrUnknownEncoding is returned for payloads in an encoding this build cannot read
var ErrUnknownEncoding = errors.New("unknown payload encoding")

// Encoder and decoder are safe for concurrent EncodeAll/DecodeAll calls and
// expensive to create, so one of each is shared.
var (
	encoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	})
	decoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
)

// Compress encodes data for storage. When zstd does not make it smaller the
// data is stored as-is with EncodingIdentity.
func Compress(data []byte) ([]byte, types.Encoding, error) {
	enc, err := encoder()
	if err != nil {
		return nil, "", fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	out := enc.EncodeAll(data, make([]byte, 0, len(data)))
	if len(out) >= len(data) {
		return slices.Clone(data), types.EncodingIdentity, nil
	}
	return out, types.EncodingZstd, nil
}

// Decompress reverses Compress. An empty encoding is read as zstd, which is
// how entries were written before the encoding was recorded.
func Decompress(payload []byte, encoding types.Encoding) ([]byte, error) {
	switch encoding {
	case types.EncodingIdentity:
		return slices.Clone(payload), nil
	case types.EncodingZstd, "":
		dec, err := decoder()
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		out, err := dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress payload: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, encoding)
	}
}

// NewEntry builds a new file entry for data with a fresh id. mimeType is
// detected from name and content when empty.
func NewEntry(name, mimeType string, data []byte, now time.Time) (*types.FileEntry, error) {
	payload, encoding, err := Compress(data)
	if err != nil {
		return nil, err
	}
	if mimeType == "" {
		mimeType = DetectMimeType(name, data)
	}

	now = now.UTC()
	return &types.FileEntry{
		ID:             uuid.NewString(),
		Name:           name,
		MimeType:       mimeType,
		OriginalSize:   int64(len(data)),
		CompressedSize: int64(len(payload)),
		Encoding:       encoding,
		Payload:        payload,
		CreatedAt:      now,
		ModifiedAt:     now,
		AssociatedIDs:  []string{},
	}, nil
}

// Open returns the original bytes of e
func Open(e *types.FileEntry) ([]byte, error) {
	data, err := Decompress(e.Payload, e.Encoding)
	if err != nil {
		return nil, fmt.Errorf("file %s: %w", e.ID, err)
	}
	if int64(len(data)) != e.OriginalSize {
		return nil, fmt.Errorf("file %s: decoded %d bytes, expected %d", e.ID, len(data), e.OriginalSize)
	}
	return data, nil
}
