// Package compress handles the compressed forms mvtreport reads and writes:
// zstd or gzip scan artifacts (sms.json.zst, tcc.json.gz) and the report
// documents packed into the run archive.
//
// Every decode is bounded. A scan directory is untrusted input, so a small
// compressed artifact must not expand into more memory than a plain file
// of the same limit would take.
//
// Example usage:
//
//	c := compress.NewCodec(compress.AlgorithmZSTD, compress.LevelDefault)
//	packed, err := c.Pack(documentJSON)
//	...
//	documentJSON, err = c.Decode(packed.Data)
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// AlgorithmZSTD is the Zstandard compression algorithm.
	AlgorithmZSTD Algorithm = "zstd"

	// AlgorithmGzip is the gzip compression algorithm.
	AlgorithmGzip Algorithm = "gzip"

	// AlgorithmNone stores data as is.
	AlgorithmNone Algorithm = "none"
)

// ParseAlgorithm converts a configuration value to an Algorithm. An empty
// value selects zstd.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AlgorithmZSTD, AlgorithmGzip, AlgorithmNone:
		return Algorithm(s), nil
	case "":
		return AlgorithmZSTD, nil
	default:
		return "", fmt.Errorf("unsupported compression algorithm: %s", s)
	}
}

// Level is an encoder effort between 1 and 9.
type Level int

const (
	LevelFastest Level = 1
	LevelDefault Level = 3
	LevelBetter  Level = 6
	LevelBest    Level = 9
)

// gzipLevel maps a Level onto the three gzip presets.
func (l Level) gzipLevel() int {
	switch {
	case l <= LevelDefault:
		return gzip.BestSpeed
	case l >= 7:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

// MaxDecodedSize is the default bound on decoded output, equal to the
// largest plain artifact file the loader accepts.
const MaxDecodedSize int64 = 512 << 20

// ErrTooLarge is returned when decoded output would exceed the limit.
var ErrTooLarge = errors.New("decoded data exceeds size limit")

// Option configures a Codec.
type Option func(*Codec)

// WithMaxDecodedSize bounds the output of Decode.
func WithMaxDecodedSize(n int64) Option {
	return func(c *Codec) {
		if n > 0 {
			c.maxDecoded = n
		}
	}
}

// Codec encodes and decodes with one algorithm. It is safe for concurrent
// use.
type Codec struct {
	algorithm  Algorithm
	level      Level
	maxDecoded int64

	encoders sync.Pool
	decoders sync.Pool
}

// NewCodec creates a codec for algorithm at the given level.
func NewCodec(algorithm Algorithm, level Level, opts ...Option) *Codec {
	c := &Codec{
		algorithm:  algorithm,
		level:      level,
		maxDecoded: MaxDecodedSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	if algorithm == AlgorithmZSTD {
		c.encoders.New = func() any {
			enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(int(level))))
			return enc
		}
		c.decoders.New = func() any {
			dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(c.maxDecoded)))
			return dec
		}
	}
	return c
}

// Algorithm returns the codec's algorithm.
func (c *Codec) Algorithm() Algorithm {
	return c.algorithm
}

// Encode compresses data.
func (c *Codec) Encode(data []byte) ([]byte, error) {
	switch c.algorithm {
	case AlgorithmZSTD:
		enc := c.encoders.Get().(*zstd.Encoder)
		defer c.encoders.Put(enc)
		return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	case AlgorithmGzip:
		var buf bytes.Buffer
		w, err := gzip.NewWriterLevel(&buf, c.level.gzipLevel())
		if err != nil {
			return nil, fmt.Errorf("gzip writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("gzip write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
		return buf.Bytes(), nil
	case AlgorithmNone:
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
	}
}

// Decode decompresses data. Output larger than the codec limit fails with
// ErrTooLarge.
func (c *Codec) Decode(data []byte) ([]byte, error) {
	return c.decode(data, c.maxDecoded)
}

func (c *Codec) decode(data []byte, limit int64) ([]byte, error) {
	if limit <= 0 || limit > c.maxDecoded {
		limit = c.maxDecoded
	}

	var src io.Reader
	switch c.algorithm {
	case AlgorithmZSTD:
		dec := c.decoders.Get().(*zstd.Decoder)
		defer c.decoders.Put(dec)
		if err := dec.Reset(bytes.NewReader(data)); err != nil {
			return nil, c.decodeError(err)
		}
		src = dec
	case AlgorithmGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer r.Close()
		src = r
	case AlgorithmNone:
		if int64(len(data)) > limit {
			return nil, ErrTooLarge
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
	}

	out, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, c.decodeError(err)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("%s: %w (limit %d bytes)", c.algorithm, ErrTooLarge, limit)
	}
	return out, nil
}

func (c *Codec) decodeError(err error) error {
	if errors.Is(err, zstd.ErrWindowSizeExceeded) || errors.Is(err, zstd.ErrDecoderSizeExceeded) {
		return fmt.Errorf("%s: %w", c.algorithm, ErrTooLarge)
	}
	return fmt.Errorf("%s decompress: %w", c.algorithm, err)
}

// Packed is an encoded document together with its sizes.
type Packed struct {
	Data      []byte
	Algorithm Algorithm
	RawSize   int

	// Ratio is the packed size divided by the raw size. Empty input has
	// ratio 1.
	Ratio float64
}

// Pack encodes raw and reports how well it compressed.
func (c *Codec) Pack(raw []byte) (*Packed, error) {
	data, err := c.Encode(raw)
	if err != nil {
		return nil, err
	}
	p := &Packed{Data: data, Algorithm: c.algorithm, RawSize: len(raw), Ratio: 1}
	if len(raw) > 0 {
		p.Ratio = float64(len(data)) / float64(len(raw))
	}
	return p, nil
}

var shared = map[Algorithm]*Codec{
	AlgorithmZSTD: NewCodec(AlgorithmZSTD, LevelDefault),
	AlgorithmGzip: NewCodec(AlgorithmGzip, LevelDefault),
	AlgorithmNone: NewCodec(AlgorithmNone, LevelDefault),
}

// For returns the shared default-level codec for an algorithm. Unknown
// algorithms get the pass-through codec.
func For(a Algorithm) *Codec {
	if c, ok := shared[a]; ok {
		return c
	}
	return shared[AlgorithmNone]
}
