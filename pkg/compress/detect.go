package compress

import (
	"bytes"
	"strings"
)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
)

// FromExtension maps a file name suffix to the algorithm that produced it.
// Names without a known suffix are AlgorithmNone.
func FromExtension(name string) Algorithm {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zst"), strings.HasSuffix(lower, ".zstd"):
		return AlgorithmZSTD
	case strings.HasSuffix(lower, ".gz"), strings.HasSuffix(lower, ".gzip"):
		return AlgorithmGzip
	default:
		return AlgorithmNone
	}
}

// Extension returns the conventional file suffix for the algorithm.
func (a Algorithm) Extension() string {
	switch a {
	case AlgorithmZSTD:
		return ".zst"
	case AlgorithmGzip:
		return ".gz"
	default:
		return ""
	}
}

// TrimExtension removes a compression suffix from name, if any.
func TrimExtension(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range []string{".zstd", ".zst", ".gzip", ".gz"} {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// Detect inspects the leading magic bytes of data.
func Detect(data []byte) Algorithm {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return AlgorithmZSTD
	case bytes.HasPrefix(data, gzipMagic):
		return AlgorithmGzip
	default:
		return AlgorithmNone
	}
}

// DecodeFile returns the plain bytes of a file read from disk, failing
// with ErrTooLarge past limit bytes. The algorithm is taken from the magic
// bytes, falling back to the file name. A limit <= 0 means MaxDecodedSize.
func DecodeFile(name string, data []byte, limit int64) ([]byte, error) {
	algo := Detect(data)
	if algo == AlgorithmNone {
		algo = FromExtension(name)
	}
	return For(algo).decode(data, limit)
}
