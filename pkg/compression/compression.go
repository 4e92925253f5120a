// Package compression is the catalogue of compression algorithms cacheboot
// knows about. The selected algorithm is written into the cache settings for
// the backend to honour, and the CLI uses the same compressors for settings
// dumps.
package compression

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"
)

// Compressor defines the interface for settings and cache payload compression
type Compressor interface {
	// Compress compresses the given data and returns compressed bytes
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses the given compressed bytes
	Decompress(compressed []byte) ([]byte, error)

	// NewWriter wraps w so that written bytes are compressed
	NewWriter(w io.Writer) (io.WriteCloser, error)

	// Name returns the name/identifier of the compressor
	Name() string
}

// CompressorType represents different compression algorithms
type CompressorType string

const (
	CompressorNone    CompressorType = "none"
	CompressorGzip    CompressorType = "gzip"
	CompressorDeflate CompressorType = "deflate"
)

// Algorithms lists the supported algorithms
func Algorithms() []CompressorType {
	return []CompressorType{CompressorNone, CompressorGzip, CompressorDeflate}
}

// ParseAlgorithm converts a case-insensitive name into a CompressorType.
// The empty string and "off" mean none.
func ParseAlgorithm(s string) (CompressorType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return CompressorNone, nil
	case "gzip":
		return CompressorGzip, nil
	case "deflate", "zlib":
		return CompressorDeflate, nil
	default:
		return CompressorNone, fmt.Errorf("unsupported compression algorithm: %s", s)
	}
}

// Config holds compression configuration
type Config struct {
	// Algorithm specifies which compression algorithm to use
	Algorithm CompressorType

	// MinSize is the minimum size in bytes before compression is applied
	MinSize int

	// Level is the compression level (1-9 for gzip/deflate, -1 for default)
	Level int
}

// NewDefaultConfig creates a default compression configuration
func NewDefaultConfig() *Config {
	return &Config{
		Algorithm: CompressorNone, // Disabled by default
		MinSize:   1024,           // 1KB minimum
		Level:     -1,             // Default level
	}
}

// WithAlgorithm sets the compression algorithm
func (c *Config) WithAlgorithm(algorithm CompressorType) *Config {
	c.Algorithm = algorithm
	return c
}

// WithMinSize sets the minimum size threshold for compression
func (c *Config) WithMinSize(minSize int) *Config {
	c.MinSize = minSize
	return c
}

// WithLevel sets the compression level
func (c *Config) WithLevel(level int) *Config {
	c.Level = level
	return c
}

// Enabled reports whether an algorithm other than none is selected
func (c *Config) Enabled() bool {
	return c != nil && c.Algorithm != "" && c.Algorithm != CompressorNone
}

// Validate checks the algorithm, level and threshold
func (c *Config) Validate() error {
	if _, err := ParseAlgorithm(string(c.Algorithm)); err != nil {
		return err
	}
	if c.MinSize < 0 {
		return fmt.Errorf("compression min size must not be negative, got %d", c.MinSize)
	}
	if c.Level != -1 && (c.Level < 0 || c.Level > 9) {
		return fmt.Errorf("compression level must be -1 or between 0 and 9, got %d", c.Level)
	}
	return nil
}

// NoOpCompressor provides a no-op implementation that doesn't compress
type NoOpCompressor struct{}

// NewNoOpCompressor creates a new no-op compressor
func NewNoOpCompressor() *NoOpCompressor {
	return &NoOpCompressor{}
}

// Compress returns the data unchanged
func (n *NoOpCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

// Decompress returns the data unchanged
func (n *NoOpCompressor) Decompress(compressed []byte) ([]byte, error) {
	return compressed, nil
}

// NewWriter returns w with a no-op Close
func (n *NoOpCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopCloser{w}, nil
}

// Name returns the compressor name
func (n *NoOpCompressor) Name() string {
	return string(CompressorNone)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// GzipCompressor implements compression using gzip
type GzipCompressor struct {
	level int
}

// NewGzipCompressor creates a new gzip compressor with the specified level
func NewGzipCompressor(level int) *GzipCompressor {
	return &GzipCompressor{level: level}
}

// NewWriter returns a gzip writer on w
func (g *GzipCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	writer, err := gzip.NewWriterLevel(w, g.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	return writer, nil
}

// Compress compresses data using gzip
func (g *GzipCompressor) Compress(data []byte) ([]byte, error) {
	return compressWith(g, data)
}

// Decompress decompresses gzip data
func (g *GzipCompressor) Decompress(compressed []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	return readAllAndClose(reader)
}

// Name returns the compressor name
func (g *GzipCompressor) Name() string {
	return string(CompressorGzip)
}

// DeflateCompressor implements compression using zlib/deflate
type DeflateCompressor struct {
	level int
}

// NewDeflateCompressor creates a new deflate compressor with the specified level
func NewDeflateCompressor(level int) *DeflateCompressor {
	return &DeflateCompressor{level: level}
}

// NewWriter returns a zlib writer on w
func (d *DeflateCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	writer, err := zlib.NewWriterLevel(w, d.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create deflate writer: %w", err)
	}
	return writer, nil
}

// Compress compresses data using deflate
func (d *DeflateCompressor) Compress(data []byte) ([]byte, error) {
	return compressWith(d, data)
}

// Decompress decompresses deflate data
func (d *DeflateCompressor) Decompress(compressed []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("failed to create deflate reader: %w", err)
	}
	return readAllAndClose(reader)
}

// Name returns the compressor name
func (d *DeflateCompressor) Name() string {
	return string(CompressorDeflate)
}

func compressWith(c Compressor, data []byte) ([]byte, error) {
	var buf bytes.Buffer

	writer, err := c.NewWriter(&buf)
	if err != nil {
		return nil, err
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write compressed data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s writer: %w", c.Name(), err)
	}

	return buf.Bytes(), nil
}

func readAllAndClose(r io.ReadCloser) ([]byte, error) {
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read decompressed data: %w", err)
	}

	return data, nil
}

// NewCompressor creates a new compressor based on the configuration
func NewCompressor(config *Config) (Compressor, error) {
	if !config.Enabled() {
		return NewNoOpCompressor(), nil
	}

	switch config.Algorithm {
	case CompressorGzip:
		return NewGzipCompressor(config.Level), nil
	case CompressorDeflate:
		return NewDeflateCompressor(config.Level), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", config.Algorithm)
	}
}

// Detect reports which algorithm produced data by its header bytes
func Detect(data []byte) CompressorType {
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		return CompressorGzip
	case len(data) >= 2 && data[0]&0x0f == 8 && (uint16(data[0])<<8|uint16(data[1]))%31 == 0:
		return CompressorDeflate
	default:
		return CompressorNone
	}
}

// Pack compresses data when it meets the size threshold and compression
// actually shrinks it. The bool reports whether the result is compressed.
func Pack(data []byte, compressor Compressor, minSize int) ([]byte, bool, error) {
	if len(data) < minSize {
		return data, false, nil
	}

	compressed, err := compressor.Compress(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to compress data: %w", err)
	}

	// Only use compression if it actually reduces size
	if len(compressed) >= len(data) {
		return data, false, nil
	}

	return compressed, true, nil
}

// Unpack decompresses data produced by any supported algorithm and returns
// anything else unchanged
func Unpack(data []byte) ([]byte, error) {
	switch Detect(data) {
	case CompressorGzip:
		return NewGzipCompressor(-1).Decompress(data)
	case CompressorDeflate:
		out, err := NewDeflateCompressor(-1).Decompress(data)
		if err != nil {
			// a plain payload can pass the zlib header check by chance
			return data, nil
		}
		return out, nil
	default:
		return data, nil
	}
}

// Ensure interfaces are implemented
var (
	_ Compressor = (*NoOpCompressor)(nil)
	_ Compressor = (*GzipCompressor)(nil)
	_ Compressor = (*DeflateCompressor)(nil)
)
