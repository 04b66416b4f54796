package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/vjranagit/histextract/pkg/types"
)

// Compressor handles compression of history output columns
type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompressor creates a new compressor
func NewCompressor(level int) (*Compressor, error) {
	encLevel := zstd.SpeedDefault
	switch level {
	case 1:
		encLevel = zstd.SpeedFastest
	case 2:
		encLevel = zstd.SpeedDefault
	case 3:
		encLevel = zstd.SpeedBetterCompression
	case 4:
		encLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &Compressor{
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// CompressSeries compresses the time and value columns of a series
func (c *Compressor) CompressSeries(s types.Series) (times, values []byte, err error) {
	if times, err = c.CompressFloats(s.Times()); err != nil {
		return nil, nil, fmt.Errorf("failed to compress times: %w", err)
	}
	if values, err = c.CompressFloats(s.Values()); err != nil {
		return nil, nil, fmt.Errorf("failed to compress values: %w", err)
	}
	return times, values, nil
}

// DecompressSeries rebuilds a series of count samples
func (c *Compressor) DecompressSeries(times, values []byte, count int) (types.Series, error) {
	ts, err := c.DecompressFloats(times, count)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress times: %w", err)
	}
	vs, err := c.DecompressFloats(values, count)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress values: %w", err)
	}

	s := make(types.Series, count)
	for i := 0; i < count; i++ {
		s[i] = types.Sample{Time: ts[i], Value: vs[i]}
	}
	return s, nil
}

// CompressFloats compresses float64 values using XOR encoding + zstd
func (c *Compressor) CompressFloats(values []float64) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}

	buf := new(bytes.Buffer)

	// Write first value as-is
	prevBits := math.Float64bits(values[0])
	if err := binary.Write(buf, binary.LittleEndian, prevBits); err != nil {
		return nil, err
	}

	for i := 1; i < len(values); i++ {
		currentBits := math.Float64bits(values[i])
		if err := binary.Write(buf, binary.LittleEndian, currentBits^prevBits); err != nil {
			return nil, err
		}
		prevBits = currentBits
	}

	return c.encoder.EncodeAll(buf.Bytes(), make([]byte, 0, buf.Len())), nil
}

// DecompressFloats decompresses count float64 values
func (c *Compressor) DecompressFloats(data []byte, count int) ([]float64, error) {
	if count == 0 {
		return nil, nil
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no data for %d values", count)
	}

	decompressed, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	buf := bytes.NewReader(decompressed)
	values := make([]float64, count)

	var prevBits uint64
	if err := binary.Read(buf, binary.LittleEndian, &prevBits); err != nil {
		return nil, err
	}
	values[0] = math.Float64frombits(prevBits)

	for i := 1; i < count; i++ {
		var xorBits uint64
		if err := binary.Read(buf, binary.LittleEndian, &xorBits); err != nil {
			return nil, err
		}

		currentBits := xorBits ^ prevBits
		values[i] = math.Float64frombits(currentBits)
		prevBits = currentBits
	}

	return values, nil
}

// Close closes the compressor resources
func (c *Compressor) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}
