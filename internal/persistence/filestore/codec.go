package filestore

import (
	"fmt"

	"meteorgrid/internal/common"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

type Compression uint32

const (
	CompressionNone Compression = iota
	CompressionZSTD
	CompressionLZ4
)

func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZSTD, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q", name)
	}
}

// codec compresses payloads. LZ4 blocks are prefixed with the raw size.
type codec struct {
	kind    Compression
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newCodec(kind Compression) (*codec, error) {
	c := &codec{kind: kind}
	if kind == CompressionZSTD {
		var err error
		if c.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
			return nil, err
		}
		if c.decoder, err = zstd.NewReader(nil); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *codec) compress(data []byte) ([]byte, error) {
	switch c.kind {
	case CompressionZSTD:
		return c.encoder.EncodeAll(data, nil), nil
	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(data))
		bb := common.NewBinaryBuffer(4 + bound)
		bb.WriteUint32(uint32(len(data)))
		out := make([]byte, bound)
		n, err := lz4.CompressBlock(data, out, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// incompressible, store raw with a zero marker
			return append(common.NewBinaryBuffer(4).WriteUint32(0).GetBuffer(), data...), nil
		}
		return append(bb.GetBuffer(), out[:n]...), nil
	default:
		return data, nil
	}
}

func (c *codec) decompress(data []byte) ([]byte, error) {
	switch c.kind {
	case CompressionZSTD:
		return c.decoder.DecodeAll(data, nil)
	case CompressionLZ4:
		if len(data) < 4 {
			return nil, fmt.Errorf("lz4 block too short")
		}
		var size uint32
		common.NewBinaryBufferFrom(&data, 0).ReadUint32(&size)
		if size == 0 {
			return data[4:], nil
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data[4:], out)
		if err != nil {
			return nil, err
		}
		return out[:n], nil
	default:
		return data, nil
	}
}

func (c *codec) close() {
	if c.decoder != nil {
		c.decoder.Close()
	}
	if c.encoder != nil {
		_ = c.encoder.Close()
	}
}
