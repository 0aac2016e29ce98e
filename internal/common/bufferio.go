package common

import (
	"encoding/binary"
	"errors"
)

var ErrShortBuffer = errors.New("buffer too short")

// BinaryBuffer writes or reads big-endian fields in sequence. Byte slices
// and strings carry a 32 bit length prefix. A read past the end sets Err
// and leaves the remaining outputs untouched.
type BinaryBuffer struct {
	buf    []byte
	offset int
	err    error
}

func NewBinaryBuffer(initialSize int) *BinaryBuffer {
	return &BinaryBuffer{buf: make([]byte, 0, initialSize)}
}

// NewBinaryBufferFrom reads buf starting at offset.
func NewBinaryBufferFrom(buf *[]byte, offset uint64) *BinaryBuffer {
	return &BinaryBuffer{buf: *buf, offset: int(offset)}
}

// GetBuffer returns the bytes written so far.
func (b *BinaryBuffer) GetBuffer() []byte {
	return b.buf
}

func (b *BinaryBuffer) Err() error {
	return b.err
}

func (b *BinaryBuffer) WriteUint8(value uint8) *BinaryBuffer {
	b.buf = append(b.buf, value)
	return b
}

func (b *BinaryBuffer) WriteUint32(value uint32) *BinaryBuffer {
	b.buf = binary.BigEndian.AppendUint32(b.buf, value)
	return b
}

func (b *BinaryBuffer) WriteInt64(value int64) *BinaryBuffer {
	b.buf = binary.BigEndian.AppendUint64(b.buf, uint64(value))
	return b
}

func (b *BinaryBuffer) WriteBytes(value []byte) *BinaryBuffer {
	b.WriteUint32(uint32(len(value)))
	b.buf = append(b.buf, value...)
	return b
}

func (b *BinaryBuffer) WriteString(value string) *BinaryBuffer {
	b.WriteUint32(uint32(len(value)))
	b.buf = append(b.buf, value...)
	return b
}

// next returns the following n bytes, or nil once the buffer is exhausted.
func (b *BinaryBuffer) next(n int) []byte {
	if b.err != nil {
		return nil
	}
	if n < 0 || len(b.buf)-b.offset < n {
		b.err = ErrShortBuffer
		return nil
	}
	p := b.buf[b.offset : b.offset+n]
	b.offset += n
	return p
}

func (b *BinaryBuffer) ReadUint8(out *uint8) *BinaryBuffer {
	if p := b.next(1); p != nil {
		*out = p[0]
	}
	return b
}

func (b *BinaryBuffer) ReadUint32(out *uint32) *BinaryBuffer {
	if p := b.next(4); p != nil {
		*out = binary.BigEndian.Uint32(p)
	}
	return b
}

func (b *BinaryBuffer) ReadInt64(out *int64) *BinaryBuffer {
	if p := b.next(8); p != nil {
		*out = int64(binary.BigEndian.Uint64(p))
	}
	return b
}

// ReadBytes points out into the buffer without copying.
func (b *BinaryBuffer) ReadBytes(out *[]byte) *BinaryBuffer {
	var length uint32
	b.ReadUint32(&length)
	if p := b.next(int(length)); p != nil {
		*out = p
	}
	return b
}

func (b *BinaryBuffer) ReadString(out *string) *BinaryBuffer {
	var p []byte
	if b.ReadBytes(&p); b.err == nil {
		*out = string(p)
	}
	return b
}
