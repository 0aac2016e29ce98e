package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashKeyIsStable(t *testing.T) {
	assert.Equal(t, HashKey("user:1"), HashKey("user:1"))
	assert.Equal(t, HashKey(42), HashKey(42))
	assert.NotEqual(t, HashKey(42), HashKey("42"), "type participates in the hash")
	assert.Equal(t, "42", KeyString(42))
}

func TestMetadataExpiry(t *testing.T) {
	now := time.Now()
	md := Metadata{}.WithVersion(3, now)
	assert.Equal(t, uint64(3), md.Version)
	assert.Equal(t, now, md.Created)
	assert.False(t, md.IsExpired(now.Add(time.Hour)), "no lifespan never expires")

	md.Lifespan = time.Minute
	assert.False(t, md.IsExpired(now.Add(30*time.Second)))
	assert.True(t, md.IsExpired(now.Add(2*time.Minute)))

	later := md.WithVersion(4, now.Add(time.Second))
	assert.Equal(t, now, later.Created, "creation time survives updates")
	assert.Equal(t, now.Add(time.Second), later.LastModified)
}

type blob struct{ data []byte }

func (b *blob) MarshalBinary() ([]byte, error) { return b.data, nil }
func (b *blob) UnmarshalBinary(d []byte) error {
	b.data = append([]byte(nil), d...)
	return nil
}

func TestFileFraming(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "frames"))
	require.NoError(t, err)
	defer f.Close()

	big := make([]byte, 70_000)
	big[69_999] = 7

	next, err := WriteAtInFile(f, 0, []byte("first"))
	require.NoError(t, err)
	end, err := WriteAtInFile(f, next, big)
	require.NoError(t, err)

	var b blob
	off, err := ReadAtInFile(f, 0, &b)
	require.NoError(t, err)
	assert.Equal(t, "first", string(b.data))
	assert.Equal(t, next, off)

	off, err = ReadAtInFile(f, next, &b)
	require.NoError(t, err)
	assert.Len(t, b.data, 70_000, "payloads above 64KiB need the 32 bit prefix")
	assert.Equal(t, byte(7), b.data[69_999])
	assert.Equal(t, end, off)
}

func TestBinaryBuffer(t *testing.T) {
	data := NewBinaryBuffer(8).
		WriteUint8(3).WriteUint32(70_000).WriteInt64(-5).WriteString("key").WriteBytes([]byte{1, 2}).
		GetBuffer()

	var (
		op      uint8
		size    uint32
		ts      int64
		key     string
		payload []byte
	)
	bb := NewBinaryBufferFrom(&data, 0)
	bb.ReadUint8(&op).ReadUint32(&size).ReadInt64(&ts).ReadString(&key).ReadBytes(&payload)
	require.NoError(t, bb.Err())
	assert.Equal(t, uint8(3), op)
	assert.Equal(t, uint32(70_000), size)
	assert.Equal(t, int64(-5), ts)
	assert.Equal(t, "key", key)
	assert.Equal(t, []byte{1, 2}, payload)

	short := data[:len(data)-1]
	bb = NewBinaryBufferFrom(&short, 0)
	payload = nil
	bb.ReadUint8(&op).ReadUint32(&size).ReadInt64(&ts).ReadString(&key).ReadBytes(&payload)
	assert.ErrorIs(t, bb.Err(), ErrShortBuffer)
	assert.Nil(t, payload)
}
