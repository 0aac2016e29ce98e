package filestore

import (
	"fmt"

	"meteorgrid/internal/common"
)

const (
	opWrite uint8 = iota + 1
	opDelete
)

// row is one log record. Payload holds the encoded entry, compressed with
// the store codec; it is empty for tombstones.
type row struct {
	Op        uint8
	Timestamp int64
	Key       string
	Payload   []byte
}

func (r *row) MarshalBinary() ([]byte, error) {
	bb := common.NewBinaryBuffer(1 + 8 + 8 + len(r.Key) + len(r.Payload))

	bb.WriteUint8(r.Op).WriteInt64(r.Timestamp).WriteString(r.Key).WriteBytes(r.Payload)

	return bb.GetBuffer(), nil
}

func (r *row) UnmarshalBinary(data []byte) error {
	bb := common.NewBinaryBufferFrom(&data, 0)

	var payload []byte
	bb.ReadUint8(&r.Op).ReadInt64(&r.Timestamp).ReadString(&r.Key).ReadBytes(&payload)
	if err := bb.Err(); err != nil {
		return fmt.Errorf("corrupt row: %w", err)
	}
	r.Payload = append([]byte(nil), payload...)

	return nil
}
