package filestore

import (
	"meteorgrid/internal/common"
)

const (
	headerSize    = 12
	formatVersion = 1
)

type header struct {
	Version        uint32
	RowStartOffset uint32
	Codec          uint32
}

func (h *header) MarshalBinary() ([]byte, error) {
	bb := common.NewBinaryBuffer(headerSize)

	bb.WriteUint32(h.Version).WriteUint32(h.RowStartOffset).WriteUint32(h.Codec)

	return bb.GetBuffer(), nil
}

func (h *header) UnmarshalBinary(data []byte) error {
	bb := common.NewBinaryBufferFrom(&data, 0)

	bb.ReadUint32(&h.Version).ReadUint32(&h.RowStartOffset).ReadUint32(&h.Codec)

	return bb.Err()
}
