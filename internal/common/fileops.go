package common

import (
	"os"
)

const lengthPrefixSize = 4

// WriteAtInFile writes data prefixed with its length and returns the offset after it.
func WriteAtInFile(file *os.File, offset int64, data []byte) (int64, error) {
	dataSizeBytes := NewBinaryBuffer(lengthPrefixSize).WriteUint32(uint32(len(data))).GetBuffer()
	_, err := file.WriteAt(dataSizeBytes, offset)
	if err != nil {
		return -1, err
	}
	_, err = file.WriteAt(data, offset+lengthPrefixSize)
	return offset + lengthPrefixSize + int64(len(data)), err
}

// ReadAtInFile reads one length prefixed payload at offset into payload.
func ReadAtInFile(file *os.File, offset int64, payload BinarySerializable) (int64, error) {
	dataSizeBytes := make([]byte, lengthPrefixSize)
	_, err := file.ReadAt(dataSizeBytes, offset)
	if err != nil {
		return -1, err
	}

	var dataSize uint32
	NewBinaryBufferFrom(&dataSizeBytes, 0).ReadUint32(&dataSize)

	dataBytes := make([]byte, dataSize)
	_, err = file.ReadAt(dataBytes, offset+lengthPrefixSize)
	if err != nil {
		return -1, err
	}

	err = payload.UnmarshalBinary(dataBytes)

	return offset + lengthPrefixSize + int64(len(dataBytes)), err
}
