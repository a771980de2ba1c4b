// Package serialize holds the big endian primitives that make up rpc frame
// headers. Lengths are written as uint32 before strings and byte slices.
package serialize

import (
	"encoding/binary"
)

const lengthSize = 4

func ByteSizeString(data string) int {
	return lengthSize + len(data)
}

func SerializeString(writer *FixedSizeWriter, data string) {
	SerializeUInt32(writer, uint32(len(data)))
	copy(writer.Next(len(data)), data)
}

func DeserializeString(data *string, reader *Reader) error {
	bs, err := readPrefixed(reader)
	if err != nil {
		return err
	}
	*data = string(bs)
	return nil
}

func ByteSizeBytes(data []byte) int {
	return lengthSize + len(data)
}

func SerializeBytes(writer *FixedSizeWriter, data []byte) {
	SerializeUInt32(writer, uint32(len(data)))
	copy(writer.Next(len(data)), data)
}

// DeserializeBytes copies the payload out of the reader so the result may
// outlive the underlying frame buffer.
func DeserializeBytes(data *[]byte, reader *Reader) error {
	bs, err := readPrefixed(reader)
	if err != nil {
		return err
	}
	*data = append([]byte(nil), bs...)
	return nil
}

func readPrefixed(reader *Reader) ([]byte, error) {
	var length uint32
	if err := DeserializeUInt32(&length, reader); err != nil {
		return nil, err
	}
	return reader.Read(int(length))
}

func ByteSizeUInt8(uint8) int {
	return 1
}

func SerializeUInt8(writer *FixedSizeWriter, data uint8) {
	writer.Next(1)[0] = data
}

func DeserializeUInt8(data *uint8, reader *Reader) error {
	bs, err := reader.Read(1)
	if err != nil {
		return err
	}
	*data = bs[0]
	return nil
}

func ByteSizeUInt32(uint32) int {
	return 4
}

func SerializeUInt32(writer *FixedSizeWriter, data uint32) {
	binary.BigEndian.PutUint32(writer.Next(4), data)
}

func DeserializeUInt32(data *uint32, reader *Reader) error {
	bs, err := reader.Read(4)
	if err != nil {
		return err
	}
	*data = binary.BigEndian.Uint32(bs)
	return nil
}

func ByteSizeUInt64(uint64) int {
	return 8
}

func SerializeUInt64(writer *FixedSizeWriter, data uint64) {
	binary.BigEndian.PutUint64(writer.Next(8), data)
}

func DeserializeUInt64(data *uint64, reader *Reader) error {
	bs, err := reader.Read(8)
	if err != nil {
		return err
	}
	*data = binary.BigEndian.Uint64(bs)
	return nil
}
