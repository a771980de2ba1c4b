package rpc

import (
	"context"
	"errors"

	"github.com/kbirk/abind/pkg/serialize"
)

var (
	RequestPrefix = [16]byte{
		0x00, 0x00, 0x00, 0x61,
		0x62, 0x69, 0x6E, 0x64,
		0x2D, 0x72, 0x65, 0x71,
		0x75, 0x65, 0x73, 0x74}
	ResponsePrefix = [16]byte{
		0x00, 0x00, 0x61, 0x62,
		0x69, 0x6E, 0x64, 0x2D,
		0x72, 0x65, 0x73, 0x70,
		0x6F, 0x6E, 0x73, 0x65}
	NotificationPrefix = [16]byte{
		0x61, 0x62, 0x69, 0x6E,
		0x64, 0x2D, 0x6E, 0x6F,
		0x74, 0x69, 0x66, 0x69,
		0x63, 0x61, 0x74, 0x65}
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrTransportClosed  = errors.New("transport is closed")
	ErrClientClosed     = errors.New("client is closed")
)

const (
	PrefixSize         = 16
	RequestIDSize      = 8
	ResponseTypeSize   = 1
	ResponseHeaderSize = PrefixSize + RequestIDSize + ResponseTypeSize
)

const (
	ErrorResponse   = uint8(0x01)
	MessageResponse = uint8(0x02)
)

func SerializePrefix(writer *serialize.FixedSizeWriter, data [16]byte) {
	bs := writer.Next(16)
	copy(bs, data[:])
}

func DeserializePrefix(data *[16]byte, reader *serialize.Reader) error {
	bs, err := reader.Read(16)
	if err != nil {
		return err
	}
	copy((*data)[:], bs)
	return nil
}

func encodeRequest(ctx context.Context, requestID uint64, payload []byte) []byte {
	writer := serialize.NewFixedSizeWriter(
		PrefixSize +
			ByteSizeContext(ctx) +
			serialize.ByteSizeUInt64(requestID) +
			serialize.ByteSizeBytes(payload))

	SerializePrefix(writer, RequestPrefix)
	SerializeContext(writer, ctx)
	serialize.SerializeUInt64(writer, requestID)
	serialize.SerializeBytes(writer, payload)
	return writer.Bytes()
}

func RespondWithError(requestID uint64, err error) []byte {
	writer := serialize.NewFixedSizeWriter(
		ResponseHeaderSize +
			serialize.ByteSizeString(err.Error()))

	SerializePrefix(writer, ResponsePrefix)
	serialize.SerializeUInt64(writer, requestID)
	serialize.SerializeUInt8(writer, ErrorResponse)
	serialize.SerializeString(writer, err.Error())
	return writer.Bytes()
}

func RespondWithMessage(requestID uint64, payload []byte) []byte {
	writer := serialize.NewFixedSizeWriter(
		ResponseHeaderSize +
			serialize.ByteSizeBytes(payload))

	SerializePrefix(writer, ResponsePrefix)
	serialize.SerializeUInt64(writer, requestID)
	serialize.SerializeUInt8(writer, MessageResponse)
	serialize.SerializeBytes(writer, payload)
	return writer.Bytes()
}

func encodeNotification(payload []byte) []byte {
	writer := serialize.NewFixedSizeWriter(
		PrefixSize +
			serialize.ByteSizeBytes(payload))

	SerializePrefix(writer, NotificationPrefix)
	serialize.SerializeBytes(writer, payload)
	return writer.Bytes()
}

// decodeResponse reads what follows the request id of a response frame.
func decodeResponse(reader *serialize.Reader) ([]byte, error) {
	var responseType uint8
	if err := serialize.DeserializeUInt8(&responseType, reader); err != nil {
		return nil, err
	}

	if responseType == MessageResponse {
		var payload []byte
		if err := serialize.DeserializeBytes(&payload, reader); err != nil {
			return nil, err
		}
		return payload, nil
	}

	var errMsg string
	if err := serialize.DeserializeString(&errMsg, reader); err != nil {
		return nil, err
	}
	return nil, &RemoteError{Message: errMsg}
}

// RemoteError is a failure reported by the server for one request.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}
