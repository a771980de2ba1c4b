package message

import (
	"encoding/json"
)

// Codec encodes the untyped payloads carried by messages: method arguments
// and results, property values and event arguments. Output must be valid
// JSON since it is embedded in the message envelope.
type Codec interface {
	Encode(v interface{}) (json.RawMessage, error)
	Decode(data json.RawMessage, v interface{}) error
}

type JSONCodec struct{}

func (JSONCodec) Encode(v interface{}) (json.RawMessage, error) {
	return json.Marshal(v)
}

// Decode leaves v untouched for an absent payload.
func (JSONCodec) Decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

var DefaultCodec Codec = JSONCodec{}
