package message

import (
	"encoding/json"
	"fmt"
)

type RequestType string

const (
	RequestSubscribe   RequestType = "subscribe"
	RequestUnsubscribe RequestType = "unsubscribe"
	RequestInvoke      RequestType = "invoke"
	RequestPropertyGet RequestType = "propertyGet"
	RequestPropertySet RequestType = "propertySet"
	RequestGetBindings RequestType = "getBindings"
)

// Request is one of the request messages defined in this package.
type Request interface {
	Kind() RequestType
	stampRequest()
}

type SubscribeRequest struct {
	RequestType RequestType `json:"requestType"`
	ObjectID    string      `json:"objectId"`
	EventID     string      `json:"eventId"`
}

type UnsubscribeRequest struct {
	RequestType RequestType `json:"requestType"`
	ObjectID    string      `json:"objectId"`
	EventID     string      `json:"eventId"`
}

type InvokeRequest struct {
	RequestType RequestType       `json:"requestType"`
	ObjectID    string            `json:"objectId"`
	MethodID    string            `json:"methodId"`
	MethodArgs  []json.RawMessage `json:"methodArgs"`
}

type PropertyGetRequest struct {
	RequestType RequestType `json:"requestType"`
	ObjectID    string      `json:"objectId"`
	PropertyID  string      `json:"propertyId"`
}

type PropertySetRequest struct {
	RequestType RequestType     `json:"requestType"`
	ObjectID    string          `json:"objectId"`
	PropertyID  string          `json:"propertyId"`
	Value       json.RawMessage `json:"value"`
}

type GetBindingsRequest struct {
	RequestType RequestType `json:"requestType"`
}

func (*SubscribeRequest) Kind() RequestType   { return RequestSubscribe }
func (*UnsubscribeRequest) Kind() RequestType { return RequestUnsubscribe }
func (*InvokeRequest) Kind() RequestType      { return RequestInvoke }
func (*PropertyGetRequest) Kind() RequestType { return RequestPropertyGet }
func (*PropertySetRequest) Kind() RequestType { return RequestPropertySet }
func (*GetBindingsRequest) Kind() RequestType { return RequestGetBindings }

func (r *SubscribeRequest) stampRequest()   { r.RequestType = RequestSubscribe }
func (r *UnsubscribeRequest) stampRequest() { r.RequestType = RequestUnsubscribe }
func (r *InvokeRequest) stampRequest()      { r.RequestType = RequestInvoke }
func (r *PropertyGetRequest) stampRequest() { r.RequestType = RequestPropertyGet }
func (r *PropertySetRequest) stampRequest() { r.RequestType = RequestPropertySet }
func (r *GetBindingsRequest) stampRequest() { r.RequestType = RequestGetBindings }

func EncodeRequest(req Request) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrMalformed)
	}
	req.stampRequest()
	return json.Marshal(req)
}

// DecodeRequest reads the requestType discriminator and then the matching
// payload. Bytes that are not JSON fail with ErrMalformed, an unknown
// discriminator with ErrUnsupportedRequestType and a payload that does not
// fit its kind with ErrRequestDeserialize.
func DecodeRequest(data []byte) (Request, error) {
	kind, err := discriminator(data, "requestType")
	if err != nil {
		return nil, err
	}

	var req Request
	switch RequestType(kind) {
	case RequestSubscribe:
		req = &SubscribeRequest{}
	case RequestUnsubscribe:
		req = &UnsubscribeRequest{}
	case RequestInvoke:
		req = &InvokeRequest{}
	case RequestPropertyGet:
		req = &PropertyGetRequest{}
	case RequestPropertySet:
		req = &PropertySetRequest{}
	case RequestGetBindings:
		req = &GetBindingsRequest{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRequestType, kind)
	}

	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestDeserialize, err)
	}
	return req, nil
}

func discriminator(data []byte, field string) (string, error) {
	if !json.Valid(data) {
		return "", ErrMalformed
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: envelope is not an object", ErrMalformed)
	}
	raw, ok := env[field]
	if !ok {
		return "", nil
	}
	var kind string
	if err := json.Unmarshal(raw, &kind); err != nil {
		return "", nil
	}
	return kind, nil
}
