package message

import (
	"encoding/json"
	"fmt"
)

type ResponseType string

const (
	ResponseSubscribe   ResponseType = "subscribe"
	ResponseUnsubscribe ResponseType = "unsubscribe"
	ResponseInvoke      ResponseType = "invoke"
	ResponsePropertyGet ResponseType = "propertyGet"
	ResponsePropertySet ResponseType = "propertySet"
	ResponseGetBindings ResponseType = "getBindings"
	ResponseException   ResponseType = "exception"
)

// Response is one of the response messages defined in this package.
type Response interface {
	Kind() ResponseType
	stampResponse()
}

type SubscribeResponse struct {
	ResponseType ResponseType `json:"responseType"`
	ObjectID     string       `json:"objectId"`
	EventID      string       `json:"eventId"`
}

type UnsubscribeResponse struct {
	ResponseType ResponseType `json:"responseType"`
	ObjectID     string       `json:"objectId"`
	EventID      string       `json:"eventId"`
}

type InvokeResponse struct {
	ResponseType ResponseType    `json:"responseType"`
	ObjectID     string          `json:"objectId"`
	MethodID     string          `json:"methodId"`
	Result       json.RawMessage `json:"result"`
}

type PropertyGetResponse struct {
	ResponseType ResponseType    `json:"responseType"`
	ObjectID     string          `json:"objectId"`
	PropertyID   string          `json:"propertyId"`
	Value        json.RawMessage `json:"value"`
}

type PropertySetResponse struct {
	ResponseType ResponseType `json:"responseType"`
	ObjectID     string       `json:"objectId"`
	PropertyID   string       `json:"propertyId"`
}

type GetBindingsResponse struct {
	ResponseType ResponseType    `json:"responseType"`
	Bindings     []ObjectBinding `json:"bindings"`
}

type ExceptionResponse struct {
	ResponseType ResponseType  `json:"responseType"`
	Exception    *BindingError `json:"exception"`
}

func (*SubscribeResponse) Kind() ResponseType   { return ResponseSubscribe }
func (*UnsubscribeResponse) Kind() ResponseType { return ResponseUnsubscribe }
func (*InvokeResponse) Kind() ResponseType      { return ResponseInvoke }
func (*PropertyGetResponse) Kind() ResponseType { return ResponsePropertyGet }
func (*PropertySetResponse) Kind() ResponseType { return ResponsePropertySet }
func (*GetBindingsResponse) Kind() ResponseType { return ResponseGetBindings }
func (*ExceptionResponse) Kind() ResponseType   { return ResponseException }

func (r *SubscribeResponse) stampResponse()   { r.ResponseType = ResponseSubscribe }
func (r *UnsubscribeResponse) stampResponse() { r.ResponseType = ResponseUnsubscribe }
func (r *InvokeResponse) stampResponse()      { r.ResponseType = ResponseInvoke }
func (r *PropertyGetResponse) stampResponse() { r.ResponseType = ResponsePropertyGet }
func (r *PropertySetResponse) stampResponse() { r.ResponseType = ResponsePropertySet }
func (r *GetBindingsResponse) stampResponse() { r.ResponseType = ResponseGetBindings }
func (r *ExceptionResponse) stampResponse()   { r.ResponseType = ResponseException }

// NewExceptionResponse wraps err, keeping its object and member ids when it
// is already a BindingError.
func NewExceptionResponse(err error) *ExceptionResponse {
	return &ExceptionResponse{
		ResponseType: ResponseException,
		Exception:    AsBindingError(err),
	}
}

func EncodeResponse(resp Response) ([]byte, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", ErrMalformed)
	}
	resp.stampResponse()
	return json.Marshal(resp)
}

func DecodeResponse(data []byte) (Response, error) {
	kind, err := discriminator(data, "responseType")
	if err != nil {
		return nil, err
	}

	var resp Response
	switch ResponseType(kind) {
	case ResponseSubscribe:
		resp = &SubscribeResponse{}
	case ResponseUnsubscribe:
		resp = &UnsubscribeResponse{}
	case ResponseInvoke:
		resp = &InvokeResponse{}
	case ResponsePropertyGet:
		resp = &PropertyGetResponse{}
	case ResponsePropertySet:
		resp = &PropertySetResponse{}
	case ResponseGetBindings:
		resp = &GetBindingsResponse{}
	case ResponseException:
		resp = &ExceptionResponse{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedResponseType, kind)
	}

	if err := json.Unmarshal(data, resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseDeserialize, err)
	}
	if exc, ok := resp.(*ExceptionResponse); ok && exc.Exception == nil {
		exc.Exception = &BindingError{Message: "exception response without exception"}
	}
	return resp, nil
}
