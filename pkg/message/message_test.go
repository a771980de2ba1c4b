package message

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbirk/abind/pkg/contract"
)

func TestEncodeRequestStampsKind(t *testing.T) {
	bs, err := EncodeRequest(&SubscribeRequest{ObjectID: "objId1", EventID: "NotifyOnNonDataChanged"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"requestType":"subscribe","objectId":"objId1","eventId":"NotifyOnNonDataChanged"}`, string(bs))
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"requestType":"invoke","objectId":"o","methodId":"M","methodArgs":["string",2.0]}`))
	require.NoError(t, err)

	invoke, ok := req.(*InvokeRequest)
	require.True(t, ok)
	assert.Equal(t, RequestInvoke, invoke.Kind())
	assert.Equal(t, "o", invoke.ObjectID)
	assert.Equal(t, "M", invoke.MethodID)
	require.Len(t, invoke.MethodArgs, 2)
	assert.Equal(t, `"string"`, string(invoke.MethodArgs[0]))

	req, err = DecodeRequest([]byte(`{"requestType":"getBindings"}`))
	require.NoError(t, err)
	assert.IsType(t, &GetBindingsRequest{}, req)
}

func TestDecodeRequestFailures(t *testing.T) {
	_, err := DecodeRequest([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeRequest([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeRequest([]byte(`{"requestType":"teleport"}`))
	assert.ErrorIs(t, err, ErrUnsupportedRequestType)

	_, err = DecodeRequest([]byte(`{"objectId":"o"}`))
	assert.ErrorIs(t, err, ErrUnsupportedRequestType)

	_, err = DecodeRequest([]byte(`{"requestType":"subscribe","objectId":7}`))
	assert.ErrorIs(t, err, ErrRequestDeserialize)
}

func TestDecodeResponse(t *testing.T) {
	bs, err := EncodeResponse(&PropertyGetResponse{ObjectID: "o", PropertyID: "P", Value: json.RawMessage(`"actual value"`)})
	require.NoError(t, err)

	resp, err := DecodeResponse(bs)
	require.NoError(t, err)
	get, ok := resp.(*PropertyGetResponse)
	require.True(t, ok)
	assert.Equal(t, ResponsePropertyGet, get.ResponseType)
	assert.Equal(t, `"actual value"`, string(get.Value))

	_, err = DecodeResponse([]byte(`{"responseType":"maybe"}`))
	assert.ErrorIs(t, err, ErrUnsupportedResponseType)
}

func TestExceptionResponse(t *testing.T) {
	cause := errors.New("boom")
	bs, err := EncodeResponse(NewExceptionResponse(NewBindingError("objId1", "Explode()", cause, "failed to invoke %s on %s", "Explode()", "objId1")))
	require.NoError(t, err)

	resp, err := DecodeResponse(bs)
	require.NoError(t, err)
	exc, ok := resp.(*ExceptionResponse)
	require.True(t, ok)
	assert.Equal(t, "objId1", exc.Exception.ObjectID)
	assert.Equal(t, "Explode()", exc.Exception.MemberID)
	assert.Equal(t, "failed to invoke Explode() on objId1: boom", exc.Exception.Error())
	assert.Nil(t, exc.Exception.Cause)

	resp, err = DecodeResponse([]byte(`{"responseType":"exception"}`))
	require.NoError(t, err)
	assert.NotNil(t, resp.(*ExceptionResponse).Exception)
}

func TestAsBindingError(t *testing.T) {
	assert.Nil(t, AsBindingError(nil))

	be := NewBindingError("o", "m", nil, "bad")
	wrapped := AsBindingError(errors.Join(errors.New("context"), be))
	assert.Same(t, be, wrapped)

	plain := AsBindingError(errors.New("plain"))
	assert.Equal(t, "plain", plain.Message)
	assert.Empty(t, plain.ObjectID)
}

func TestNotification(t *testing.T) {
	bs, err := EncodeNotification(NewEventNotification("objId1", "NotifyOnNonDataChanged", json.RawMessage(`{}`)))
	require.NoError(t, err)

	n, err := DecodeNotification(bs)
	require.NoError(t, err)
	assert.Equal(t, NotificationEventInvoked, n.NotificationType)
	assert.Equal(t, "objId1", n.ObjectID)
	assert.JSONEq(t, `{}`, string(n.EventArgs))

	_, err = DecodeNotification([]byte(`{"notificationType":"somethingElse"}`))
	assert.ErrorIs(t, err, ErrInvalidNotification)
}

func TestObjectBindingDescription(t *testing.T) {
	child := NewObjectBinding("parent/Child", contract.ObjectDescription{Methods: []string{"Ping()"}})

	parent := NewObjectBinding("parent", contract.ObjectDescription{
		Events:     []string{"Changed"},
		Properties: []string{"Name", "Child"},
	})
	assert.True(t, parent.Bind("Child", child))
	assert.False(t, parent.Bind("Missing", child))

	id, ok := parent.NestedBinding("Child")
	require.True(t, ok)
	assert.Equal(t, "parent/Child", id)
	_, ok = parent.NestedBinding("Name")
	assert.False(t, ok)

	bs, err := json.Marshal(parent)
	require.NoError(t, err)
	var decoded ObjectBinding
	require.NoError(t, json.Unmarshal(bs, &decoded))

	desc := decoded.Description()
	assert.Equal(t, []string{"Changed"}, desc.Events)
	assert.Equal(t, []string{"Name", "Child"}, desc.Properties)
	assert.Empty(t, desc.Methods)
	assert.Equal(t, []string{"Ping()"}, desc.Nested["Child"].Methods)
}

func TestJSONCodec(t *testing.T) {
	raw, err := DefaultCodec.Encode(map[string]int{"a": 1})
	require.NoError(t, err)

	var out map[string]int
	require.NoError(t, DefaultCodec.Decode(raw, &out))
	assert.Equal(t, 1, out["a"])

	s := "unchanged"
	require.NoError(t, DefaultCodec.Decode(nil, &s))
	assert.Equal(t, "unchanged", s)
}
