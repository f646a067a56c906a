package rpc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse_SuccessNullData(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Success(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"success","data":null}`, string(data))

	data, err = json.Marshal(SuccessRaw(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"success","data":null}`, string(data))
}

func TestResponse_SuccessValue(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Success([]string{"0xabc"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"success","data":["0xabc"]}`, string(data))
}

func TestResponse_Failure(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(FailureOf(ReasonUnauthorized))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"failure","reason":{"type":"unauthorizedPRCRequest","code":4100,"message":"the requested method has not been authorized by the user"}}`, string(data))

	var decoded Response
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Reason)
	assert.Equal(t, ReasonUnauthorized, decoded.Reason.Type)
	assert.False(t, decoded.IsSuccess())
}

func TestResponse_UnencodableBecomesInternal(t *testing.T) {
	t.Parallel()

	r := Success(make(chan int))
	require.False(t, r.IsSuccess())
	assert.Equal(t, ReasonInternal, r.Reason.Type)
}

func TestResponse_UnmarshalRejectsUnknown(t *testing.T) {
	t.Parallel()

	var r Response
	require.Error(t, json.Unmarshal([]byte(`{"type":"maybe"}`), &r))
	require.Error(t, json.Unmarshal([]byte(`{"type":"failure"}`), &r))
}

func TestNewReason_Codes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 4200, NewReason(ReasonUnsupportedMethod).Code)
	assert.Equal(t, 4100, NewReason(ReasonUnauthorized).Code)
	assert.Equal(t, 4902, NewReason(ReasonNotSupportedNetwork).Code)
	assert.Equal(t, 4001, NewReason(ReasonUserRejected).Code)
	assert.Equal(t, -32002, NewReason(ReasonRequestPending).Code)
	assert.Equal(t, -32603, NewReason(ReasonInternal).Code)
	assert.Equal(t, ReasonInternal, NewReason("bogus").Type)
}

func TestReasonFromError(t *testing.T) {
	t.Parallel()

	nodeErr := &Error{Code: 3, Message: "execution reverted", Data: json.RawMessage(`"0x08c379a0"`)}
	r := ReasonFromError(errors.Join(errors.New("wrapped"), nodeErr))
	assert.Equal(t, ReasonRPCError, r.Type)
	assert.Equal(t, 3, r.Code)
	assert.Equal(t, "execution reverted", r.Message)
	assert.JSONEq(t, `"0x08c379a0"`, string(r.Data))

	r = ReasonFromError(errors.New("dial tcp: connection refused"))
	assert.Equal(t, ReasonRawError, r.Type)
	assert.Equal(t, CodeInternal, r.Code)
	assert.Equal(t, "dial tcp: connection refused", r.Message)
}
