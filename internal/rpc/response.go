package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ReasonType tags a failure response.
type ReasonType string

// Failure reasons reported to pages.
const (
	ReasonUnsupportedMethod   ReasonType = "unsupportedRPCMethod"
	ReasonUnauthorized        ReasonType = "unauthorizedPRCRequest"
	ReasonNotSupportedNetwork ReasonType = "notSupportedNetwork"
	ReasonUserRejected        ReasonType = "userRejectedRequest"
	ReasonRequestPending      ReasonType = "requestPending"
	ReasonInternal            ReasonType = "internalError"
	ReasonRPCError            ReasonType = "rpcError"
	ReasonRawError            ReasonType = "rawError"
)

// EIP-1193 and JSON-RPC error codes.
const (
	CodeUserRejected        = 4001
	CodeUnauthorized        = 4100
	CodeUnsupportedMethod   = 4200
	CodeNotSupportedNetwork = 4902
	CodeResourceUnavailable = -32002
	CodeInternal            = -32603
)

// Reason describes why a request failed.
type Reason struct {
	Type    ReasonType      `json:"type"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewReason returns the standard reason for t.
func NewReason(t ReasonType) Reason {
	switch t {
	case ReasonUnsupportedMethod:
		return Reason{Type: t, Code: CodeUnsupportedMethod, Message: "the requested method is not supported"}
	case ReasonUnauthorized:
		return Reason{Type: t, Code: CodeUnauthorized, Message: "the requested method has not been authorized by the user"}
	case ReasonNotSupportedNetwork:
		return Reason{Type: t, Code: CodeNotSupportedNetwork, Message: "unrecognized chain id"}
	case ReasonUserRejected:
		return Reason{Type: t, Code: CodeUserRejected, Message: "user rejected the request"}
	case ReasonRequestPending:
		return Reason{Type: t, Code: CodeResourceUnavailable, Message: "a request is already pending, please wait"}
	case ReasonInternal, ReasonRawError:
		return Reason{Type: t, Code: CodeInternal, Message: "internal error"}
	case ReasonRPCError:
		return Reason{Type: t, Code: CodeInternal, Message: "rpc error"}
	default:
		return Reason{Type: ReasonInternal, Code: CodeInternal, Message: "internal error"}
	}
}

// ReasonFromError converts a proxy failure into a reason. Errors returned by
// the node keep their code, message and data; anything else is reported raw.
func ReasonFromError(err error) Reason {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return Reason{Type: ReasonRPCError, Code: rpcErr.Code, Message: rpcErr.Message, Data: rpcErr.Data}
	}
	r := NewReason(ReasonRawError)
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// ResponseType tags a response.
type ResponseType string

// Response types.
const (
	ResponseSuccess ResponseType = "success"
	ResponseFailure ResponseType = "failure"
)

// Response is the outcome of one request.
type Response struct {
	Type   ResponseType
	Data   json.RawMessage
	Reason *Reason
}

// Success wraps v as a successful response. Unencodable values become an internal failure.
func Success(v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		r := NewReason(ReasonInternal)
		r.Message = fmt.Sprintf("encoding result: %v", err)
		return Failure(r)
	}
	return Response{Type: ResponseSuccess, Data: data}
}

// SuccessRaw wraps an already encoded result.
func SuccessRaw(data json.RawMessage) Response {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return Response{Type: ResponseSuccess, Data: data}
}

// Failure wraps a reason.
func Failure(r Reason) Response {
	return Response{Type: ResponseFailure, Reason: &r}
}

// FailureOf is Failure(NewReason(t)).
func FailureOf(t ReasonType) Response {
	return Failure(NewReason(t))
}

// IsSuccess reports whether r is a success response.
func (r Response) IsSuccess() bool {
	return r.Type == ResponseSuccess
}

type wireResponse struct {
	Type   ResponseType     `json:"type"`
	Data   *json.RawMessage `json:"data,omitempty"`
	Reason *Reason          `json:"reason,omitempty"`
}

// MarshalJSON always includes data on success, null included.
func (r Response) MarshalJSON() ([]byte, error) {
	w := wireResponse{Type: r.Type}
	switch r.Type {
	case ResponseSuccess:
		data := r.Data
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		w.Data = &data
	case ResponseFailure:
		reason := NewReason(ReasonInternal)
		if r.Reason != nil {
			reason = *r.Reason
		}
		w.Reason = &reason
	default:
		return nil, fmt.Errorf("unknown response type %q", r.Type)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a response.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case ResponseSuccess:
		*r = Response{Type: ResponseSuccess, Data: json.RawMessage("null")}
		if w.Data != nil {
			r.Data = *w.Data
		}
	case ResponseFailure:
		if w.Reason == nil {
			return errors.New("failure response without reason")
		}
		*r = Response{Type: ResponseFailure, Reason: w.Reason}
	default:
		return fmt.Errorf("unknown response type %q", w.Type)
	}
	return nil
}
