package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agnivade/levenshtein"
	"github.com/ethereum/go-ethereum/core/types"
)

// Parse failures. All of them are answered with unsupportedRPCMethod when the
// request carried a usable id.
var (
	ErrMalformedRequest  = errors.New("malformed request")
	ErrMissingID         = errors.New("request id must be an integer")
	ErrUnsupportedMethod = errors.New("unsupported method")
	ErrInvalidParams     = errors.New("invalid params")
)

// maxSuggestionDistance bounds how far an unknown method may be from a known
// one before no suggestion is offered.
const maxSuggestionDistance = 3

// ParseError describes a request the bridge could not accept.
type ParseError struct {
	ID         int64
	HasID      bool
	Method     string
	Suggestion Method
	Err        error
}

func (e *ParseError) Error() string {
	msg := e.Err.Error()
	if e.Method != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Method)
	}
	if e.Suggestion != "" {
		msg = fmt.Sprintf("%s (did you mean %s?)", msg, e.Suggestion)
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Request is a validated provider call. Params always holds the raw JSON
// array; the typed field matching Method is set for methods the bridge
// interprets itself.
type Request struct {
	ID     int64
	Method Method
	Params json.RawMessage

	Switch          *SwitchChainParams
	AddChain        *AddChainParams
	PersonalSign    *PersonalSignParams
	TypedData       *TypedDataParams
	SendTransaction *TransactionParams
	RawTransaction  *types.Transaction
	ECRecover       *ECRecoverParams
}

type envelope struct {
	ID     json.RawMessage `json:"id"`
	Method json.RawMessage `json:"method"`
	Params json.RawMessage `json:"params"`
}

// MarshalJSON encodes the request envelope, which is also what the page sent.
func (r Request) MarshalJSON() ([]byte, error) {
	params := r.Params
	if len(params) == 0 {
		params = json.RawMessage("[]")
	}
	return json.Marshal(struct {
		ID     int64           `json:"id"`
		Method Method          `json:"method"`
		Params json.RawMessage `json:"params"`
	}{r.ID, r.Method, params})
}

// ParseRequest validates a raw provider call.
func ParseRequest(data []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Request{}, &ParseError{Err: fmt.Errorf("%w: %w", ErrMalformedRequest, err)}
	}

	// The id is read first so every later failure can still be answered.
	var name string
	nameErr := decodeMethod(env.Method, &name)

	id, ok := parseID(env.ID)
	if !ok {
		return Request{}, &ParseError{Method: name, Err: ErrMissingID}
	}
	if nameErr != nil {
		return Request{}, &ParseError{ID: id, HasID: true, Err: fmt.Errorf("%w: method: %w", ErrMalformedRequest, nameErr)}
	}

	method := Method(name)
	if !method.Valid() {
		return Request{}, &ParseError{
			ID:         id,
			HasID:      true,
			Method:     name,
			Suggestion: Suggest(name),
			Err:        ErrUnsupportedMethod,
		}
	}

	params := bytes.TrimSpace(env.Params)
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		params = []byte("[]")
	}

	req := Request{ID: id, Method: method, Params: json.RawMessage(params)}
	if err := req.parseParams(); err != nil {
		return Request{}, &ParseError{ID: id, HasID: true, Method: name, Err: err}
	}
	return req, nil
}

// decodeMethod reads the method name. An absent or null method leaves name empty.
func decodeMethod(raw json.RawMessage, name *string) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return json.Unmarshal(raw, name)
}

// parseID accepts JSON integers only. Fractions, strings and null are refused.
func parseID(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return 0, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return 0, false
	}
	id, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return id, true
}

// Suggest returns the supported method closest to name, or "" when none is close.
func Suggest(name string) Method {
	if name == "" {
		return ""
	}
	best, bestDist := Method(""), maxSuggestionDistance+1
	for _, m := range Methods {
		if d := levenshtein.ComputeDistance(name, string(m)); d < bestDist {
			best, bestDist = m, d
		}
	}
	return best
}
