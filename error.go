// Copyright 2016 The LUCI Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package connecpy

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"
)

// Error is the structured error payload described in §3: a code, a
// message, an ordered list of opaque details, and side-channel metadata.
//
// The identity of an Error for equality purposes is (Code, Message,
// Details); Metadata carries headers that accompanied the error and does
// not participate in identity.
type Error struct {
	code    Code
	message string
	details []*anypb.Any
	meta    Headers
}

// NewError creates an Error with the given code and message. The code is
// not validated against the closed set: a code outside of it gets HTTP
// status 500 from HTTPStatus (the same as CodeUnknown) and is written on
// the wire as "code_<n>", which a receiving peer decodes as CodeUnknown.
func NewError(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Errorf creates an Error with a message built via fmt.Sprintf.
func Errorf(code Code, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Code returns the error's code.
func (e *Error) Code() Code { return e.code }

// Message returns the error's message, without the "connect: code = ..."
// prefix that Error() adds.
func (e *Error) Message() string { return e.message }

// Details returns the ordered list of detail messages attached to the
// error. The returned slice must not be mutated by the caller.
func (e *Error) Details() []*anypb.Any { return e.details }

// AddDetail appends a detail message to the error and returns the error,
// so that calls can be chained: `connecpy.NewError(...).AddDetail(d)`.
func (e *Error) AddDetail(detail *anypb.Any) *Error {
	e.details = append(e.details, detail)
	return e
}

// Meta returns the error's side-channel metadata headers, lazily
// allocating them on first access so that handlers can always write to
// it: `connecpy.NewError(...).Meta().Set("Retry-After", "5")`.
func (e *Error) Meta() Headers {
	if e.meta.values == nil {
		e.meta = NewHeaders()
	}
	return e.meta
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("connect: code = %s desc = %s", e.code, e.message)
}

// Is reports whether target is an *Error with the same Code, so that
// errors.Is(err, connecpy.NewError(connecpy.CodeNotFound, "")) can be used
// to check an error's code without an unsafe type assertion.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.code == other.code
}

// AsError extracts the Connect error embedded in err, if any, following
// the same unwrapping rules as errors.As. The second return value is
// false for unstructured errors, which callers should treat as
// CodeUnknown per §4.4 and §7.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	// A handler written against gRPC idioms (status.Errorf) still
	// produces a valid Connect error: recognize anything that carries a
	// *status.Status, the same way the teacher's grpc-facing code treats
	// status errors as the canonical structured-error currency.
	if st, ok := status.FromError(err); ok {
		converted := NewError(Code(st.Code()), st.Message())
		converted.details = append(converted.details, st.Proto().GetDetails()...)
		return converted, true
	}
	return nil, false
}

// CodeOf returns the Code of err. Unstructured errors (including nil) map
// to CodeUnknown, matching the "unexpected handler failure" disposition
// in §7.
func CodeOf(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if ce, ok := AsError(err); ok {
		return ce.code
	}
	return CodeUnknown
}

// wireDetail is the JSON shape of one entry of Error.details on the wire,
// per §4.4.
type wireDetail struct {
	Type  string          `json:"type"`
	Value string          `json:"value"`
	Debug json.RawMessage `json:"debug,omitempty"`
}

// wireError is the JSON shape of the structured error payload, per §4.4.
// It doubles as the EOS envelope's error fields (§3), so json.Marshal
// can embed it directly or merge its fields into a larger object.
type wireError struct {
	Code    string       `json:"code"`
	Message string       `json:"message,omitempty"`
	Details []wireDetail `json:"details,omitempty"`
}

// toWire converts e to its wire representation. A nil *Error encodes as
// the zero wireError (callers should not call this on nil).
func (e *Error) toWire() wireError {
	w := wireError{
		Code:    e.code.String(),
		Message: e.message,
	}
	if len(e.details) > 0 {
		w.Details = make([]wireDetail, len(e.details))
		for i, d := range e.details {
			w.Details[i] = wireDetail{
				Type:  d.TypeUrl,
				Value: base64.StdEncoding.EncodeToString(d.Value),
			}
		}
	}
	return w
}

// MarshalJSON implements the unary error body in §4.4:
// {"code":"...", "message":"...", "details":[...]}.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.toWire())
}

// errorFromWire reconstructs an *Error from its wire representation.
// Malformed detail entries (missing type or value) are dropped rather
// than failing the whole decode, matching the tolerant behavior of the
// reference client.
func errorFromWire(w wireError) *Error {
	code, ok := CodeFromWireName(w.Code)
	if !ok {
		code = CodeUnknown
	}
	e := NewError(code, w.Message)
	for _, d := range w.Details {
		if d.Type == "" || d.Value == "" {
			continue
		}
		value, err := base64.StdEncoding.DecodeString(d.Value)
		if err != nil {
			continue
		}
		e.details = append(e.details, &anypb.Any{TypeUrl: d.Type, Value: value})
	}
	return e
}

// UnmarshalError parses the unary error body described in §4.4.
func UnmarshalError(data []byte) (*Error, error) {
	var w wireError
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return errorFromWire(w), nil
}

// ErrorFromHTTPStatus builds an Error for a unary response whose status
// is not 200 but whose body could not be parsed as a structured error,
// per the client disposition in §4.10: the code falls back to the
// reverse HTTP-status mapping.
func ErrorFromHTTPStatus(status int, message string) *Error {
	return NewError(CodeFromHTTPStatus(status), message)
}
