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
	"net/http"
	"strconv"

	"google.golang.org/grpc/codes"
)

// Code is a Connect RPC error code. The set is closed: wire handlers and
// clients must not invent new codes, only pick among the ones defined here.
//
// The numeric values and the lowercase wire names match the gRPC status
// codes in google.golang.org/grpc/codes exactly, so Code is defined in
// terms of codes.Code instead of duplicating the enumeration.
type Code codes.Code

// The closed set of Connect error codes.
const (
	CodeCanceled           = Code(codes.Canceled)
	CodeUnknown            = Code(codes.Unknown)
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeDeadlineExceeded   = Code(codes.DeadlineExceeded)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodePermissionDenied   = Code(codes.PermissionDenied)
	CodeResourceExhausted  = Code(codes.ResourceExhausted)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeAborted            = Code(codes.Aborted)
	CodeOutOfRange         = Code(codes.OutOfRange)
	CodeUnimplemented      = Code(codes.Unimplemented)
	CodeInternal           = Code(codes.Internal)
	CodeUnavailable        = Code(codes.Unavailable)
	CodeDataLoss           = Code(codes.DataLoss)
	CodeUnauthenticated    = Code(codes.Unauthenticated)
)

// codeWireNames is the canonical lowercase wire representation of every
// code, keyed by the underlying gRPC code value.
var codeWireNames = map[Code]string{
	CodeCanceled:           "canceled",
	CodeUnknown:            "unknown",
	CodeInvalidArgument:    "invalid_argument",
	CodeDeadlineExceeded:   "deadline_exceeded",
	CodeNotFound:           "not_found",
	CodeAlreadyExists:      "already_exists",
	CodePermissionDenied:   "permission_denied",
	CodeResourceExhausted:  "resource_exhausted",
	CodeFailedPrecondition: "failed_precondition",
	CodeAborted:            "aborted",
	CodeOutOfRange:         "out_of_range",
	CodeUnimplemented:      "unimplemented",
	CodeInternal:           "internal",
	CodeUnavailable:        "unavailable",
	CodeDataLoss:           "data_loss",
	CodeUnauthenticated:    "unauthenticated",
}

var wireNameToCode = func() map[string]Code {
	m := make(map[string]Code, len(codeWireNames))
	for code, name := range codeWireNames {
		m[name] = code
	}
	return m
}()

// String returns the canonical lowercase wire string for c, or "code_<n>"
// if c falls outside the closed set.
func (c Code) String() string {
	if name, ok := codeWireNames[c]; ok {
		return name
	}
	return "code_" + strconv.Itoa(int(c))
}

// CodeFromWireName parses the canonical lowercase wire string, returning
// CodeUnknown and false if name is not recognized.
func CodeFromWireName(name string) (Code, bool) {
	c, ok := wireNameToCode[name]
	if !ok {
		return CodeUnknown, false
	}
	return c, true
}

// codeToHTTPStatus is the closed table in §4.4: every Code maps to exactly
// one HTTP status, used for unary responses.
var codeToHTTPStatus = map[Code]int{
	CodeCanceled:           499, // non-standard; matches nginx's "Client Closed Request"
	CodeUnknown:            http.StatusInternalServerError,
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeDeadlineExceeded:   http.StatusGatewayTimeout,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodePermissionDenied:   http.StatusForbidden,
	CodeResourceExhausted:  http.StatusTooManyRequests,
	CodeFailedPrecondition: http.StatusPreconditionFailed,
	CodeAborted:            http.StatusConflict,
	CodeOutOfRange:         http.StatusBadRequest,
	CodeUnimplemented:      http.StatusNotImplemented,
	CodeInternal:           http.StatusInternalServerError,
	CodeUnavailable:        http.StatusServiceUnavailable,
	CodeDataLoss:           http.StatusInternalServerError,
	CodeUnauthenticated:    http.StatusUnauthorized,
}

// HTTPStatus returns the HTTP status that a unary response carrying this
// code must use. Every Code in the closed set has an entry; codes outside
// the set (which should never occur) map to 500.
func (c Code) HTTPStatus() int {
	if status, ok := codeToHTTPStatus[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// httpStatusToCode is the reverse of codeToHTTPStatus, used by the client
// to recover a Code from a unary error response that has no structured
// body (for example a response written by an intermediate proxy).
//
// This is intentionally not a perfect inverse of codeToHTTPStatus: several
// codes share an HTTP status (InvalidArgument/OutOfRange map to 400,
// AlreadyExists/Aborted to 409, Unknown/Internal/DataLoss to 500), so the
// reverse table only lists the statuses that can
// unambiguously be produced outside of this package, plus the ones in the
// forward table. Anything absent defaults to CodeUnknown.
var httpStatusToCode = map[int]Code{
	499:                            CodeCanceled,
	http.StatusBadRequest:          CodeInvalidArgument,
	http.StatusGatewayTimeout:      CodeDeadlineExceeded,
	http.StatusNotFound:            CodeUnimplemented,
	http.StatusConflict:            CodeAborted,
	http.StatusPreconditionFailed:  CodeFailedPrecondition,
	http.StatusTooManyRequests:     CodeUnavailable,
	http.StatusNotImplemented:      CodeUnimplemented,
	http.StatusInternalServerError: CodeUnknown,
	http.StatusServiceUnavailable:  CodeUnavailable,
	http.StatusUnauthorized:        CodeUnauthenticated,
	http.StatusForbidden:           CodePermissionDenied,
	http.StatusBadGateway:          CodeUnavailable,
}

// CodeFromHTTPStatus recovers a Code from a plain HTTP status, for
// responses that carry no structured Connect error body. The reverse
// mapping defaults to CodeUnknown, per §4.4 and the codec-round-trip
// testable property in §8.
func CodeFromHTTPStatus(status int) Code {
	if code, ok := httpStatusToCode[status]; ok {
		return code
	}
	return CodeUnknown
}
