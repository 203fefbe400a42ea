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

import "strings"

// ProtocolVersion is the only Connect-Protocol-Version this runtime
// understands.
const ProtocolVersion = "1"

const (
	unaryContentTypePrefix     = "application/"
	streamingContentTypePrefix = "application/connect+"
)

// StreamType classifies an RPC method by which side(s) may send more
// than one message, per the MethodSpec.Kind field in §3.
type StreamType int

const (
	// StreamTypeUnary is a single request, single response.
	StreamTypeUnary StreamType = iota
	// StreamTypeClient is a stream of requests, single response.
	StreamTypeClient
	// StreamTypeServer is a single request, stream of responses.
	StreamTypeServer
	// StreamTypeBidi is a stream of requests interleaved with a stream of
	// responses.
	StreamTypeBidi
)

func (s StreamType) String() string {
	switch s {
	case StreamTypeUnary:
		return "unary"
	case StreamTypeClient:
		return "client_stream"
	case StreamTypeServer:
		return "server_stream"
	case StreamTypeBidi:
		return "bidi_stream"
	default:
		return "unknown_stream_type"
	}
}

// IsStreaming reports whether s requires envelope framing (§3), i.e.
// anything other than plain unary.
func (s StreamType) IsStreaming() bool {
	return s != StreamTypeUnary
}

// Idempotency describes whether an RPC method may be issued as an HTTP
// GET, per the MethodSpec.Idempotency field in §3.
type Idempotency int

const (
	// IdempotencyUnknown is the default: POST only.
	IdempotencyUnknown Idempotency = iota
	// IdempotencyNoSideEffects methods may be issued as an HTTP GET.
	IdempotencyNoSideEffects
	// IdempotencyIdempotent methods are safe to retry but still require
	// POST, since only no-side-effects methods are GET-eligible (§3).
	IdempotencyIdempotent
)

// UnaryContentType returns the Content-Type for a unary request or
// response using the given codec subtype, e.g. "application/proto".
func UnaryContentType(codecName string) string {
	return unaryContentTypePrefix + codecName
}

// StreamingContentType returns the Content-Type for a streaming request
// or response using the given codec subtype, e.g.
// "application/connect+proto".
func StreamingContentType(codecName string) string {
	return streamingContentTypePrefix + codecName
}

// CodecNameFromContentType extracts the codec subtype from a Content-Type
// header value for either unary or streaming content types. ok is false
// if contentType does not match the expected family.
func CodecNameFromContentType(contentType string, streaming bool) (name string, ok bool) {
	prefix := unaryContentTypePrefix
	if streaming {
		prefix = streamingContentTypePrefix
	}
	if !strings.HasPrefix(contentType, prefix) {
		return "", false
	}
	name = contentType[len(prefix):]
	// Some JSON clients append "; charset=utf-8"; treat it as a synonym for
	// "json" rather than an unknown subtype.
	if semi := strings.IndexByte(name, ';'); semi >= 0 {
		name = strings.TrimSpace(name[:semi])
	}
	return name, true
}

// IsStreamingContentType reports whether contentType names one of the
// streaming content types (application/connect+*), as opposed to a
// unary one.
func IsStreamingContentType(contentType string) bool {
	return strings.HasPrefix(contentType, streamingContentTypePrefix)
}
