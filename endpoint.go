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
	"sort"
	"strings"

	"google.golang.org/protobuf/proto"

	"github.com/i2y/connecpy/internal/clock"
)

// Endpoint binds one RPC method's MethodSpec to its handler, per §4.8.
// Generated server stubs construct one Endpoint per RPC and register it
// on a Dispatcher.
type Endpoint struct {
	Spec MethodSpec

	// Exactly one of the following is set, matching Spec.Kind.
	Unary        UnaryHandlerFunc
	ClientStream ClientStreamHandlerFunc
	ServerStream ServerStreamHandlerFunc
	BidiStream   BidiStreamHandlerFunc

	// NewInput and NewOutput construct empty messages for decoding a
	// request and encoding a response, respectively.
	NewInput  func() proto.Message
	NewOutput func() proto.Message
}

// Dispatcher routes normalized inbound requests to the registered
// Endpoint by full method name, per §4.8. The endpoint table is written
// only during construction (via Register); Lookup (and so ServeHTTP)
// performs unsynchronized reads, matching the "endpoint registry is written only
// during server construction" invariant in §5.
type Dispatcher struct {
	// Prefix is prepended to every service's path, e.g. "" or "/twirp".
	Prefix string

	// MaxReceiveBytes caps the declared Content-Length of a unary request
	// and, for streaming, the length of any single envelope payload after
	// decompression. Zero means unlimited.
	MaxReceiveBytes int64

	Codecs       *CodecRegistry
	Compressors  *CompressionRegistry
	Interceptors *InterceptorChain

	// Clock computes deadlines derived from Connect-Timeout-Ms and the
	// per-request start time recorded on RequestContext. Defaults to
	// clock.System; tests substitute a testclock.Clock to assert
	// deadline math without sleeping.
	Clock clock.Clock

	endpoints map[string]*Endpoint
}

// NewDispatcher returns a Dispatcher with default codec and compression
// registries and an empty interceptor chain.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		Codecs:       NewCodecRegistry(),
		Compressors:  NewCompressionRegistry(),
		Interceptors: NewInterceptorChain(),
		Clock:        clock.System,
		endpoints:    make(map[string]*Endpoint),
	}
}

// Register adds ep to the routing table, keyed by its full method name.
// Register must not be called concurrently with Lookup or after the
// server has started serving traffic.
func (d *Dispatcher) Register(ep *Endpoint) {
	if d.endpoints == nil {
		d.endpoints = make(map[string]*Endpoint)
	}
	d.endpoints[ep.Spec.FullName] = ep
}

// Lookup resolves an HTTP path to its Endpoint, per the routing rule in
// §4.8: the path must equal "<prefix>/<service_full_name>/<method_name>".
func (d *Dispatcher) Lookup(path string) (*Endpoint, error) {
	trimmed := strings.TrimPrefix(path, d.Prefix)
	trimmed = strings.TrimPrefix(trimmed, "/")
	ep, ok := d.endpoints[trimmed]
	if !ok {
		return nil, Errorf(CodeUnimplemented, "unknown method %q", path)
	}
	return ep, nil
}

// CheckMethod validates the HTTP method against ep's allowed set, per
// §4.8: a disallowed method is `unimplemented` and the caller must set
// an Allow header listing the returned allowed methods on the response.
func (d *Dispatcher) CheckMethod(ep *Endpoint, httpMethod string) (allowed []string, err error) {
	allowed = ep.Spec.AllowedHTTPMethods()
	for _, m := range allowed {
		if m == httpMethod {
			return allowed, nil
		}
	}
	sorted := append([]string(nil), allowed...)
	sort.Strings(sorted)
	return allowed, Errorf(CodeUnimplemented, "method %s not allowed; allowed: %s", httpMethod, strings.Join(sorted, ", "))
}

// SelectEngine determines which protocol engine handles contentType for
// ep, per the mapping in §4.8: the content-type family must agree with
// ep.Spec.Kind.IsStreaming().
func (d *Dispatcher) SelectEngine(ep *Endpoint, contentType string) (codecName string, streaming bool, err error) {
	streaming = ep.Spec.Kind.IsStreaming()
	name, ok := CodecNameFromContentType(contentType, streaming)
	if !ok {
		wantFamily := "application/"
		if streaming {
			wantFamily = "application/connect+"
		}
		return "", streaming, Errorf(CodeInvalidArgument, "content-type %q does not match expected family %q for %s method", contentType, wantFamily, ep.Spec.Kind)
	}
	if _, ok := d.Codecs.Get(name); !ok {
		return "", streaming, Errorf(CodeInvalidArgument, "unsupported codec %q", name)
	}
	return name, streaming, nil
}

// CheckContentLength enforces MaxReceiveBytes against a declared
// Content-Length, per §4.8. A non-positive contentLength (unknown) is
// not checked here; streaming and chunked bodies are checked per-frame
// by the envelope reader instead.
func (d *Dispatcher) CheckContentLength(contentLength int64) error {
	if d.MaxReceiveBytes > 0 && contentLength > d.MaxReceiveBytes {
		return Errorf(CodeResourceExhausted, "request body of %d bytes exceeds configured max %d", contentLength, d.MaxReceiveBytes)
	}
	return nil
}
