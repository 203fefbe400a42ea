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

	"github.com/i2y/connecpy/internal/clock"
)

// HTTPDoer is the subset of *http.Client that Client needs, so callers
// can plug in their own pooling, retries, or test doubles. Per §4.10,
// "retries, pooling and connection lifetime belong to the external HTTP
// client" — this runtime never constructs one itself.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithHTTPClient overrides the default http.DefaultClient doer.
func WithHTTPClient(doer HTTPDoer) ClientOption {
	return func(c *Client) { c.doer = doer }
}

// WithCodec selects the wire codec subtype ("proto" or "json") used for
// outgoing requests. Defaults to "proto".
func WithCodec(name string) ClientOption {
	return func(c *Client) { c.codecName = name }
}

// WithSendCompression sets the Content-Encoding used for outgoing
// request bodies and stream frames. Defaults to identity (none).
func WithSendCompression(name string) ClientOption {
	return func(c *Client) { c.sendCompression = name }
}

// WithAcceptCompression overrides the set of compressions advertised
// via Accept-Encoding. Defaults to identity, gzip, br and zstd, keeping
// only those present in the client's compression registry.
func WithAcceptCompression(names ...string) ClientOption {
	return func(c *Client) { c.acceptCompression = names }
}

// WithClientInterceptors installs interceptors that wrap every call
// made through the client, per §4.9's "Client interceptors run inside
// C10, wrapping message serialization too".
func WithClientInterceptors(interceptors ...any) ClientOption {
	return func(c *Client) { c.interceptors = NewInterceptorChain(interceptors...) }
}

// WithMaxReceiveBytes caps the size of a decompressed unary response
// body or streaming frame payload the client will accept.
func WithMaxReceiveBytes(n int64) ClientOption {
	return func(c *Client) { c.maxReceiveBytes = n }
}

// WithCodecRegistry overrides the client's codec registry. Rarely
// needed; mostly useful in tests that register a stub codec.
func WithCodecRegistry(r *CodecRegistry) ClientOption {
	return func(c *Client) { c.codecs = r }
}

// WithCompressionRegistry overrides the client's compression registry.
func WithCompressionRegistry(r *CompressionRegistry) ClientOption {
	return func(c *Client) { c.compressors = r }
}

// WithClock overrides the Clock the client uses to compute the
// Connect-Timeout-Ms header and RequestContext.StartedAt/Elapsed.
// Rarely needed outside tests that fake time.
func WithClock(clk clock.Clock) ClientOption {
	return func(c *Client) { c.clock = clk }
}
