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
	"strings"

	"github.com/i2y/connecpy/internal/clock"
)

// Client is the client-side engine described in §4.10: symmetric
// responsibilities to the server's unary and streaming engines plus the
// dispatcher, but driven by an outgoing http.Request instead of a
// routing table.
type Client struct {
	// BaseURL is the scheme+host+optional path prefix prepended to every
	// method's full name, e.g. "https://api.example.com".
	BaseURL string

	doer              HTTPDoer
	codecName         string
	sendCompression   string
	acceptCompression []string
	interceptors      *InterceptorChain
	maxReceiveBytes   int64
	codecs            *CodecRegistry
	compressors       *CompressionRegistry
	clock             clock.Clock
}

// NewClient returns a Client for baseURL with defaults: proto codec, no
// send compression, identity, gzip, br and zstd advertised as acceptable
// (each only if the client's compression registry has it), and
// http.DefaultClient as the transport.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		doer:        http.DefaultClient,
		codecName:   CodecNameProto,
		codecs:      NewCodecRegistry(),
		compressors: NewCompressionRegistry(),
		clock:       clock.System,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.interceptors == nil {
		c.interceptors = NewInterceptorChain()
	}
	if c.acceptCompression == nil {
		for _, name := range []string{CompressionIdentity, CompressionGzip, CompressionBrotli, CompressionZstd} {
			if _, ok := c.compressors.Get(name); ok {
				c.acceptCompression = append(c.acceptCompression, name)
			}
		}
	}
	return c
}

// methodURL builds the full URL for an RPC, per the routing rule in
// §4.8 applied in reverse: "<base>/<service_full_name>/<method_name>".
func (c *Client) methodURL(fullName string) string {
	return c.BaseURL + "/" + fullName
}

// acceptEncodingHeader renders the client's advertised compressions as
// a comma-separated Accept-Encoding value.
func (c *Client) acceptEncodingHeader() string {
	return strings.Join(c.acceptCompression, ", ")
}

// baseHeaders builds the protocol-mandated headers common to every
// request, per §4.10: Connect-Protocol-Version, Accept-Encoding, and
// (if configured) Content-Encoding for the outgoing body.
func (c *Client) baseHeaders(contentType string) Headers {
	h := NewHeaders()
	h.Set(HeaderContentType, contentType)
	h.Set(HeaderProtocolVersion, ProtocolVersion)
	h.Set(HeaderAcceptEncoding, c.acceptEncodingHeader())
	if c.sendCompression != "" && c.sendCompression != CompressionIdentity {
		h.Set(HeaderContentEncoding, c.sendCompression)
	}
	return h
}

func applyHeaders(req *http.Request, h Headers) {
	for _, k := range h.Keys() {
		for _, v := range h.Values(k) {
			req.Header.Add(k, v)
		}
	}
}

func headersFromHTTP(h http.Header) Headers {
	out := NewHeaders()
	for k, vs := range h {
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	return out
}
