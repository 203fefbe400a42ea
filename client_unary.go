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
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/protobuf/proto"
)

// CallUnaryOptions configures one unary call.
type CallUnaryOptions struct {
	// UseGET issues the call as an HTTP GET, per §4.10. Only valid when
	// MethodSpec.AllowsGET() is true; CallUnary returns an error
	// otherwise.
	UseGET bool
	// Headers are merged on top of the client's protocol defaults.
	Headers Headers
}

// CallUnary invokes a unary RPC, per §4.10. On success it populates resp
// (an empty message of the response type) and returns nil. On failure
// it returns a *Error (always, even for transport failures, which map
// to CodeUnavailable per §7).
func (c *Client) CallUnary(ctx context.Context, method MethodSpec, req, resp proto.Message, opts CallUnaryOptions) error {
	terminal := func(ctx context.Context, rc *RequestContext, req proto.Message) (proto.Message, error) {
		return c.callUnary(ctx, method, req, resp, opts)
	}
	handler := c.interceptors.WrapUnary(terminal)
	rc := NewRequestContext(ctx, method, opts.Headers, PeerInfo{}, c.clock)
	out, err := handler(ctx, rc, req)
	if err != nil {
		return err
	}
	if out != resp && out != nil {
		proto.Reset(resp)
		proto.Merge(resp, out)
	}
	return nil
}

func (c *Client) callUnary(ctx context.Context, method MethodSpec, req, resp proto.Message, opts CallUnaryOptions) (proto.Message, error) {
	codec, ok := c.codecs.Get(c.codecName)
	if !ok {
		return nil, Errorf(CodeInternal, "unknown codec %q", c.codecName)
	}

	if opts.UseGET && !method.AllowsGET() {
		return nil, Errorf(CodeInvalidArgument, "use_get requested but %s does not allow GET", method.FullName)
	}

	encoded, err := codec.Marshal(req)
	if err != nil {
		return nil, Errorf(CodeInternal, "encoding request: %s", err)
	}
	if c.sendCompression != "" && c.sendCompression != CompressionIdentity {
		comp, ok := c.compressors.Get(c.sendCompression)
		if !ok {
			return nil, Errorf(CodeInternal, "unknown compression %q", c.sendCompression)
		}
		encoded, err = comp.Compress(encoded)
		if err != nil {
			return nil, Errorf(CodeInternal, "compressing request: %s", err)
		}
	}

	contentType := UnaryContentType(c.codecName)

	var httpReq *http.Request
	if opts.UseGET {
		httpReq, err = c.buildGETRequest(ctx, method, encoded)
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method.FullName), strings.NewReader(string(encoded)))
	}
	if err != nil {
		return nil, Errorf(CodeInternal, "building request: %s", err)
	}

	if !opts.UseGET {
		applyHeaders(httpReq, c.baseHeaders(contentType))
	} else {
		httpReq.Header.Set(HeaderAcceptEncoding, c.acceptEncodingHeader())
	}
	applyHeaders(httpReq, opts.Headers)
	if deadline, ok := ctx.Deadline(); ok {
		httpReq.Header.Set(HeaderTimeout, FormatTimeout(deadline.Sub(c.clock.Now())))
	}

	httpResp, err := c.doer.Do(httpReq)
	if err != nil {
		return nil, Errorf(CodeUnavailable, "sending request: %s", err)
	}
	defer httpResp.Body.Close()

	body, err := readAllLimited(httpResp.Body, c.maxReceiveBytes)
	if err != nil {
		return nil, err
	}

	respContentEncoding := httpResp.Header.Get(HeaderContentEncoding)
	if respContentEncoding != "" && respContentEncoding != CompressionIdentity {
		comp, ok := c.compressors.Get(respContentEncoding)
		if !ok {
			return nil, Errorf(CodeInternal, "response used unsupported content-encoding %q", respContentEncoding)
		}
		body, err = comp.Decompress(body, c.maxReceiveBytes)
		if err != nil {
			return nil, err
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		ce, parseErr := UnmarshalError(body)
		if parseErr != nil {
			ce = ErrorFromHTTPStatus(httpResp.StatusCode, string(body))
		}
		ce.meta = headersFromHTTP(httpResp.Header)
		return nil, ce
	}

	respCodecName, _ := CodecNameFromContentType(httpResp.Header.Get(HeaderContentType), false)
	respCodec := codec
	if respCodecName != "" {
		if rc, ok := c.codecs.Get(respCodecName); ok {
			respCodec = rc
		}
	}
	if err := respCodec.Unmarshal(body, resp); err != nil {
		return nil, Errorf(CodeInternal, "decoding response: %s", err)
	}
	return resp, nil
}

// buildGETRequest renders the query-parameter form described in §4.6:
// "?connect=v1&encoding=<proto|json>&message=<base64url>&compression=<name>?".
func (c *Client) buildGETRequest(ctx context.Context, method MethodSpec, encodedBody []byte) (*http.Request, error) {
	q := url.Values{}
	q.Set("connect", "v1")
	q.Set("encoding", c.codecName)
	q.Set("message", base64.RawURLEncoding.EncodeToString(encodedBody))
	if c.sendCompression != "" && c.sendCompression != CompressionIdentity {
		q.Set("compression", c.sendCompression)
	}
	u := c.methodURL(method.FullName) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return req, nil
}
