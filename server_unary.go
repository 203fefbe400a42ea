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
	"io"
)

// UnaryRequest is the adapter-normalized view of an inbound unary call,
// per the POST and GET paths in §4.6. GET requests are normalized into
// this same shape by the adapter's serveUnaryGET before ServeUnary runs.
type UnaryRequest struct {
	CodecName       string
	ContentEncoding string // empty means identity
	Body            []byte // possibly compressed, per ContentEncoding
}

// UnaryResponse is what ServeUnary produces; the adapter is responsible
// for translating it into a concrete HTTP response.
type UnaryResponse struct {
	StatusCode      int
	ContentType     string
	ContentEncoding string // empty means identity; set by MaybeCompressResponse, on error bodies too
	Body            []byte
	Headers         Headers
	Trailers        Headers
}

// ServeUnary runs the unary protocol engine (C6) for one request: it
// decompresses and decodes the body, invokes the endpoint (through the
// dispatcher's interceptor chain), and encodes the result. It never
// returns an error itself — negotiation and handler failures alike are
// captured into the returned UnaryResponse's error body, per §7
// ("negotiation errors ... reported to the peer as a unary-style error
// response").
func (d *Dispatcher) ServeUnary(ctx context.Context, rc *RequestContext, ep *Endpoint, req UnaryRequest) *UnaryResponse {
	codec, ok := d.Codecs.Get(req.CodecName)
	if !ok {
		return d.unaryError(req.CodecName, Errorf(CodeInvalidArgument, "unsupported codec %q", req.CodecName), rc)
	}

	body := req.Body
	if req.ContentEncoding != "" && req.ContentEncoding != CompressionIdentity {
		comp, ok := d.Compressors.Get(req.ContentEncoding)
		if !ok {
			return d.unaryError(req.CodecName, Errorf(CodeUnimplemented, "unsupported content-encoding %q", req.ContentEncoding), rc)
		}
		var err error
		body, err = comp.Decompress(body, d.MaxReceiveBytes)
		if err != nil {
			return d.unaryError(req.CodecName, err, rc)
		}
	}

	input := ep.NewInput()
	if err := codec.Unmarshal(body, input); err != nil {
		return d.unaryError(req.CodecName, Errorf(CodeInvalidArgument, "decoding request: %s", err), rc)
	}

	terminal := ep.Unary
	handler := d.Interceptors.WrapUnary(terminal)
	output, err := handler(ctx, rc, input)
	if err != nil {
		return d.unaryErrorFromHandler(req.CodecName, err, rc)
	}

	encoded, err := codec.Marshal(output)
	if err != nil {
		return d.unaryError(req.CodecName, Errorf(CodeInternal, "encoding response: %s", err), rc)
	}

	resp := &UnaryResponse{
		StatusCode:  200,
		ContentType: UnaryContentType(req.CodecName),
		Body:        encoded,
		Headers:     rc.ResponseHeaders,
		Trailers:    rc.ResponseTrailers,
	}
	return resp
}

// unaryError builds a UnaryResponse carrying a structured error body for
// an unstructured or negotiation failure. If codecName does not resolve
// to a known codec, the error is always rendered as JSON, since the
// requested codec cannot be trusted to encode it.
func (d *Dispatcher) unaryError(codecName string, err error, rc *RequestContext) *UnaryResponse {
	return d.unaryErrorFromHandler(codecName, err, rc)
}

// unaryErrorFromHandler renders err (possibly an unstructured handler
// error) as the JSON error body from §4.4, mapping
// unstructured errors to CodeUnknown per §7.
func (d *Dispatcher) unaryErrorFromHandler(codecName string, err error, rc *RequestContext) *UnaryResponse {
	ce, ok := AsError(err)
	if !ok {
		ce = NewError(CodeUnknown, err.Error())
	}
	body, marshalErr := ce.MarshalJSON()
	if marshalErr != nil {
		body = []byte(`{"code":"internal","message":"failed to encode error"}`)
	}
	headers := rc.ResponseHeaders
	if ce.meta.Len() > 0 {
		headers = headers.Clone()
		headers.Merge(ce.meta)
	}
	return &UnaryResponse{
		StatusCode:  ce.Code().HTTPStatus(),
		ContentType: UnaryContentType(CodecNameJSON),
		Body:        body,
		Headers:     headers,
		Trailers:    rc.ResponseTrailers,
	}
}

// MaybeCompressResponse compresses resp.Body in place if name is
// non-empty and is not identity, per §4.6's "compressed if an
// acceptable encoding exists and the server chooses to compress"
// clause. Callers pick name by consulting the request's Accept-Encoding
// via AcceptsEncoding.
func (d *Dispatcher) MaybeCompressResponse(resp *UnaryResponse, name string) error {
	if name == "" || name == CompressionIdentity {
		return nil
	}
	comp, ok := d.Compressors.Get(name)
	if !ok {
		return nil
	}
	compressed, err := comp.Compress(resp.Body)
	if err != nil {
		return err
	}
	resp.Body = compressed
	resp.ContentEncoding = name
	return nil
}

// readAllLimited reads r fully, failing with CodeResourceExhausted if
// more than maxBytes are read. Used by adapters that stream the request
// body rather than buffering a known Content-Length up front.
func readAllLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, Errorf(CodeInternal, "reading request body: %s", err)
		}
		return data, nil
	}
	limited := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, Errorf(CodeInternal, "reading request body: %s", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, Errorf(CodeResourceExhausted, "request body exceeds configured max %d bytes", maxBytes)
	}
	return data, nil
}
