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
	"net/http"

	"google.golang.org/protobuf/proto"
)

// ClientStream is a bidirectional handle to one streaming RPC call, per
// §4.10. Generated client stubs narrow it to the method's specific
// shape (send-only, receive-only, or both).
type ClientStream struct {
	method      MethodSpec
	io_         StreamIO
	compressors *CompressionRegistry

	pw     *io.PipeWriter
	respCh chan clientStreamResponse

	recvEnv  *EnvelopeReader
	recvBody io.ReadCloser
	trailers Headers
	recvErr  error
	recvDone bool
}

type clientStreamResponse struct {
	httpResp *http.Response
	err      error
}

// NewClientStream opens a streaming call: it starts the HTTP request
// with a pipe as its body so Send can write envelopes as they're
// produced, per the full-duplex requirement in §5. The Content-Type's
// streaming subtype is the client's configured codec; the caller is
// responsible for only calling Send/CloseSend in ways consistent with
// method.Kind.
func (c *Client) NewClientStream(ctx context.Context, method MethodSpec, opts CallUnaryOptions) (*ClientStream, error) {
	codec, ok := c.codecs.Get(c.codecName)
	if !ok {
		return nil, Errorf(CodeInternal, "unknown codec %q", c.codecName)
	}

	io_ := StreamIO{Codec: codec, MaxFrameBytes: c.maxReceiveBytes}
	if c.sendCompression != "" && c.sendCompression != CompressionIdentity {
		comp, ok := c.compressors.Get(c.sendCompression)
		if !ok {
			return nil, Errorf(CodeInternal, "unknown compression %q", c.sendCompression)
		}
		io_.SendCompressor = comp
	}

	pr, pw := io.Pipe()
	contentType := StreamingContentType(c.codecName)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method.FullName), pr)
	if err != nil {
		return nil, Errorf(CodeInternal, "building request: %s", err)
	}
	applyHeaders(httpReq, c.baseHeaders(contentType))
	applyHeaders(httpReq, opts.Headers)
	if deadline, ok := ctx.Deadline(); ok {
		httpReq.Header.Set(HeaderTimeout, FormatTimeout(deadline.Sub(c.clock.Now())))
	}

	cs := &ClientStream{
		method:      method,
		io_:         io_,
		compressors: c.compressors,
		pw:          pw,
		respCh:      make(chan clientStreamResponse, 1),
	}

	go func() {
		resp, err := c.doer.Do(httpReq)
		cs.respCh <- clientStreamResponse{httpResp: resp, err: err}
	}()

	return cs, nil
}

// Send encodes and frames one request message.
func (cs *ClientStream) Send(msg proto.Message) error {
	return cs.io_.encodeFrame(cs.pw, msg)
}

// CloseSend signals that no more requests will be sent, unblocking a
// server that is waiting on end-of-input before responding.
func (cs *ClientStream) CloseSend() error {
	return cs.pw.Close()
}

// ensureResponseStarted blocks until the HTTP response headers have
// arrived, resolving the codec/compression pair for decoding frames
// from this point on.
func (cs *ClientStream) ensureResponseStarted() error {
	if cs.recvBody != nil || cs.recvErr != nil {
		return cs.recvErr
	}
	result := <-cs.respCh
	if result.err != nil {
		cs.recvErr = Errorf(CodeUnavailable, "sending request: %s", result.err)
		return cs.recvErr
	}
	resp := result.httpResp
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		ce, parseErr := UnmarshalError(body)
		if parseErr != nil {
			ce = ErrorFromHTTPStatus(resp.StatusCode, string(body))
		}
		ce.meta = headersFromHTTP(resp.Header)
		cs.recvErr = ce
		return cs.recvErr
	}
	if encoding := resp.Header.Get(HeaderContentEncoding); encoding != "" && encoding != CompressionIdentity {
		if comp, ok := cs.compressors.Get(encoding); ok {
			cs.io_.RecvCompressor = comp
		}
	}
	cs.recvBody = resp.Body
	cs.recvEnv = NewEnvelopeReader(resp.Body, cs.io_.MaxFrameBytes)
	return nil
}

// Recv decodes the next response message into resp. It returns io.EOF
// once the end-of-stream envelope has been consumed with no error, and
// a *Error (possibly wrapping the EOS envelope's structured error) on
// stream failure, matching the "error raises on next iteration past the
// last good element" rule in §4.10.
func (cs *ClientStream) Recv(resp proto.Message) error {
	if err := cs.ensureResponseStarted(); err != nil {
		return err
	}
	if cs.recvDone {
		return io.EOF
	}

	env, err := cs.recvEnv.ReadEnvelope()
	if err == io.EOF {
		cs.recvDone = true
		return io.EOF
	}
	if err != nil {
		cs.recvDone = true
		return err
	}
	if env.IsEndStream() {
		cs.recvDone = true
		ce, trailers, parseErr := DecodeEndStream(env.Payload)
		cs.trailers = trailers
		if parseErr != nil {
			return parseErr
		}
		if ce != nil {
			return ce
		}
		return io.EOF
	}
	return cs.io_.decodeFrame(env, resp)
}

// Trailers returns the metadata carried by the end-of-stream envelope.
// Only meaningful after Recv has returned io.EOF or an error.
func (cs *ClientStream) Trailers() Headers { return cs.trailers }

// Close releases the stream's resources. Safe to call multiple times.
func (cs *ClientStream) Close() error {
	cs.pw.Close()
	if cs.recvBody != nil {
		return cs.recvBody.Close()
	}
	return nil
}
