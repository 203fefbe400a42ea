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
	"net"
	"net/http"
	"strings"
)

// ServeHTTP is the net/http binding for the dispatcher, i.e. one
// concrete realization of the "external HTTP adapter" named throughout
// §4 and §6. It is parallel-threaded (net/http's own model), so the
// cooperative-profile concerns in §5 collapse to ordinary goroutines;
// full-duplex bidi streaming is always available.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ep, err := d.Lookup(r.URL.Path)
	if err != nil {
		writeNegotiationError(w, err)
		return
	}

	allowed, err := d.CheckMethod(ep, r.Method)
	if err != nil {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		writeNegotiationError(w, err)
		return
	}

	if err := d.CheckContentLength(r.ContentLength); err != nil {
		writeNegotiationError(w, err)
		return
	}

	if r.Method == http.MethodGet {
		d.serveUnaryGET(w, r, ep)
		return
	}

	contentType := r.Header.Get(HeaderContentType)
	codecName, streaming, err := d.SelectEngine(ep, contentType)
	if err != nil {
		writeNegotiationError(w, err)
		return
	}

	if err := CheckProtocolVersion(r.Header.Get(HeaderProtocolVersion), true); err != nil {
		writeNegotiationError(w, err)
		return
	}

	ctx := r.Context()
	if timeoutStr := r.Header.Get(HeaderTimeout); timeoutStr != "" {
		timeout, err := ParseTimeout(timeoutStr)
		if err != nil {
			writeNegotiationError(w, err)
			return
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, d.Clock.Now().Add(timeout))
		defer cancel()
	}

	rc := NewRequestContext(ctx, ep.Spec, headersFromHTTP(r.Header), PeerInfo{Addr: remoteAddr(r), Protocol: r.Proto}, d.Clock)

	if !streaming {
		d.serveUnaryPOST(ctx, w, r, ep, codecName, rc)
		return
	}
	d.serveStreaming(ctx, w, r, ep, codecName, rc)
}

func writeNegotiationError(w http.ResponseWriter, err error) {
	ce, ok := AsError(err)
	if !ok {
		ce = NewError(CodeUnknown, err.Error())
	}
	body, marshalErr := ce.MarshalJSON()
	if marshalErr != nil {
		body = []byte(`{"code":"internal","message":"failed to encode error"}`)
	}
	w.Header().Set(HeaderContentType, UnaryContentType(CodecNameJSON))
	w.WriteHeader(ce.Code().HTTPStatus())
	w.Write(body)
}

func (d *Dispatcher) serveUnaryPOST(ctx context.Context, w http.ResponseWriter, r *http.Request, ep *Endpoint, codecName string, rc *RequestContext) {
	body, err := readAllLimited(r.Body, d.MaxReceiveBytes)
	if err != nil {
		writeNegotiationError(w, err)
		return
	}
	resp := d.ServeUnary(ctx, rc, ep, UnaryRequest{
		CodecName:       codecName,
		ContentEncoding: r.Header.Get(HeaderContentEncoding),
		Body:            body,
	})
	if chosen := pickResponseCompression(r.Header.Get(HeaderAcceptEncoding), d.Compressors); chosen != "" {
		_ = d.MaybeCompressResponse(resp, chosen)
	}
	writeUnaryResponse(w, resp)
}

// serveUnaryGET implements the GET path described in §4.6. It is
// checked against CheckMethod's allowed set before being called, so a
// non-GET-eligible method never reaches here.
func (d *Dispatcher) serveUnaryGET(w http.ResponseWriter, r *http.Request, ep *Endpoint) {
	q := r.URL.Query()

	if q.Get("connect") != "v1" {
		writeNegotiationError(w, Errorf(CodeInvalidArgument, "missing or unsupported connect query parameter"))
		return
	}
	codecName := q.Get("encoding")
	if codecName == "" {
		writeNegotiationError(w, Errorf(CodeInvalidArgument, "missing encoding query parameter"))
		return
	}
	if _, ok := d.Codecs.Get(codecName); !ok {
		writeNegotiationError(w, Errorf(CodeInvalidArgument, "unsupported encoding %q", codecName))
		return
	}
	encodedMsg := q.Get("message")
	if encodedMsg == "" {
		writeNegotiationError(w, Errorf(CodeInvalidArgument, "missing message query parameter"))
		return
	}

	var body []byte
	var decodeErr error
	if q.Get("base64") == "1" {
		body, decodeErr = base64.StdEncoding.DecodeString(encodedMsg)
	} else {
		body, decodeErr = base64.RawURLEncoding.DecodeString(encodedMsg)
	}
	if decodeErr != nil {
		writeNegotiationError(w, Errorf(CodeInvalidArgument, "malformed message query parameter: %s", decodeErr))
		return
	}

	ctx := r.Context()
	rc := NewRequestContext(ctx, ep.Spec, headersFromHTTP(r.Header), PeerInfo{Addr: remoteAddr(r), Protocol: r.Proto}, d.Clock)
	resp := d.ServeUnary(ctx, rc, ep, UnaryRequest{
		CodecName:       codecName,
		ContentEncoding: q.Get("compression"),
		Body:            body,
	})
	if chosen := pickResponseCompression(r.Header.Get(HeaderAcceptEncoding), d.Compressors); chosen != "" {
		_ = d.MaybeCompressResponse(resp, chosen)
	}
	writeUnaryResponse(w, resp)
}

func writeUnaryResponse(w http.ResponseWriter, resp *UnaryResponse) {
	h := w.Header()
	for _, k := range resp.Headers.Keys() {
		for _, v := range resp.Headers.Values(k) {
			h.Add(k, v)
		}
	}
	h.Set(HeaderContentType, resp.ContentType)
	if resp.ContentEncoding != "" {
		h.Set(HeaderContentEncoding, resp.ContentEncoding)
	}
	for _, k := range resp.Trailers.Keys() {
		for _, v := range resp.Trailers.Values(k) {
			h.Add("Trailer-"+k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// pickResponseCompression chooses an outgoing compression from the
// client's Accept-Encoding, per §4.6's "implementation-defined
// threshold" clause: this implementation checks gzip, then zstd, then
// br, and returns the first one that the client accepts and the registry
// knows about, or "" (no compression) if none match.
func pickResponseCompression(acceptEncoding string, registry *CompressionRegistry) string {
	for _, name := range []string{CompressionGzip, CompressionZstd, CompressionBrotli} {
		if AcceptsEncoding(acceptEncoding, name) {
			if _, ok := registry.Get(name); ok {
				return name
			}
		}
	}
	return ""
}

func (d *Dispatcher) serveStreaming(ctx context.Context, w http.ResponseWriter, r *http.Request, ep *Endpoint, codecName string, rc *RequestContext) {
	codec, _ := d.Codecs.Get(codecName)
	io_ := StreamIO{Codec: codec, MaxFrameBytes: d.MaxReceiveBytes}

	if enc := r.Header.Get(HeaderContentEncoding); enc != "" && enc != CompressionIdentity {
		comp, ok := d.Compressors.Get(enc)
		if !ok {
			writeNegotiationError(w, Errorf(CodeUnimplemented, "unsupported content-encoding %q", enc))
			return
		}
		io_.RecvCompressor = comp
	}
	if chosen := pickResponseCompression(r.Header.Get(HeaderAcceptEncoding), d.Compressors); chosen != "" {
		comp, _ := d.Compressors.Get(chosen)
		io_.SendCompressor = comp
	}

	w.Header().Set(HeaderContentType, StreamingContentType(codecName))
	if io_.SendCompressor != nil {
		w.Header().Set(HeaderContentEncoding, io_.SendCompressor.Name())
	}
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	fw := &flushingWriter{w: w, flusher: flusher}

	var err error
	switch ep.Spec.Kind {
	case StreamTypeClient:
		err = d.ServeClientStream(ctx, rc, ep, r.Body, fw, io_)
	case StreamTypeServer:
		err = d.ServeServerStream(ctx, rc, ep, r.Body, fw, io_)
	case StreamTypeBidi:
		err = d.ServeBidiStream(ctx, rc, ep, r.Body, fw, io_, true)
	}
	_ = err // already embedded in the EOS envelope; nothing left to report to the adapter
}

type flushingWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (f *flushingWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if f.flusher != nil {
		f.flusher.Flush()
	}
	return n, err
}

// remoteAddr wraps the textual RemoteAddr net/http gives us as a
// net.Addr, since that's all PeerInfo needs and http.Request exposes no
// richer type.
func remoteAddr(r *http.Request) net.Addr {
	return remoteAddrString(r.RemoteAddr)
}

type remoteAddrString string

func (s remoteAddrString) String() string  { return string(s) }
func (s remoteAddrString) Network() string { return "tcp" }
