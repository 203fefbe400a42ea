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

	"google.golang.org/protobuf/proto"
)

// streamQueueCapacity is the bounded queue capacity used for each
// stream direction, per §5's "bounded queue in each direction
// (capacity >= 1) to provide backpressure".
const streamQueueCapacity = 8

// StreamIO is the codec and compression pair negotiated once at the
// start of a streaming call, per §4.7: "Per-direction compression is
// chosen once at the start."
type StreamIO struct {
	Codec Codec
	// SendCompressor compresses outgoing frame payloads. Nil means
	// identity.
	SendCompressor Compressor
	// RecvCompressor decompresses incoming frame payloads, resolved from
	// the peer's Content-Encoding. Nil means identity.
	RecvCompressor Compressor
	MaxFrameBytes  int64
}

func (io_ StreamIO) decodeFrame(env Envelope, msg proto.Message) error {
	payload := env.Payload
	if env.IsCompressed() {
		if io_.RecvCompressor == nil {
			return Errorf(CodeUnimplemented, "received compressed frame but no content-encoding was negotiated")
		}
		var err error
		payload, err = io_.RecvCompressor.Decompress(payload, io_.MaxFrameBytes)
		if err != nil {
			return err
		}
	} else if io_.MaxFrameBytes > 0 && int64(len(payload)) > io_.MaxFrameBytes {
		return Errorf(CodeResourceExhausted, "frame payload of %d bytes exceeds configured max %d", len(payload), io_.MaxFrameBytes)
	}
	return io_.Codec.Unmarshal(payload, msg)
}

func (io_ StreamIO) encodeFrame(w io.Writer, msg proto.Message) error {
	payload, err := io_.Codec.Marshal(msg)
	if err != nil {
		return Errorf(CodeInternal, "encoding message: %s", err)
	}
	flags := byte(0)
	if io_.SendCompressor != nil {
		payload, err = io_.SendCompressor.Compress(payload)
		if err != nil {
			return Errorf(CodeInternal, "compressing message: %s", err)
		}
		flags |= FlagCompressed
	}
	return WriteEnvelope(w, flags, payload)
}

// writeEndStream writes the terminal envelope for err (nil means
// success), per §3 and §4.7's "on normal handler return, engine sends
// an EOS envelope with empty payload {}; on handler failure, engine
// sends EOS envelope with error payload". trailers are folded into the
// envelope's metadata field either way.
func writeEndStream(w io.Writer, err error, trailers Headers) error {
	var ce *Error
	if err != nil {
		var ok bool
		ce, ok = AsError(err)
		if !ok {
			ce = NewError(CodeUnknown, err.Error())
		}
	}
	payload, encErr := EncodeEndStream(ce, trailers)
	if encErr != nil {
		return encErr
	}
	return WriteEnvelope(w, FlagEndStream, payload)
}

// ServeClientStream runs the client-streaming engine: it decodes every
// envelope of the request body into typed messages fed to the handler,
// then writes the handler's single response followed by an EOS
// envelope.
func (d *Dispatcher) ServeClientStream(ctx context.Context, rc *RequestContext, ep *Endpoint, r io.Reader, w io.Writer, io_ StreamIO) error {
	reader := NewEnvelopeReader(r, io_.MaxFrameBytes)
	in := make(chan proto.Message, streamQueueCapacity)
	decodeErrCh := make(chan error, 1)

	go func() {
		defer close(in)
		for {
			env, err := reader.ReadEnvelope()
			if err == io.EOF {
				decodeErrCh <- nil
				return
			}
			if err != nil {
				decodeErrCh <- err
				return
			}
			msg := ep.NewInput()
			if err := io_.decodeFrame(env, msg); err != nil {
				decodeErrCh <- err
				return
			}
			select {
			case in <- msg:
			case <-ctx.Done():
				decodeErrCh <- Errorf(CodeCanceled, "request canceled")
				return
			}
		}
	}()

	terminal := ep.ClientStream
	handler := d.Interceptors.WrapClientStream(terminal)
	output, handlerErr := handler(ctx, rc, in)

	if decodeErr := <-decodeErrCh; decodeErr != nil && handlerErr == nil {
		handlerErr = decodeErr
	}

	if handlerErr != nil {
		return writeEndStream(w, handlerErr, rc.ResponseTrailers)
	}
	if err := io_.encodeFrame(w, output); err != nil {
		return writeEndStream(w, err, rc.ResponseTrailers)
	}
	return writeEndStream(w, nil, rc.ResponseTrailers)
}

// ServeServerStream runs the server-streaming engine: it decodes the
// single request envelope, then drains the handler's outgoing sequence,
// encoding + framing each element, finishing with an EOS envelope.
func (d *Dispatcher) ServeServerStream(ctx context.Context, rc *RequestContext, ep *Endpoint, r io.Reader, w io.Writer, io_ StreamIO) error {
	reader := NewEnvelopeReader(r, io_.MaxFrameBytes)
	env, err := reader.ReadEnvelope()
	if err != nil {
		if err == io.EOF {
			err = Errorf(CodeInvalidArgument, "server-streaming request body is empty")
		}
		return writeEndStream(w, err, rc.ResponseTrailers)
	}
	input := ep.NewInput()
	if err := io_.decodeFrame(env, input); err != nil {
		return writeEndStream(w, err, rc.ResponseTrailers)
	}

	out := make(chan proto.Message, streamQueueCapacity)
	terminal := ep.ServerStream
	handler := d.Interceptors.WrapServerStream(terminal)

	handlerErrCh := make(chan error, 1)
	go func() {
		defer close(out)
		handlerErrCh <- handler(ctx, rc, input, out)
	}()

	var writeErr error
	for msg := range out {
		if writeErr != nil {
			continue // drain so the handler goroutine doesn't block forever
		}
		if err := io_.encodeFrame(w, msg); err != nil {
			writeErr = err
		}
	}
	handlerErr := <-handlerErrCh

	if writeErr != nil {
		return writeEndStream(w, writeErr, rc.ResponseTrailers)
	}
	return writeEndStream(w, handlerErr, rc.ResponseTrailers)
}

// ServeBidiStream runs the bidirectional-streaming engine. When
// fullDuplex is true it schedules incoming-frame decoding and
// outgoing-frame encoding as concurrent tasks per §4.7; when false
// (half-duplex) it fully drains the request before invoking the
// handler, per the same section's half-duplex row.
func (d *Dispatcher) ServeBidiStream(ctx context.Context, rc *RequestContext, ep *Endpoint, r io.Reader, w io.Writer, io_ StreamIO, fullDuplex bool) error {
	terminal := ep.BidiStream
	handler := d.Interceptors.WrapBidiStream(terminal)

	if !fullDuplex {
		return d.serveBidiHalfDuplex(ctx, rc, ep, r, w, io_, handler)
	}
	return d.serveBidiFullDuplex(ctx, rc, ep, r, w, io_, handler)
}

func (d *Dispatcher) serveBidiHalfDuplex(ctx context.Context, rc *RequestContext, ep *Endpoint, r io.Reader, w io.Writer, io_ StreamIO, handler BidiStreamHandlerFunc) error {
	reader := NewEnvelopeReader(r, io_.MaxFrameBytes)
	var messages []proto.Message
	for {
		env, err := reader.ReadEnvelope()
		if err == io.EOF {
			break
		}
		if err != nil {
			return writeEndStream(w, err, rc.ResponseTrailers)
		}
		msg := ep.NewInput()
		if err := io_.decodeFrame(env, msg); err != nil {
			return writeEndStream(w, err, rc.ResponseTrailers)
		}
		messages = append(messages, msg)
	}

	in := make(chan proto.Message, len(messages)+1)
	for _, m := range messages {
		in <- m
	}
	close(in)

	out := make(chan proto.Message, streamQueueCapacity)
	handlerErrCh := make(chan error, 1)
	go func() {
		defer close(out)
		handlerErrCh <- handler(ctx, rc, in, out)
	}()

	var writeErr error
	for msg := range out {
		if writeErr != nil {
			continue
		}
		if err := io_.encodeFrame(w, msg); err != nil {
			writeErr = err
		}
	}
	handlerErr := <-handlerErrCh
	if writeErr != nil {
		return writeEndStream(w, writeErr, rc.ResponseTrailers)
	}
	return writeEndStream(w, handlerErr, rc.ResponseTrailers)
}

func (d *Dispatcher) serveBidiFullDuplex(ctx context.Context, rc *RequestContext, ep *Endpoint, r io.Reader, w io.Writer, io_ StreamIO, handler BidiStreamHandlerFunc) error {
	in := make(chan proto.Message, streamQueueCapacity)
	out := make(chan proto.Message, streamQueueCapacity)

	decodeErrCh := make(chan error, 1)
	go func() {
		defer close(in)
		reader := NewEnvelopeReader(r, io_.MaxFrameBytes)
		for {
			env, err := reader.ReadEnvelope()
			if err == io.EOF {
				decodeErrCh <- nil
				return
			}
			if err != nil {
				decodeErrCh <- err
				return
			}
			msg := ep.NewInput()
			if err := io_.decodeFrame(env, msg); err != nil {
				decodeErrCh <- err
				return
			}
			select {
			case in <- msg:
			case <-ctx.Done():
				decodeErrCh <- Errorf(CodeCanceled, "request canceled")
				return
			}
		}
	}()

	handlerErrCh := make(chan error, 1)
	go func() {
		defer close(out)
		handlerErrCh <- handler(ctx, rc, in, out)
	}()

	var writeErr error
	for msg := range out {
		if writeErr != nil {
			continue
		}
		if err := io_.encodeFrame(w, msg); err != nil {
			writeErr = err
		}
	}
	handlerErr := <-handlerErrCh
	decodeErr := <-decodeErrCh

	if writeErr != nil {
		return writeEndStream(w, writeErr, rc.ResponseTrailers)
	}
	if handlerErr != nil {
		return writeEndStream(w, handlerErr, rc.ResponseTrailers)
	}
	return writeEndStream(w, decodeErr, rc.ResponseTrailers)
}
