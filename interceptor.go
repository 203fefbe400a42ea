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

	"google.golang.org/protobuf/proto"
)

// UnaryHandlerFunc is a terminal or wrapped unary handler, per §4.9.
type UnaryHandlerFunc func(ctx context.Context, rc *RequestContext, req proto.Message) (proto.Message, error)

// UnaryInterceptor wraps a unary handler, per the four kind-specific
// interceptor protocols named in §4.9.
type UnaryInterceptor interface {
	WrapUnary(next UnaryHandlerFunc) UnaryHandlerFunc
}

// ClientStreamHandlerFunc handles a client-streaming call: it drains in
// for as many messages as the caller sends, then returns one response.
type ClientStreamHandlerFunc func(ctx context.Context, rc *RequestContext, in <-chan proto.Message) (proto.Message, error)

// ClientStreamInterceptor wraps a client-streaming handler.
type ClientStreamInterceptor interface {
	WrapClientStream(next ClientStreamHandlerFunc) ClientStreamHandlerFunc
}

// ServerStreamHandlerFunc handles a server-streaming call: given the
// single request, it sends zero or more responses on out and returns
// when done. out is closed by the engine, never by the handler.
type ServerStreamHandlerFunc func(ctx context.Context, rc *RequestContext, req proto.Message, out chan<- proto.Message) error

// ServerStreamInterceptor wraps a server-streaming handler.
type ServerStreamInterceptor interface {
	WrapServerStream(next ServerStreamHandlerFunc) ServerStreamHandlerFunc
}

// BidiStreamHandlerFunc handles a bidirectional-streaming call: in
// yields requests as they arrive, and the handler sends responses on
// out. out is closed by the engine, never by the handler.
type BidiStreamHandlerFunc func(ctx context.Context, rc *RequestContext, in <-chan proto.Message, out chan<- proto.Message) error

// BidiStreamInterceptor wraps a bidi-streaming handler.
type BidiStreamInterceptor interface {
	WrapBidiStream(next BidiStreamHandlerFunc) BidiStreamHandlerFunc
}

// MetadataInterceptor is the simpler, kind-agnostic protocol described
// in §4.9: OnStart runs before the terminal handler and returns
// arbitrary state; OnEnd runs after the terminal handler (including on
// error) with that state. It is adapted to each of the four
// kind-specific protocols by AsInterceptors.
type MetadataInterceptor interface {
	OnStart(ctx context.Context, rc *RequestContext) (state any, err error)
	OnEnd(ctx context.Context, rc *RequestContext, state any, err error)
}

// adaptedMetadataInterceptor lifts a MetadataInterceptor into the four
// kind-specific interceptors, so it can sit in the same ordered
// interceptor list as the others.
type adaptedMetadataInterceptor struct {
	m MetadataInterceptor
}

// AsInterceptors adapts m into a value usable wherever a
// UnaryInterceptor, ClientStreamInterceptor, ServerStreamInterceptor, or
// BidiStreamInterceptor is expected.
func AsInterceptors(m MetadataInterceptor) interface {
	UnaryInterceptor
	ClientStreamInterceptor
	ServerStreamInterceptor
	BidiStreamInterceptor
} {
	return adaptedMetadataInterceptor{m: m}
}

func (a adaptedMetadataInterceptor) WrapUnary(next UnaryHandlerFunc) UnaryHandlerFunc {
	return func(ctx context.Context, rc *RequestContext, req proto.Message) (proto.Message, error) {
		state, err := a.m.OnStart(ctx, rc)
		if err != nil {
			return nil, err
		}
		resp, err := next(ctx, rc, req)
		a.m.OnEnd(ctx, rc, state, err)
		return resp, err
	}
}

func (a adaptedMetadataInterceptor) WrapClientStream(next ClientStreamHandlerFunc) ClientStreamHandlerFunc {
	return func(ctx context.Context, rc *RequestContext, in <-chan proto.Message) (proto.Message, error) {
		state, err := a.m.OnStart(ctx, rc)
		if err != nil {
			return nil, err
		}
		resp, err := next(ctx, rc, in)
		a.m.OnEnd(ctx, rc, state, err)
		return resp, err
	}
}

func (a adaptedMetadataInterceptor) WrapServerStream(next ServerStreamHandlerFunc) ServerStreamHandlerFunc {
	return func(ctx context.Context, rc *RequestContext, req proto.Message, out chan<- proto.Message) error {
		state, err := a.m.OnStart(ctx, rc)
		if err != nil {
			return err
		}
		err = next(ctx, rc, req, out)
		a.m.OnEnd(ctx, rc, state, err)
		return err
	}
}

func (a adaptedMetadataInterceptor) WrapBidiStream(next BidiStreamHandlerFunc) BidiStreamHandlerFunc {
	return func(ctx context.Context, rc *RequestContext, in <-chan proto.Message, out chan<- proto.Message) error {
		state, err := a.m.OnStart(ctx, rc)
		if err != nil {
			return err
		}
		err = next(ctx, rc, in, out)
		a.m.OnEnd(ctx, rc, state, err)
		return err
	}
}

// InterceptorChain is an ordered, immutable list of interceptors, per
// the "Interceptor lists are immutable after construction" invariant in
// §5. Given [I1, I2, ..., In] and terminal handler H, the effective
// call is I1.wrap(I2.wrap(...In.wrap(H))): on_start runs outer-to-inner
// (I1 first), on_end runs inner-to-outer (I1 last), because each wrap
// only defers its own before/after logic around whatever it wraps.
type InterceptorChain struct {
	unary        []UnaryInterceptor
	clientStream []ClientStreamInterceptor
	serverStream []ServerStreamInterceptor
	bidiStream   []BidiStreamInterceptor
}

// NewInterceptorChain builds an immutable chain from interceptors,
// preserving order. Each interceptor need only implement the protocols
// it participates in.
func NewInterceptorChain(interceptors ...any) *InterceptorChain {
	c := &InterceptorChain{}
	for _, i := range interceptors {
		if u, ok := i.(UnaryInterceptor); ok {
			c.unary = append(c.unary, u)
		}
		if cs, ok := i.(ClientStreamInterceptor); ok {
			c.clientStream = append(c.clientStream, cs)
		}
		if ss, ok := i.(ServerStreamInterceptor); ok {
			c.serverStream = append(c.serverStream, ss)
		}
		if bs, ok := i.(BidiStreamInterceptor); ok {
			c.bidiStream = append(c.bidiStream, bs)
		}
	}
	return c
}

// WrapUnary composes the chain around terminal, outermost interceptor
// first.
func (c *InterceptorChain) WrapUnary(terminal UnaryHandlerFunc) UnaryHandlerFunc {
	h := terminal
	for i := len(c.unary) - 1; i >= 0; i-- {
		h = c.unary[i].WrapUnary(h)
	}
	return h
}

// WrapClientStream composes the chain around terminal.
func (c *InterceptorChain) WrapClientStream(terminal ClientStreamHandlerFunc) ClientStreamHandlerFunc {
	h := terminal
	for i := len(c.clientStream) - 1; i >= 0; i-- {
		h = c.clientStream[i].WrapClientStream(h)
	}
	return h
}

// WrapServerStream composes the chain around terminal.
func (c *InterceptorChain) WrapServerStream(terminal ServerStreamHandlerFunc) ServerStreamHandlerFunc {
	h := terminal
	for i := len(c.serverStream) - 1; i >= 0; i-- {
		h = c.serverStream[i].WrapServerStream(h)
	}
	return h
}

// WrapBidiStream composes the chain around terminal.
func (c *InterceptorChain) WrapBidiStream(terminal BidiStreamHandlerFunc) BidiStreamHandlerFunc {
	h := terminal
	for i := len(c.bidiStream) - 1; i >= 0; i-- {
		h = c.bidiStream[i].WrapBidiStream(h)
	}
	return h
}
