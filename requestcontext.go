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
	"net"
	"sync/atomic"
	"time"

	"github.com/i2y/connecpy/internal/clock"
)

// PeerInfo identifies the remote side of a connection, when the adapter
// providing it to NewRequestContext knows it.
type PeerInfo struct {
	Addr     net.Addr
	Protocol string // "http/1.1", "h2", etc; empty if unknown.
}

// RequestContext is the per-request object passed to handlers, per §3.
// It is created fresh for each request and is not safe for use after the
// HTTP exchange that created it completes. A RequestContext must not be
// shared or reused across requests: doing so is exactly the
// cross-request state leak the no-cross-request-state property in §8
// forbids.
type RequestContext struct {
	// Method describes the RPC being served.
	Method MethodSpec
	// Headers are the incoming request headers. Read-only by convention;
	// handlers that need to mutate headers should copy them.
	Headers Headers
	// ResponseHeaders are written by the handler and sent before the
	// first byte of the response body.
	ResponseHeaders Headers
	// ResponseTrailers are written by the handler and sent after the
	// last byte of the response body. For unary responses the net/http
	// adapter sends them as response headers prefixed with "Trailer-"; for streaming
	// responses they are folded into the end-of-stream envelope's
	// metadata field.
	ResponseTrailers Headers
	// Peer identifies the caller, if known.
	Peer PeerInfo

	ctx       context.Context
	canceled  atomic.Bool
	clock     clock.Clock
	startedAt time.Time
}

// NewRequestContext creates a RequestContext for one inbound RPC. ctx
// should already carry any deadline computed from the
// Connect-Timeout-Ms header (see ParseTimeout). clk is the Clock the
// caller used to compute that deadline; passing nil defaults to
// clock.System, so existing callers that have no reason to fake time
// don't need to thread one through.
func NewRequestContext(ctx context.Context, method MethodSpec, headers Headers, peer PeerInfo, clk clock.Clock) *RequestContext {
	if clk == nil {
		clk = clock.System
	}
	rc := &RequestContext{
		Method:           method,
		Headers:          headers,
		ResponseHeaders:  NewHeaders(),
		ResponseTrailers: NewHeaders(),
		Peer:             peer,
		ctx:              ctx,
		clock:            clk,
		startedAt:        clk.Now(),
	}
	context.AfterFunc(ctx, func() { rc.canceled.Store(true) })
	return rc
}

// Context returns the request's context.Context, carrying its deadline
// and cancellation signal.
func (rc *RequestContext) Context() context.Context { return rc.ctx }

// Deadline returns the request's deadline and whether one is set,
// mirroring context.Context.Deadline.
func (rc *RequestContext) Deadline() (time.Time, bool) { return rc.ctx.Deadline() }

// StartedAt returns the time, per rc's Clock, at which this
// RequestContext was created.
func (rc *RequestContext) StartedAt() time.Time { return rc.startedAt }

// Elapsed returns how much time, per rc's Clock, has passed since the
// request started.
func (rc *RequestContext) Elapsed() time.Duration { return rc.clock.Now().Sub(rc.startedAt) }

// IsCanceled reports whether the request's context has been canceled or
// its deadline has elapsed, per the RequestContext.is_canceled() method
// in §3.
func (rc *RequestContext) IsCanceled() bool {
	if rc.canceled.Load() {
		return true
	}
	select {
	case <-rc.ctx.Done():
		return true
	default:
		return false
	}
}
