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
	"bytes"
	"context"
	"io"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// readAllEnvelopes drains every frame of buf, in order, using a fresh
// EnvelopeReader; the caller asserts on the resulting slice.
func readAllEnvelopes(t *testing.T, data []byte) []Envelope {
	t.Helper()
	r := NewEnvelopeReader(bytes.NewReader(data), 0)
	var envs []Envelope
	for {
		env, err := r.ReadEnvelope()
		if err == io.EOF {
			return envs
		}
		if err != nil {
			t.Fatalf("unexpected decode error: %s", err)
		}
		envs = append(envs, env)
	}
}

func TestServeServerStream(t *testing.T) {
	t.Parallel()

	Convey("Three messages followed by a clean EOS envelope", t, func() {
		d := NewDispatcher()
		ep := &Endpoint{
			Spec: MethodSpec{FullName: "test.Counter/Count", Kind: StreamTypeServer},
			ServerStream: func(ctx context.Context, rc *RequestContext, req proto.Message, out chan<- proto.Message) error {
				n := req.(*wrapperspb.Int32Value).GetValue()
				for i := int32(0); i < n; i++ {
					out <- wrapperspb.Int32(i)
				}
				return nil
			},
			NewInput: func() proto.Message { return &wrapperspb.Int32Value{} },
		}
		d.Register(ep)

		var reqBuf bytes.Buffer
		codec := protoCodec{}
		io_ := StreamIO{Codec: codec}
		So(io_.encodeFrame(&reqBuf, wrapperspb.Int32(3)), ShouldBeNil)

		var respBuf bytes.Buffer
		rc := NewRequestContext(context.Background(), ep.Spec, NewHeaders(), PeerInfo{}, nil)
		err := d.ServeServerStream(context.Background(), rc, ep, &reqBuf, &respBuf, io_)
		So(err, ShouldBeNil)

		envs := readAllEnvelopes(t, respBuf.Bytes())
		So(len(envs), ShouldEqual, 4) // three data frames plus EOS
		So(envs[3].IsEndStream(), ShouldBeTrue)

		for i, env := range envs[:3] {
			msg := &wrapperspb.Int32Value{}
			So(codec.Unmarshal(env.Payload, msg), ShouldBeNil)
			So(msg.GetValue(), ShouldEqual, int32(i))
		}

		ce, _, err := DecodeEndStream(envs[3].Payload)
		So(err, ShouldBeNil)
		So(ce, ShouldBeNil)
	})

	Convey("An empty request body is an invalid_argument failure", t, func() {
		d := NewDispatcher()
		ep := &Endpoint{
			Spec: MethodSpec{FullName: "test.Counter/Count", Kind: StreamTypeServer},
			ServerStream: func(ctx context.Context, rc *RequestContext, req proto.Message, out chan<- proto.Message) error {
				return nil
			},
			NewInput: func() proto.Message { return &wrapperspb.Int32Value{} },
		}
		d.Register(ep)

		var respBuf bytes.Buffer
		rc := NewRequestContext(context.Background(), ep.Spec, NewHeaders(), PeerInfo{}, nil)
		_ = d.ServeServerStream(context.Background(), rc, ep, &bytes.Buffer{}, &respBuf, StreamIO{Codec: protoCodec{}})

		envs := readAllEnvelopes(t, respBuf.Bytes())
		So(len(envs), ShouldEqual, 1)
		ce, _, err := DecodeEndStream(envs[0].Payload)
		So(err, ShouldBeNil)
		So(ce, ShouldNotBeNil)
		So(ce.Code(), ShouldEqual, CodeInvalidArgument)
	})
}

func TestServeBidiStream(t *testing.T) {
	t.Parallel()

	Convey("A handler failure midway produces one data envelope then an error EOS", t, func() {
		d := NewDispatcher()
		ep := &Endpoint{
			Spec: MethodSpec{FullName: "test.Chat/Talk", Kind: StreamTypeBidi},
			BidiStream: func(ctx context.Context, rc *RequestContext, in <-chan proto.Message, out chan<- proto.Message) error {
				first := true
				for range in {
					if first {
						out <- wrapperspb.String("ack")
						first = false
						continue
					}
					return Errorf(CodePermissionDenied, "not allowed")
				}
				return nil
			},
			NewInput: func() proto.Message { return &wrapperspb.StringValue{} },
		}
		d.Register(ep)

		var reqBuf bytes.Buffer
		io_ := StreamIO{Codec: protoCodec{}}
		So(io_.encodeFrame(&reqBuf, wrapperspb.String("one")), ShouldBeNil)
		So(io_.encodeFrame(&reqBuf, wrapperspb.String("two")), ShouldBeNil)

		var respBuf bytes.Buffer
		rc := NewRequestContext(context.Background(), ep.Spec, NewHeaders(), PeerInfo{}, nil)
		_ = d.ServeBidiStream(context.Background(), rc, ep, &reqBuf, &respBuf, io_, true)

		envs := readAllEnvelopes(t, respBuf.Bytes())
		So(len(envs), ShouldEqual, 2)
		So(envs[0].IsEndStream(), ShouldBeFalse)
		So(envs[1].IsEndStream(), ShouldBeTrue)

		msg := &wrapperspb.StringValue{}
		So(protoCodec{}.Unmarshal(envs[0].Payload, msg), ShouldBeNil)
		So(msg.GetValue(), ShouldEqual, "ack")

		ce, _, err := DecodeEndStream(envs[1].Payload)
		So(err, ShouldBeNil)
		So(ce, ShouldNotBeNil)
		So(ce.Code(), ShouldEqual, CodePermissionDenied)
	})
}
