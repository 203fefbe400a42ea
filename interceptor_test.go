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
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// orderRecordingInterceptor appends a tag to a shared log on start and end,
// so a chain's actual call order can be asserted against.
type orderRecordingInterceptor struct {
	tag string
	log *[]string
}

func (o orderRecordingInterceptor) WrapUnary(next UnaryHandlerFunc) UnaryHandlerFunc {
	return func(ctx context.Context, rc *RequestContext, req proto.Message) (proto.Message, error) {
		*o.log = append(*o.log, o.tag+".start")
		resp, err := next(ctx, rc, req)
		*o.log = append(*o.log, o.tag+".end")
		return resp, err
	}
}

func TestInterceptorChainOrdering(t *testing.T) {
	t.Parallel()

	Convey("A chain of [A, B, C] wraps the terminal handler outermost-first", t, func() {
		var log []string
		a := orderRecordingInterceptor{tag: "A", log: &log}
		b := orderRecordingInterceptor{tag: "B", log: &log}
		c := orderRecordingInterceptor{tag: "C", log: &log}

		terminal := UnaryHandlerFunc(func(ctx context.Context, rc *RequestContext, req proto.Message) (proto.Message, error) {
			log = append(log, "handler")
			return wrapperspb.String("ok"), nil
		})

		chain := NewInterceptorChain(a, b, c)
		handler := chain.WrapUnary(terminal)

		resp, err := handler(context.Background(), &RequestContext{}, wrapperspb.String("in"))
		So(err, ShouldBeNil)
		So(resp.(*wrapperspb.StringValue).GetValue(), ShouldEqual, "ok")

		So(log, ShouldResemble, []string{
			"A.start", "B.start", "C.start",
			"handler",
			"C.end", "B.end", "A.end",
		})
	})
}

// recordingMetadata is a MetadataInterceptor that records OnStart/OnEnd
// calls, used to verify AsInterceptors' adaptation to all four kinds.
type recordingMetadata struct {
	log *[]string
}

func (m recordingMetadata) OnStart(ctx context.Context, rc *RequestContext) (any, error) {
	*m.log = append(*m.log, "start")
	return "state", nil
}

func (m recordingMetadata) OnEnd(ctx context.Context, rc *RequestContext, state any, err error) {
	*m.log = append(*m.log, "end:"+state.(string))
}

func TestMetadataInterceptorAdaptation(t *testing.T) {
	t.Parallel()

	Convey("AsInterceptors adapts a MetadataInterceptor into all four kind protocols", t, func() {
		var log []string
		m := AsInterceptors(recordingMetadata{log: &log})

		Convey("unary", func() {
			terminal := UnaryHandlerFunc(func(ctx context.Context, rc *RequestContext, req proto.Message) (proto.Message, error) {
				return nil, nil
			})
			_, err := m.WrapUnary(terminal)(context.Background(), &RequestContext{}, nil)
			So(err, ShouldBeNil)
			So(log, ShouldResemble, []string{"start", "end:state"})
		})

		Convey("client stream", func() {
			terminal := ClientStreamHandlerFunc(func(ctx context.Context, rc *RequestContext, in <-chan proto.Message) (proto.Message, error) {
				return nil, nil
			})
			_, err := m.WrapClientStream(terminal)(context.Background(), &RequestContext{}, nil)
			So(err, ShouldBeNil)
			So(log, ShouldResemble, []string{"start", "end:state"})
		})

		Convey("server stream", func() {
			terminal := ServerStreamHandlerFunc(func(ctx context.Context, rc *RequestContext, req proto.Message, out chan<- proto.Message) error {
				return nil
			})
			err := m.WrapServerStream(terminal)(context.Background(), &RequestContext{}, nil, nil)
			So(err, ShouldBeNil)
			So(log, ShouldResemble, []string{"start", "end:state"})
		})

		Convey("bidi stream", func() {
			terminal := BidiStreamHandlerFunc(func(ctx context.Context, rc *RequestContext, in <-chan proto.Message, out chan<- proto.Message) error {
				return nil
			})
			err := m.WrapBidiStream(terminal)(context.Background(), &RequestContext{}, nil, nil)
			So(err, ShouldBeNil)
			So(log, ShouldResemble, []string{"start", "end:state"})
		})
	})
}
