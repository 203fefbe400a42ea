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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/i2y/connecpy/internal/clock/testclock"
)

func TestRequestContextClock(t *testing.T) {
	t.Parallel()

	Convey("A nil Clock defaults to the system clock", t, func() {
		before := time.Now()
		rc := NewRequestContext(context.Background(), MethodSpec{}, NewHeaders(), PeerInfo{}, nil)
		after := time.Now()

		So(rc.StartedAt(), ShouldHappenOnOrAfter, before)
		So(rc.StartedAt(), ShouldHappenOnOrBefore, after)
	})

	Convey("Elapsed tracks a fake clock deterministically", t, func() {
		clk := testclock.New(testclock.Epoch)
		rc := NewRequestContext(context.Background(), MethodSpec{}, NewHeaders(), PeerInfo{}, clk)

		So(rc.StartedAt(), ShouldResemble, testclock.Epoch)
		So(rc.Elapsed(), ShouldEqual, time.Duration(0))

		clk.Advance(5 * time.Second)
		So(rc.Elapsed(), ShouldEqual, 5*time.Second)
	})
}

func TestServeHTTPDeadlineUsesDispatcherClock(t *testing.T) {
	t.Parallel()

	Convey("Connect-Timeout-Ms is resolved against the Dispatcher's Clock, not real time", t, func() {
		clk := testclock.New(testclock.Epoch)
		var gotDeadline time.Time
		capture := func(ctx context.Context, rc *RequestContext, req proto.Message) (proto.Message, error) {
			dl, ok := rc.Deadline()
			So(ok, ShouldBeTrue)
			gotDeadline = dl
			return wrapperspb.String("ok"), nil
		}

		d := newUnaryTestDispatcher(IdempotencyUnknown, capture)
		d.Clock = clk

		req := httptest.NewRequest(http.MethodPost, "/test.Echo/Say", nil)
		req.Header.Set(HeaderContentType, UnaryContentType(CodecNameProto))
		req.Header.Set(HeaderProtocolVersion, ProtocolVersion)
		req.Header.Set(HeaderTimeout, "1000")

		rec := httptest.NewRecorder()
		d.ServeHTTP(rec, req)

		So(rec.Code, ShouldEqual, http.StatusOK)
		So(gotDeadline, ShouldResemble, testclock.Epoch.Add(time.Second))
	})
}
