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
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// scriptedDoer replays a fixed sequence of responses/errors, one per Do
// call, recording how many times it was invoked.
type scriptedDoer struct {
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	status int
	body   string
	err    error
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	r := d.responses[d.calls]
	d.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: r.status,
		Body:       io.NopCloser(strings.NewReader(r.body)),
	}, nil
}

func fastRetryPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.InitialBackoff = time.Millisecond
	p.MaxBackoff = 5 * time.Millisecond
	return p
}

func newReplayableRequest(t *testing.T) *http.Request {
	req, err := http.NewRequest(http.MethodPost, "http://example.test/test.Echo/Say", strings.NewReader("payload"))
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestRetryingDoer(t *testing.T) {
	t.Parallel()

	Convey("A 200 response on the first attempt is returned without retrying", t, func() {
		doer := &scriptedDoer{responses: []scriptedResponse{{status: http.StatusOK}}}
		r := NewRetryingDoer(doer, fastRetryPolicy())

		resp, err := r.Do(newReplayableRequest(t))
		So(err, ShouldBeNil)
		So(resp.StatusCode, ShouldEqual, http.StatusOK)
		So(doer.calls, ShouldEqual, 1)
	})

	Convey("A retryable status is retried until a 200 arrives within MaxAttempts", t, func() {
		doer := &scriptedDoer{responses: []scriptedResponse{
			{status: http.StatusServiceUnavailable, body: `{"code":"unavailable","message":"down"}`},
			{status: http.StatusServiceUnavailable, body: `{"code":"unavailable","message":"down"}`},
			{status: http.StatusOK},
		}}
		r := NewRetryingDoer(doer, fastRetryPolicy())

		resp, err := r.Do(newReplayableRequest(t))
		So(err, ShouldBeNil)
		So(resp.StatusCode, ShouldEqual, http.StatusOK)
		So(doer.calls, ShouldEqual, 3)
	})

	Convey("A non-retryable status is returned immediately", t, func() {
		doer := &scriptedDoer{responses: []scriptedResponse{
			{status: http.StatusNotFound, body: `{"code":"unimplemented"}`},
		}}
		r := NewRetryingDoer(doer, fastRetryPolicy())

		resp, err := r.Do(newReplayableRequest(t))
		So(err, ShouldBeNil)
		So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		So(doer.calls, ShouldEqual, 1)
	})

	Convey("A request with no replayable body is attempted exactly once on transport failure", t, func() {
		req, err := http.NewRequest(http.MethodPost, "http://example.test/test.Echo/Say", nil)
		So(err, ShouldBeNil)
		req.Body = io.NopCloser(strings.NewReader("payload"))
		req.GetBody = nil

		doer := &scriptedDoer{responses: []scriptedResponse{
			{err: io.ErrClosedPipe},
			{status: http.StatusOK},
		}}
		r := NewRetryingDoer(doer, fastRetryPolicy())

		_, err = r.Do(req)
		So(err, ShouldNotBeNil)
		So(doer.calls, ShouldEqual, 1)
	})

	Convey("nextBackoff caps the doubled backoff at MaxBackoff", t, func() {
		p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 150 * time.Millisecond, BackoffMultiplier: 2.0}
		So(nextBackoff(100*time.Millisecond, p), ShouldEqual, 150*time.Millisecond)
	})
}
