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
	"net/http"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDispatcherLookup(t *testing.T) {
	t.Parallel()

	Convey("Lookup resolves prefix + full method name, and rejects unknown paths", t, func() {
		d := NewDispatcher()
		d.Prefix = "/twirp"
		ep := &Endpoint{Spec: MethodSpec{FullName: "test.Echo/Say", Kind: StreamTypeUnary}}
		d.Register(ep)

		got, err := d.Lookup("/twirp/test.Echo/Say")
		So(err, ShouldBeNil)
		So(got, ShouldEqual, ep)

		_, err = d.Lookup("/twirp/test.Echo/Nope")
		So(err, ShouldNotBeNil)
		ce, ok := AsError(err)
		So(ok, ShouldBeTrue)
		So(ce.Code(), ShouldEqual, CodeUnimplemented)
	})
}

func TestDispatcherCheckMethod(t *testing.T) {
	t.Parallel()

	Convey("A no-side-effects unary method allows both POST and GET", t, func() {
		d := NewDispatcher()
		ep := &Endpoint{Spec: MethodSpec{Kind: StreamTypeUnary, Idempotency: IdempotencyNoSideEffects}}

		_, err := d.CheckMethod(ep, http.MethodPost)
		So(err, ShouldBeNil)
		_, err = d.CheckMethod(ep, http.MethodGet)
		So(err, ShouldBeNil)
	})

	Convey("A side-effecting unary method rejects GET with unimplemented", t, func() {
		d := NewDispatcher()
		ep := &Endpoint{Spec: MethodSpec{Kind: StreamTypeUnary, Idempotency: IdempotencyUnknown}}

		allowed, err := d.CheckMethod(ep, http.MethodGet)
		So(err, ShouldNotBeNil)
		ce, ok := AsError(err)
		So(ok, ShouldBeTrue)
		So(ce.Code(), ShouldEqual, CodeUnimplemented)
		So(allowed, ShouldResemble, []string{http.MethodPost})
	})
}

func TestDispatcherSelectEngine(t *testing.T) {
	t.Parallel()

	Convey("A unary method requires a plain application/* content type", t, func() {
		d := NewDispatcher()
		ep := &Endpoint{Spec: MethodSpec{Kind: StreamTypeUnary}}

		name, streaming, err := d.SelectEngine(ep, "application/proto")
		So(err, ShouldBeNil)
		So(name, ShouldEqual, "proto")
		So(streaming, ShouldBeFalse)

		_, _, err = d.SelectEngine(ep, "application/connect+proto")
		So(err, ShouldNotBeNil)
	})

	Convey("A streaming method requires application/connect+* and rejects an unknown codec", t, func() {
		d := NewDispatcher()
		ep := &Endpoint{Spec: MethodSpec{Kind: StreamTypeBidi}}

		name, streaming, err := d.SelectEngine(ep, "application/connect+json")
		So(err, ShouldBeNil)
		So(name, ShouldEqual, "json")
		So(streaming, ShouldBeTrue)

		_, _, err = d.SelectEngine(ep, "application/connect+msgpack")
		So(err, ShouldNotBeNil)
		ce, ok := AsError(err)
		So(ok, ShouldBeTrue)
		So(ce.Code(), ShouldEqual, CodeInvalidArgument)
	})
}

func TestDispatcherCheckContentLength(t *testing.T) {
	t.Parallel()

	Convey("A positive MaxReceiveBytes rejects an oversize declared length", t, func() {
		d := NewDispatcher()
		d.MaxReceiveBytes = 10
		So(d.CheckContentLength(5), ShouldBeNil)

		err := d.CheckContentLength(20)
		So(err, ShouldNotBeNil)
		ce, ok := AsError(err)
		So(ok, ShouldBeTrue)
		So(ce.Code(), ShouldEqual, CodeResourceExhausted)
	})

	Convey("MaxReceiveBytes of zero means unlimited", t, func() {
		d := NewDispatcher()
		So(d.CheckContentLength(1<<30), ShouldBeNil)
	})
}
