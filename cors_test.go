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
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCORSMiddleware(t *testing.T) {
	t.Parallel()

	Convey("An OPTIONS preflight is answered directly without reaching the wrapped handler", t, func() {
		called := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
		m := NewCORSMiddleware(next, DefaultCORSConfig())

		req := httptest.NewRequest(http.MethodOptions, "/test.Echo/Say", nil)
		rec := httptest.NewRecorder()
		m.ServeHTTP(rec, req)

		So(called, ShouldBeFalse)
		So(rec.Code, ShouldEqual, http.StatusNoContent)
		So(rec.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
		So(rec.Header().Get("Access-Control-Allow-Methods"), ShouldContainSubstring, http.MethodPost)
		So(rec.Header().Get("Access-Control-Allow-Headers"), ShouldContainSubstring, HeaderProtocolVersion)
	})

	Convey("A non-OPTIONS request is delegated to the wrapped handler with the origin header set", t, func() {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		m := NewCORSMiddleware(next, DefaultCORSConfig())

		req := httptest.NewRequest(http.MethodPost, "/test.Echo/Say", nil)
		rec := httptest.NewRecorder()
		m.ServeHTTP(rec, req)

		So(rec.Code, ShouldEqual, http.StatusOK)
		So(rec.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
	})
}
