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
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestHeaders(t *testing.T) {
	t.Parallel()

	Convey("Add preserves existing values and Set replaces them", t, func() {
		h := NewHeaders()
		h.Add("X-Foo", "1")
		h.Add("X-Foo", "2")
		So(h.Values("X-Foo"), ShouldResemble, []string{"1", "2"})

		h.Set("X-Foo", "3")
		So(h.Values("X-Foo"), ShouldResemble, []string{"3"})
	})

	Convey("Keys preserves insertion order of distinct names", t, func() {
		h := NewHeaders()
		h.Add("X-Third", "c")
		h.Add("X-First", "a")
		h.Add("X-Third", "c2")
		h.Add("X-Second", "b")
		So(h.Keys(), ShouldResemble, []string{"X-Third", "X-First", "X-Second"})
		So(h.Len(), ShouldEqual, 3)
	})

	Convey("Header names are matched case-insensitively", t, func() {
		h := NewHeaders()
		h.Set("content-type", "application/proto")
		So(h.Get("Content-Type"), ShouldEqual, "application/proto")
		So(h.Has("CONTENT-TYPE"), ShouldBeTrue)
	})

	Convey("Del removes a name from both the value map and the order slice", t, func() {
		h := NewHeaders()
		h.Add("X-Foo", "1")
		h.Add("X-Bar", "2")
		h.Del("X-Foo")
		So(h.Has("X-Foo"), ShouldBeFalse)
		So(h.Keys(), ShouldResemble, []string{"X-Bar"})
	})

	Convey("Clone is a deep copy", t, func() {
		h := NewHeaders()
		h.Add("X-Foo", "1")
		clone := h.Clone()
		clone.Add("X-Foo", "2")
		So(h.Values("X-Foo"), ShouldResemble, []string{"1"})
		So(clone.Values("X-Foo"), ShouldResemble, []string{"1", "2"})
	})

	Convey("Merge appends other's values after h's own, preserving order", t, func() {
		h := NewHeaders()
		h.Add("X-Foo", "1")
		other := NewHeaders()
		other.Add("X-Foo", "2")
		other.Add("X-Bar", "3")
		h.Merge(other)
		So(h.Values("X-Foo"), ShouldResemble, []string{"1", "2"})
		So(h.Values("X-Bar"), ShouldResemble, []string{"3"})
	})

	Convey("SetBinary and GetBinary round-trip through base64 with the -Bin suffix", t, func() {
		h := NewHeaders()
		h.SetBinary("X-Trace", []byte{0xDE, 0xAD, 0xBE, 0xEF})
		So(h.Has("X-Trace-Bin"), ShouldBeTrue)

		got, err := h.GetBinary("X-Trace")
		So(err, ShouldBeNil)
		So(got, ShouldResemble, []byte{0xDE, 0xAD, 0xBE, 0xEF})

		got, err = h.GetBinary("X-Trace-Bin")
		So(err, ShouldBeNil)
		So(got, ShouldResemble, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	})

	Convey("IsBinaryHeaderName and IsReservedHeaderName", t, func() {
		So(IsBinaryHeaderName("X-Trace-Bin"), ShouldBeTrue)
		So(IsBinaryHeaderName("X-Trace"), ShouldBeFalse)
		So(IsReservedHeaderName("connect-timeout-ms"), ShouldBeTrue)
		So(IsReservedHeaderName("X-Custom"), ShouldBeFalse)
	})
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	Convey("ParseTimeout accepts a non-negative decimal integer of milliseconds", t, func() {
		d, err := ParseTimeout("1500")
		So(err, ShouldBeNil)
		So(d, ShouldEqual, 1500*time.Millisecond)
	})

	Convey("ParseTimeout rejects an empty value", t, func() {
		_, err := ParseTimeout("")
		So(err, ShouldNotBeNil)
		ce, ok := AsError(err)
		So(ok, ShouldBeTrue)
		So(ce.Code(), ShouldEqual, CodeInvalidArgument)
	})

	Convey("ParseTimeout rejects non-numeric and negative-looking values", t, func() {
		for _, v := range []string{"abc", "-5", "1.5", "1 000"} {
			_, err := ParseTimeout(v)
			So(err, ShouldNotBeNil)
		}
	})

	Convey("FormatTimeout renders milliseconds and clamps negative durations to zero", t, func() {
		So(FormatTimeout(2500*time.Millisecond), ShouldEqual, "2500")
		So(FormatTimeout(-1*time.Second), ShouldEqual, "0")
	})

	Convey("CheckProtocolVersion", t, func() {
		Convey("accepts the exact supported version", func() {
			So(CheckProtocolVersion("1", true), ShouldBeNil)
		})
		Convey("rejects any other version", func() {
			So(CheckProtocolVersion("2", true), ShouldNotBeNil)
		})
		Convey("requires the header when required is true", func() {
			So(CheckProtocolVersion("", true), ShouldNotBeNil)
		})
		Convey("tolerates a missing header when required is false", func() {
			So(CheckProtocolVersion("", false), ShouldBeNil)
		})
	})
}
