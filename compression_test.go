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

	. "github.com/smartystreets/goconvey/convey"
)

func TestCompressionRegistry(t *testing.T) {
	t.Parallel()

	Convey("NewCompressionRegistry pre-populates identity, gzip, br, and zstd", t, func() {
		r := NewCompressionRegistry()
		for _, name := range []string{CompressionIdentity, CompressionGzip, CompressionBrotli, CompressionZstd} {
			_, ok := r.Get(name)
			So(ok, ShouldBeTrue)
		}
		_, ok := r.Get("snappy")
		So(ok, ShouldBeFalse)
	})

	Convey("Get matches names case-insensitively", t, func() {
		r := NewCompressionRegistry()
		_, ok := r.Get("GZIP")
		So(ok, ShouldBeTrue)
	})

	Convey("identity compression is a byte-for-byte no-op", t, func() {
		c := identityCompressor{}
		data := []byte("some payload bytes")
		compressed, err := c.Compress(data)
		So(err, ShouldBeNil)
		So(compressed, ShouldResemble, data)

		decompressed, err := c.Decompress(compressed, 0)
		So(err, ShouldBeNil)
		So(decompressed, ShouldResemble, data)
	})

	Convey("gzip, brotli, and zstd round-trip arbitrary payloads", t, func() {
		data := []byte("the quick brown fox jumps over the lazy dog, repeated for compressibility: " +
			"the quick brown fox jumps over the lazy dog")

		for _, c := range []Compressor{gzipCompressor{}, brotliCompressor{}, newZstdCompressor()} {
			compressed, err := c.Compress(data)
			So(err, ShouldBeNil)

			decompressed, err := c.Decompress(compressed, 0)
			So(err, ShouldBeNil)
			So(decompressed, ShouldResemble, data)
		}
	})

	Convey("Decompress enforces maxBytes against the inflated size", t, func() {
		data := make([]byte, 10000)
		c := gzipCompressor{}
		compressed, err := c.Compress(data)
		So(err, ShouldBeNil)

		_, err = c.Decompress(compressed, 100)
		So(err, ShouldNotBeNil)
		ce, ok := AsError(err)
		So(ok, ShouldBeTrue)
		So(ce.Code(), ShouldEqual, CodeResourceExhausted)
	})
}

func TestAcceptEncoding(t *testing.T) {
	t.Parallel()

	Convey("ParseAcceptEncoding splits and trims tokens, always including identity", t, func() {
		So(ParseAcceptEncoding(""), ShouldResemble, []string{CompressionIdentity})
		So(ParseAcceptEncoding("gzip, br"), ShouldResemble, []string{"gzip", "br", CompressionIdentity})
		So(ParseAcceptEncoding("identity"), ShouldResemble, []string{"identity"})
	})

	Convey("AcceptsEncoding treats identity as always acceptable", t, func() {
		So(AcceptsEncoding("", CompressionIdentity), ShouldBeTrue)
		So(AcceptsEncoding("gzip", CompressionIdentity), ShouldBeTrue)
	})

	Convey("AcceptsEncoding matches tokens case-insensitively", t, func() {
		So(AcceptsEncoding("GZIP, br", "gzip"), ShouldBeTrue)
		So(AcceptsEncoding("gzip", "zstd"), ShouldBeFalse)
	})
}
