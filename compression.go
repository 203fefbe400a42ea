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
	"io"
	"math"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression encoding names, per §6.
const (
	CompressionIdentity = "identity"
	CompressionGzip     = "gzip"
	CompressionBrotli   = "br"
	CompressionZstd     = "zstd"
)

// Compressor maps one encoding name to its streaming compress/decompress
// implementation, per §4.2. The gzip and brotli compressors enforce
// maxBytes by reading no more than maxBytes+1 bytes of decompressed
// output, so that an oversize message is detected without buffering
// unbounded amounts of attacker-controlled data; the zstd compressor
// decodes the whole payload first and then checks its size.
type Compressor interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	// Decompress inflates data. If maxBytes is positive and the inflated
	// size would exceed it, Decompress returns an error instead of the
	// full result.
	Decompress(data []byte, maxBytes int64) ([]byte, error)
}

type identityCompressor struct{}

func (identityCompressor) Name() string { return CompressionIdentity }

func (identityCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (identityCompressor) Decompress(data []byte, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, Errorf(CodeResourceExhausted, "message size %d exceeds configured max %d", len(data), maxBytes)
	}
	return data, nil
}

func readLimited(r io.Reader, maxBytes int64, what string) ([]byte, error) {
	limit := maxBytes + 1
	if maxBytes <= 0 {
		limit = math.MaxInt64
	}
	limited := io.LimitReader(r, limit)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, Errorf(CodeInternal, "decompressing %s: %s", what, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, Errorf(CodeResourceExhausted, "decompressed %s exceeds configured max %d bytes", what, maxBytes)
	}
	return data, nil
}

type gzipCompressor struct{}

func (gzipCompressor) Name() string { return CompressionGzip }

func (gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, Errorf(CodeInternal, "gzip compress: %s", err)
	}
	if err := w.Close(); err != nil {
		return nil, Errorf(CodeInternal, "gzip compress: %s", err)
	}
	return buf.Bytes(), nil
}

func (gzipCompressor) Decompress(data []byte, maxBytes int64) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, Errorf(CodeInvalidArgument, "gzip decompress: %s", err)
	}
	defer r.Close()
	return readLimited(r, maxBytes, "gzip message")
}

type brotliCompressor struct{}

func (brotliCompressor) Name() string { return CompressionBrotli }

func (brotliCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, Errorf(CodeInternal, "brotli compress: %s", err)
	}
	if err := w.Close(); err != nil {
		return nil, Errorf(CodeInternal, "brotli compress: %s", err)
	}
	return buf.Bytes(), nil
}

func (brotliCompressor) Decompress(data []byte, maxBytes int64) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	return readLimited(r, maxBytes, "brotli message")
}

type zstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdCompressor() *zstdCompressor {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		panic(err) // zstd.NewWriter(nil) with default options never fails
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	return &zstdCompressor{encoder: enc, decoder: dec}
}

func (*zstdCompressor) Name() string { return CompressionZstd }

func (z *zstdCompressor) Compress(data []byte) ([]byte, error) {
	return z.encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func (z *zstdCompressor) Decompress(data []byte, maxBytes int64) ([]byte, error) {
	limit := int64(math.MaxInt64)
	if maxBytes > 0 {
		limit = maxBytes
	}
	out, err := z.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, Errorf(CodeInvalidArgument, "zstd decompress: %s", err)
	}
	if int64(len(out)) > limit {
		return nil, Errorf(CodeResourceExhausted, "decompressed zstd message exceeds configured max %d bytes", maxBytes)
	}
	return out, nil
}

// CompressionRegistry maps encoding name to Compressor, per §4.2.
// "identity" is always present and cannot be removed. Names are matched
// case-insensitively.
type CompressionRegistry struct {
	compressors map[string]Compressor
}

// NewCompressionRegistry returns a registry pre-populated with identity,
// gzip, br, and zstd.
func NewCompressionRegistry() *CompressionRegistry {
	r := &CompressionRegistry{compressors: make(map[string]Compressor)}
	r.Register(identityCompressor{})
	r.Register(gzipCompressor{})
	r.Register(brotliCompressor{})
	r.Register(newZstdCompressor())
	return r
}

// Register adds or replaces the compressor for c.Name().
func (r *CompressionRegistry) Register(c Compressor) {
	r.compressors[strings.ToLower(c.Name())] = c
}

// Get returns the compressor for name, matched case-insensitively.
func (r *CompressionRegistry) Get(name string) (Compressor, bool) {
	c, ok := r.compressors[strings.ToLower(name)]
	return c, ok
}

// ParseAcceptEncoding splits a comma-separated Accept-Encoding (or
// Connect-Accept-Encoding) header value into trimmed tokens. "identity"
// is always implicitly acceptable even if absent from the list, per §4.2.
func ParseAcceptEncoding(header string) []string {
	if header == "" {
		return []string{CompressionIdentity}
	}
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts)+1)
	sawIdentity := false
	for _, p := range parts {
		name := strings.TrimSpace(p)
		if name == "" {
			continue
		}
		if strings.EqualFold(name, CompressionIdentity) {
			sawIdentity = true
		}
		out = append(out, name)
	}
	if !sawIdentity {
		out = append(out, CompressionIdentity)
	}
	return out
}

// AcceptsEncoding reports whether name is present (case-insensitively)
// among the tokens of an Accept-Encoding header, honoring the implicit
// "identity" membership.
func AcceptsEncoding(acceptEncoding, name string) bool {
	if strings.EqualFold(name, CompressionIdentity) {
		return true
	}
	for _, tok := range ParseAcceptEncoding(acceptEncoding) {
		if strings.EqualFold(tok, name) {
			return true
		}
	}
	return false
}
