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
	"encoding/binary"
	"encoding/json"
	"io"
)

// Envelope flag bits, per §3.
const (
	// FlagCompressed marks a frame whose payload is compressed with the
	// encoding named by Content-Encoding for the stream's direction.
	FlagCompressed byte = 1 << 0
	// FlagEndStream marks the terminal frame of a stream. Its payload is
	// a JSON object; an empty object means successful completion.
	FlagEndStream byte = 1 << 1
)

// envelopePrefixSize is the 1 flags byte plus 4-byte big-endian length.
const envelopePrefixSize = 5

// Envelope is one frame of a streaming body, per §3: a flags byte, a
// length, and a payload.
type Envelope struct {
	Flags   byte
	Payload []byte
}

// IsCompressed reports whether the envelope's payload is compressed.
func (e Envelope) IsCompressed() bool { return e.Flags&FlagCompressed != 0 }

// IsEndStream reports whether e is the terminal end-of-stream envelope.
func (e Envelope) IsEndStream() bool { return e.Flags&FlagEndStream != 0 }

// WriteEnvelope writes the 5-byte prefix followed by payload to w.
func WriteEnvelope(w io.Writer, flags byte, payload []byte) error {
	var prefix [envelopePrefixSize]byte
	prefix[0] = flags
	binary.BigEndian.PutUint32(prefix[1:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return Errorf(CodeInternal, "writing envelope prefix: %s", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return Errorf(CodeInternal, "writing envelope payload: %s", err)
		}
	}
	return nil
}

// EnvelopeReader decodes a sequence of envelopes from an underlying
// reader as a resumable state machine: AWAIT_PREFIX(bytes_needed) then
// AWAIT_PAYLOAD(bytes_needed), per §4.3. It yields a frame as soon as its
// length is satisfied and refuses to read past one end-of-stream frame.
type EnvelopeReader struct {
	r            io.Reader
	maxFrameSize int64

	prefix [envelopePrefixSize]byte
	flags  byte
	want   int
	sawEOS bool
}

// NewEnvelopeReader returns a reader over r. If maxFrameSize is positive,
// ReadEnvelope rejects any frame whose declared length exceeds it with
// CodeInvalidArgument, per §4.3.
func NewEnvelopeReader(r io.Reader, maxFrameSize int64) *EnvelopeReader {
	return &EnvelopeReader{r: r, maxFrameSize: maxFrameSize}
}

// ReadEnvelope returns the next frame, or io.EOF once the end-of-stream
// frame has been consumed or the input ends cleanly at a frame boundary. Reading again after the end-of-stream frame always returns
// io.EOF without touching r, per "End-of-stream flag MUST be the last
// frame" in §4.3.
func (d *EnvelopeReader) ReadEnvelope() (Envelope, error) {
	if d.sawEOS {
		return Envelope{}, io.EOF
	}

	if _, err := io.ReadFull(d.r, d.prefix[:]); err != nil {
		if err == io.EOF {
			return Envelope{}, io.EOF
		}
		return Envelope{}, Errorf(CodeInternal, "reading envelope prefix: unexpected EOF mid-frame: %s", err)
	}
	d.flags = d.prefix[0]
	length := binary.BigEndian.Uint32(d.prefix[1:])
	d.want = int(length)

	if d.maxFrameSize > 0 && int64(d.want) > d.maxFrameSize {
		return Envelope{}, Errorf(CodeInvalidArgument, "envelope payload length %d exceeds configured max %d", d.want, d.maxFrameSize)
	}

	payload := make([]byte, d.want)
	if d.want > 0 {
		if _, err := io.ReadFull(d.r, payload); err != nil {
			return Envelope{}, Errorf(CodeInternal, "reading envelope payload: unexpected EOF mid-frame: %s", err)
		}
	}

	env := Envelope{Flags: d.flags, Payload: payload}
	if env.IsEndStream() {
		d.sawEOS = true
	}
	return env, nil
}

// endStreamPayload is the JSON shape of an end-of-stream frame's
// payload, per §3: `{code?, message?, details?, metadata?}`. It is flat,
// not nested under an "error" key.
type endStreamPayload struct {
	Code    string              `json:"code,omitempty"`
	Message string              `json:"message,omitempty"`
	Details []wireDetail        `json:"details,omitempty"`
	Meta    map[string][]string `json:"metadata,omitempty"`
}

// EncodeEndStream renders the terminal envelope payload. A nil err
// produces `{}` (or just `{"metadata":...}` if trailers is non-empty),
// i.e. successful completion, per §3. trailers become the payload's
// "metadata" field regardless of whether err is set.
func EncodeEndStream(err *Error, trailers Headers) ([]byte, error) {
	var payload endStreamPayload
	if err != nil {
		w := err.toWire()
		payload.Code = w.Code
		payload.Message = w.Message
		payload.Details = w.Details
	}
	if trailers.Len() > 0 {
		payload.Meta = make(map[string][]string, trailers.Len())
		for _, k := range trailers.Keys() {
			payload.Meta[k] = trailers.Values(k)
		}
	}
	if payload.Code == "" && payload.Meta == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(payload)
}

// DecodeEndStream parses the terminal envelope payload. A nil *Error
// return means successful completion, per §3; trailers is always
// populated from the payload's "metadata" field, success or failure.
func DecodeEndStream(payload []byte) (ce *Error, trailers Headers, err error) {
	trailers = NewHeaders()

	trimmed := make([]byte, 0, len(payload))
	for _, b := range payload {
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		trimmed = append(trimmed, b)
	}
	if len(trimmed) == 0 || string(trimmed) == "{}" {
		return nil, trailers, nil
	}

	var p endStreamPayload
	if jsonErr := json.Unmarshal(payload, &p); jsonErr != nil {
		return nil, trailers, Errorf(CodeInvalidArgument, "malformed end-of-stream payload: %s", jsonErr)
	}
	for k, vs := range p.Meta {
		for _, v := range vs {
			trailers.Add(k, v)
		}
	}
	if p.Code == "" {
		return nil, trailers, nil
	}
	ce = errorFromWire(wireError{Code: p.Code, Message: p.Message, Details: p.Details})
	return ce, trailers, nil
}
