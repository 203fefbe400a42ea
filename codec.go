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
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Codec subtypes required by §3: the part of the Content-Type after
// "application/" (unary) or "application/connect+" (streaming).
const (
	CodecNameProto = "proto"
	CodecNameJSON  = "json"
)

// Codec maps a message to and from its wire representation for one
// content subtype, per §4.1.
type Codec interface {
	// Name is the codec's subtype, matched case-insensitively against the
	// Content-Type header.
	Name() string
	Marshal(msg proto.Message) ([]byte, error)
	Unmarshal(data []byte, msg proto.Message) error
}

// protoCodec implements the required "proto" (binary protobuf) codec.
type protoCodec struct{}

func (protoCodec) Name() string { return CodecNameProto }

func (protoCodec) Marshal(msg proto.Message) ([]byte, error) {
	return proto.Marshal(msg)
}

func (protoCodec) Unmarshal(data []byte, msg proto.Message) error {
	return proto.Unmarshal(data, msg)
}

// jsonCodec implements the required "json" (canonical protobuf JSON)
// codec: unknown fields are ignored on decode, default-valued fields are
// omitted on encode, per §4.1.
type jsonCodec struct {
	marshal   protojson.MarshalOptions
	unmarshal protojson.UnmarshalOptions
}

func newJSONCodec() *jsonCodec {
	return &jsonCodec{
		// Default MarshalOptions already produce canonical protobuf JSON:
		// camelCase field names, enums as strings, bytes as base64, and
		// default-valued fields omitted.
		marshal:   protojson.MarshalOptions{},
		unmarshal: protojson.UnmarshalOptions{DiscardUnknown: true},
	}
}

func (*jsonCodec) Name() string { return CodecNameJSON }

func (c *jsonCodec) Marshal(msg proto.Message) ([]byte, error) {
	return c.marshal.Marshal(msg)
}

func (c *jsonCodec) Unmarshal(data []byte, msg proto.Message) error {
	return c.unmarshal.Unmarshal(data, msg)
}

// CodecRegistry maps content subtype to Codec, matching names
// case-insensitively per §4.1. The zero value is not usable; construct
// one with NewCodecRegistry.
type CodecRegistry struct {
	codecs map[string]Codec
}

// NewCodecRegistry returns a registry pre-populated with the required
// "proto" and "json" codecs.
func NewCodecRegistry() *CodecRegistry {
	r := &CodecRegistry{codecs: make(map[string]Codec)}
	r.Register(protoCodec{})
	r.Register(newJSONCodec())
	return r
}

// Register adds or replaces the codec for c.Name().
func (r *CodecRegistry) Register(c Codec) {
	r.codecs[strings.ToLower(c.Name())] = c
}

// Get returns the codec for the given subtype, matched
// case-insensitively, and whether one was found.
func (r *CodecRegistry) Get(name string) (Codec, bool) {
	c, ok := r.codecs[strings.ToLower(name)]
	return c, ok
}
