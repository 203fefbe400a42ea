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

	"google.golang.org/protobuf/reflect/protoreflect"
)

// MethodSpec is the static, generator-produced description of one RPC,
// per §3. Generated stubs construct one MethodSpec per method and pass
// it to the dispatcher (server side) or the client engine (client side).
type MethodSpec struct {
	// FullName is "pkg.Service/Method".
	FullName string
	// Input and Output are the request and response message types, set by
	// the stub generator's emitted code. The runtime's codecs decode into
	// messages built by Endpoint.NewInput/NewOutput and do not read them.
	Input, Output protoreflect.MessageType
	// Kind is the RPC's streaming shape.
	Kind StreamType
	// Idempotency controls whether the method may be called over HTTP GET.
	Idempotency Idempotency
}

// AllowsGET reports whether m may be invoked as an HTTP GET, per the rule
// in §3: "GET is allowed iff kind = unary ∧ idempotency = no_side_effects".
func (m MethodSpec) AllowsGET() bool {
	return m.Kind == StreamTypeUnary && m.Idempotency == IdempotencyNoSideEffects
}

// AllowedHTTPMethods returns the HTTP methods the dispatcher accepts for
// m, per §3.
func (m MethodSpec) AllowedHTTPMethods() []string {
	if m.AllowsGET() {
		return []string{http.MethodPost, http.MethodGet}
	}
	return []string{http.MethodPost}
}
