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
	"strconv"
	"strings"
)

// CORSConfig controls the preflight and response headers CORSMiddleware
// adds so a browser-based Connect client can talk to a handler across
// origins.
type CORSConfig struct {
	AllowOrigin  string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig matches the Connect protocol's own browser contract:
// any origin, the two HTTP methods the wire protocol uses, and the
// request headers a Connect client sends.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigin:  "*",
		AllowMethods: []string{http.MethodPost, http.MethodGet},
		AllowHeaders: []string{
			HeaderContentType,
			HeaderProtocolVersion,
			HeaderTimeout,
			"X-User-Agent",
		},
		MaxAge: 86400,
	}
}

// CORSMiddleware wraps an http.Handler, answering OPTIONS preflight
// requests and adding Access-Control-Allow-Origin to every other
// response so a browser's fetch() can read it.
type CORSMiddleware struct {
	next   http.Handler
	config CORSConfig
}

// NewCORSMiddleware wraps next with cfg's CORS policy.
func NewCORSMiddleware(next http.Handler, cfg CORSConfig) *CORSMiddleware {
	return &CORSMiddleware{next: next, config: cfg}
}

func (m *CORSMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", m.config.AllowOrigin)
		h.Set("Access-Control-Allow-Methods", strings.Join(m.config.AllowMethods, ", "))
		h.Set("Access-Control-Allow-Headers", strings.Join(m.config.AllowHeaders, ", "))
		h.Set("Access-Control-Max-Age", strconv.Itoa(m.config.MaxAge))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", m.config.AllowOrigin)
	m.next.ServeHTTP(w, r)
}
