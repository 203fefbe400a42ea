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

package main

import (
	"strings"
	"unicode"
)

// namingStyle selects how generated method identifiers are rendered,
// per §4.11: "configurable between (a) language-style snake_case and
// (b) the original protobuf PascalCase".
type namingStyle int

const (
	namingSnakeCase namingStyle = iota
	namingPascalCase
)

func parseNamingStyle(s string) namingStyle {
	if s == "pascal_case" || s == "pascalcase" {
		return namingPascalCase
	}
	return namingSnakeCase
}

// goReservedIdentifiers are identifiers that would collide with Go
// keywords or predeclared names if used verbatim as a method name.
var goReservedIdentifiers = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true, "for": true,
	"func": true, "go": true, "goto": true, "if": true, "import": true,
	"interface": true, "map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true, "var": true,
	"Context": true, "String": true, "Error": true,
}

// methodIdentifier renders a proto method name as a Go identifier in
// the configured style. If the result collides with a reserved
// identifier, a trailing underscore is appended, per §4.11.
func methodIdentifier(protoName string, style namingStyle) string {
	var out string
	switch style {
	case namingSnakeCase:
		out = toSnakeCase(protoName)
	default:
		out = protoName // already PascalCase in the .proto source
	}
	if goReservedIdentifiers[out] {
		out += "_"
	}
	return out
}

// toSnakeCase converts a PascalCase or camelCase identifier to
// snake_case, treating runs of uppercase letters (e.g. an acronym) as a
// single word boundary.
func toSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]))
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || (nextLower && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
