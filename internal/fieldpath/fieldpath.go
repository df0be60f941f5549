// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package fieldpath compiles dotted field names into matchers that locate a
// value inside a scanned BSON document.
//
// A path such as "stats.cpu.user" matches the "user" field of the "cpu"
// sub-document of the top-level "stats" field. Each segment descends exactly
// one nesting level. Array elements are addressed by their decimal key
// ("samples.3"), or by the wildcard segment "*" which selects the first
// element of an array:
//
//	m, err := fieldpath.Compile("readings.*.value")
//	tok, err := m.Match(topLevelTokens)
//
// The wildcard does not fan out. Only element 0 is examined, an
// empty array is reported as not found, and a wildcard applied to anything
// other than an array is not found either.
package fieldpath

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/cardinalhq/bsoncolumns/internal/bsonscan"
)

// Wildcard is the segment that selects the first element of an array.
const Wildcard = "*"

var (
	// ErrInvalidPath is returned by Compile for unusable paths.
	ErrInvalidPath = errors.New("invalid field path")

	// ErrNotFound is returned by Match when the path does not resolve in a document.
	ErrNotFound = errors.New("field not found")
)

type segment struct {
	name     []byte
	wildcard bool
}

// Matcher is a compiled field path. It is immutable and safe for concurrent use.
type Matcher struct {
	path     string
	segments []segment
}

// Compile parses a dot-separated path.
func Compile(path string) (*Matcher, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	parts := strings.Split(path, ".")
	m := &Matcher{
		path:     path,
		segments: make([]segment, len(parts)),
	}

	wildcards := 0
	for i, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: %q has an empty segment at position %d", ErrInvalidPath, path, i)
		}
		if p == Wildcard {
			if i == 0 {
				return nil, fmt.Errorf("%w: %q starts with a wildcard", ErrInvalidPath, path)
			}
			wildcards++
			if wildcards > 1 {
				return nil, fmt.Errorf("%w: %q has more than one wildcard segment", ErrInvalidPath, path)
			}
			m.segments[i] = segment{wildcard: true}
			continue
		}
		m.segments[i] = segment{name: []byte(p)}
	}

	return m, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and static paths.
func MustCompile(path string) *Matcher {
	m, err := Compile(path)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Matcher) String() string {
	return m.path
}

// Depth is the number of nesting levels the path descends.
func (m *Matcher) Depth() int {
	return len(m.segments)
}

// Projection is the prefix of the path up to the first wildcard or array
// index, suitable for a server-side field selection that still returns
// everything Match needs. Servers read "arr.2" in a projection as field "2"
// of each element, so index segments are cut off with the wildcard.
func (m *Matcher) Projection() string {
	parts := make([]string, 0, len(m.segments))
	for i, s := range m.segments {
		if s.wildcard || (i > 0 && isIndex(s.name)) {
			break
		}
		parts = append(parts, string(s.name))
	}
	return strings.Join(parts, ".")
}

// isIndex reports whether a segment is a decimal array key.
func isIndex(name []byte) bool {
	if len(name) == 0 {
		return false
	}
	for _, c := range name {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Match resolves the path against the top-level tokens of one document.
// Duplicate keys resolve to their first occurrence. Nested levels are
// scanned lazily from the matched value span; a bounds violation found
// there is returned wrapping bsonscan.ErrMalformedDocument.
func (m *Matcher) Match(tokens []bsonscan.Token) (bsonscan.Token, error) {
	cur, ok := findByName(tokens, m.segments[0].name)
	if !ok {
		return bsonscan.Token{}, ErrNotFound
	}

	for _, seg := range m.segments[1:] {
		if !cur.Type.Container() {
			return bsonscan.Token{}, ErrNotFound
		}
		if seg.wildcard && cur.Type != bsonscan.TypeArray {
			return bsonscan.Token{}, ErrNotFound
		}

		next, err := descend(cur.Value, seg)
		if err != nil {
			return bsonscan.Token{}, err
		}
		cur = next
	}

	return cur, nil
}

func findByName(tokens []bsonscan.Token, name []byte) (bsonscan.Token, bool) {
	for _, tok := range tokens {
		if bytes.Equal(tok.Name, name) {
			return tok, true
		}
	}
	return bsonscan.Token{}, false
}

// descend scans one level into an embedded document or array span.
func descend(span []byte, seg segment) (bsonscan.Token, error) {
	var s bsonscan.Scanner
	if err := s.Reset(span); err != nil {
		return bsonscan.Token{}, err
	}

	for {
		tok, ok := s.Next()
		if !ok {
			break
		}
		if seg.wildcard || bytes.Equal(tok.Name, seg.name) {
			return tok, nil
		}
	}

	if err := s.Err(); err != nil {
		return bsonscan.Token{}, err
	}
	return bsonscan.Token{}, ErrNotFound
}
