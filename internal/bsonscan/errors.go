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

package bsonscan

import (
	"errors"
	"fmt"
)

// ErrMalformedDocument is a sentinel error indicating a document failed bounds validation.
// Use errors.Is(err, ErrMalformedDocument) to check for this error.
// Use errors.As(err, &MalformedError{}) to extract details.
var ErrMalformedDocument = errors.New("malformed document")

// MalformedError describes where in a document validation failed.
// Offsets are relative to the start of the span being scanned, which for
// nested documents is the embedded document, not the outer record.
type MalformedError struct {
	Offset int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: offset %d: %s", ErrMalformedDocument, e.Offset, e.Reason)
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedDocument
}

func malformed(offset int, reason string) error {
	return &MalformedError{Offset: offset, Reason: reason}
}
