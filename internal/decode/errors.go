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

package decode

import (
	"errors"
	"fmt"
)

// ErrInvalidSchema is returned by Compile when a column cannot be compiled.
var ErrInvalidSchema = errors.New("invalid schema")

// ColumnError describes a schema problem with one column.
type ColumnError struct {
	Column string
	Err    error
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("column %q: %v", e.Column, e.Err)
}

// Is makes every ColumnError match ErrInvalidSchema.
func (e *ColumnError) Is(target error) bool {
	return target == ErrInvalidSchema
}

func (e *ColumnError) Unwrap() error {
	return e.Err
}
