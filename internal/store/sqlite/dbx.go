/*
Copyright 2026 Dima Krasner

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sqlite

import (
	"context"
	"database/sql"
	"reflect"
	"unsafe"
)

// scanRows calls collect for every row of rows. If T is a struct, the
// columns of each row are assigned to its visible fields by position.
func scanRows[T any](rows *sql.Rows, collect func(T)) error {
	var zero, row T

	if t := reflect.TypeFor[T](); t.Kind() == reflect.Struct {
		fields := reflect.VisibleFields(t)
		ptrs := make([]any, len(fields))
		base := unsafe.Pointer(&row)
		for i, field := range fields {
			ptrs[i] = reflect.NewAt(field.Type, unsafe.Add(base, field.Offset)).Interface()
		}

		for rows.Next() {
			row = zero
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			collect(row)
		}
	} else {
		var rowp any = &row

		for rows.Next() {
			row = zero
			if err := rows.Scan(rowp); err != nil {
				return err
			}
			collect(row)
		}
	}

	return rows.Err()
}

// queryCollect runs query and collects its results into a slice of T.
func queryCollect[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	collected := make([]T, 0, 8)
	if err := scanRows(rows, func(row T) {
		collected = append(collected, row)
	}); err != nil {
		return nil, err
	}

	return collected, nil
}
