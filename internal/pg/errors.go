package pg

import "errors"

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = errors.New("not found")
