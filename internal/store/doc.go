// Package store defines interfaces for persistence dependencies (run
// repositories and star-count readers). Implementations live in other
// packages; this package must not import database drivers or concrete
// clients.
package store
