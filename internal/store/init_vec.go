//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// When built with -tags sqlite_vec,cgo the real sqlite-vec extension is
// loaded instead of the pure-Go vec0 compat table, per spec §9's "embedded
// native extension" strategy: try the bundled native module first, fall
// back to the portable one, never fail silently.
func init() {
	vec.Auto()
}
