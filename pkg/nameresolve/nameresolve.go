// Package nameresolve declares the boundary the HTTP surface calls
// through to resolve a human-readable name to the 43-char identifier it
// currently points at. The resolution mechanism itself is out of scope;
// this package only defines the interface shape.
package nameresolve

import "context"

// Resolver maps a name (e.g. an ArNS name) to the identifier it currently
// resolves to.
type Resolver interface {
	Resolve(ctx context.Context, name string) (id string, err error)
}
