// Package manifest declares the boundary the HTTP surface calls through
// to resolve a manifest subpath to an inner identifier. Manifest parsing
// itself is out of scope; this package only defines the
// interface shape.
package manifest

import "context"

// Resolver maps a (manifestID, subpath) pair to the identifier of the
// entry that subpath names within that manifest.
type Resolver interface {
	ResolveSubpath(ctx context.Context, manifestID, subpath string) (innerID string, err error)
}
