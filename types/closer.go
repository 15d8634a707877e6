// closer.go defines the Closer interface.

package types

import (
	"context"
)

// Closer is implemented by sources (and other collaborators) owning
// resources which must be released on unregistering an input.
type Closer interface {
	Close(context.Context) error
}
