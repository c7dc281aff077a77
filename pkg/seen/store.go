// Package seen tracks broker message ids that have already been processed,
// so a redelivered envelope can be acknowledged without re-invoking its
// handler.
package seen

import "context"

// Store is the marker interface the pipeline consults. Implementations must
// be safe for concurrent use; the pull and push paths share one instance.
type Store interface {
	// Seen reports whether the message id has been marked processed.
	Seen(ctx context.Context, messageID string) (bool, error)
	// Mark records the message id as processed.
	Mark(ctx context.Context, messageID string) error
	// Close releases any underlying connections.
	Close() error
}
