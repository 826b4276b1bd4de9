package linking

import "context"

// Store is the session-state service backing the flow. Implementations must
// expire entries after their TTL and treat an expired entry like a missing
// one. Reads refresh the expiry (sliding window).
type Store interface {
	// Get retrieves the session stored under id. The second return is
	// false when no live session exists.
	Get(ctx context.Context, id string) (Session, bool, error)

	// Put saves or replaces the session stored under id.
	Put(ctx context.Context, id string, sess Session) error

	// Delete removes the session stored under id. Deleting a missing
	// session is not an error.
	Delete(ctx context.Context, id string) error
}
