package security

import "context"

// Repository is the append-only store contract for security events.
type Repository interface {
	Insert(ctx context.Context, event *Event) error
}
