package notify

import "context"

// Dispatcher delivers events to recipients. Implementations own retry and
// delivery policy; callers treat Dispatch as fire-and-forget and never roll
// back a committed state transition when it fails (at-least-once,
// eventually-notifying).
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event, recipients []string) error
}
