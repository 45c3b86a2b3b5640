package reviewer

import (
	"context"
	"errors"
)

// ErrNoReviewer signals that no active reviewer staffs the requested tier.
var ErrNoReviewer = errors.New("reviewer: no reviewer at tier")

// Directory supplies the next-tier reviewer for an escalation. The engine
// only consumes this interface; staffing and rotation policy live behind it.
type Directory interface {
	NextReviewer(ctx context.Context, kind string, level int) (string, error)
}
