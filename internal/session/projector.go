package session

import "context"

// Projector receives the "is any timer running" projection for a user.
type Projector interface {
	SetRunning(ctx context.Context, userID, issueID string, running bool, atMs int64) error
}

// RunningReader reads the projection back, for processes that do not own
// the timer.
type RunningReader interface {
	Running(ctx context.Context, userID string) (issueID string, running bool, err error)
}

// MultiProjector writes to every projector and returns the last error.
type MultiProjector []Projector

func (m MultiProjector) SetRunning(ctx context.Context, userID, issueID string, running bool, atMs int64) error {
	var lastErr error
	for _, p := range m {
		if err := p.SetRunning(ctx, userID, issueID, running, atMs); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
