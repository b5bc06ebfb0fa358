package issue

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotTracked is returned when an issue id is not in the registry.
var ErrNotTracked = errors.New("issue not tracked")

// ErrInvalid is returned by Track for incomplete issues.
var ErrInvalid = errors.New("invalid issue")

// Issue is the snapshot of a GitHub issue the user chose to track.
type Issue struct {
	ID         string    `json:"issueId"`
	Title      string    `json:"title"`
	Number     int       `json:"number"`
	Repository string    `json:"repository"`
	URL        string    `json:"url"`
	TrackedAt  time.Time `json:"trackedAt"`
}

// Label renders the issue as "owner/repo#42 Title".
func (i Issue) Label() string {
	if i.Repository == "" {
		if i.Number == 0 {
			return i.Title
		}
		return fmt.Sprintf("#%d %s", i.Number, i.Title)
	}
	return fmt.Sprintf("%s#%d %s", i.Repository, i.Number, i.Title)
}

// Source supplies issue snapshots. Lookup must not block on network I/O.
type Source interface {
	Lookup(id string) (Issue, error)
}

func (i Issue) validate() error {
	if i.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if i.Title == "" {
		return fmt.Errorf("%w: %s: title is required", ErrInvalid, i.ID)
	}
	return nil
}
