package flow

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidRepository = errors.New("invalid repository identifier")

// WorkItem is one board item as observed during a poll cycle. It is rebuilt
// from the board client on every cycle and never persisted.
type WorkItem struct {
	ItemID        string
	BoardURL      string
	IssueNumber   int
	Repository    string // hostname/owner/repo
	Status        string
	Title         string
	Labels        []string
	IsClosed      bool
	StateReason   string
	HasMergedWork bool
	CommentCount  int
}

// SplitRepository splits a "hostname/owner/repo" identifier into its parts.
func SplitRepository(repository string) (host string, owner string, name string, err error) {
	parts := strings.Split(strings.TrimSpace(repository), "/")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidRepository, repository)
	}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return "", "", "", fmt.Errorf("%w: %q", ErrInvalidRepository, repository)
		}
	}
	return parts[0], parts[1], parts[2], nil
}

// OwnerRepo returns the "owner/repo" suffix of a repository identifier.
func OwnerRepo(repository string) (string, string, error) {
	_, owner, name, err := SplitRepository(repository)
	if err != nil {
		return "", "", err
	}
	return owner, name, nil
}

// HasLabel reports whether the item carries the given label.
func (w WorkItem) HasLabel(label string) bool {
	for _, candidate := range w.Labels {
		if candidate == label {
			return true
		}
	}
	return false
}
