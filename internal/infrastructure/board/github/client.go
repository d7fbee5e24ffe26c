// Package github implements the board capability against the GitHub API:
// REST (go-github) for issue-level calls, GraphQL for Projects v2. Cloud and
// enterprise variants differ only in endpoints; other board backends
// implement the port independently.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"autoflow/internal/domain/flow"
	"autoflow/internal/errs"
	"autoflow/internal/ports"
)

type Client struct {
	rest          *gh.Client
	http          *http.Client
	graphqlURL    string
	hostname      string
	owner         string
	projectNumber int

	mu            sync.Mutex
	projectID     string
	statusFieldID string
	statusOptions map[string]string
}

var _ ports.Board = (*Client)(nil)

// NewClient builds a client for github.com.
func NewClient(ctx context.Context, token string, owner string, projectNumber int) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("board token is required")
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	return &Client{
		rest:          gh.NewClient(httpClient),
		http:          httpClient,
		graphqlURL:    "https://api.github.com/graphql",
		hostname:      "github.com",
		owner:         owner,
		projectNumber: projectNumber,
		statusOptions: make(map[string]string),
	}, nil
}

// NewEnterpriseClient builds a client for a GitHub Enterprise Server host
// (REST under /api/v3, GraphQL under /api/graphql).
func NewEnterpriseClient(ctx context.Context, hostname string, token string, owner string, projectNumber int) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("board token is required")
	}
	if strings.TrimSpace(hostname) == "" || hostname == "github.com" {
		return nil, fmt.Errorf("enterprise client requires a non-cloud hostname, got %q", hostname)
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	base := fmt.Sprintf("https://%s/api/v3/", hostname)
	upload := fmt.Sprintf("https://%s/api/uploads/", hostname)
	rest, err := gh.NewClient(httpClient).WithEnterpriseURLs(base, upload)
	if err != nil {
		return nil, errs.Wrap(err, "configure enterprise endpoints")
	}

	return &Client{
		rest:          rest,
		http:          httpClient,
		graphqlURL:    fmt.Sprintf("https://%s/api/graphql", hostname),
		hostname:      hostname,
		owner:         owner,
		projectNumber: projectNumber,
		statusOptions: make(map[string]string),
	}, nil
}

func (c *Client) repoParts(repository string) (string, string, error) {
	host, owner, name, err := flow.SplitRepository(repository)
	if err != nil {
		return "", "", err
	}
	if host != c.hostname {
		return "", "", fmt.Errorf("repository %s does not belong to board host %s", repository, c.hostname)
	}
	return owner, name, nil
}

func (c *Client) IssueBody(ctx context.Context, repository string, issueNumber int) (string, error) {
	owner, name, err := c.repoParts(repository)
	if err != nil {
		return "", err
	}

	issue, resp, err := c.rest.Issues.Get(ctx, owner, name, issueNumber)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", errs.Wrapf(ports.ErrTicketNotFound, "%s#%d", repository, issueNumber)
		}
		return "", errs.Wrapf(err, "fetch issue %s#%d", repository, issueNumber)
	}
	return issue.GetBody(), nil
}

func (c *Client) IssueComments(ctx context.Context, repository string, issueNumber int) ([]ports.IssueComment, error) {
	owner, name, err := c.repoParts(repository)
	if err != nil {
		return nil, err
	}

	opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	var comments []ports.IssueComment
	for {
		page, resp, err := c.rest.Issues.ListComments(ctx, owner, name, issueNumber, opts)
		if err != nil {
			return nil, errs.Wrapf(err, "fetch comments of %s#%d", repository, issueNumber)
		}
		for _, comment := range page {
			comments = append(comments, ports.IssueComment{
				Author:    comment.GetUser().GetLogin(),
				Body:      comment.GetBody(),
				CreatedAt: comment.GetCreatedAt().Format("2006-01-02T15:04:05Z07:00"),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return comments, nil
}

func (c *Client) EnsureLabels(ctx context.Context, repository string, labels []string) error {
	owner, name, err := c.repoParts(repository)
	if err != nil {
		return err
	}

	existing := make(map[string]bool)
	opts := &gh.ListOptions{PerPage: 100}
	for {
		page, resp, err := c.rest.Issues.ListLabels(ctx, owner, name, opts)
		if err != nil {
			return errs.Wrapf(err, "list labels of %s", repository)
		}
		for _, label := range page {
			existing[label.GetName()] = true
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	for _, label := range labels {
		if existing[label] {
			continue
		}
		_, _, err := c.rest.Issues.CreateLabel(ctx, owner, name, &gh.Label{
			Name:  gh.String(label),
			Color: gh.String("ededed"),
		})
		if err != nil {
			return errs.Wrapf(err, "create label %q on %s", label, repository)
		}
	}
	return nil
}

func (c *Client) AddLabel(ctx context.Context, repository string, issueNumber int, label string) error {
	owner, name, err := c.repoParts(repository)
	if err != nil {
		return err
	}

	if _, _, err := c.rest.Issues.AddLabelsToIssue(ctx, owner, name, issueNumber, []string{label}); err != nil {
		return errs.Wrapf(err, "add label %q to %s#%d", label, repository, issueNumber)
	}
	return nil
}

func (c *Client) RemoveLabel(ctx context.Context, repository string, issueNumber int, label string) error {
	owner, name, err := c.repoParts(repository)
	if err != nil {
		return err
	}

	resp, err := c.rest.Issues.RemoveLabelForIssue(ctx, owner, name, issueNumber, label)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return errs.Wrapf(err, "remove label %q from %s#%d", label, repository, issueNumber)
	}
	return nil
}
