// Package tracker implements the IssueSource port against the GitHub
// issues API. Issues are listed oldest-updated first so the sync
// cursor can advance monotonically, and comment bodies are folded into
// each issue.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v80/github"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
)

var _ driven.IssueSource = (*Connector)(nil)

// DefaultPageSize is the issue listing page size.
const DefaultPageSize = 100

// Config holds configuration for the tracker connector.
type Config struct {
	// Token is a personal access token with repo read scope.
	Token string

	// Owner and Repo identify the repository to index.
	Owner string
	Repo  string

	// BaseURL overrides the API root (tests).
	BaseURL string

	// PageSize is the listing page size (default: 100).
	PageSize int
}

// Connector reads issues and their comments from one repository.
type Connector struct {
	client   *github.Client
	owner    string
	repo     string
	pageSize int
}

// New creates a tracker connector.
func New(cfg Config) (*Connector, error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	client := github.NewClient(nil)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("set tracker base url: %w", err)
		}
	}
	return &Connector{
		client:   client,
		owner:    cfg.Owner,
		repo:     cfg.Repo,
		pageSize: cfg.PageSize,
	}, nil
}

// FetchIssues returns one page of issues updated after the given time,
// oldest first. Pull requests are excluded.
func (c *Connector) FetchIssues(
	ctx context.Context, updatedAfter time.Time, page int,
) (*driven.IssuePage, error) {
	opts := &github.IssueListByRepoOptions{
		State:     "all",
		Sort:      "updated",
		Direction: "asc",
		ListOptions: github.ListOptions{
			Page:    page,
			PerPage: c.pageSize,
		},
	}
	if !updatedAfter.IsZero() {
		opts.Since = updatedAfter
	}

	issues, resp, err := c.client.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
	if err != nil {
		return nil, mapError(err)
	}

	result := &driven.IssuePage{
		HasMore:  resp.NextPage != 0,
		NextPage: resp.NextPage,
	}
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		item, err := c.toIssue(ctx, issue)
		if err != nil {
			return nil, err
		}
		result.Issues = append(result.Issues, item)
	}
	return result, nil
}

func (c *Connector) toIssue(ctx context.Context, issue *github.Issue) (driven.Issue, error) {
	item := driven.Issue{
		ID:        fmt.Sprintf("%d", issue.GetNumber()),
		Key:       fmt.Sprintf("%s/%s#%d", c.owner, c.repo, issue.GetNumber()),
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		URL:       issue.GetHTMLURL(),
		State:     issue.GetState(),
		CreatedAt: issue.GetCreatedAt().Time,
		UpdatedAt: issue.GetUpdatedAt().Time,
	}
	if issue.Assignee != nil {
		item.Assignee = issue.Assignee.GetLogin()
	}
	if issue.GetComments() > 0 {
		comments, err := c.fetchComments(ctx, issue.GetNumber())
		if err != nil {
			return driven.Issue{}, fmt.Errorf("fetch comments for #%d: %w", issue.GetNumber(), err)
		}
		item.Comments = comments
	}
	return item, nil
}

func (c *Connector) fetchComments(ctx context.Context, number int) ([]string, error) {
	var bodies []string
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: c.pageSize},
	}
	for {
		comments, resp, err := c.client.Issues.ListComments(ctx, c.owner, c.repo, number, opts)
		if err != nil {
			return nil, mapError(err)
		}
		for _, comment := range comments {
			if body := comment.GetBody(); body != "" {
				bodies = append(bodies, body)
			}
		}
		if resp.NextPage == 0 {
			return bodies, nil
		}
		opts.Page = resp.NextPage
	}
}

// mapError classifies GitHub API errors into domain errors.
func mapError(err error) error {
	if _, ok := err.(*github.RateLimitError); ok {
		return fmt.Errorf("tracker: %w", domain.ErrRateLimited)
	}
	if apiErr, ok := err.(*github.ErrorResponse); ok && apiErr.Response != nil {
		switch apiErr.Response.StatusCode {
		case 401, 403:
			return fmt.Errorf("tracker: %s: %w", apiErr.Message, domain.ErrAuthFailed)
		case 429:
			return fmt.Errorf("tracker: %s: %w", apiErr.Message, domain.ErrRateLimited)
		}
	}
	return err
}
