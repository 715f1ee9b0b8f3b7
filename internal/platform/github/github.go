// Package github files issues through the GitHub REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/onco/onco/internal/platform/apiclient"
)

const apiVersion = "2022-11-28"

var ErrNotConfigured = errors.New("github: token, owner and repo are required")

type Config struct {
	BaseURL string
	Token   string
	Owner   string
	Repo    string
}

type IssueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

type Issue struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	State   string `json:"state"`
	Title   string `json:"title"`
}

type Client struct {
	api   *apiclient.Client
	owner string
	repo  string
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" || cfg.Owner == "" || cfg.Repo == "" {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	api, err := apiclient.New(cfg.BaseURL, 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("github: %w", err)
	}
	api.Header.Set("Authorization", "Bearer "+cfg.Token)
	api.Header.Set("X-GitHub-Api-Version", apiVersion)
	return &Client{api: api, owner: cfg.Owner, repo: cfg.Repo}, nil
}

// CreateIssue opens an issue in the configured repository.
func (c *Client) CreateIssue(ctx context.Context, req IssueRequest) (*Issue, error) {
	if req.Title == "" {
		return nil, errors.New("github: issue title is required")
	}
	path := fmt.Sprintf("/repos/%s/%s/issues", url.PathEscape(c.owner), url.PathEscape(c.repo))

	var issue Issue
	err := c.api.DoJSON(ctx, http.MethodPost, path,
		map[string]string{"Accept": "application/vnd.github+json"}, req, &issue)
	if err != nil {
		return nil, fmt.Errorf("github: create issue: %w", err)
	}
	return &issue, nil
}

func (c *Client) Repository() string {
	return c.owner + "/" + c.repo
}
