package forge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
)

const (
	defaultGitHubAPI = "https://api.github.com"
	diffMediaType    = "application/vnd.github.v3.diff"
	githubPageSize   = 100
)

// GitHubClient reads repositories, pull requests, diffs and issues from the
// GitHub REST API.
type GitHubClient struct {
	*BaseForge
	logger          *slog.Logger
	maxRepositories int
	maxDiffBytes    int64

	mu        sync.RWMutex
	selection Selection
}

// GitHubOption configures a GitHubClient.
type GitHubOption func(*GitHubClient)

// WithHTTPClient replaces the HTTP client (tests point it at httptest servers).
func WithHTTPClient(hc *http.Client) GitHubOption {
	return func(c *GitHubClient) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) GitHubOption {
	return func(c *GitHubClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxRepositories bounds owned-repository discovery; 0 means unbounded.
func WithMaxRepositories(n int) GitHubOption {
	return func(c *GitHubClient) { c.maxRepositories = n }
}

// WithMaxDiffBytes bounds how much of a diff is read; 0 means unbounded.
func WithMaxDiffBytes(n int) GitHubOption {
	return func(c *GitHubClient) { c.maxDiffBytes = int64(n) }
}

// WithSelection sets the initial repository selection.
func WithSelection(s Selection) GitHubOption {
	return func(c *GitHubClient) { c.selection = s }
}

// NewGitHubClient creates a client for apiURL (the public API when empty).
func NewGitHubClient(apiURL, token string, opts ...GitHubOption) (*GitHubClient, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrAuthRequired
	}
	if apiURL == "" {
		apiURL = defaultGitHubAPI
	}

	c := &GitHubClient{
		BaseForge: NewBaseForge(&http.Client{Timeout: 30 * time.Second}, apiURL, token),
		logger:    slog.Default(),
	}
	c.SetCustomHeader("Accept", "application/vnd.github+json")
	c.SetCustomHeader("X-GitHub-Api-Version", "2022-11-28")

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetSelection swaps the repository selection; used by config hot reload.
func (c *GitHubClient) SetSelection(s Selection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection = Selection{
		TargetRepos:    append([]string(nil), s.TargetRepos...),
		IncludePrivate: s.IncludePrivate,
	}
}

// Selection returns the current repository selection.
func (c *GitHubClient) Selection() Selection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Selection{
		TargetRepos:    append([]string(nil), c.selection.TargetRepos...),
		IncludePrivate: c.selection.IncludePrivate,
	}
}

type githubOwner struct {
	Login string `json:"login"`
}

type githubRepo struct {
	Name      string      `json:"name"`
	FullName  string      `json:"full_name"`
	Private   bool        `json:"private"`
	Archived  bool        `json:"archived"`
	HTMLURL   string      `json:"html_url"`
	UpdatedAt time.Time   `json:"updated_at"`
	Owner     githubOwner `json:"owner"`
}

type githubPull struct {
	Number  int         `json:"number"`
	Title   string      `json:"title"`
	Body    string      `json:"body"`
	HTMLURL string      `json:"html_url"`
	User    githubOwner `json:"user"`
	Head    struct {
		SHA string `json:"sha"`
	} `json:"head"`
}

type githubIssue struct {
	Number      int          `json:"number"`
	Title       string       `json:"title"`
	HTMLURL     string       `json:"html_url"`
	Assignee    *githubOwner `json:"assignee"`
	PullRequest *struct{}    `json:"pull_request"`
}

// Repositories returns the repositories a review pass should scan.
// Configured targets are fetched one by one and unreachable ones are
// skipped; otherwise owned repositories are listed, most recently updated
// first, without private ones unless IncludePrivate is set.
func (c *GitHubClient) Repositories(ctx context.Context) ([]Repository, error) {
	sel := c.Selection()

	if len(sel.TargetRepos) > 0 {
		repos := make([]Repository, 0, len(sel.TargetRepos))
		for _, name := range sel.TargetRepos {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			repo, err := c.GetRepository(ctx, name)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				c.logger.Error("Could not access repository",
					logfields.Repository(name), logfields.Error(err))
				continue
			}
			repos = append(repos, repo)
		}
		return repos, nil
	}

	owned, err := c.OwnedRepositories(ctx, c.maxRepositories)
	if err != nil {
		return nil, err
	}
	repos := owned[:0]
	for _, r := range owned {
		if r.Private && !sel.IncludePrivate {
			continue
		}
		repos = append(repos, r)
	}
	return repos, nil
}

// OwnedRepositories lists repositories owned by the token's user, most
// recently updated first. limit <= 0 lists all of them.
func (c *GitHubClient) OwnedRepositories(ctx context.Context, limit int) ([]Repository, error) {
	pageSize := githubPageSize
	if limit > 0 && limit < pageSize {
		pageSize = limit
	}

	return PaginatedFetchHelper(ctx, "user/repos?type=owner&sort=updated&direction=desc", "page", "per_page", pageSize, limit,
		func(endpoint string) ([]Repository, bool, error) {
			req, err := c.NewRequest(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, false, err
			}
			var page []githubRepo
			headers, err := c.DoRequestWithHeaders(req, &page)
			if err != nil {
				return nil, false, err
			}
			repos := make([]Repository, 0, len(page))
			for i := range page {
				repos = append(repos, convertGitHubRepo(&page[i]))
			}
			return repos, hasNextPage(headers), nil
		})
}

// GetRepository fetches one repository by "owner/name".
func (c *GitHubClient) GetRepository(ctx context.Context, fullName string) (Repository, error) {
	owner, name, err := splitFullName(fullName)
	if err != nil {
		return Repository{}, err
	}

	req, err := c.NewRequest(ctx, http.MethodGet, fmt.Sprintf("repos/%s/%s", url.PathEscape(owner), url.PathEscape(name)), nil)
	if err != nil {
		return Repository{}, err
	}
	var gRepo githubRepo
	if err := c.DoRequest(req, &gRepo); err != nil {
		if errors.HasCategory(err, errors.CategoryNotFound) {
			return Repository{}, errors.WrapError(err, errors.CategoryNotFound, ErrRepositoryNotFound.Message()).
				WithContext("repository", fullName).
				Warning().
				Build()
		}
		return Repository{}, err
	}
	return convertGitHubRepo(&gRepo), nil
}

// OpenPullRequests lists open pull requests of repo.
func (c *GitHubClient) OpenPullRequests(ctx context.Context, repo string) ([]PullRequest, error) {
	owner, name, err := splitFullName(repo)
	if err != nil {
		return nil, err
	}
	base := fmt.Sprintf("repos/%s/%s/pulls?state=open", url.PathEscape(owner), url.PathEscape(name))

	return PaginatedFetchHelper(ctx, base, "page", "per_page", githubPageSize, 0,
		func(endpoint string) ([]PullRequest, bool, error) {
			req, err := c.NewRequest(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, false, err
			}
			var page []githubPull
			headers, err := c.DoRequestWithHeaders(req, &page)
			if err != nil {
				return nil, false, err
			}
			prs := make([]PullRequest, 0, len(page))
			for _, p := range page {
				prs = append(prs, PullRequest{
					Repo:    repo,
					Number:  p.Number,
					Title:   p.Title,
					Body:    p.Body,
					HTMLURL: p.HTMLURL,
					HeadSHA: p.Head.SHA,
					Author:  p.User.Login,
				})
			}
			return prs, hasNextPage(headers), nil
		})
}

// Diff returns the unified diff of pr, cut at the configured byte bound.
func (c *GitHubClient) Diff(ctx context.Context, pr PullRequest) (string, error) {
	owner, name, err := splitFullName(pr.Repo)
	if err != nil {
		return "", err
	}

	req, err := c.NewRequest(ctx, http.MethodGet,
		fmt.Sprintf("repos/%s/%s/pulls/%d", url.PathEscape(owner), url.PathEscape(name), pr.Number), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", diffMediaType)

	data, err := c.DoRaw(req, c.maxDiffBytes)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// OpenIssues lists up to limit open issues of repo, skipping pull requests.
func (c *GitHubClient) OpenIssues(ctx context.Context, repo string, limit int) ([]Issue, error) {
	owner, name, err := splitFullName(repo)
	if err != nil {
		return nil, err
	}
	base := fmt.Sprintf("repos/%s/%s/issues?state=open", url.PathEscape(owner), url.PathEscape(name))

	return PaginatedFetchHelper(ctx, base, "page", "per_page", githubPageSize, limit,
		func(endpoint string) ([]Issue, bool, error) {
			req, err := c.NewRequest(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, false, err
			}
			var page []githubIssue
			headers, err := c.DoRequestWithHeaders(req, &page)
			if err != nil {
				return nil, false, err
			}
			issues := make([]Issue, 0, len(page))
			for _, i := range page {
				if i.PullRequest != nil {
					continue
				}
				issue := Issue{Number: i.Number, Title: i.Title, HTMLURL: i.HTMLURL}
				if i.Assignee != nil {
					issue.Assignee = i.Assignee.Login
				}
				issues = append(issues, issue)
			}
			return issues, hasNextPage(headers), nil
		})
}

func convertGitHubRepo(gRepo *githubRepo) Repository {
	owner := gRepo.Owner.Login
	if owner == "" {
		owner, _, _ = strings.Cut(gRepo.FullName, "/")
	}
	return Repository{
		FullName:  gRepo.FullName,
		Name:      gRepo.Name,
		Owner:     owner,
		Private:   gRepo.Private,
		Archived:  gRepo.Archived,
		HTMLURL:   gRepo.HTMLURL,
		UpdatedAt: gRepo.UpdatedAt,
	}
}

func splitFullName(fullName string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(fullName), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", errors.WrapError(ErrInvalidRepoName, errors.CategoryValidation, "invalid repository name").
			WithContext("repository", fullName).
			UserAction().
			Build()
	}
	return owner, repo, nil
}
