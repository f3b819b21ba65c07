package forge

import "time"

// Repository is the subset of a GitHub repository the bot needs.
type Repository struct {
	FullName  string    `json:"full_name"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Private   bool      `json:"private"`
	Archived  bool      `json:"archived"`
	HTMLURL   string    `json:"html_url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PullRequest is an open pull request with its current head commit.
type PullRequest struct {
	Repo    string `json:"repo"`
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	HeadSHA string `json:"head_sha"`
	Author  string `json:"author"`
}

// Issue is an open issue; pull requests are never returned as issues.
type Issue struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Assignee string `json:"assignee,omitempty"`
	HTMLURL  string `json:"html_url"`
}

// Selection decides which repositories a review pass scans.
// An empty TargetRepos means every owned repository.
type Selection struct {
	TargetRepos    []string
	IncludePrivate bool
}
