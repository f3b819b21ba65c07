package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/abduznik/AI-PR-Analyzer/internal/forge"
	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
)

const (
	defaultOwnedScan = 50
	defaultMaxIssues = 10
	wordTrimChars    = "?,.!:'\""
)

// IssueSource is the part of the forge client used to answer issue questions.
type IssueSource interface {
	GetRepository(ctx context.Context, fullName string) (forge.Repository, error)
	OwnedRepositories(ctx context.Context, limit int) ([]forge.Repository, error)
	OpenIssues(ctx context.Context, repo string, limit int) ([]forge.Issue, error)
}

func mentionsIssues(text string) bool {
	return strings.Contains(strings.ToLower(text), "issue")
}

// findRepository resolves the repository a message talks about: an explicit
// owner/name token first, then an owned repository whose name occurs in the text.
func (h *Handler) findRepository(ctx context.Context, text string) (forge.Repository, bool) {
	for _, word := range strings.Fields(text) {
		candidate := strings.Trim(word, wordTrimChars)
		if !strings.Contains(candidate, "/") {
			continue
		}
		repo, err := h.issues.GetRepository(ctx, candidate)
		if err == nil {
			return repo, true
		}
	}

	repos, err := h.issues.OwnedRepositories(ctx, h.ownedScan)
	if err != nil {
		h.logger.Warn("Failed to list owned repositories", logfields.Error(err))
		return forge.Repository{}, false
	}
	lower := strings.ToLower(text)
	for _, repo := range repos {
		if repo.Name != "" && strings.Contains(lower, strings.ToLower(repo.Name)) {
			return repo, true
		}
	}
	return forge.Repository{}, false
}

func formatIssues(repo string, issues []forge.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Open Issues in %s:**\n", repo)
	for _, is := range issues {
		assignee := is.Assignee
		if assignee == "" {
			assignee = "None"
		}
		fmt.Fprintf(&b, "- #%d: %s (assigned: %s)\n", is.Number, is.Title, assignee)
	}
	return b.String()
}
