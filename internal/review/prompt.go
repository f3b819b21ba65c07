package review

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/abduznik/AI-PR-Analyzer/internal/forge"
	"github.com/abduznik/AI-PR-Analyzer/internal/llm"
)

const reviewerSystem = "You are a strict Senior Software Engineer reviewing a Pull Request."

const reviewTask = `**Task:**
Analyze the changes. Determine if this is a "Good Push" or "Bad Push".

**Output Format (Markdown):**
**Verdict:** [Good Push / Bad Push]

**Summary:**
[1-2 sentences]

**Critique:**
*   **Bad Practices:** [Security risks, dirty code, anti-patterns]
*   **Issue Alignment:** [Does this solve the problem?]
*   **Improvements:** [Specific suggestions]

If it's a perfect push, explicitly state "No issues found."`

const noLinkedIssue = "No linked issue found."

// BuildPrompt assembles the review request for pr. The diff is cut to
// maxDiffBytes (0 keeps it whole) without splitting a UTF-8 sequence.
func BuildPrompt(pr forge.PullRequest, diff string, maxDiffBytes int) llm.Prompt {
	description := strings.TrimSpace(pr.Body)
	if description == "" {
		description = noLinkedIssue
	}

	var b strings.Builder
	b.WriteString("**Context:**\n")
	fmt.Fprintf(&b, "Repo: %s\n", pr.Repo)
	fmt.Fprintf(&b, "PR Title: %s\n", pr.Title)
	fmt.Fprintf(&b, "PR Description: %s\n\n", description)
	b.WriteString("**Code Changes (Diff):**\n```\n")
	b.WriteString(truncate(diff, maxDiffBytes))
	b.WriteString("\n```\n\n")
	b.WriteString(reviewTask)

	p := llm.UserPrompt(b.String())
	p.System = reviewerSystem
	return p
}

func truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// AnalyzingNotice is sent before a pull request is reviewed.
func AnalyzingNotice(pr forge.PullRequest) string {
	return fmt.Sprintf("🔎 Analyzing new changes in **%s** PR #%d...", pr.Repo, pr.Number)
}

// FormatReview renders the message carrying a review.
func FormatReview(pr forge.PullRequest, analysis string) string {
	return fmt.Sprintf("**PR Analysis: %s**\n[#%d: %s](%s)\n\n%s", pr.Repo, pr.Number, pr.Title, pr.HTMLURL, analysis)
}

// Messages sent to the triggering chat.
const (
	NoUpdatesMessage    = "✅ No new PR updates found."
	GenerationFailedMsg = "Error analyzing PR with AI."
)

// PassErrorMessage reports a failed manual pass.
func PassErrorMessage(err error) string {
	return fmt.Sprintf("⚠️ Error running check: %v", err)
}
