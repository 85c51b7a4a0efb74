package brain

import (
	"fmt"
	"unicode/utf8"

	"basegraph.app/courier/internal/model"
)

// diffReviewThreshold is the diff size above which a default PR task asks for a code review
// rather than a general one.
const diffReviewThreshold = 100

// TaskDescription returns the instruction text for the workflow. The trigger body is used
// verbatim, handle included, unless it is an empty mention; then a default is derived from
// the resource. The result is cut to maxChars characters.
func TaskDescription(kind model.ResourceKind, tc *model.TaskContext, trigger model.TimelineItem, handle string, maxChars int) string {
	task := trigger.Body
	if task == "" || IsEmptyMention(task, handle) {
		task = defaultTask(kind, tc)
	}
	return clip(task, maxChars)
}

func defaultTask(kind model.ResourceKind, tc *model.TaskContext) string {
	switch kind {
	case model.ResourceKindPullRequest:
		title := orDefault(tc.PRTitle, "No title")
		if utf8.RuneCountInString(tc.DiffContent) > diffReviewThreshold {
			return fmt.Sprintf("Please review the code changes in PR #%s: %s", number(tc.IssueNumber), title)
		}
		return fmt.Sprintf("Please review PR #%s: %s", number(tc.IssueNumber), title)
	case model.ResourceKindIssue:
		return fmt.Sprintf("Please analyze issue #%s: %s", number(tc.IssueNumber), orDefault(tc.Title, "No title"))
	case model.ResourceKindCommit:
		sha := "unknown"
		if tc.CommitSHA != "" {
			sha = clip(tc.CommitSHA, 8)
		}
		return fmt.Sprintf("Please review commit %s: %s", sha, orDefault(tc.Title, "No message"))
	default:
		return fmt.Sprintf("Please process this %s", kind)
	}
}

func number(n *int) string {
	if n == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *n)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// clip cuts s to at most n characters. n <= 0 means no limit.
func clip(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
