package model

import (
	"bytes"
	"encoding/json"
)

// TaskContext is the bounded context handed to the downstream workflow.
// Built once per notification, serialized, then discarded.
type TaskContext struct {
	Repo        string `json:"repo" jsonschema:"description=Repository full name (owner/name)"`
	EventType   string `json:"event_type" jsonschema:"description=Lowercased resource kind"`
	EventID     string `json:"event_id" jsonschema:"description=Notification thread id or webhook delivery id"`
	IssueNumber *int   `json:"issue_number,omitempty"`

	Title           string `json:"title,omitempty"`
	IssueBody       string `json:"issue_body,omitempty"`
	PRTitle         string `json:"pr_title,omitempty"`
	PRBody          string `json:"pr_body,omitempty"`
	DiscussionTitle string `json:"discussion_title,omitempty"`
	DiscussionBody  string `json:"discussion_body,omitempty"`

	CloneURL  string `json:"clone_url,omitempty"`
	DiffURL   string `json:"diff_url,omitempty"`
	HeadRef   string `json:"head_ref,omitempty"`
	BaseRef   string `json:"base_ref,omitempty"`
	HeadRepo  string `json:"head_repo,omitempty" jsonschema:"description=owner/name:branch of the PR head"`
	BaseRepo  string `json:"base_repo,omitempty" jsonschema:"description=owner/name:branch of the PR base"`
	CommitSHA string `json:"commit_sha,omitempty"`

	TriggerUser       string `json:"trigger_user,omitempty"`
	TriggerItemID     string `json:"trigger_item_id,omitempty"`
	TriggerItemKind   string `json:"trigger_item_kind,omitempty"`
	CurrentReviewID   string `json:"current_review_id,omitempty"`
	IsMentionInBody   bool   `json:"is_mention_in_body,omitempty"`
	IsMentionInReview bool   `json:"is_mention_in_review,omitempty"`
	LatestCommentURL  string `json:"latest_comment_url,omitempty"`

	CommentsHistory     []CommentRecord       `json:"comments_history,omitempty"`
	ReviewsHistory      []ReviewRecord        `json:"reviews_history,omitempty"`
	ReviewCommentsBatch []ReviewCommentRecord `json:"review_comments_batch,omitempty"`

	DiffContent string `json:"diff_content,omitempty"`
	IsTruncated bool   `json:"is_truncated"`
}

type CommentRecord struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
	Type      string `json:"type"`
}

type ReviewRecord struct {
	ID          string `json:"id"`
	User        string `json:"user"`
	Body        string `json:"body"`
	State       string `json:"state,omitempty"`
	SubmittedAt string `json:"submitted_at"`
}

type ReviewCommentRecord struct {
	ID       string `json:"id"`
	User     string `json:"user"`
	Body     string `json:"body"`
	Path     string `json:"path,omitempty"`
	DiffHunk string `json:"diff_hunk,omitempty"`
}

// JSON serializes the context in the form passed as the workflow's context input.
// HTML escaping is off so diffs and markdown are not inflated by \u003c sequences.
func (c *TaskContext) JSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
