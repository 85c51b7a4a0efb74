package model

import "time"

// ItemKind is the type of one unit of resource history.
type ItemKind string

const (
	ItemKindComment        ItemKind = "comment"
	ItemKindReview         ItemKind = "review"
	ItemKindReviewComment  ItemKind = "review_comment"
	ItemKindIssueBody      ItemKind = "issue_body"
	ItemKindDiscussionBody ItemKind = "discussion_body"
	// ItemKindSystemNotice items are synthesized by truncation, never fetched.
	ItemKindSystemNotice ItemKind = "system_notice"
)

// UnknownAuthor is used when the forge returns no author (deleted accounts, ghosts).
const UnknownAuthor = "unknown"

// TimelineItem is one entry of a resource's unified history.
type TimelineItem struct {
	ID        string
	Body      string
	Timestamp time.Time
	Author    string
	Kind      ItemKind

	Path     string // review_comment only
	DiffHunk string // review_comment only
	State    string // review only
	ReviewID string // review_comment only: parent review
}

// IsReviewKind reports whether the item belongs to review-granularity conversation.
func (t TimelineItem) IsReviewKind() bool {
	return t.Kind == ItemKindReview || t.Kind == ItemKindReviewComment
}

// BatchID is the review batch the item belongs to: its parent review for inline
// comments, itself for reviews.
func (t TimelineItem) BatchID() string {
	if t.ReviewID != "" {
		return t.ReviewID
	}
	return t.ID
}
