package model

// ResourceKind is the root entity a notification is about.
type ResourceKind string

const (
	ResourceKindPullRequest ResourceKind = "PullRequest"
	ResourceKindIssue       ResourceKind = "Issue"
	ResourceKindDiscussion  ResourceKind = "Discussion"
	ResourceKindCommit      ResourceKind = "Commit"
)

// ResourceContext is the root resource being discussed. Immutable once fetched.
type ResourceContext struct {
	Kind       ResourceKind
	ID         string // forge node id
	Repository string // owner/name
	Number     *int   // nil for commits
	Title      string
	Body       string
	Author     string
	CreatedAt  string // ISO-8601 as returned by the forge
	URL        string
	CloneURL   string // ssh clone url of the repository holding the code

	// Pull requests.
	HeadRef  string
	BaseRef  string
	HeadRepo string // owner/name of the head repository
	BaseRepo string // owner/name of the base repository
	DiffURL  string

	// Commits.
	SHA string
}

// Resource bundles the root context with the raw, resource-specific history
// collections exactly as the forge returned them.
type Resource struct {
	Context ResourceContext

	Comments           []RawComment
	Reviews            []RawReview
	ReviewThreads      [][]RawReviewComment
	DiscussionComments []RawDiscussionComment
}

// RawComment is a plain conversation comment (issue, PR, commit, discussion).
type RawComment struct {
	ID        string
	Body      string
	Author    string
	CreatedAt string
}

// RawReview is a submitted pull request review.
type RawReview struct {
	ID          string
	Body        string
	Author      string
	State       string
	SubmittedAt string
	CreatedAt   string
}

// RawReviewComment is an inline comment inside a review thread.
type RawReviewComment struct {
	ID        string
	Body      string
	Author    string
	CreatedAt string
	Path      string
	DiffHunk  string
	ReviewID  string
}

// RawDiscussionComment is a top-level discussion comment with its replies.
type RawDiscussionComment struct {
	RawComment
	Replies []RawComment
}
