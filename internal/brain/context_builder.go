package brain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"basegraph.app/courier/internal/model"
	"basegraph.app/courier/internal/timeline"
)

const (
	maxRootBodyChars    = 3000
	maxCommitTitleChars = 200

	// DiffPlaceholder replaces diff_content when the context is too large to dispatch.
	DiffPlaceholder = "[diff omitted: context too large, fetch it from diff_url]"
)

// DiffFetcher returns the unified diff of a pull request or commit.
type DiffFetcher interface {
	Diff(ctx context.Context, rc model.ResourceContext) (string, error)
}

// Limits bound what the builder puts into a TaskContext.
type Limits struct {
	ContextMaxChars int // timeline budget, in characters of item bodies
	DiffMaxChars    int
	ContextMaxBytes int // ceiling of the serialized context
	TaskMaxChars    int
}

// strategy is how one resource kind contributes to a TaskContext.
type strategy struct {
	fill func(tc *model.TaskContext, rc model.ResourceContext, handle string)
	diff bool
}

var strategies = map[model.ResourceKind]strategy{
	model.ResourceKindPullRequest: {fill: fillPullRequest, diff: true},
	model.ResourceKindIssue:       {fill: fillIssue},
	model.ResourceKindDiscussion:  {fill: fillDiscussion},
	model.ResourceKindCommit:      {fill: fillCommit, diff: true},
}

// Built is the output of one build: the task text and the context that goes with it.
type Built struct {
	Task        string
	Context     *model.TaskContext
	ContextJSON []byte
	// Degraded is set when the size guard had to drop content.
	Degraded bool
}

// ContextBuilder turns a resource, its unified timeline and the resolved trigger into the
// task and context handed to the workflow.
type ContextBuilder struct {
	diffs  DiffFetcher
	handle string
	limits Limits
}

// NewContextBuilder creates a ContextBuilder. diffs may be nil, in which case no diff
// is ever attached.
func NewContextBuilder(diffs DiffFetcher, handle string, limits Limits) *ContextBuilder {
	return &ContextBuilder{diffs: diffs, handle: handle, limits: limits}
}

// Build assembles the TaskContext. items is the full ascending timeline; it is truncated
// here to the character budget.
func (b *ContextBuilder) Build(ctx context.Context, note model.Notification, rc model.ResourceContext, items []model.TimelineItem, trigger model.TimelineItem) (*Built, error) {
	strat, ok := strategies[rc.Kind]
	if !ok {
		return nil, fmt.Errorf("unsupported resource kind %q", rc.Kind)
	}

	tc := &model.TaskContext{
		Repo:             rc.Repository,
		EventType:        strings.ToLower(string(rc.Kind)),
		EventID:          note.ThreadID,
		IssueNumber:      rc.Number,
		CloneURL:         rc.CloneURL,
		LatestCommentURL: note.LatestCommentURL,
	}
	strat.fill(tc, rc, b.handle)

	tc.TriggerUser = trigger.Author
	tc.TriggerItemID = trigger.ID
	tc.TriggerItemKind = string(trigger.Kind)
	if trigger.IsReviewKind() {
		tc.CurrentReviewID = trigger.BatchID()
	}
	tc.IsMentionInReview = trigger.Kind == model.ItemKindReview

	truncated := timeline.Truncate(items, b.limits.ContextMaxChars)
	tc.IsTruncated = truncated.Truncated
	group(tc, truncated.Items, trigger)

	if strat.diff && !trigger.IsReviewKind() && b.diffs != nil {
		diff, err := b.diffs.Diff(ctx, rc)
		if err != nil {
			slog.WarnContext(ctx, "failed to fetch diff, continuing without it",
				"resource_url", rc.URL,
				"error", err)
		} else {
			tc.DiffContent = clip(diff, b.limits.DiffMaxChars)
		}
	}

	task := TaskDescription(rc.Kind, tc, trigger, b.handle, b.limits.TaskMaxChars)

	payload, degraded, err := b.fit(ctx, tc)
	if err != nil {
		return nil, err
	}

	return &Built{
		Task:        task,
		Context:     tc,
		ContextJSON: payload,
		Degraded:    degraded,
	}, nil
}

// group fills the history views. A review or review_comment trigger only sees its own
// review batch. Any other trigger sees plain comments and reviews, with gap notices kept
// so omitted history stays visible.
func group(tc *model.TaskContext, items []model.TimelineItem, trigger model.TimelineItem) {
	if trigger.IsReviewKind() {
		batch := trigger.BatchID()
		for _, item := range items {
			switch {
			case item.Kind == model.ItemKindReview && item.ID == batch:
				tc.ReviewsHistory = append(tc.ReviewsHistory, reviewRecord(item))
			case item.Kind == model.ItemKindReviewComment && item.ReviewID == batch:
				tc.ReviewCommentsBatch = append(tc.ReviewCommentsBatch, model.ReviewCommentRecord{
					ID:       item.ID,
					User:     item.Author,
					Body:     item.Body,
					Path:     item.Path,
					DiffHunk: item.DiffHunk,
				})
			}
		}
		return
	}

	for _, item := range items {
		switch item.Kind {
		case model.ItemKindComment, model.ItemKindSystemNotice:
			tc.CommentsHistory = append(tc.CommentsHistory, model.CommentRecord{
				ID:        item.ID,
				User:      item.Author,
				Body:      item.Body,
				CreatedAt: timeline.FormatTimestamp(item.Timestamp),
				Type:      string(item.Kind),
			})
		case model.ItemKindReview:
			tc.ReviewsHistory = append(tc.ReviewsHistory, reviewRecord(item))
		}
	}
}

func reviewRecord(item model.TimelineItem) model.ReviewRecord {
	return model.ReviewRecord{
		ID:          item.ID,
		User:        item.Author,
		Body:        item.Body,
		State:       item.State,
		SubmittedAt: timeline.FormatTimestamp(item.Timestamp),
	}
}

// fit serializes tc and, while it exceeds the byte ceiling, drops content in order: the
// diff, then the older half of comments_history, then the older half of the review views.
func (b *ContextBuilder) fit(ctx context.Context, tc *model.TaskContext) ([]byte, bool, error) {
	degraded := false
	for {
		payload, err := tc.JSON()
		if err != nil {
			return nil, degraded, fmt.Errorf("encoding task context: %w", err)
		}
		if b.limits.ContextMaxBytes <= 0 || len(payload) <= b.limits.ContextMaxBytes {
			return payload, degraded, nil
		}
		if !shrink(tc) {
			slog.WarnContext(ctx, "task context still exceeds ceiling after degrading",
				"size", len(payload),
				"limit", b.limits.ContextMaxBytes)
			return payload, degraded, nil
		}
		degraded = true
		tc.IsTruncated = true
	}
}

func shrink(tc *model.TaskContext) bool {
	switch {
	case tc.DiffContent != "" && tc.DiffContent != DiffPlaceholder:
		tc.DiffContent = DiffPlaceholder
	case len(tc.CommentsHistory) > 0:
		tc.CommentsHistory = newestHalf(tc.CommentsHistory)
	case len(tc.ReviewCommentsBatch) > 0:
		tc.ReviewCommentsBatch = newestHalf(tc.ReviewCommentsBatch)
	case len(tc.ReviewsHistory) > 0:
		tc.ReviewsHistory = newestHalf(tc.ReviewsHistory)
	default:
		return false
	}
	return true
}

// newestHalf keeps the newer half of s, rounding down, so a single entry goes to nil.
func newestHalf[T any](s []T) []T {
	keep := len(s) / 2
	if keep == 0 {
		return nil
	}
	return s[len(s)-keep:]
}

func fillPullRequest(tc *model.TaskContext, rc model.ResourceContext, handle string) {
	tc.PRTitle = rc.Title
	tc.PRBody = clip(rc.Body, maxRootBodyChars)
	tc.HeadRef = rc.HeadRef
	tc.BaseRef = rc.BaseRef
	tc.DiffURL = rc.DiffURL
	if rc.HeadRepo != "" && rc.HeadRef != "" {
		tc.HeadRepo = rc.HeadRepo + ":" + rc.HeadRef
	}
	if rc.BaseRepo != "" && rc.BaseRef != "" {
		tc.BaseRepo = rc.BaseRepo + ":" + rc.BaseRef
	}
	tc.IsMentionInBody = timeline.ContainsMention(tc.PRBody, handle)
}

func fillIssue(tc *model.TaskContext, rc model.ResourceContext, handle string) {
	tc.Title = rc.Title
	tc.IssueBody = clip(rc.Body, maxRootBodyChars)
	tc.IsMentionInBody = timeline.ContainsMention(tc.IssueBody, handle)
}

func fillDiscussion(tc *model.TaskContext, rc model.ResourceContext, handle string) {
	tc.DiscussionTitle = rc.Title
	tc.DiscussionBody = clip(rc.Body, maxRootBodyChars)
	tc.IsMentionInBody = timeline.ContainsMention(tc.DiscussionBody, handle)
}

func fillCommit(tc *model.TaskContext, rc model.ResourceContext, _ string) {
	tc.CommitSHA = rc.SHA
	tc.Title = clip(rc.Title, maxCommitTitleChars)
	tc.IssueNumber = nil
}
