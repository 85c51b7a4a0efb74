package brain

import (
	"context"
	"errors"
	"log/slog"

	"basegraph.app/courier/internal/model"
	"basegraph.app/courier/internal/timeline"
)

// ErrNoTrigger is returned when no item on the resource mentions the bot.
var ErrNoTrigger = errors.New("no trigger item found")

// LatestCommentFetcher resolves a notification's latest-comment pointer.
type LatestCommentFetcher interface {
	LatestComment(ctx context.Context, url string) (model.CommentRef, error)
}

// TriggerResolver picks the single timeline item treated as the instruction.
type TriggerResolver struct {
	comments LatestCommentFetcher
	handle   string
}

// NewTriggerResolver creates a resolver. comments may be nil when the forge exposes no
// latest-comment pointer.
func NewTriggerResolver(comments LatestCommentFetcher, handle string) *TriggerResolver {
	return &TriggerResolver{comments: comments, handle: handle}
}

// Resolve returns the trigger item for note. In order: the hinted item if it mentions the
// handle, the newest item that does, the root body if it does. Anything else is
// ErrNoTrigger. Only candidates are found here; their content is judged later.
func (r *TriggerResolver) Resolve(ctx context.Context, note model.Notification, rc model.ResourceContext, items []model.TimelineItem) (model.TimelineItem, error) {
	if ref, ok := r.hint(ctx, note); ok {
		for _, item := range items {
			if !ref.Matches(item) {
				continue
			}
			if timeline.ContainsMention(item.Body, r.handle) {
				return item, nil
			}
			slog.DebugContext(ctx, "hinted item does not mention handle, scanning timeline",
				"item_id", item.ID,
				"item_kind", item.Kind)
			break
		}
	}

	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Kind == model.ItemKindSystemNotice {
			continue
		}
		if timeline.ContainsMention(items[i].Body, r.handle) {
			return items[i], nil
		}
	}

	if root, ok := timeline.RootBodyItem(rc, r.handle); ok {
		return root, nil
	}

	return model.TimelineItem{}, ErrNoTrigger
}

func (r *TriggerResolver) hint(ctx context.Context, note model.Notification) (model.CommentRef, bool) {
	if note.HintItemID != "" {
		return model.CommentRef{ID: note.HintItemID}, true
	}
	if note.LatestCommentURL == "" || r.comments == nil {
		return model.CommentRef{}, false
	}

	ref, err := r.comments.LatestComment(ctx, note.LatestCommentURL)
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch latest comment, falling back to scan",
			"url", note.LatestCommentURL,
			"error", err)
		return model.CommentRef{}, false
	}
	return ref, true
}
