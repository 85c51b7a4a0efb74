package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"basegraph.app/courier/common/logger"
	"basegraph.app/courier/internal/model"
	"basegraph.app/courier/internal/timeline"
)

// ErrNotAllowed is returned when the trigger user is not on the allow-list.
var ErrNotAllowed = errors.New("trigger user not allowed")

// Assembly is everything the dispatcher needs for one notification.
type Assembly struct {
	Trigger model.TimelineItem
	*Built
}

// Assembler runs unify and resolve, then build, for one fetched resource.
type Assembler struct {
	resolver *TriggerResolver
	builder  *ContextBuilder
	handle   string
	allowed  func(user string) bool
}

// NewAssembler creates an Assembler. allowed may be nil to allow every user.
func NewAssembler(resolver *TriggerResolver, builder *ContextBuilder, handle string, allowed func(user string) bool) *Assembler {
	return &Assembler{
		resolver: resolver,
		builder:  builder,
		handle:   handle,
		allowed:  allowed,
	}
}

// Resolution is a resolved trigger and the unified timeline it was found in.
type Resolution struct {
	Trigger  model.TimelineItem
	Items    []model.TimelineItem
	Resource model.ResourceContext
}

// Resolve unifies the timeline and picks the trigger. It returns ErrNoTrigger or
// ErrNotAllowed when the notification should be dropped without dispatch.
func (a *Assembler) Resolve(ctx context.Context, note model.Notification, resource model.Resource) (*Resolution, error) {
	items := timeline.Unify(resource, a.handle)

	trigger, err := a.resolver.Resolve(ctx, note, resource.Context, items)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{TriggerItemID: logger.Ptr(trigger.ID)})
	slog.InfoContext(ctx, "trigger resolved",
		"trigger_kind", trigger.Kind,
		"trigger_user", trigger.Author,
		"timeline_items", len(items))

	if a.allowed != nil && !a.allowed(trigger.Author) {
		return nil, fmt.Errorf("%w: %s", ErrNotAllowed, trigger.Author)
	}

	return &Resolution{Trigger: trigger, Items: items, Resource: resource.Context}, nil
}

// Build truncates the timeline and serializes the context around a resolved trigger.
// This is where the diff is fetched, so callers claim the trigger first.
func (a *Assembler) Build(ctx context.Context, note model.Notification, res *Resolution) (*Assembly, error) {
	built, err := a.builder.Build(ctx, note, res.Resource, res.Items, res.Trigger)
	if err != nil {
		return nil, fmt.Errorf("building context: %w", err)
	}

	slog.InfoContext(ctx, "context built",
		"context_bytes", len(built.ContextJSON),
		"is_truncated", built.Context.IsTruncated,
		"degraded", built.Degraded,
		"comments", len(built.Context.CommentsHistory),
		"reviews", len(built.Context.ReviewsHistory),
		"review_comments", len(built.Context.ReviewCommentsBatch))

	return &Assembly{Trigger: res.Trigger, Built: built}, nil
}
