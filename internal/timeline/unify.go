// Package timeline unifies resource-specific history into one ordered sequence
// and bounds that sequence to a character budget.
package timeline

import (
	"sort"
	"strings"
	"time"

	"basegraph.app/courier/internal/model"
)

// epoch is the timestamp of items the forge returned without one. They sort first
// and stay visible instead of being dropped.
var epoch = time.Unix(0, 0).UTC()

// Unify flattens the raw collections of resource into TimelineItems sorted ascending by
// timestamp. Ties keep input order: comments, reviews, review threads, discussion
// comments with their replies, then the root body. The root body is part of the timeline
// only when it mentions handle. Duplicate ids are not collapsed.
func Unify(resource model.Resource, handle string) []model.TimelineItem {
	items := make([]model.TimelineItem, 0, estimateSize(resource))

	for _, c := range resource.Comments {
		if c.Body == "" {
			continue
		}
		items = append(items, commentItem(c))
	}

	// Reviews stay even without a written summary: a reply can point back at one.
	for _, r := range resource.Reviews {
		ts := r.SubmittedAt
		if ts == "" {
			ts = r.CreatedAt
		}
		items = append(items, model.TimelineItem{
			ID:        r.ID,
			Body:      r.Body,
			Timestamp: ParseTimestamp(ts),
			Author:    authorOrUnknown(r.Author),
			Kind:      model.ItemKindReview,
			State:     r.State,
		})
	}

	for _, thread := range resource.ReviewThreads {
		for _, rc := range thread {
			if rc.Body == "" {
				continue
			}
			items = append(items, model.TimelineItem{
				ID:        rc.ID,
				Body:      rc.Body,
				Timestamp: ParseTimestamp(rc.CreatedAt),
				Author:    authorOrUnknown(rc.Author),
				Kind:      model.ItemKindReviewComment,
				Path:      rc.Path,
				DiffHunk:  rc.DiffHunk,
				ReviewID:  rc.ReviewID,
			})
		}
	}

	for _, dc := range resource.DiscussionComments {
		if dc.Body != "" {
			items = append(items, commentItem(dc.RawComment))
		}
		for _, reply := range dc.Replies {
			if reply.Body == "" {
				continue
			}
			items = append(items, commentItem(reply))
		}
	}

	if root, ok := RootBodyItem(resource.Context, handle); ok {
		items = append(items, root)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.Before(items[j].Timestamp)
	})

	return items
}

// RootBodyItem synthesizes the timeline item for the resource's own body when it
// mentions handle.
func RootBodyItem(rc model.ResourceContext, handle string) (model.TimelineItem, bool) {
	if !ContainsMention(rc.Body, handle) {
		return model.TimelineItem{}, false
	}

	kind := model.ItemKindIssueBody
	if rc.Kind == model.ResourceKindDiscussion {
		kind = model.ItemKindDiscussionBody
	}

	return model.TimelineItem{
		ID:        string(kind) + "_" + rc.ID,
		Body:      rc.Body,
		Timestamp: ParseTimestamp(rc.CreatedAt),
		Author:    authorOrUnknown(rc.Author),
		Kind:      kind,
	}, true
}

// ContainsMention reports whether body mentions handle, case-insensitively.
func ContainsMention(body, handle string) bool {
	if handle == "" || body == "" {
		return false
	}
	return strings.Contains(strings.ToLower(body), strings.ToLower(handle))
}

// ParseTimestamp parses an ISO-8601 instant, returning the Unix epoch when s is empty
// or malformed.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return epoch
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	// Some endpoints omit the zone designator.
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC()
	}
	return epoch
}

// FormatTimestamp renders t the way the forge does, for records handed downstream.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func commentItem(c model.RawComment) model.TimelineItem {
	return model.TimelineItem{
		ID:        c.ID,
		Body:      c.Body,
		Timestamp: ParseTimestamp(c.CreatedAt),
		Author:    authorOrUnknown(c.Author),
		Kind:      model.ItemKindComment,
	}
}

func authorOrUnknown(author string) string {
	if author == "" {
		return model.UnknownAuthor
	}
	return author
}

func estimateSize(r model.Resource) int {
	n := len(r.Comments) + len(r.Reviews) + 1
	for _, t := range r.ReviewThreads {
		n += len(t)
	}
	for _, d := range r.DiscussionComments {
		n += 1 + len(d.Replies)
	}
	return n
}
