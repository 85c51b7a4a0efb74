package brain_test

import (
	"context"
	"errors"
	"time"

	"basegraph.app/courier/internal/model"
)

const handle = "@courier-bot"

type mockCommentFetcher struct {
	latestFn  func(ctx context.Context, url string) (model.CommentRef, error)
	callCount int
}

func (m *mockCommentFetcher) LatestComment(ctx context.Context, url string) (model.CommentRef, error) {
	m.callCount++
	if m.latestFn != nil {
		return m.latestFn(ctx, url)
	}
	return model.CommentRef{}, errors.New("not found")
}

type mockDiffFetcher struct {
	diffFn    func(ctx context.Context, rc model.ResourceContext) (string, error)
	callCount int
}

func (m *mockDiffFetcher) Diff(ctx context.Context, rc model.ResourceContext) (string, error) {
	m.callCount++
	if m.diffFn != nil {
		return m.diffFn(ctx, rc)
	}
	return "", nil
}

func at(minute int) time.Time {
	return time.Date(2024, 3, 1, 10, minute, 0, 0, time.UTC)
}

func comment(id string, minute int, author, body string) model.TimelineItem {
	return model.TimelineItem{ID: id, Body: body, Timestamp: at(minute), Author: author, Kind: model.ItemKindComment}
}

func review(id string, minute int, author, body, state string) model.TimelineItem {
	return model.TimelineItem{ID: id, Body: body, Timestamp: at(minute), Author: author, Kind: model.ItemKindReview, State: state}
}

func reviewComment(id string, minute int, author, body, reviewID string) model.TimelineItem {
	return model.TimelineItem{
		ID:        id,
		Body:      body,
		Timestamp: at(minute),
		Author:    author,
		Kind:      model.ItemKindReviewComment,
		Path:      "api/widget.go",
		DiffHunk:  "@@ -10,3 +10,4 @@",
		ReviewID:  reviewID,
	}
}

func intPtr(n int) *int { return &n }
