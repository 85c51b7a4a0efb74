package timeline_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/courier/internal/model"
	"basegraph.app/courier/internal/timeline"
)

const handle = "@courier-bot"

func ids(items []model.TimelineItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

var _ = Describe("Unify", func() {
	var resource model.Resource

	BeforeEach(func() {
		resource = model.Resource{
			Context: model.ResourceContext{
				Kind:       model.ResourceKindPullRequest,
				ID:         "PR_1",
				Repository: "acme/widgets",
				Body:       "Adds the widget API",
				Author:     "alice",
				CreatedAt:  "2024-03-01T09:00:00Z",
			},
		}
	})

	It("merges every collection into one ascending sequence", func() {
		resource.Comments = []model.RawComment{
			{ID: "c2", Body: "second", Author: "bob", CreatedAt: "2024-03-01T12:00:00Z"},
			{ID: "c1", Body: "first", Author: "bob", CreatedAt: "2024-03-01T10:00:00Z"},
		}
		resource.Reviews = []model.RawReview{
			{ID: "r1", Body: "looks good", Author: "carol", State: "APPROVED", SubmittedAt: "2024-03-01T11:00:00Z"},
		}
		resource.ReviewThreads = [][]model.RawReviewComment{{
			{ID: "rc1", Body: "nit", Author: "carol", CreatedAt: "2024-03-01T10:30:00Z", Path: "api.go", DiffHunk: "@@ -1 +1 @@", ReviewID: "r1"},
		}}

		items := timeline.Unify(resource, handle)

		Expect(ids(items)).To(Equal([]string{"c1", "rc1", "r1", "c2"}))
		Expect(items[1].Kind).To(Equal(model.ItemKindReviewComment))
		Expect(items[1].ReviewID).To(Equal("r1"))
		Expect(items[1].Path).To(Equal("api.go"))
		Expect(items[2].State).To(Equal("APPROVED"))
	})

	It("keeps reviews with an empty body", func() {
		resource.Reviews = []model.RawReview{{ID: "r1", Author: "carol", State: "COMMENTED", SubmittedAt: "2024-03-01T11:00:00Z"}}

		items := timeline.Unify(resource, handle)

		Expect(ids(items)).To(Equal([]string{"r1"}))
	})

	It("falls back to the review creation time when it was never submitted", func() {
		resource.Reviews = []model.RawReview{{ID: "r1", Body: "pending", CreatedAt: "2024-03-02T08:00:00Z"}}

		items := timeline.Unify(resource, handle)

		Expect(items[0].Timestamp).To(Equal(time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)))
	})

	It("sorts items without a timestamp first instead of dropping them", func() {
		resource.Comments = []model.RawComment{
			{ID: "c1", Body: "dated", CreatedAt: "2024-03-01T10:00:00Z"},
			{ID: "c0", Body: "undated"},
		}

		items := timeline.Unify(resource, handle)

		Expect(ids(items)).To(Equal([]string{"c0", "c1"}))
		Expect(items[0].Timestamp).To(Equal(time.Unix(0, 0).UTC()))
	})

	It("defaults missing authors to unknown", func() {
		resource.Comments = []model.RawComment{{ID: "c1", Body: "ghost", CreatedAt: "2024-03-01T10:00:00Z"}}

		items := timeline.Unify(resource, handle)

		Expect(items[0].Author).To(Equal(model.UnknownAuthor))
	})

	It("keeps input order for equal timestamps", func() {
		ts := "2024-03-01T10:00:00Z"
		resource.Comments = []model.RawComment{
			{ID: "a", Body: "a", CreatedAt: ts},
			{ID: "b", Body: "b", CreatedAt: ts},
			{ID: "c", Body: "c", CreatedAt: ts},
		}

		Expect(ids(timeline.Unify(resource, handle))).To(Equal([]string{"a", "b", "c"}))
	})

	It("does not deduplicate ids across collections", func() {
		resource.Comments = []model.RawComment{{ID: "dup", Body: "one", CreatedAt: "2024-03-01T10:00:00Z"}}
		resource.Reviews = []model.RawReview{{ID: "dup", Body: "two", SubmittedAt: "2024-03-01T11:00:00Z"}}

		Expect(ids(timeline.Unify(resource, handle))).To(Equal([]string{"dup", "dup"}))
	})

	It("flattens discussion comments and their replies", func() {
		resource.Context.Kind = model.ResourceKindDiscussion
		resource.DiscussionComments = []model.RawDiscussionComment{{
			RawComment: model.RawComment{ID: "d1", Body: "question", CreatedAt: "2024-03-01T10:00:00Z"},
			Replies: []model.RawComment{
				{ID: "d1r1", Body: "answer", CreatedAt: "2024-03-01T10:05:00Z"},
			},
		}}

		items := timeline.Unify(resource, handle)

		Expect(ids(items)).To(Equal([]string{"d1", "d1r1"}))
		Expect(items[1].Kind).To(Equal(model.ItemKindComment))
	})

	Describe("root body", func() {
		It("is left out when it does not mention the handle", func() {
			Expect(timeline.Unify(resource, handle)).To(BeEmpty())
		})

		It("is injected as issue_body when it mentions the handle", func() {
			resource.Context.Body = "Hey @Courier-Bot please review"

			items := timeline.Unify(resource, handle)

			Expect(items).To(HaveLen(1))
			Expect(items[0].Kind).To(Equal(model.ItemKindIssueBody))
			Expect(items[0].ID).To(Equal("issue_body_PR_1"))
			Expect(items[0].Author).To(Equal("alice"))
		})

		It("is injected as discussion_body for discussions", func() {
			resource.Context.Kind = model.ResourceKindDiscussion
			resource.Context.Body = "@courier-bot summarize"

			items := timeline.Unify(resource, handle)

			Expect(items[0].Kind).To(Equal(model.ItemKindDiscussionBody))
		})
	})
})

var _ = Describe("ContainsMention", func() {
	DescribeTable("matches the handle case-insensitively",
		func(body string, expected bool) {
			Expect(timeline.ContainsMention(body, handle)).To(Equal(expected))
		},
		Entry("exact", "@courier-bot do it", true),
		Entry("mixed case", "@COURIER-Bot do it", true),
		Entry("embedded", "ping(@courier-bot)", true),
		Entry("absent", "nobody here", false),
		Entry("empty body", "", false),
	)

	It("never matches an empty handle", func() {
		Expect(timeline.ContainsMention("anything", "")).To(BeFalse())
	})
})
