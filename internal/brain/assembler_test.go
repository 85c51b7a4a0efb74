package brain_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/courier/internal/brain"
	"basegraph.app/courier/internal/model"
)

var _ = Describe("Assembler", func() {
	var (
		ctx       context.Context
		resource  model.Resource
		note      model.Notification
		assembler *brain.Assembler
		diffs     *mockDiffFetcher
		allowed   map[string]bool
	)

	BeforeEach(func() {
		ctx = context.Background()
		note = model.Notification{ThreadID: "t1", Reason: model.ReasonMention}
		resource = model.Resource{
			Context: model.ResourceContext{
				Kind:       model.ResourceKindIssue,
				ID:         "I_1",
				Repository: "acme/widgets",
				Number:     intPtr(5),
				Title:      "Crash on start",
				Body:       "It crashes.",
				Author:     "alice",
				CreatedAt:  "2024-03-01T09:00:00Z",
			},
			Comments: []model.RawComment{
				{ID: "IC_1", Body: "same here", Author: "bob", CreatedAt: "2024-03-01T10:00:00Z"},
				{ID: "IC_2", Body: "@courier-bot ...", Author: "carol", CreatedAt: "2024-03-01T11:00:00Z"},
			},
		}
		allowed = map[string]bool{"carol": true}
		diffs = &mockDiffFetcher{}
		assembler = brain.NewAssembler(
			brain.NewTriggerResolver(nil, handle),
			brain.NewContextBuilder(diffs, handle, brain.Limits{ContextMaxChars: 15000, DiffMaxChars: 4000, ContextMaxBytes: 60000, TaskMaxChars: 2000}),
			handle,
			func(user string) bool { return allowed[user] },
		)
	})

	It("builds the task and context for the newest mention", func() {
		res, err := assembler.Resolve(ctx, note, resource)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Trigger.ID).To(Equal("IC_2"))
		Expect(res.Items).To(HaveLen(2))

		assembly, err := assembler.Build(ctx, note, res)

		Expect(err).NotTo(HaveOccurred())
		Expect(assembly.Trigger.ID).To(Equal("IC_2"))
		Expect(assembly.Task).To(Equal("Please analyze issue #5: Crash on start"))
		Expect(assembly.Context.CommentsHistory).To(HaveLen(2))
		Expect(string(assembly.ContextJSON)).To(ContainSubstring(`"trigger_item_id":"IC_2"`))
	})

	It("rejects users outside the allow-list", func() {
		delete(allowed, "carol")

		_, err := assembler.Resolve(ctx, note, resource)

		Expect(err).To(MatchError(brain.ErrNotAllowed))
	})

	It("reports when nothing mentions the bot", func() {
		resource.Comments = resource.Comments[:1]

		_, err := assembler.Resolve(ctx, note, resource)

		Expect(err).To(MatchError(brain.ErrNoTrigger))
	})

	It("fetches the pull request diff only when building", func() {
		resource.Context.Kind = model.ResourceKindPullRequest

		res, err := assembler.Resolve(ctx, note, resource)
		Expect(err).NotTo(HaveOccurred())
		Expect(diffs.callCount).To(Equal(0))

		_, err = assembler.Build(ctx, note, res)

		Expect(err).NotTo(HaveOccurred())
		Expect(diffs.callCount).To(Equal(1))
	})
})
