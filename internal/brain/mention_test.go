package brain_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/courier/internal/brain"
	"basegraph.app/courier/internal/model"
)

var _ = Describe("IsEmptyMention", func() {
	DescribeTable("classifies what is left after the handle",
		func(body string, expected bool) {
			Expect(brain.IsEmptyMention(body, handle)).To(Equal(expected))
		},
		Entry("bare handle", "@courier-bot", false),
		Entry("handle with whitespace", "  @Courier-Bot \n", false),
		Entry("punctuation only", "@courier-bot ?!", true),
		Entry("full-width punctuation", "@courier-bot 。！", true),
		Entry("short symbols", "@courier-bot :)", true),
		Entry("acknowledgement", "@courier-bot ok", false),
		Entry("acknowledgement any case", "@courier-bot OKAY", false),
		Entry("cjk acknowledgement", "@courier-bot 收到", false),
		Entry("short alphanumeric", "@courier-bot v2", false),
		Entry("short non-alphanumeric word", "@courier-bot 看看", true),
		Entry("real instruction", "@courier-bot please fix the flaky test", false),
		Entry("handle repeated", "@courier-bot @COURIER-BOT", false),
		Entry("ideographic space between punctuation", "@courier-bot !\u3000?", true),
		Entry("full-width semicolons past the short-fragment limit", "@courier-bot ；；；；；", false),
	)
})

var _ = Describe("StripHandle", func() {
	It("removes every occurrence regardless of case", func() {
		Expect(brain.StripHandle("@Courier-Bot fix @courier-bot now", handle)).To(Equal("fix  now"))
	})

	It("treats the handle literally", func() {
		Expect(brain.StripHandle("a.b c", "a.b")).To(Equal("c"))
		Expect(brain.StripHandle("axb c", "a.b")).To(Equal("axb c"))
	})
})

var _ = Describe("TaskDescription", func() {
	var tc *model.TaskContext

	BeforeEach(func() {
		tc = &model.TaskContext{IssueNumber: intPtr(42)}
	})

	It("uses the trigger body verbatim, handle included", func() {
		trigger := comment("c1", 1, "alice", "@courier-bot rename the flag")

		Expect(brain.TaskDescription(model.ResourceKindIssue, tc, trigger, handle, 2000)).To(Equal("@courier-bot rename the flag"))
	})

	It("passes a bare handle on verbatim", func() {
		trigger := comment("c1", 1, "alice", "@courier-bot")

		Expect(brain.TaskDescription(model.ResourceKindIssue, tc, trigger, handle, 2000)).To(Equal("@courier-bot"))
	})

	It("caps the task to the configured length", func() {
		trigger := comment("c1", 1, "alice", "@courier-bot "+strings.Repeat("é", 5000))

		task := brain.TaskDescription(model.ResourceKindIssue, tc, trigger, handle, 2000)

		Expect([]rune(task)).To(HaveLen(2000))
	})

	DescribeTable("derives a default for empty mentions",
		func(kind model.ResourceKind, setup func(tc *model.TaskContext), expected string) {
			setup(tc)
			trigger := comment("c1", 1, "alice", "@courier-bot ?")

			Expect(brain.TaskDescription(kind, tc, trigger, handle, 2000)).To(Equal(expected))
		},
		Entry("pull request with a real diff", model.ResourceKindPullRequest,
			func(tc *model.TaskContext) {
				tc.PRTitle = "Add widgets"
				tc.DiffContent = strings.Repeat("+", 101)
			},
			"Please review the code changes in PR #42: Add widgets"),
		Entry("pull request without a diff", model.ResourceKindPullRequest,
			func(tc *model.TaskContext) { tc.PRTitle = "Add widgets" },
			"Please review PR #42: Add widgets"),
		Entry("untitled pull request", model.ResourceKindPullRequest,
			func(tc *model.TaskContext) {},
			"Please review PR #42: No title"),
		Entry("issue", model.ResourceKindIssue,
			func(tc *model.TaskContext) { tc.Title = "Crash on start" },
			"Please analyze issue #42: Crash on start"),
		Entry("commit", model.ResourceKindCommit,
			func(tc *model.TaskContext) {
				tc.CommitSHA = "0123456789abcdef"
				tc.Title = "Fix build"
			},
			"Please review commit 01234567: Fix build"),
		Entry("commit without sha", model.ResourceKindCommit,
			func(tc *model.TaskContext) {},
			"Please review commit unknown: No message"),
		Entry("discussion", model.ResourceKindDiscussion,
			func(tc *model.TaskContext) {},
			"Please process this Discussion"),
	)
})
