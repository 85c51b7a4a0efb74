package forge_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/courier/core/config"
	"basegraph.app/courier/internal/forge"
	"basegraph.app/courier/internal/model"
)

var _ = Describe("GitLab", func() {
	var (
		ctx    context.Context
		server *httptest.Server
		client *forge.GitLab
		routes map[string]string
		custom http.HandlerFunc
	)

	BeforeEach(func() {
		ctx = context.Background()
		routes = map[string]string{}
		custom = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if custom != nil {
				custom(w, r)
				return
			}
			for suffix, body := range routes {
				if strings.HasSuffix(r.URL.Path, suffix) {
					w.Header().Set("Content-Type", "application/json")
					_, _ = io.WriteString(w, body)
					return
				}
			}
			http.NotFound(w, r)
		}))

		var err error
		client, err = forge.NewGitLab(config.GitLabConfig{URL: server.URL, Token: "glpat"})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("maps an issue and drops system notes", func() {
		routes["/issues/5"] = `{
			"id": 100, "iid": 5, "title": "Bug", "description": "@courier-bot see logs",
			"author": {"id": 1, "username": "alice"},
			"created_at": "2024-03-01T09:00:00Z",
			"web_url": "https://gitlab.example.com/acme/widgets/-/issues/5"
		}`
		routes["/issues/5/discussions"] = `[
			{"id": "d1", "notes": [
				{"id": 11, "body": "same here", "author": {"id": 2, "username": "bob"}, "created_at": "2024-03-01T10:00:00Z", "system": false}
			]},
			{"id": "d2", "notes": [
				{"id": 12, "body": "added label", "author": {"id": 3, "username": "carol"}, "created_at": "2024-03-01T10:30:00Z", "system": true}
			]}
		]`

		res, err := client.Resource(ctx, model.Notification{
			ThreadID:    "note-11",
			SubjectType: model.ResourceKindIssue,
			Repository:  "acme/widgets",
			Number:      5,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Context.Kind).To(Equal(model.ResourceKindIssue))
		Expect(res.Context.Title).To(Equal("Bug"))
		Expect(res.Context.Author).To(Equal("alice"))
		Expect(*res.Context.Number).To(Equal(5))
		Expect(res.Context.CreatedAt).To(Equal("2024-03-01T09:00:00Z"))
		Expect(res.Comments).To(HaveLen(1))
		Expect(res.Comments[0].ID).To(Equal("11"))
		Expect(res.Comments[0].Author).To(Equal("bob"))
	})

	It("maps merge request diff notes to review threads", func() {
		routes["/merge_requests/9"] = `{
			"id": 200, "iid": 9, "title": "Fix", "description": "",
			"author": {"id": 1, "username": "alice"},
			"source_branch": "fix", "target_branch": "main",
			"created_at": "2024-03-01T09:00:00Z",
			"web_url": "https://gitlab.example.com/acme/widgets/-/merge_requests/9"
		}`
		routes["/merge_requests/9/discussions"] = `[
			{"id": "thread-1", "notes": [
				{"id": 21, "type": "DiffNote", "body": "@courier-bot why?", "author": {"id": 2, "username": "bob"},
				 "created_at": "2024-03-01T10:00:00Z", "position": {"new_path": "main.go"}}
			]},
			{"id": "d2", "notes": [
				{"id": 22, "body": "ship it", "author": {"id": 3, "username": "carol"}, "created_at": "2024-03-01T11:00:00Z"}
			]}
		]`

		res, err := client.Resource(ctx, model.Notification{
			SubjectType: model.ResourceKindPullRequest,
			Repository:  "acme/widgets",
			Number:      9,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Context.HeadRef).To(Equal("fix"))
		Expect(res.Context.BaseRef).To(Equal("main"))
		Expect(res.Context.DiffURL).To(HaveSuffix("/merge_requests/9.diff"))
		Expect(res.ReviewThreads).To(HaveLen(1))
		Expect(res.ReviewThreads[0][0].ReviewID).To(Equal("thread-1"))
		Expect(res.ReviewThreads[0][0].Path).To(Equal("main.go"))
		Expect(res.Comments).To(HaveLen(1))
		Expect(res.Comments[0].ID).To(Equal("22"))
	})

	It("follows discussion pages until the newest note", func() {
		routes["/issues/5"] = `{"id": 100, "iid": 5, "title": "Bug", "author": {"username": "alice"}}`
		var pages []string
		var perPage []string
		custom = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if !strings.HasSuffix(r.URL.Path, "/issues/5/discussions") {
				_, _ = io.WriteString(w, routes["/issues/5"])
				return
			}
			page := r.URL.Query().Get("page")
			pages = append(pages, page)
			perPage = append(perPage, r.URL.Query().Get("per_page"))
			switch page {
			case "1":
				w.Header().Set("X-Next-Page", "2")
				_, _ = io.WriteString(w, `[{"id": "d1", "notes": [
					{"id": 11, "body": "first", "author": {"username": "bob"}, "created_at": "2024-03-01T10:00:00Z"}
				]}]`)
			default:
				_, _ = io.WriteString(w, `[{"id": "d2", "notes": [
					{"id": 12, "body": "@courier-bot summarize", "author": {"username": "carol"}, "created_at": "2024-03-02T10:00:00Z"}
				]}]`)
			}
		}

		res, err := client.Resource(ctx, model.Notification{
			SubjectType: model.ResourceKindIssue,
			Repository:  "acme/widgets",
			Number:      5,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(pages).To(Equal([]string{"1", "2"}))
		Expect(perPage).To(HaveEach("100"))
		Expect(res.Comments).To(HaveLen(2))
		Expect(res.Comments[1].ID).To(Equal("12"))
	})

	It("rejects notifications without project or iid", func() {
		_, err := client.Resource(ctx, model.Notification{SubjectType: model.ResourceKindIssue})

		Expect(err).To(HaveOccurred())
	})

	It("has no read state", func() {
		Expect(client.MarkRead(ctx, "note-1")).To(Succeed())
	})
})
