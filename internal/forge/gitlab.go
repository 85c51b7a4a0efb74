package forge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"basegraph.app/courier/core/config"
	"basegraph.app/courier/internal/model"
)

// errNoLatestComment is returned by GitLab, whose webhooks carry the note id directly.
var errNoLatestComment = errors.New("gitlab has no latest-comment pointer")

// GitLab reads issues and merge requests with their discussions. Notifications come
// from note webhooks, so there is nothing to poll or mark read.
type GitLab struct {
	client *gitlab.Client
}

// NewGitLab creates a client for cfg.URL, or gitlab.com when it is empty.
func NewGitLab(cfg config.GitLabConfig) (*GitLab, error) {
	var opts []gitlab.ClientOptionFunc
	if cfg.URL != "" {
		opts = append(opts, gitlab.WithBaseURL(strings.TrimSuffix(cfg.URL, "/")+"/api/v4"))
	}

	client, err := gitlab.NewClient(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &GitLab{client: client}, nil
}

// Resource fetches the issue or merge request behind note with all its discussions.
func (g *GitLab) Resource(ctx context.Context, note model.Notification) (model.Resource, error) {
	if note.Repository == "" || note.Number <= 0 {
		return model.Resource{}, fmt.Errorf("notification %s has no project or iid", note.ThreadID)
	}
	iid := int64(note.Number)
	number := note.Number

	switch note.SubjectType {
	case model.ResourceKindIssue:
		issue, _, err := g.client.Issues.GetIssue(note.Repository, iid, nil, gitlab.WithContext(ctx))
		if err != nil {
			return model.Resource{}, fmt.Errorf("fetching issue from gitlab: %w", err)
		}
		discussions, err := g.issueDiscussions(ctx, note.Repository, iid)
		if err != nil {
			return model.Resource{}, fmt.Errorf("fetching issue discussions from gitlab: %w", err)
		}

		rc := model.ResourceContext{
			Kind:       model.ResourceKindIssue,
			ID:         fmt.Sprintf("%d", issue.ID),
			Repository: note.Repository,
			Number:     &number,
			Title:      issue.Title,
			Body:       issue.Description,
			CreatedAt:  formatTime(issue.CreatedAt),
			URL:        issue.WebURL,
		}
		if issue.Author != nil {
			rc.Author = issue.Author.Username
		}
		return mapDiscussions(rc, discussions), nil

	case model.ResourceKindPullRequest:
		mr, _, err := g.client.MergeRequests.GetMergeRequest(note.Repository, iid, nil, gitlab.WithContext(ctx))
		if err != nil {
			return model.Resource{}, fmt.Errorf("fetching merge request from gitlab: %w", err)
		}
		discussions, err := g.mergeRequestDiscussions(ctx, note.Repository, iid)
		if err != nil {
			return model.Resource{}, fmt.Errorf("fetching merge request discussions from gitlab: %w", err)
		}

		rc := model.ResourceContext{
			Kind:       model.ResourceKindPullRequest,
			ID:         fmt.Sprintf("%d", mr.ID),
			Repository: note.Repository,
			Number:     &number,
			Title:      mr.Title,
			Body:       mr.Description,
			CreatedAt:  formatTime(mr.CreatedAt),
			URL:        mr.WebURL,
			HeadRef:    mr.SourceBranch,
			BaseRef:    mr.TargetBranch,
			HeadRepo:   note.Repository,
			BaseRepo:   note.Repository,
		}
		if mr.Author != nil {
			rc.Author = mr.Author.Username
		}
		if mr.WebURL != "" {
			rc.DiffURL = mr.WebURL + ".diff"
		}
		return mapDiscussions(rc, discussions), nil

	default:
		return model.Resource{}, fmt.Errorf("unsupported gitlab subject type %q", note.SubjectType)
	}
}

const discussionsPerPage = 100

func (g *GitLab) issueDiscussions(ctx context.Context, project string, iid int64) ([]*gitlab.Discussion, error) {
	opts := &gitlab.ListIssueDiscussionsOptions{
		ListOptions: gitlab.ListOptions{Page: 1, PerPage: discussionsPerPage},
	}

	var all []*gitlab.Discussion
	for {
		page, resp, err := g.client.Discussions.ListIssueDiscussions(project, iid, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		if resp == nil || resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

func (g *GitLab) mergeRequestDiscussions(ctx context.Context, project string, iid int64) ([]*gitlab.Discussion, error) {
	opts := &gitlab.ListMergeRequestDiscussionsOptions{
		ListOptions: gitlab.ListOptions{Page: 1, PerPage: discussionsPerPage},
	}

	var all []*gitlab.Discussion
	for {
		page, resp, err := g.client.Discussions.ListMergeRequestDiscussions(project, iid, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		if resp == nil || resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// mapDiscussions turns notes into plain comments and diff notes into review threads,
// one thread per discussion with the discussion id as the review batch. System notes
// are dropped.
func mapDiscussions(rc model.ResourceContext, discussions []*gitlab.Discussion) model.Resource {
	out := model.Resource{Context: rc}

	for _, d := range discussions {
		if d == nil {
			continue
		}

		var thread []model.RawReviewComment
		for _, n := range d.Notes {
			if n == nil || n.System {
				continue
			}

			id := fmt.Sprintf("%d", n.ID)
			author := n.Author.Username
			if author == "" {
				author = fmt.Sprintf("id:%d", n.Author.ID)
			}
			createdAt := n.CreatedAt
			if createdAt == nil {
				createdAt = n.UpdatedAt
			}

			if string(n.Type) == "DiffNote" {
				rrc := model.RawReviewComment{
					ID:        id,
					Body:      n.Body,
					Author:    author,
					CreatedAt: formatTime(createdAt),
					ReviewID:  d.ID,
				}
				if n.Position != nil {
					rrc.Path = n.Position.NewPath
				}
				thread = append(thread, rrc)
				continue
			}

			out.Comments = append(out.Comments, model.RawComment{
				ID:        id,
				Body:      n.Body,
				Author:    author,
				CreatedAt: formatTime(createdAt),
			})
		}

		if len(thread) > 0 {
			out.ReviewThreads = append(out.ReviewThreads, thread)
		}
	}

	return out
}

// LatestComment is not supported on GitLab.
func (g *GitLab) LatestComment(ctx context.Context, url string) (model.CommentRef, error) {
	return model.CommentRef{}, errNoLatestComment
}

// Diff concatenates the per-file diffs of a merge request.
func (g *GitLab) Diff(ctx context.Context, rc model.ResourceContext) (string, error) {
	if rc.Kind != model.ResourceKindPullRequest || rc.Number == nil {
		return "", nil
	}

	diffs, _, err := g.client.MergeRequests.ListMergeRequestDiffs(rc.Repository, int64(*rc.Number), nil, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetching merge request diffs from gitlab: %w", err)
	}

	var b strings.Builder
	for _, d := range diffs {
		if d == nil {
			continue
		}
		fmt.Fprintf(&b, "diff --git a/%s b/%s\n", d.OldPath, d.NewPath)
		b.WriteString(d.Diff)
		if b.Len() >= maxDiffBytes {
			break
		}
	}
	return b.String(), nil
}

// MarkRead is a no-op: webhook deliveries have no read state.
func (g *GitLab) MarkRead(ctx context.Context, threadID string) error {
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
