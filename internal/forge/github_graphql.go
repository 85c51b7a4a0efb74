package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"basegraph.app/courier/internal/model"
)

const resourceQuery = `
query($url: URI!, $commentsCount: Int = 50, $reviewsCount: Int = 30) {
  resource(url: $url) {
    __typename
    ... on PullRequest {
      id title body number url createdAt
      author { login }
      headRefName baseRefName
      headRepository { nameWithOwner sshUrl }
      baseRepository { nameWithOwner sshUrl }
      comments(last: $commentsCount) {
        nodes { id author { login } body createdAt }
      }
      reviewThreads(last: $reviewsCount) {
        nodes {
          comments(last: 10) {
            nodes {
              id author { login } body createdAt path diffHunk
              pullRequestReview { id }
            }
          }
        }
      }
      reviews(last: $reviewsCount) {
        nodes { id author { login } body createdAt submittedAt state }
      }
    }
    ... on Issue {
      id title body number url createdAt
      author { login }
      repository { nameWithOwner sshUrl }
      comments(last: $commentsCount) {
        nodes { id author { login } body createdAt }
      }
    }
    ... on Discussion {
      id title body number url createdAt
      author { login }
      repository { nameWithOwner sshUrl }
      comments(last: $commentsCount) {
        nodes {
          id author { login } body createdAt
          replies(last: 20) {
            nodes { id author { login } body createdAt }
          }
        }
      }
    }
    ... on Commit {
      id oid message url committedDate
      author { user { login } }
      repository { nameWithOwner sshUrl }
      comments(last: $commentsCount) {
        nodes { id author { login } body createdAt }
      }
    }
  }
}`

type gqlActor struct {
	Login string `json:"login"`
}

func (a *gqlActor) login() string {
	if a == nil {
		return ""
	}
	return a.Login
}

type gqlRepo struct {
	NameWithOwner string `json:"nameWithOwner"`
	SSHURL        string `json:"sshUrl"`
}

type gqlComment struct {
	ID        string    `json:"id"`
	Author    *gqlActor `json:"author"`
	Body      string    `json:"body"`
	CreatedAt string    `json:"createdAt"`
}

func (c gqlComment) raw() model.RawComment {
	return model.RawComment{ID: c.ID, Body: c.Body, Author: c.Author.login(), CreatedAt: c.CreatedAt}
}

type gqlResource struct {
	Typename  string    `json:"__typename"`
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Number    *int      `json:"number"`
	URL       string    `json:"url"`
	CreatedAt string    `json:"createdAt"`
	Author    *gqlActor `json:"author"`

	// Pull requests.
	HeadRefName    string   `json:"headRefName"`
	BaseRefName    string   `json:"baseRefName"`
	HeadRepository *gqlRepo `json:"headRepository"`
	BaseRepository *gqlRepo `json:"baseRepository"`
	ReviewThreads  struct {
		Nodes []struct {
			Comments struct {
				Nodes []struct {
					gqlComment
					Path              string `json:"path"`
					DiffHunk          string `json:"diffHunk"`
					PullRequestReview *struct {
						ID string `json:"id"`
					} `json:"pullRequestReview"`
				} `json:"nodes"`
			} `json:"comments"`
		} `json:"nodes"`
	} `json:"reviewThreads"`
	Reviews struct {
		Nodes []struct {
			gqlComment
			SubmittedAt string `json:"submittedAt"`
			State       string `json:"state"`
		} `json:"nodes"`
	} `json:"reviews"`

	// Issues, discussions and commits.
	Repository *gqlRepo `json:"repository"`
	Comments   struct {
		Nodes []struct {
			gqlComment
			Replies struct {
				Nodes []gqlComment `json:"nodes"`
			} `json:"replies"`
		} `json:"nodes"`
	} `json:"comments"`

	// Commits.
	OID           string       `json:"oid"`
	Message       string       `json:"message"`
	CommittedDate string       `json:"committedDate"`
	CommitAuthor  *gqlGitActor `json:"-"`
}

type gqlGitActor struct {
	User *gqlActor `json:"user"`
}

// Resource fetches the notification's subject with its comments, reviews and review
// threads in one GraphQL round trip.
func (g *GitHub) Resource(ctx context.Context, note model.Notification) (model.Resource, error) {
	if note.SubjectURL == "" {
		return model.Resource{}, fmt.Errorf("notification %s has no subject url", note.ThreadID)
	}

	payload := map[string]any{
		"query": resourceQuery,
		"variables": map[string]any{
			"url":           g.htmlURL(note.SubjectURL),
			"commentsCount": commentsCount,
			"reviewsCount":  reviewsCount,
		},
	}

	resp, err := g.do(ctx, http.MethodPost, g.graphqlURL, "", payload, http.Header{"Authorization": {"Bearer " + g.token}})
	if err != nil {
		return model.Resource{}, fmt.Errorf("querying resource: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Resource{}, newStatusError("querying resource", resp)
	}

	var body struct {
		Data struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Resource{}, fmt.Errorf("decoding resource: %w", err)
	}

	if len(body.Data.Resource) == 0 || string(body.Data.Resource) == "null" {
		msgs := make([]string, 0, len(body.Errors))
		for _, e := range body.Errors {
			msgs = append(msgs, e.Message)
		}
		return model.Resource{}, fmt.Errorf("%w: %s %s", ErrNotFound, note.SubjectURL, strings.Join(msgs, "; "))
	}

	var res gqlResource
	if err := json.Unmarshal(body.Data.Resource, &res); err != nil {
		return model.Resource{}, fmt.Errorf("decoding resource: %w", err)
	}
	// Commit authors are git actors, not users; decode them separately.
	if res.Typename == string(model.ResourceKindCommit) {
		var commit struct {
			Author *gqlGitActor `json:"author"`
		}
		if err := json.Unmarshal(body.Data.Resource, &commit); err == nil {
			res.CommitAuthor = commit.Author
			res.Author = nil
		}
	}

	return res.toResource(note)
}

func (r gqlResource) toResource(note model.Notification) (model.Resource, error) {
	kind := model.ResourceKind(r.Typename)
	rc := model.ResourceContext{
		Kind:      kind,
		ID:        r.ID,
		Number:    r.Number,
		Title:     r.Title,
		Body:      r.Body,
		Author:    r.Author.login(),
		CreatedAt: r.CreatedAt,
		URL:       r.URL,
	}
	out := model.Resource{}

	switch kind {
	case model.ResourceKindPullRequest:
		if r.BaseRepository != nil {
			rc.Repository = r.BaseRepository.NameWithOwner
			rc.BaseRepo = r.BaseRepository.NameWithOwner
			rc.CloneURL = r.BaseRepository.SSHURL
		}
		if r.HeadRepository != nil {
			rc.HeadRepo = r.HeadRepository.NameWithOwner
			rc.CloneURL = r.HeadRepository.SSHURL
		}
		rc.HeadRef = r.HeadRefName
		rc.BaseRef = r.BaseRefName
		if r.URL != "" {
			rc.DiffURL = r.URL + ".diff"
		}

		for _, c := range r.Comments.Nodes {
			out.Comments = append(out.Comments, c.raw())
		}
		for _, rv := range r.Reviews.Nodes {
			out.Reviews = append(out.Reviews, model.RawReview{
				ID:          rv.ID,
				Body:        rv.Body,
				Author:      rv.Author.login(),
				State:       rv.State,
				SubmittedAt: rv.SubmittedAt,
				CreatedAt:   rv.CreatedAt,
			})
		}
		for _, t := range r.ReviewThreads.Nodes {
			thread := make([]model.RawReviewComment, 0, len(t.Comments.Nodes))
			for _, c := range t.Comments.Nodes {
				comment := model.RawReviewComment{
					ID:        c.ID,
					Body:      c.Body,
					Author:    c.Author.login(),
					CreatedAt: c.CreatedAt,
					Path:      c.Path,
					DiffHunk:  c.DiffHunk,
				}
				if c.PullRequestReview != nil {
					comment.ReviewID = c.PullRequestReview.ID
				}
				thread = append(thread, comment)
			}
			out.ReviewThreads = append(out.ReviewThreads, thread)
		}

	case model.ResourceKindIssue:
		for _, c := range r.Comments.Nodes {
			out.Comments = append(out.Comments, c.raw())
		}

	case model.ResourceKindDiscussion:
		for _, c := range r.Comments.Nodes {
			dc := model.RawDiscussionComment{RawComment: c.raw()}
			for _, reply := range c.Replies.Nodes {
				dc.Replies = append(dc.Replies, reply.raw())
			}
			out.DiscussionComments = append(out.DiscussionComments, dc)
		}

	case model.ResourceKindCommit:
		rc.Number = nil
		rc.Title = r.Message
		rc.Body = ""
		rc.SHA = r.OID
		rc.CreatedAt = r.CommittedDate
		if r.CommitAuthor != nil {
			rc.Author = r.CommitAuthor.User.login()
		}
		for _, c := range r.Comments.Nodes {
			out.Comments = append(out.Comments, c.raw())
		}

	default:
		return model.Resource{}, fmt.Errorf("unsupported resource type %q", r.Typename)
	}

	if kind != model.ResourceKindPullRequest && r.Repository != nil {
		rc.Repository = r.Repository.NameWithOwner
		rc.CloneURL = r.Repository.SSHURL
	}
	if rc.Repository == "" {
		rc.Repository = note.Repository
	}

	out.Context = rc
	return out, nil
}

// htmlURL turns a REST subject url into the web url the GraphQL resource lookup takes.
func (g *GitHub) htmlURL(subjectURL string) string {
	path, ok := strings.CutPrefix(subjectURL, g.apiURL+"/repos/")
	if !ok {
		return subjectURL
	}
	path = strings.Replace(path, "/pulls/", "/pull/", 1)
	path = strings.Replace(path, "/commits/", "/commit/", 1)
	return g.webURL + "/" + strings.TrimSuffix(path, "/")
}
