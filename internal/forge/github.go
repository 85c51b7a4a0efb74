package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"basegraph.app/courier/core/config"
	"basegraph.app/courier/internal/model"
)

const (
	maxDiffBytes   = 1 << 20
	commentsCount  = 50
	reviewsCount   = 30
	githubAPIVer   = "2022-11-28"
	userAgent      = "courier"
	mediaTypeJSON  = "application/vnd.github+json"
	mediaTypeDiff  = "application/vnd.github.v3.diff"
	defaultAPIHost = "https://api.github.com"
)

// NotificationBatch is one poll of the notification inbox.
type NotificationBatch struct {
	Notifications []model.Notification
	// PollInterval is the server's hint for the next poll, zero when absent.
	PollInterval time.Duration
	NotModified  bool
}

// DispatchRequest starts one run of a workflow_dispatch workflow.
type DispatchRequest struct {
	Repo     string // owner/name holding the workflow
	Workflow string // workflow file name
	Ref      string
	Task     string
	Context  string // serialized TaskContext
}

// GitHub is a rate-limited client for the REST and GraphQL APIs.
type GitHub struct {
	apiURL     string
	webURL     string
	graphqlURL string
	botToken   string
	token      string
	http       *http.Client
	limiter    *rate.Limiter

	mu           sync.Mutex
	lastModified string
}

// NewGitHub creates a client from cfg.
func NewGitHub(cfg config.GitHubConfig) *GitHub {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	apiURL := strings.TrimSuffix(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIHost
	}

	return &GitHub{
		apiURL:     apiURL,
		webURL:     webURL(apiURL),
		graphqlURL: cfg.GraphQLURL,
		botToken:   cfg.BotToken,
		token:      cfg.Token,
		http:       &http.Client{Timeout: cfg.HTTPTimeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// webURL derives the web host from the API root: api.github.com becomes github.com and
// an Enterprise https://host/api/v3 becomes https://host.
func webURL(apiURL string) string {
	u, err := url.Parse(apiURL)
	if err != nil {
		return apiURL
	}
	u.Host = strings.TrimPrefix(u.Host, "api.")
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/api/v3")
	return strings.TrimSuffix(u.String(), "/")
}

type ghNotification struct {
	ID        string `json:"id"`
	Reason    string `json:"reason"`
	UpdatedAt string `json:"updated_at"`
	Subject   struct {
		Title            string `json:"title"`
		URL              string `json:"url"`
		LatestCommentURL string `json:"latest_comment_url"`
		Type             string `json:"type"`
	} `json:"subject"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// Notifications fetches unread notifications the bot participates in. When conditional is
// set the request carries If-Modified-Since from the last fresh response; GitHub answers
// 304 to it even while threads remain unread, so callers holding unread threads for retry
// must poll unconditionally. A 304 yields an empty batch with NotModified set; a 403 or
// 429 yields ErrRateLimited.
func (g *GitHub) Notifications(ctx context.Context, conditional bool) (NotificationBatch, error) {
	header := http.Header{}
	g.mu.Lock()
	if conditional && g.lastModified != "" {
		header.Set("If-Modified-Since", g.lastModified)
	}
	g.mu.Unlock()

	resp, err := g.do(ctx, http.MethodGet, g.apiURL+"/notifications?participating=true&all=false", g.botToken, nil, header)
	if err != nil {
		return NotificationBatch{}, fmt.Errorf("fetching notifications: %w", err)
	}
	defer resp.Body.Close()

	batch := NotificationBatch{PollInterval: pollInterval(resp.Header)}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		batch.NotModified = true
		return batch, nil
	case http.StatusForbidden, http.StatusTooManyRequests:
		return batch, fmt.Errorf("fetching notifications: %w", ErrRateLimited)
	default:
		return batch, newStatusError("fetching notifications", resp)
	}

	var raw []ghNotification
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return batch, fmt.Errorf("decoding notifications: %w", err)
	}

	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		g.mu.Lock()
		g.lastModified = lm
		g.mu.Unlock()
	}

	batch.Notifications = make([]model.Notification, 0, len(raw))
	for _, n := range raw {
		updated, _ := time.Parse(time.RFC3339, n.UpdatedAt)
		batch.Notifications = append(batch.Notifications, model.Notification{
			ThreadID:         n.ID,
			Provider:         model.ProviderGitHub,
			Reason:           n.Reason,
			SubjectType:      model.ResourceKind(n.Subject.Type),
			SubjectURL:       n.Subject.URL,
			Title:            n.Subject.Title,
			Repository:       n.Repository.FullName,
			UpdatedAt:        updated,
			LatestCommentURL: n.Subject.LatestCommentURL,
		})
	}
	return batch, nil
}

func pollInterval(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("X-Poll-Interval"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// LatestComment resolves a latest_comment_url to the ids of the comment or review it
// points at.
func (g *GitHub) LatestComment(ctx context.Context, commentURL string) (model.CommentRef, error) {
	resp, err := g.do(ctx, http.MethodGet, commentURL, g.botToken, nil, nil)
	if err != nil {
		return model.CommentRef{}, fmt.Errorf("fetching latest comment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.CommentRef{}, newStatusError("fetching latest comment", resp)
	}

	var body struct {
		ID     json.Number `json:"id"`
		NodeID string      `json:"node_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.CommentRef{}, fmt.Errorf("decoding latest comment: %w", err)
	}
	return model.CommentRef{ID: body.ID.String(), NodeID: body.NodeID}, nil
}

// Diff fetches the unified diff of a pull request or commit.
func (g *GitHub) Diff(ctx context.Context, rc model.ResourceContext) (string, error) {
	var endpoint string
	switch {
	case rc.Kind == model.ResourceKindPullRequest && rc.Number != nil:
		endpoint = fmt.Sprintf("%s/repos/%s/pulls/%d", g.apiURL, rc.Repository, *rc.Number)
	case rc.Kind == model.ResourceKindCommit && rc.SHA != "":
		endpoint = fmt.Sprintf("%s/repos/%s/commits/%s", g.apiURL, rc.Repository, rc.SHA)
	default:
		return "", nil
	}

	resp, err := g.do(ctx, http.MethodGet, endpoint, g.token, nil, http.Header{"Accept": {mediaTypeDiff}})
	if err != nil {
		return "", fmt.Errorf("fetching diff: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", newStatusError("fetching diff", resp)
	}

	diff, err := io.ReadAll(io.LimitReader(resp.Body, maxDiffBytes))
	if err != nil {
		return "", fmt.Errorf("reading diff: %w", err)
	}
	return string(diff), nil
}

// MarkRead marks a notification thread as read.
func (g *GitHub) MarkRead(ctx context.Context, threadID string) error {
	resp, err := g.do(ctx, http.MethodPatch, g.apiURL+"/notifications/threads/"+url.PathEscape(threadID), g.botToken, nil, nil)
	if err != nil {
		return fmt.Errorf("marking thread read: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusResetContent, http.StatusNoContent, http.StatusOK:
		return nil
	default:
		return newStatusError("marking thread read", resp)
	}
}

// DispatchWorkflow triggers a workflow_dispatch run. Only 204 counts as success.
func (g *GitHub) DispatchWorkflow(ctx context.Context, req DispatchRequest) error {
	payload := map[string]any{
		"ref": req.Ref,
		"inputs": map[string]string{
			"task":    req.Task,
			"context": req.Context,
		},
	}
	endpoint := fmt.Sprintf("%s/repos/%s/actions/workflows/%s/dispatches", g.apiURL, req.Repo, url.PathEscape(req.Workflow))

	resp, err := g.do(ctx, http.MethodPost, endpoint, g.token, payload, nil)
	if err != nil {
		return fmt.Errorf("dispatching workflow: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return newStatusError("dispatching workflow", resp)
	}
	return nil
}

func (g *GitHub) do(ctx context.Context, method, endpoint, token string, body any, header http.Header) (*http.Response, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", mediaTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-GitHub-Api-Version", githubAPIVer)
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	return g.http.Do(req)
}
