package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"basegraph.app/courier/common/logger"
	"basegraph.app/courier/internal/model"
	"basegraph.app/courier/internal/timeline"
)

const maxPayloadBytes = 5 << 20

// Submitter accepts a notification for background processing. Satisfied by *worker.Worker.
type Submitter interface {
	Submit(ctx context.Context, note model.Notification)
}

// GitHubWebhookHandler turns GitHub deliveries that mention the bot into notifications
// carrying the triggering item as a hint.
type GitHubWebhookHandler struct {
	secret    string
	handle    string
	submitter Submitter
}

// NewGitHubWebhookHandler creates the handler. An empty secret disables signature checks.
func NewGitHubWebhookHandler(secret, handle string, submitter Submitter) *GitHubWebhookHandler {
	return &GitHubWebhookHandler{
		secret:    secret,
		handle:    handle,
		submitter: submitter,
	}
}

func (h *GitHubWebhookHandler) HandleEvent(c *gin.Context) {
	eventType := c.GetHeader("X-GitHub-Event")
	deliveryID := c.GetHeader("X-GitHub-Delivery")
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
		EventType: logger.Ptr(eventType),
		Forge:     logger.Ptr(string(model.ProviderGitHub)),
		Component: "courier.http.webhook.github",
	})

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if h.secret == "" {
		slog.WarnContext(ctx, "webhook secret not set, skipping signature verification")
	} else if !validSignature(h.secret, body, c.GetHeader("X-Hub-Signature-256")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
		return
	}

	if eventType == "ping" {
		c.JSON(http.StatusOK, gin.H{"status": "pong"})
		return
	}

	var payload githubWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	note, ok := payload.notification(eventType)
	if !ok {
		slog.DebugContext(ctx, "github event not handled", "action", payload.Action)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "event": eventType})
		return
	}
	if !timeline.ContainsMention(payload.text(), h.handle) {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "event": eventType, "reason": "no mention"})
		return
	}

	note.ThreadID = deliveryID
	note.EventType = eventType

	slog.InfoContext(ctx, "github webhook accepted",
		"delivery_id", deliveryID,
		"repo", note.Repository,
		"subject_type", note.SubjectType,
		"hint_item_id", note.HintItemID)

	h.submitter.Submit(ctx, note)

	c.JSON(http.StatusAccepted, gin.H{
		"status": "processing",
		"event":  eventType,
		"repo":   note.Repository,
	})
}

func validSignature(secret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

type githubUser struct {
	Login string `json:"login"`
}

type githubItem struct {
	NodeID string     `json:"node_id"`
	Body   string     `json:"body"`
	User   githubUser `json:"user"`
}

type githubSubject struct {
	Number      int        `json:"number"`
	URL         string     `json:"url"`
	HTMLURL     string     `json:"html_url"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	User        githubUser `json:"user"`
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request"`
}

type githubWebhookPayload struct {
	Action     string `json:"action"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Issue       *githubSubject `json:"issue"`
	PullRequest *githubSubject `json:"pull_request"`
	Discussion  *githubSubject `json:"discussion"`
	Comment     *githubItem    `json:"comment"`
	Review      *githubItem    `json:"review"`
}

// notification maps a supported event to a notification. Subject urls are API urls for
// issues and pull requests and web urls for discussions; the forge accepts both.
func (p githubWebhookPayload) notification(eventType string) (model.Notification, bool) {
	note := model.Notification{
		Provider:   model.ProviderGitHub,
		Reason:     model.ReasonMention,
		Repository: p.Repository.FullName,
	}

	var subject *githubSubject
	switch eventType {
	case "issue_comment":
		if p.Action != "created" || p.Issue == nil || p.Comment == nil {
			return note, false
		}
		subject = p.Issue
		note.SubjectType = model.ResourceKindIssue
		note.SubjectURL = p.Issue.URL
		if p.Issue.PullRequest != nil {
			note.SubjectType = model.ResourceKindPullRequest
			note.SubjectURL = p.Issue.PullRequest.URL
		}
		note.HintItemID = p.Comment.NodeID

	case "pull_request_review_comment":
		if p.Action != "created" || p.PullRequest == nil || p.Comment == nil {
			return note, false
		}
		subject = p.PullRequest
		note.SubjectType = model.ResourceKindPullRequest
		note.SubjectURL = p.PullRequest.URL
		note.HintItemID = p.Comment.NodeID

	case "pull_request_review":
		if p.Action != "submitted" || p.PullRequest == nil || p.Review == nil {
			return note, false
		}
		subject = p.PullRequest
		note.SubjectType = model.ResourceKindPullRequest
		note.SubjectURL = p.PullRequest.URL
		note.HintItemID = p.Review.NodeID

	case "issues":
		if p.Action != "opened" || p.Issue == nil {
			return note, false
		}
		subject = p.Issue
		note.SubjectType = model.ResourceKindIssue
		note.SubjectURL = p.Issue.URL

	case "pull_request":
		if p.Action != "opened" || p.PullRequest == nil {
			return note, false
		}
		subject = p.PullRequest
		note.SubjectType = model.ResourceKindPullRequest
		note.SubjectURL = p.PullRequest.URL

	case "discussion", "discussion_comment":
		if p.Action != "created" || p.Discussion == nil {
			return note, false
		}
		subject = p.Discussion
		note.SubjectType = model.ResourceKindDiscussion
		note.SubjectURL = p.Discussion.HTMLURL
		if eventType == "discussion_comment" {
			if p.Comment == nil {
				return note, false
			}
			note.HintItemID = p.Comment.NodeID
		}

	default:
		return note, false
	}

	note.Number = subject.Number
	note.Title = subject.Title
	return note, note.SubjectURL != ""
}

// text is the body the event added: the comment or review when present, else the subject.
func (p githubWebhookPayload) text() string {
	switch {
	case p.Comment != nil:
		return p.Comment.Body
	case p.Review != nil:
		return p.Review.Body
	case p.Issue != nil:
		return p.Issue.Body
	case p.PullRequest != nil:
		return p.PullRequest.Body
	case p.Discussion != nil:
		return p.Discussion.Body
	}
	return ""
}
