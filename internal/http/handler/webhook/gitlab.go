package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"basegraph.app/courier/common/logger"
	"basegraph.app/courier/internal/model"
	"basegraph.app/courier/internal/timeline"
)

// GitLabWebhookHandler turns note hooks that mention the bot into notifications for the
// GitLab pipeline. GitLab has no notification inbox, so webhooks are its only source.
type GitLabWebhookHandler struct {
	token     string
	handle    string
	submitter Submitter
}

// NewGitLabWebhookHandler creates the handler. An empty token disables the token check.
func NewGitLabWebhookHandler(token, handle string, submitter Submitter) *GitLabWebhookHandler {
	return &GitLabWebhookHandler{
		token:     token,
		handle:    handle,
		submitter: submitter,
	}
}

func (h *GitLabWebhookHandler) HandleEvent(c *gin.Context) {
	eventType := gitlab.EventType(c.GetHeader("X-Gitlab-Event"))
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
		EventType: logger.Ptr(string(eventType)),
		Forge:     logger.Ptr(string(model.ProviderGitLab)),
		Component: "courier.http.webhook.gitlab",
	})

	if h.token == "" {
		slog.WarnContext(ctx, "gitlab webhook token not set, skipping token verification")
	} else {
		secretHeader := c.GetHeader("X-Gitlab-Token")
		if secretHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing webhook token"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(secretHeader), []byte(h.token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	var payload gitlabNotePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if eventType != gitlab.EventTypeNote && payload.ObjectKind != "note" {
		slog.DebugContext(ctx, "gitlab event not handled", "object_kind", payload.ObjectKind)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "event": eventType})
		return
	}

	note, err := payload.notification()
	if err != nil {
		slog.WarnContext(ctx, "unsupported gitlab note, ignoring",
			"error", err,
			"noteable_type", payload.ObjectAttributes.NoteableType)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "message": err.Error()})
		return
	}
	if !timeline.ContainsMention(payload.ObjectAttributes.Note, h.handle) {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "no mention"})
		return
	}
	note.EventType = string(eventType)
	if note.EventType == "" {
		note.EventType = string(gitlab.EventTypeNote)
	}

	slog.InfoContext(ctx, "gitlab webhook accepted",
		"project", note.Repository,
		"iid", note.Number,
		"note_id", note.HintItemID,
		"user", payload.User.Username)

	h.submitter.Submit(ctx, note)

	c.JSON(http.StatusAccepted, gin.H{"status": "processing", "project": note.Repository})
}

type gitlabNotePayload struct {
	ObjectKind string `json:"object_kind"`
	User       struct {
		Username string `json:"username"`
	} `json:"user"`
	Project struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
	ObjectAttributes struct {
		ID           int64  `json:"id"`
		Note         string `json:"note"`
		NoteableType string `json:"noteable_type"`
		URL          string `json:"url"`
	} `json:"object_attributes"`
	Issue struct {
		IID   int64  `json:"iid"`
		Title string `json:"title"`
	} `json:"issue"`
	MergeRequest struct {
		IID   int64  `json:"iid"`
		Title string `json:"title"`
	} `json:"merge_request"`
}

func (p gitlabNotePayload) notification() (model.Notification, error) {
	note := model.Notification{
		ThreadID:   fmt.Sprintf("note-%d", p.ObjectAttributes.ID),
		Provider:   model.ProviderGitLab,
		Reason:     model.ReasonMention,
		SubjectURL: p.ObjectAttributes.URL,
		Repository: p.Project.PathWithNamespace,
		HintItemID: strconv.FormatInt(p.ObjectAttributes.ID, 10),
	}

	switch p.ObjectAttributes.NoteableType {
	case "Issue":
		note.SubjectType = model.ResourceKindIssue
		note.Number = int(p.Issue.IID)
		note.Title = p.Issue.Title
	case "MergeRequest":
		note.SubjectType = model.ResourceKindPullRequest
		note.Number = int(p.MergeRequest.IID)
		note.Title = p.MergeRequest.Title
	default:
		return note, fmt.Errorf("noteable type %q not supported", p.ObjectAttributes.NoteableType)
	}

	if note.Repository == "" || note.Number == 0 {
		return note, fmt.Errorf("no project or iid found in payload")
	}
	return note, nil
}
