package model

import "time"

// Provider is the forge a notification came from.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"
)

// Reasons that mark a notification as mention-class. Everything else is ignored.
const (
	ReasonMention     = "mention"
	ReasonTeamMention = "team_mention"
)

// Notification is one updated thread the bot was told about, either by polling the
// forge's notification inbox or by a webhook delivery.
type Notification struct {
	ThreadID    string
	Provider    Provider
	Reason      string
	SubjectType ResourceKind
	SubjectURL  string // API url of the resource
	Title       string
	Repository  string // owner/name, or the project path on GitLab
	Number      int    // issue or merge request number when the forge gives no subject url
	UpdatedAt   time.Time

	// LatestCommentURL points at the newest comment or review on the thread.
	LatestCommentURL string
	// HintItemID is set by webhooks that already know which item triggered them.
	HintItemID string
	// EventType is the webhook event label, empty for polled notifications.
	EventType string
}

// IsMention reports whether the notification was raised by a mention of the bot.
func (n Notification) IsMention() bool {
	return n.Reason == ReasonMention || n.Reason == ReasonTeamMention
}

// FromWebhook reports whether the notification came from a webhook delivery, which has
// no inbox thread to mark read.
func (n Notification) FromWebhook() bool {
	return n.EventType != ""
}

// CommentRef identifies a comment by both of the ids forges hand out.
type CommentRef struct {
	ID     string // numeric REST id
	NodeID string // global node id
}

// Matches reports whether item is the referenced comment.
func (r CommentRef) Matches(item TimelineItem) bool {
	if item.ID == "" {
		return false
	}
	return item.ID == r.ID || (r.NodeID != "" && item.ID == r.NodeID)
}
