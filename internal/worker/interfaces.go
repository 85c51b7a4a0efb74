package worker

import (
	"context"

	"basegraph.app/courier/internal/brain"
	"basegraph.app/courier/internal/forge"
	"basegraph.app/courier/internal/model"
)

// Inbox abstracts the notification transport for testability.
type Inbox interface {
	Notifications(ctx context.Context, conditional bool) (forge.NotificationBatch, error)
}

// Dispatcher starts the downstream workflow.
type Dispatcher interface {
	DispatchWorkflow(ctx context.Context, req forge.DispatchRequest) error
}

// Forge fetches the subject of a notification and clears it afterwards.
type Forge interface {
	Resource(ctx context.Context, note model.Notification) (model.Resource, error)
	MarkRead(ctx context.Context, threadID string) error
}

// Assembler turns a fetched resource into task text and context. Resolve is cheap;
// Build may call the forge for a diff.
type Assembler interface {
	Resolve(ctx context.Context, note model.Notification, resource model.Resource) (*brain.Resolution, error)
	Build(ctx context.Context, note model.Notification, res *brain.Resolution) (*brain.Assembly, error)
}

// Ledger records dispatched trigger items. Satisfied by *ledger.Ledger.
type Ledger interface {
	Claim(id string) bool
	Commit(ctx context.Context, id string) error
	Release(id string)
	Committed(id string) bool
}

// Pipeline is the per-provider half of notification processing.
type Pipeline struct {
	Forge     Forge
	Assembler Assembler
}
