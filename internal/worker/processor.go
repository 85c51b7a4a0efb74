package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"basegraph.app/courier/common/id"
	"basegraph.app/courier/common/logger"
	"basegraph.app/courier/core/config"
	"basegraph.app/courier/internal/brain"
	"basegraph.app/courier/internal/forge"
	"basegraph.app/courier/internal/model"
)

// Outcome labels how one notification ended. It is logged and set on the run's span.
type Outcome string

const (
	OutcomeDispatched     Outcome = "dispatched"
	OutcomeIgnoredReason  Outcome = "ignored_reason"
	OutcomeNoTrigger      Outcome = "no_trigger"
	OutcomeNotAllowed     Outcome = "not_allowed"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeInFlight       Outcome = "in_flight"
	OutcomeFetchFailed    Outcome = "fetch_failed"
	OutcomeAssembleFailed Outcome = "assemble_failed"
	OutcomeDispatchFailed Outcome = "dispatch_failed"
	OutcomeUnsupported    Outcome = "unsupported_provider"
	OutcomePanic          Outcome = "panic"
)

// Retryable reports whether the notification was left unread for a later poll.
func (o Outcome) Retryable() bool {
	switch o {
	case OutcomeFetchFailed, OutcomeAssembleFailed, OutcomeDispatchFailed, OutcomeInFlight, OutcomePanic:
		return true
	}
	return false
}

// Processor runs one notification end to end: fetch, assemble, claim, dispatch, commit
// and mark read. Every failure stays scoped to the notification it happened in.
type Processor struct {
	pipelines  map[model.Provider]Pipeline
	dispatcher Dispatcher
	ledger     Ledger
	workflow   config.WorkflowConfig
	timeout    time.Duration
}

func NewProcessor(pipelines map[model.Provider]Pipeline, dispatcher Dispatcher, ledger Ledger, workflow config.WorkflowConfig, timeout time.Duration) *Processor {
	return &Processor{
		pipelines:  pipelines,
		dispatcher: dispatcher,
		ledger:     ledger,
		workflow:   workflow,
		timeout:    timeout,
	}
}

// Process handles note and reports how it ended. It never panics.
func (p *Processor) Process(ctx context.Context, note model.Notification) (outcome Outcome) {
	runID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:       &runID,
		ThreadID:    logger.Ptr(note.ThreadID),
		ResourceURL: logger.Ptr(note.SubjectURL),
		Forge:       logger.Ptr(string(note.Provider)),
		EventType:   logger.Ptr(eventType(note)),
		Component:   "courier.worker.processor",
	})

	sc := logger.StartSpan(ctx, "courier.process_notification", trace.WithSpanKind(trace.SpanKindConsumer))
	defer sc.End()
	ctx = sc.Context()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in notification processing",
				"panic", r,
				"stack", string(debug.Stack()))
			sc.RecordError(fmt.Errorf("panic: %v", r))
			outcome = OutcomePanic
		}
		sc.SetOutcome(string(outcome))
	}()

	start := time.Now()
	outcome = p.process(ctx, note)
	slog.InfoContext(ctx, "notification processed",
		"outcome", outcome,
		"title", logger.Truncate(note.Title, 80),
		"duration_ms", time.Since(start).Milliseconds())
	return outcome
}

func (p *Processor) process(ctx context.Context, note model.Notification) Outcome {
	pipeline, ok := p.pipelines[note.Provider]
	if !ok {
		slog.WarnContext(ctx, "no pipeline for provider, leaving unread")
		return OutcomeUnsupported
	}

	if !note.IsMention() {
		slog.DebugContext(ctx, "notification is not a mention", "reason", note.Reason)
		p.markRead(ctx, pipeline.Forge, note)
		return OutcomeIgnoredReason
	}

	resource, err := pipeline.Forge.Resource(ctx, note)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch resource, leaving unread for next poll", "error", err)
		return OutcomeFetchFailed
	}

	resolution, err := pipeline.Assembler.Resolve(ctx, note, resource)
	switch {
	case errors.Is(err, brain.ErrNoTrigger):
		slog.InfoContext(ctx, "no trigger found, dropping notification")
		p.markRead(ctx, pipeline.Forge, note)
		return OutcomeNoTrigger
	case errors.Is(err, brain.ErrNotAllowed):
		slog.InfoContext(ctx, "trigger user not allowed, dropping notification", "error", err)
		p.markRead(ctx, pipeline.Forge, note)
		return OutcomeNotAllowed
	case err != nil:
		slog.ErrorContext(ctx, "failed to resolve trigger, leaving unread", "error", err)
		return OutcomeAssembleFailed
	}

	triggerID := resolution.Trigger.ID
	ctx = logger.WithLogFields(ctx, logger.LogFields{TriggerItemID: logger.Ptr(triggerID)})

	if !p.ledger.Claim(triggerID) {
		if p.ledger.Committed(triggerID) {
			slog.InfoContext(ctx, "trigger already dispatched")
			p.markRead(ctx, pipeline.Forge, note)
			return OutcomeDuplicate
		}
		// Another task holds the claim and will mark the thread once it finishes.
		slog.InfoContext(ctx, "trigger in flight elsewhere, skipping")
		return OutcomeInFlight
	}
	defer func() {
		if r := recover(); r != nil {
			p.ledger.Release(triggerID)
			panic(r)
		}
	}()

	assembly, err := pipeline.Assembler.Build(ctx, note, resolution)
	if err != nil {
		p.ledger.Release(triggerID)
		slog.ErrorContext(ctx, "failed to build context, leaving unread", "error", err)
		return OutcomeAssembleFailed
	}

	err = p.dispatcher.DispatchWorkflow(ctx, forge.DispatchRequest{
		Repo:     p.workflow.ControlRepo,
		Workflow: p.workflow.File,
		Ref:      p.workflow.Ref,
		Task:     assembly.Task,
		Context:  string(assembly.ContextJSON),
	})
	if err != nil {
		p.ledger.Release(triggerID)
		slog.ErrorContext(ctx, "workflow dispatch failed, leaving unread for retry", "error", err)
		return OutcomeDispatchFailed
	}

	if err := p.ledger.Commit(context.WithoutCancel(ctx), triggerID); err != nil {
		slog.ErrorContext(ctx, "dispatched but failed to persist ledger entry, a restart may dispatch it again",
			"error", err)
	}

	slog.InfoContext(ctx, "workflow dispatched",
		"control_repo", p.workflow.ControlRepo,
		"workflow", p.workflow.File,
		"task", logger.Truncate(assembly.Task, 120),
		"context_bytes", len(assembly.ContextJSON))

	p.markRead(ctx, pipeline.Forge, note)
	return OutcomeDispatched
}

func (p *Processor) markRead(ctx context.Context, f Forge, note model.Notification) {
	if note.FromWebhook() {
		return
	}
	if err := f.MarkRead(ctx, note.ThreadID); err != nil {
		slog.WarnContext(ctx, "failed to mark notification read", "error", err)
	}
}

func eventType(note model.Notification) string {
	if note.EventType != "" {
		return note.EventType
	}
	return "notification"
}
