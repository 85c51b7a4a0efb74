package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"basegraph.app/courier/common/logger"
	"basegraph.app/courier/core/config"
	"basegraph.app/courier/internal/brain"
	"basegraph.app/courier/internal/model"
	"basegraph.app/courier/internal/worker"
)

var inspectLimit int

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Build task and context for unread mentions without dispatching",
	Long: `inspect fetches unread notifications once and prints the task text and context each
mention would be dispatched with. Nothing is dispatched, marked read or recorded.`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 0, "Inspect at most this many notifications (0 for all)")
}

type inspection struct {
	ThreadID string          `json:"thread_id"`
	Title    string          `json:"title"`
	Trigger  string          `json:"trigger_item_id,omitempty"`
	Task     string          `json:"task,omitempty"`
	Context  json.RawMessage `json:"context,omitempty"`
	Bytes    int             `json:"context_bytes,omitempty"`
	Skipped  string          `json:"skipped,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the inspection output.
	slog.SetDefault(slog.New(logger.NewTraceHandler(slog.NewTextHandler(os.Stderr, nil))))

	github, pipelines, err := buildPipelines(cfg)
	if err != nil {
		return err
	}
	pipeline := pipelines[model.ProviderGitHub]

	batch, err := github.Notifications(ctx, false)
	if err != nil {
		return fmt.Errorf("fetching notifications: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	for i, note := range batch.Notifications {
		if inspectLimit > 0 && i >= inspectLimit {
			break
		}
		if err := enc.Encode(inspect(ctx, pipeline, note)); err != nil {
			return err
		}
	}

	slog.InfoContext(ctx, "inspection complete", "notifications", len(batch.Notifications))
	return nil
}

func inspect(ctx context.Context, pipeline worker.Pipeline, note model.Notification) inspection {
	out := inspection{ThreadID: note.ThreadID, Title: note.Title}
	if !note.IsMention() {
		out.Skipped = "reason " + note.Reason
		return out
	}

	resource, err := pipeline.Forge.Resource(ctx, note)
	if err != nil {
		out.Skipped = "fetch failed: " + err.Error()
		return out
	}

	resolution, err := pipeline.Assembler.Resolve(ctx, note, resource)
	switch {
	case errors.Is(err, brain.ErrNoTrigger), errors.Is(err, brain.ErrNotAllowed):
		out.Skipped = err.Error()
		return out
	case err != nil:
		out.Skipped = "resolve failed: " + err.Error()
		return out
	}

	assembly, err := pipeline.Assembler.Build(ctx, note, resolution)
	if err != nil {
		out.Skipped = "build failed: " + err.Error()
		return out
	}

	out.Trigger = assembly.Trigger.ID
	out.Task = assembly.Task
	out.Context = assembly.ContextJSON
	out.Bytes = len(assembly.ContextJSON)
	return out
}
