package main

import (
	"fmt"

	"basegraph.app/courier/core/config"
	"basegraph.app/courier/internal/brain"
	"basegraph.app/courier/internal/forge"
	"basegraph.app/courier/internal/model"
	"basegraph.app/courier/internal/worker"
)

// buildPipelines wires one assembler per forge. GitLab joins only when a token is set.
func buildPipelines(cfg config.Config) (*forge.GitHub, map[model.Provider]worker.Pipeline, error) {
	limits := brain.Limits{
		ContextMaxChars: cfg.Limits.ContextMaxChars,
		DiffMaxChars:    cfg.Limits.DiffMaxChars,
		ContextMaxBytes: cfg.Limits.ContextMaxBytes,
		TaskMaxChars:    cfg.Limits.TaskMaxChars,
	}
	newAssembler := func(comments brain.LatestCommentFetcher, diffs brain.DiffFetcher) *brain.Assembler {
		return brain.NewAssembler(
			brain.NewTriggerResolver(comments, cfg.Bot.Handle),
			brain.NewContextBuilder(diffs, cfg.Bot.Handle, limits),
			cfg.Bot.Handle,
			cfg.Bot.IsAllowed,
		)
	}

	github := forge.NewGitHub(cfg.GitHub)
	pipelines := map[model.Provider]worker.Pipeline{
		model.ProviderGitHub: {Forge: github, Assembler: newAssembler(github, github)},
	}

	if cfg.GitLab.Enabled() {
		gitlab, err := forge.NewGitLab(cfg.GitLab)
		if err != nil {
			return nil, nil, fmt.Errorf("creating gitlab forge: %w", err)
		}
		pipelines[model.ProviderGitLab] = worker.Pipeline{Forge: gitlab, Assembler: newAssembler(gitlab, gitlab)}
	}

	return github, pipelines, nil
}
