// Package phase defines the Phase Framework contract (§4.3): every
// concrete phase in internal/phases implements Phase, and drives its
// LLM/tool loop through Base, which every concrete phase embeds.
package phase

import (
	"context"

	"forgeloop/internal/state"
)

// Result is what every phase returns after one execution (§4.3).
type Result struct {
	Success       bool
	Message       string
	NextPhase     string
	FilesCreated  []string
	FilesModified []string
	Data          map[string]interface{}
}

// Phase is the framework contract every concrete phase implements.
// Task is optional (nil for phases that operate on the whole state
// rather than one queued task, e.g. project_planning).
type Phase interface {
	Name() string
	Execute(ctx context.Context, st *state.PipelineState, task *state.Task) (Result, error)
}
