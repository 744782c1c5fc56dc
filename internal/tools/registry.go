package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"forgeloop/internal/forgeerr"
	"forgeloop/internal/logging"
)

// Registry holds all available tools and provides lookup, phase-exposure
// filtering, and dispatch.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool

	byCategory map[Category][]*Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:      make(map[string]*Tool),
		byCategory: make(map[Category][]*Tool),
	}
}

// Register adds a tool to the registry. Returns an error if a tool with
// the same name already exists.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}

	if tool.Priority == 0 {
		tool.Priority = 50
	}

	r.tools[tool.Name] = tool
	r.byCategory[tool.Category] = append(r.byCategory[tool.Category], tool)

	logging.ToolsDebug("registered tool: %s (category=%s, priority=%d)", tool.Name, tool.Category, tool.Priority)
	return nil
}

// MustRegister registers a tool and panics on error. For static
// registration at init time.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has returns true if a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// GetByCategory returns all tools in a category, sorted by priority
// (descending).
func (r *Registry) GetByCategory(category Category) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Tool, len(r.byCategory[category]))
	copy(out, r.byCategory[category])

	sort.Slice(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})

	return out
}

// GetMultiple returns tools matching the given names. Missing tools are
// silently skipped.
func (r *Registry) GetMultiple(names []string) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Tool, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			result = append(result, tool)
		}
	}
	return result
}

// All returns all registered tools.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	return result
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// phaseExposure implements the §6.2 per-phase tool exposure table: which
// categories of tool each phase may call.
var phaseExposure = map[string][]Category{
	"planning": {
		CategoryTaskManagement, CategoryAnalysis, CategoryFileOps,
	},
	"coding": {
		CategoryFileOps, CategoryFileOrg, CategoryAnalysis,
	},
	"qa": {
		CategoryAnalysis, CategoryValidation, CategoryReview,
	},
	"debugging": {
		CategoryAnalysis, CategoryValidation, CategoryFileOps, CategoryInvestigation,
	},
	"refactoring": {
		CategoryRefactoring, CategoryFileOps, CategoryFileOrg, CategoryAnalysis,
	},
	"documentation": {
		CategoryFileOps, CategoryDocumentation,
	},
	"investigation": {
		CategoryInvestigation, CategoryAnalysis,
	},
	"project_planning": {
		CategoryAnalysis, CategoryFileOps,
	},
}

// FilterByPhase returns the tools exposed to the named phase (§6.2), sorted
// by category then priority. An unrecognized phase gets no tools: phases
// outside the known set (e.g. specialized phases) must exposure-filter
// explicitly via GetByCategory instead of falling back to "everything".
func (r *Registry) FilterByPhase(phase string) []*Tool {
	categories, ok := phaseExposure[phase]
	if !ok {
		return nil
	}

	var out []*Tool
	for _, cat := range categories {
		out = append(out, r.GetByCategory(cat)...)
	}
	return out
}

// Execute runs a tool by name with the given arguments. Returns
// ErrToolNotFound if the tool doesn't exist.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	tool := r.Get(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return r.ExecuteTool(ctx, tool, args)
}

// ExecuteTool runs a specific tool with the given arguments, normalizing
// both the success and failure shapes (§4.7).
func (r *Registry) ExecuteTool(ctx context.Context, tool *Tool, args map[string]any) (*ToolResult, error) {
	start := time.Now()

	if err := r.validateArgs(tool, args); err != nil {
		return &ToolResult{
			ToolName:   tool.Name,
			Error:      err,
			Kind:       string(forgeerr.InvariantViolation),
			DurationMs: time.Since(start).Milliseconds(),
		}, err
	}

	logging.ToolsDebug("executing tool: %s", tool.Name)
	res, err := tool.Execute(ctx, args)
	duration := time.Since(start)

	if err != nil {
		logging.ToolsWarn("tool %s failed after %v: %v", tool.Name, duration, err)
		return &ToolResult{
			ToolName:    tool.Name,
			Error:       err,
			Kind:        string(forgeerr.KindOf(err)),
			Remediation: forgeerr.RemediationOf(err),
			DurationMs:  duration.Milliseconds(),
		}, err
	}

	risk := res.Risk
	if risk == "" && res.AffectedCount() > 0 {
		risk = ClassifyRisk(res.AffectedCount())
	}

	logging.Tools("tool %s completed in %v (files_affected=%d, risk=%s)", tool.Name, duration, res.AffectedCount(), risk)

	return &ToolResult{
		ToolName:      tool.Name,
		Output:        res.Output,
		FilesCreated:  res.FilesCreated,
		FilesModified: res.FilesModified,
		FilesDeleted:  res.FilesDeleted,
		Analysis:      res.Analysis,
		Risk:          risk,
		DurationMs:    duration.Milliseconds(),
	}, nil
}

// validateArgs checks that all required arguments are present.
func (r *Registry) validateArgs(tool *Tool, args map[string]any) error {
	for _, required := range tool.Schema.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredArg, required)
		}
	}
	return nil
}

// Global registry instance for convenience.
var globalRegistry = NewRegistry()

// Global returns the global tool registry.
func Global() *Registry {
	return globalRegistry
}

// Register adds a tool to the global registry.
func Register(tool *Tool) error {
	return globalRegistry.Register(tool)
}

// MustRegisterGlobal registers a tool in the global registry, panicking on
// error.
func MustRegisterGlobal(tool *Tool) {
	globalRegistry.MustRegister(tool)
}

// Get retrieves a tool from the global registry.
func Get(name string) *Tool {
	return globalRegistry.Get(name)
}

// Execute runs a tool from the global registry.
func Execute(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	return globalRegistry.Execute(ctx, name, args)
}
