package tools

import (
	"context"
	"sort"
	"sync"

	"github.com/Jamessukanto/rag-multimodal/internal/llm"
	"github.com/Jamessukanto/rag-multimodal/internal/logging"
	"github.com/Jamessukanto/rag-multimodal/internal/mcp"
)

// Registry is the central tool registry the agent executes against.
// It holds both native tools and MCP-backed ones under one namespace.
// Registration happens at startup; lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool under its name. Registering a name twice
// replaces the earlier tool and logs a warning.
func (r *Registry) Register(ctx context.Context, tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := logging.FromContext(ctx)
	if _, exists := r.tools[tool.Name()]; exists {
		log.Warn("overwriting registered tool", "tool", tool.Name())
	}
	r.tools[tool.Name()] = tool
	log.Info("registered tool", "tool", tool.Name())
}

// RegisterMCPTools registers every tool the given MCP client advertises.
// When names is non-empty only those tools are registered, and each
// requested name must exist on the server.
func (r *Registry) RegisterMCPTools(ctx context.Context, client *mcp.Client, names []string) error {
	infos, err := client.ListTools(ctx)
	if err != nil {
		return err
	}

	if len(names) > 0 {
		available := make(map[string]mcp.ToolInfo, len(infos))
		for _, info := range infos {
			available[info.Name] = info
		}
		selected := make([]mcp.ToolInfo, 0, len(names))
		for _, name := range names {
			info, ok := available[name]
			if !ok {
				return &NotFoundError{Tool: name}
			}
			selected = append(selected, info)
		}
		infos = selected
	}

	for _, info := range infos {
		r.Register(ctx, NewMCPTool(client, info))
	}
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns all registered tools in neutral definition form,
// sorted by name so the tool list sent to providers is stable.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, Definition(t))
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs the named tool. A missing name yields a [NotFoundError];
// a failing tool yields an [ExecutionError] wrapping its error.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		return "", &NotFoundError{Tool: name}
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		return "", &ExecutionError{Tool: name, Err: err}
	}
	return result, nil
}
