// Package tool implements the dispatch registry behind the assistant's
// directive protocol. Each tool the model may request via an ACTION directive
// is registered here; dispatch never panics or returns a raw error to the
// orchestrator, it always produces a DispatchResult.
package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jarvas-assistant/jarvas/pkg/logging"
)

// DispatchResult is the outcome of one tool invocation. It lives for a
// single turn and is rendered into the user-facing reply.
type DispatchResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Failure builds an unsuccessful result.
func Failure(format string, args ...any) *DispatchResult {
	return &DispatchResult{Success: false, Message: fmt.Sprintf(format, args...)}
}

// UserContext identifies the user on whose behalf a tool runs.
type UserContext struct {
	UserID   string         `json:"user_id"`
	Username string         `json:"username,omitempty"`
	Locale   string         `json:"locale,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Parameter defines a tool parameter
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string, number, boolean, object, array
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Handler executes a tool. Returned errors are converted to failed
// DispatchResults by the registry; handlers may also return a failed result
// directly when they have a better message for the user.
type Handler func(ctx context.Context, args map[string]any, user UserContext) (*DispatchResult, error)

// Tool represents one directive-callable action
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	// Deferred marks tools the orchestrator must not run in the streaming
	// path; it handles them with a second model pass instead. The handler
	// still exists for synchronous dispatch out of a second-pass response.
	Deferred bool    `json:"deferred"`
	Handler  Handler `json:"-"`
}

// ValidateArgs validates the provided arguments against the tool's parameters
func (t *Tool) ValidateArgs(args map[string]any) error {
	for _, param := range t.Parameters {
		if param.Required {
			if _, ok := args[param.Name]; !ok {
				return fmt.Errorf("missing required parameter: %s", param.Name)
			}
		}
	}
	return nil
}

// PromptLine renders the tool for the instruction preamble the model sees.
func (t *Tool) PromptLine() string {
	var b strings.Builder
	b.WriteString("- ")
	b.WriteString(t.Name)
	if len(t.Parameters) > 0 {
		b.WriteString("(")
		for i, p := range t.Parameters {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.Name)
			if !p.Required {
				b.WriteString("?")
			}
		}
		b.WriteString(")")
	}
	if t.Description != "" {
		b.WriteString(": ")
		b.WriteString(t.Description)
	}
	return b.String()
}

// Registry manages the directive-callable tools
// All operations are thread-safe using RWMutex protection
type Registry struct {
	mu    sync.RWMutex // Protects tools map
	tools map[string]*Tool
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
	}
}

// Register adds a tool to the registry
func (r *Registry) Register(tool *Tool) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Upsert adds or replaces a tool definition in the registry.
func (r *Registry) Upsert(tool *Tool) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tools == nil {
		r.tools = make(map[string]*Tool)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// IsDeferred reports whether name is a registered deferred tool.
func (r *Registry) IsDeferred(name string) bool {
	tool, ok := r.Get(name)
	return ok && tool.Deferred
}

// Catalog renders the registered tools as prompt lines for the instruction
// preamble.
func (r *Registry) Catalog() string {
	tools := r.List()
	lines := make([]string, 0, len(tools))
	for _, t := range tools {
		lines = append(lines, t.PromptLine())
	}
	return strings.Join(lines, "\n")
}

// Dispatch runs a tool by name. It never returns an error or propagates a
// panic: unknown tools, bad arguments, handler errors and handler panics all
// become a failed DispatchResult.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any, user UserContext) (result *DispatchResult) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.WithComponent("tool").Error("tool handler panicked", "tool", name, "panic", rec)
			result = Failure("Erro interno ao executar %s", name)
		}
	}()

	tool, ok := r.Get(name)
	if !ok {
		return Failure("Unknown tool: %s", name)
	}
	if tool.Handler == nil {
		return Failure("Tool %s has no handler", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := tool.ValidateArgs(args); err != nil {
		return Failure("Argumentos inválidos para %s: %v", name, err)
	}

	res, err := tool.Handler(ctx, args, user)
	if err != nil {
		logging.WithComponent("tool").Warn("tool failed", "tool", name, "error", err)
		return Failure("%v", err)
	}
	if res == nil {
		return Failure("Tool %s returned no result", name)
	}
	return res
}
