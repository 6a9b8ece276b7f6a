package querytool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/tool"
)

// Registry maps tool names to tools.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry registers the given tools, failing on duplicate or empty names.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register inserts a tool when its name is not in use.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool is nil")
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Get fetches a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names lists registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named tool and returns its text. Unknown names produce an
// explanatory text rather than an error, like any other tool failure.
func (r *Registry) Invoke(ctx context.Context, name, input string) string {
	t, ok := r.Get(name)
	if !ok {
		return fmt.Sprintf("Unknown tool %q. Available tools: %s.", name, strings.Join(r.Names(), ", "))
	}
	return Invoke(ctx, t, Request{Input: input})
}

// AgentTools adapts every registered tool to the agent runtime's tool
// interface, in name order.
func (r *Registry) AgentTools() []tool.Tool {
	names := r.Names()
	out := make([]tool.Tool, 0, len(names))
	for _, name := range names {
		out = append(out, NewAgentTool(r.tools[name]))
	}
	return out
}
