package querytool

import (
	"context"
	"fmt"

	"github.com/cexll/agentsdk-go/pkg/tool"
)

// AgentTool exposes a Tool through the agent runtime's tool.Tool interface.
// Execute never returns an error: failures travel as text in the Output so
// the model can adapt.
type AgentTool struct {
	t Tool
}

var _ tool.Tool = (*AgentTool)(nil)

func NewAgentTool(t Tool) *AgentTool {
	return &AgentTool{t: t}
}

func (a *AgentTool) Name() string        { return a.t.Name() }
func (a *AgentTool) Description() string { return a.t.Description() }

func (a *AgentTool) Schema() *tool.JSONSchema {
	p := a.t.Param()
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			p.Name: map[string]interface{}{
				"type":        "string",
				"description": p.Description,
			},
		},
		Required: []string{p.Name},
	}
}

func (a *AgentTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	req := Request{Input: stringParam(params, a.t.Param().Name)}
	res := a.t.InvokeTyped(ctx, req)
	return &tool.ToolResult{
		Success: res.Kind != KindFailure,
		Output:  a.t.Render(req, res),
		Data:    res,
	}, nil
}

func stringParam(params map[string]interface{}, name string) string {
	v, ok := params[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
