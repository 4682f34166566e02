package router

import (
	"github.com/renfield-project/renfield/internal/llm"
	"github.com/renfield-project/renfield/internal/tools"
)

// serverTagged is implemented by remote tools registered through
// internal/tools/mcphost; internal tools don't implement it. Declared
// locally rather than imported from mcphost to avoid a dependency from
// this package onto the MCP transport machinery.
type serverTagged interface {
	ServerName() string
}

// filterToolsForRole returns the subset of the registry's tools this
// role is allowed to call: internal tools named in cfg.InternalTools,
// plus remote tools whose server is named in cfg.ToolServers. A tool
// that is neither internal-whitelisted nor server-whitelisted is
// excluded, even if it exists in the registry.
func filterToolsForRole(reg *tools.Registry, cfg RoleConfig) []tools.Tool {
	internalAllowed := make(map[string]bool, len(cfg.InternalTools))
	for _, n := range cfg.InternalTools {
		internalAllowed[n] = true
	}
	serverAllowed := make(map[string]bool, len(cfg.ToolServers))
	for _, n := range cfg.ToolServers {
		serverAllowed[n] = true
	}

	var out []tools.Tool
	for _, t := range reg.List() {
		if st, ok := t.(serverTagged); ok {
			if serverAllowed[st.ServerName()] {
				out = append(out, t)
			}
			continue
		}
		if internalAllowed[t.Name()] {
			out = append(out, t)
		}
	}
	return out
}

// toLLMSchemas adapts the registry's simplified tools.Schema into the
// JSON-schema-shaped llm.ToolSchema the Client's function-calling surface
// expects.
func toLLMSchemas(ts []tools.Tool) []llm.ToolSchema {
	out := make([]llm.ToolSchema, 0, len(ts))
	for _, t := range ts {
		props := map[string]any{}
		var required []string
		for name, spec := range t.Schema() {
			prop := map[string]any{"type": jsonSchemaType(spec.Type)}
			if len(spec.Enum) > 0 {
				prop["enum"] = spec.Enum
			}
			if spec.Pattern != "" {
				prop["pattern"] = spec.Pattern
			}
			props[name] = prop
			if spec.Required {
				required = append(required, name)
			}
		}
		out = append(out, llm.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters: map[string]any{
				"type":       "object",
				"properties": props,
				"required":   required,
			},
		})
	}
	return out
}

func jsonSchemaType(t tools.ParamType) string {
	switch t {
	case tools.ParamString:
		return "string"
	case tools.ParamNumber:
		return "number"
	case tools.ParamBool:
		return "boolean"
	case tools.ParamObject:
		return "object"
	case tools.ParamArray:
		return "array"
	default:
		return "string"
	}
}
