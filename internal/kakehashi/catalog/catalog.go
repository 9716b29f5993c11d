// Package catalog flattens the tools of every live server into one namespaced
// list the model can call. Tool names are prefixed with the server's position
// (server1_roll_dice) so identically named tools on different servers never
// collide, and the mapping back to (connection, bare name) is mechanical.
package catalog

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/bdobrica/Kakehashi/common/spec/manifest"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/llm"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/mcp"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/registry"
)

var namespacedRE = regexp.MustCompile(`^server(\d+)_(.+)$`)

// emptySchema is used when a server advertises a tool with no input schema;
// the chat API rejects tool definitions without a parameters object.
func emptySchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// Catalog is the namespaced tool surface built from a registry snapshot.
type Catalog struct {
	reg       *registry.Registry
	defs      []llm.ToolDefinition
	overrides map[string]map[string]any // bare tool name -> schema
}

// Build assembles the catalog from the registry's live entries. Overrides
// replace a tool's advertised input schema wherever the bare name matches,
// on every server that carries it.
func Build(reg *registry.Registry, overrides []manifest.SchemaOverride) *Catalog {
	c := &Catalog{
		reg:       reg,
		overrides: make(map[string]map[string]any, len(overrides)),
	}
	for _, o := range overrides {
		c.overrides[o.Tool] = o.Schema
	}

	for _, e := range reg.Live() {
		for _, t := range e.Tools {
			c.defs = append(c.defs, c.define(e, t))
		}
	}
	return c
}

func (c *Catalog) define(e *registry.Entry, t mcp.Tool) llm.ToolDefinition {
	schema := t.InputSchema
	if o, ok := c.overrides[t.Name]; ok {
		schema = o
	}
	if schema == nil {
		schema = emptySchema()
	}

	desc := t.Description
	if desc == "" {
		desc = t.Name
	}

	return llm.ToolDefinition{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        fmt.Sprintf("server%d_%s", e.Position, t.Name),
			Description: fmt.Sprintf("[Server %d] %s", e.Position, desc),
			Parameters:  schema,
		},
	}
}

// Definitions returns the namespaced tool definitions in server order.
func (c *Catalog) Definitions() []llm.ToolDefinition {
	return c.defs
}

// Resolve maps a namespaced identifier back to the owning registry entry and
// the server-side tool name. Unknown prefixes, out-of-range positions, failed
// servers and unlisted tools all come back as a ProtocolError so the caller
// can feed the failure to the model instead of crashing.
func (c *Catalog) Resolve(namespaced string) (*registry.Entry, string, error) {
	m := namespacedRE.FindStringSubmatch(namespaced)
	if m == nil {
		return nil, "", &mcp.ProtocolError{Msg: fmt.Sprintf("tool %q is not namespaced", namespaced)}
	}

	pos, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, "", &mcp.ProtocolError{Msg: fmt.Sprintf("tool %q has a bad server index", namespaced)}
	}

	e := c.reg.At(pos)
	if e == nil {
		return nil, "", &mcp.ProtocolError{Msg: fmt.Sprintf("tool %q refers to unknown server %d", namespaced, pos)}
	}
	if e.Err != nil {
		return nil, "", &mcp.ProtocolError{Msg: fmt.Sprintf("server %d (%s) is unavailable", pos, e.Endpoint.Name)}
	}

	name := m[2]
	for _, t := range e.Tools {
		if t.Name == name {
			return e, name, nil
		}
	}
	return nil, "", &mcp.ProtocolError{Msg: fmt.Sprintf("server %d does not provide tool %q", pos, name)}
}

// Schema returns the effective input schema for a namespaced tool, after
// overrides and the empty-schema default. ok is false when the tool cannot
// be resolved.
func (c *Catalog) Schema(namespaced string) (any, bool) {
	e, name, err := c.Resolve(namespaced)
	if err != nil {
		return nil, false
	}
	for _, t := range e.Tools {
		if t.Name != name {
			continue
		}
		if o, ok := c.overrides[name]; ok {
			return o, true
		}
		if t.InputSchema == nil {
			return emptySchema(), true
		}
		return t.InputSchema, true
	}
	return nil, false
}
