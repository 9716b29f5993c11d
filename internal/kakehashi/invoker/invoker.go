// Package invoker executes one namespaced tool call end to end: resolve,
// parse arguments, repair known-bad parameter shapes, validate against the
// tool's effective schema, dispatch over the owning server's transport, and
// normalize the result into plain text for the transcript.
//
// Every failure mode except context cancellation is converted into a
// tool-result message so the model gets a chance to correct itself on its
// next turn. Nothing here retries automatically.
package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/Kakehashi/common/spec/manifest"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/catalog"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/llm"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/mcp"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/session"
)

// ValidationError reports an argument that could not be coerced into the
// shape a repair rule demands. It is fed back to the model as text, never
// raised past the orchestration loop.
type ValidationError struct {
	Tool  string
	Param string
	Shape manifest.ArgShape
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("argument %q of %s must be %s", e.Param, e.Tool, shapeHint(e.Shape))
}

func shapeHint(s manifest.ArgShape) string {
	switch s {
	case manifest.ShapeIntArray:
		return "a JSON array of integers, e.g. [3, 5, 1]"
	case manifest.ShapeInteger:
		return "a single integer"
	default:
		return string(s)
	}
}

// Invoker dispatches namespaced tool calls and maintains the session's
// last-known-good argument cache.
type Invoker struct {
	cat     *catalog.Catalog
	state   *session.State
	repairs map[string][]manifest.RepairRule // keyed by bare tool name
	caches  map[string]string                // bare tool name -> cache category
}

// New builds an invoker over a catalog and session state.
func New(cat *catalog.Catalog, state *session.State, repairs []manifest.RepairRule, cacheables []manifest.CacheRule) *Invoker {
	inv := &Invoker{
		cat:     cat,
		state:   state,
		repairs: make(map[string][]manifest.RepairRule),
		caches:  make(map[string]string, len(cacheables)),
	}
	for _, r := range repairs {
		inv.repairs[r.Tool] = append(inv.repairs[r.Tool], r)
	}
	for _, c := range cacheables {
		inv.caches[c.Tool] = c.Category
	}
	return inv
}

// Invoke runs one tool call and returns the tool-result message to append to
// the transcript. The returned error is non-nil only for context
// cancellation; every other failure is folded into the message content.
func (inv *Invoker) Invoke(ctx context.Context, call llm.ToolCall) (llm.Message, error) {
	reply := func(content string) llm.Message {
		return llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: call.ID,
			Name:       call.Function.Name,
			Content:    content,
		}
	}

	entry, toolName, err := inv.cat.Resolve(call.Function.Name)
	if err != nil {
		slog.Warn("tool resolution failed", "tool", call.Function.Name, "err", err)
		return reply(fmt.Sprintf("Error: %v", err)), nil
	}

	args := parseArgs(call.Function.Arguments)

	if err := inv.repair(toolName, args); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			slog.Info("argument repair failed", "tool", toolName, "param", verr.Param)
			return reply(fmt.Sprintf(
				"Error: invalid arguments. %s Please call the tool again with corrected arguments.",
				verr.Error())), nil
		}
		return reply(fmt.Sprintf("Error: %v", err)), nil
	}

	if msg, bad := inv.validate(call.Function.Name, toolName, args); bad {
		return reply(msg), nil
	}

	raw, err := mcp.CallTool(ctx, entry.Conn, toolName, args)
	if err != nil {
		if ctx.Err() != nil {
			return llm.Message{}, ctx.Err()
		}
		slog.Warn("tool call failed", "server", entry.Endpoint.Name, "tool", toolName, "err", err)
		return reply(fmt.Sprintf("Error: tool call failed: %v", err)), nil
	}

	out := Normalize(raw)
	inv.updateCache(toolName, out)
	return reply(out), nil
}

// parseArgs decodes the model's raw argument string. Anything that is not a
// JSON object becomes an empty argument map; the schema check and the server
// get to complain, not us.
func parseArgs(raw string) map[string]any {
	args := make(map[string]any)
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		slog.Debug("argument payload is not a JSON object", "raw", raw, "err", err)
		return make(map[string]any)
	}
	return args
}

// repair applies the tool's repair rules in place. For each rule, in order:
// keep the value if already shaped; decode a textual literal; substitute the
// cached last-known-good value; otherwise fail with a ValidationError.
func (inv *Invoker) repair(toolName string, args map[string]any) error {
	for _, rule := range inv.repairs[toolName] {
		v, present := args[rule.Param]

		if present && matchesShape(v, rule.Shape) {
			continue
		}

		if s, ok := v.(string); present && ok {
			if decoded, ok := decodeLiteral(s, rule.Shape); ok {
				args[rule.Param] = decoded
				continue
			}
		}

		if rule.Cache != "" && rule.Shape == manifest.ShapeIntArray {
			if cached, ok := inv.state.RecallInts(rule.Cache); ok {
				slog.Info("substituted cached value", "tool", toolName, "param", rule.Param, "cache", rule.Cache)
				args[rule.Param] = cached
				continue
			}
		}

		return &ValidationError{Tool: toolName, Param: rule.Param, Shape: rule.Shape}
	}
	return nil
}

// validate checks the repaired arguments against the tool's effective input
// schema. Schema problems on the server side only get logged; a schema that
// compiles but rejects the arguments is reported back to the model.
func (inv *Invoker) validate(namespaced, toolName string, args map[string]any) (msg string, bad bool) {
	schemaVal, ok := inv.cat.Schema(namespaced)
	if !ok || schemaVal == nil {
		return "", false
	}

	schemaJSON, err := json.Marshal(schemaVal)
	if err != nil {
		slog.Debug("schema not serializable", "tool", toolName, "err", err)
		return "", false
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(schemaJSON))); err != nil {
		slog.Debug("schema rejected by compiler", "tool", toolName, "err", err)
		return "", false
	}
	sch, err := compiler.Compile("schema.json")
	if err != nil {
		slog.Debug("schema does not compile", "tool", toolName, "err", err)
		return "", false
	}

	// round-trip so substituted Go values ([]int) become plain JSON values
	doc, err := roundTrip(args)
	if err != nil {
		return "", false
	}
	if err := sch.Validate(doc); err != nil {
		slog.Info("arguments rejected by schema", "tool", toolName, "err", err)
		return fmt.Sprintf(
			"Error: arguments do not match the tool's schema: %v. Please call the tool again with corrected arguments.",
			err), true
	}
	return "", false
}

func roundTrip(args map[string]any) (any, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// updateCache stores a cacheable tool's result when it parses as an integer
// list.
func (inv *Invoker) updateCache(toolName, out string) {
	category, ok := inv.caches[toolName]
	if !ok {
		return
	}
	if vals, ok := decodeLiteral(out, manifest.ShapeIntArray); ok {
		if ints, ok := toIntSlice(vals); ok {
			inv.state.RememberInts(category, ints)
		}
	}
}
