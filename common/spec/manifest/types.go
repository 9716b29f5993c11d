// Package manifest defines types for the Kakehashi host manifest schema (v1).
//
// The manifest is the versioned YAML file that configures one host: the tool
// servers to connect to, the LLM persona, call limits, and the per-tool
// repair/override knobs that harden tool calling against loosely-typed
// LLM-generated arguments.
package manifest

// SpecVersion is the API version string required in every manifest.
const SpecVersion = "kakehashi/v1"

// Transport identifies how the host reaches a tool server.
type Transport string

const (
	// TransportPipe runs the server as a child process speaking
	// newline-delimited JSON-RPC on stdin/stdout.
	TransportPipe Transport = "pipe"

	// TransportHTTP posts each JSON-RPC call to an HTTP endpoint whose reply
	// is plain JSON or an SSE stream.
	TransportHTTP Transport = "http"
)

// Config is the root type for a host manifest.
type Config struct {
	// APIVersion must be "kakehashi/v1".
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`

	// Metadata holds descriptive metadata.
	Metadata Metadata `yaml:"metadata" json:"metadata"`

	// Servers lists the tool server endpoints, in order. Order is
	// significant: it fixes the server index used for tool namespacing.
	Servers []ServerSpec `yaml:"servers" json:"servers"`

	// Persona defines the system prompt. Non-authoritative.
	Persona Persona `yaml:"persona,omitempty" json:"persona,omitempty"`

	// Limits defines turn and transport constraints.
	Limits Limits `yaml:"limits,omitempty" json:"limits,omitempty"`

	// Repairs lists argument repair rules applied before dispatch,
	// in addition to the built-in defaults.
	Repairs []RepairRule `yaml:"repairs,omitempty" json:"repairs,omitempty"`

	// Cacheables lists tools whose normalized results feed the session's
	// last-known-good cache, in addition to the built-in defaults.
	Cacheables []CacheRule `yaml:"cacheables,omitempty" json:"cacheables,omitempty"`

	// Overrides replaces a discovered tool input schema with a hand-authored
	// stricter one at catalog build time.
	Overrides []SchemaOverride `yaml:"overrides,omitempty" json:"overrides,omitempty"`
}

// Metadata holds descriptive information about a manifest.
type Metadata struct {
	// Name is the host name, reported in logs.
	Name string `yaml:"name" json:"name"`

	// Description is a human-readable description of the host's purpose.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// ServerSpec is one configured tool server. The compact Spec string carries
// the address, positional arguments, and environment overrides; see
// ParseEndpoint for the syntax.
type ServerSpec struct {
	// Name is the endpoint's stable identity, used in logs and the registry.
	Name string `yaml:"name" json:"name"`

	// Spec is the endpoint spec string: target[:arg1,arg2][^ENV=VAL...].
	Spec string `yaml:"spec" json:"spec"`
}

// Persona defines the host's LLM-facing identity.
type Persona struct {
	// SystemPrompt is prepended to every conversation. When empty the host
	// uses its built-in tool-calling prompt.
	SystemPrompt string `yaml:"systemPrompt,omitempty" json:"systemPrompt,omitempty"`

	// Model is the default model identifier.
	Model string `yaml:"model,omitempty" json:"model,omitempty"`
}

// Limits defines resource constraints on host operations.
type Limits struct {
	// MaxToolRounds caps LLM → tool-execution round trips per turn;
	// it also bounds the conversational argument-repair channel.
	// 0 means the built-in default (10).
	MaxToolRounds int `yaml:"maxToolRounds,omitempty" json:"maxToolRounds,omitempty"`

	// HTTPTimeoutSeconds is the per-call timeout for HTTP tool servers.
	// 0 means the built-in default (20).
	HTTPTimeoutSeconds int `yaml:"httpTimeoutSeconds,omitempty" json:"httpTimeoutSeconds,omitempty"`

	// MaxTokensPerRequest is the maximum number of tokens per LLM call.
	// 0 means unlimited.
	MaxTokensPerRequest int `yaml:"maxTokensPerRequest,omitempty" json:"maxTokensPerRequest,omitempty"`
}

// ArgShape names an argument shape a repair rule can coerce toward.
type ArgShape string

const (
	// ShapeIntArray expects a JSON array of integers.
	ShapeIntArray ArgShape = "int_array"

	// ShapeInteger expects a single JSON integer.
	ShapeInteger ArgShape = "integer"
)

// RepairRule marks one (tool, parameter) pair as failure-prone and describes
// the shape its value must be coerced toward. Tool names are bare (not
// namespaced) so a rule applies to the tool on any server.
type RepairRule struct {
	// Tool is the bare tool name, e.g. "sum_dice".
	Tool string `yaml:"tool" json:"tool"`

	// Param is the argument name, e.g. "rolls".
	Param string `yaml:"param" json:"param"`

	// Shape is the expected argument shape.
	Shape ArgShape `yaml:"shape" json:"shape"`

	// Cache names the session cache category a compatible last-known-good
	// value may be substituted from. Empty disables cache substitution.
	Cache string `yaml:"cache,omitempty" json:"cache,omitempty"`
}

// CacheRule marks one tool's normalized result as cacheable.
type CacheRule struct {
	// Tool is the bare tool name, e.g. "roll_dice".
	Tool string `yaml:"tool" json:"tool"`

	// Category is the session cache category the result is stored under.
	Category string `yaml:"category" json:"category"`
}

// SchemaOverride replaces the discovered input schema of every tool with the
// given bare name by a hand-authored one.
type SchemaOverride struct {
	// Tool is the bare tool name.
	Tool string `yaml:"tool" json:"tool"`

	// Schema is the replacement JSON Schema object.
	Schema map[string]any `yaml:"schema" json:"schema"`
}
