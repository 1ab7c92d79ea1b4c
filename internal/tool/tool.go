// Package tool defines the capability contract every agentd tool implements
// and the native tool set that executes under the security policy.
//
// Tools come in two flavors: native tools implemented in-process (this
// package) and MCP-proxied tools that forward to a remote server (see
// internal/toolregistry). Both expose the same four-method contract, so the
// agent executor never distinguishes them.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Tool is an externally exposed capability: a stable name, a human
// description, a JSON Schema for its arguments, and an execute contract.
//
// Execute returns a *Result for domain outcomes (including domain failures
// such as a rejected path or an exceeded rate limit) and a non-nil error only
// for transport-level failures. Tools are stateless from the executor's view.
type Tool interface {
	Name() string
	Description() string
	ParametersSchema() map[string]any
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// Result is the outcome of a tool execution. Success distinguishes domain
// failure (returned) from transport failure (raised as error from Execute).
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Ok builds a successful result.
func Ok(output string) *Result {
	return &Result{Success: true, Output: output}
}

// Fail builds a domain-failure result.
func Fail(err string) *Result {
	return &Result{Success: false, Error: err}
}

// Call is a parsed tool invocation: the tool name plus arbitrary JSON args.
// Args may carry an implicit "_context" member with the originating channel
// and sender; tools that do not consume it must ignore it.
type Call struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// CallContext identifies where a tool call originated. It is injected into
// args under the "_context" key by the executor when known.
type CallContext struct {
	Channel  string `json:"channel"`
	SenderID string `json:"sender_id"`
}

// CompileSchema compiles a tool's parameter schema once at registration so
// malformed schemas surface at startup rather than at dispatch time.
func CompileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for tool %s: %w", name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode schema for tool %s: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("mem://tools/%s.schema.json", name)
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("register schema for tool %s: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for tool %s: %w", name, err)
	}
	return compiled, nil
}

// ValidateArgs validates a decoded argument object against a compiled schema.
// The implicit "_context" member is stripped before validation since it is
// injected by the executor, not supplied by the model.
func ValidateArgs(schema *jsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	stripped := args
	if _, ok := args["_context"]; ok {
		stripped = make(map[string]any, len(args))
		for k, v := range args {
			if k != "_context" {
				stripped[k] = v
			}
		}
	}

	// Round-trip through JSON so numbers carry the representation the
	// validator expects.
	raw, err := json.Marshal(stripped)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return schema.Validate(doc)
}

// StringArg extracts a required string argument.
func StringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %s must be a string", key)
	}
	return s, nil
}
