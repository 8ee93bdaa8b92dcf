// Package tools implements the read-only MongoDB tool set and the shared
// machinery every tool runs through: declarative argument validation, tenant
// scoping, case-insensitive match injection, allow-list enforcement, timing
// and telemetry.
package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// nameRe bounds database and collection names accepted from the planner.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)

// Tool is one read-only MongoDB operation exposed to the RPC surface and the
// planning LLM.
type Tool interface {
	Name() string
	Category() string
	Description() string
	Parameters() ParamSpec

	// Execute runs the tool after the runner has validated and scoped the
	// invocation. Implementations return either a JSON-safe result document
	// or an error from the taxonomy in errors.go.
	Execute(ctx context.Context, inv *Invocation) (any, error)
}

// Invocation carries one validated, tenant-scoped tool call.
type Invocation struct {
	// Args holds the argument document after validation, scoping and
	// case-insensitive injection.
	Args map[string]any

	// Tenant is the company the call is scoped to.
	Tenant primitive.ObjectID

	// Database is the resolved target database name.
	Database string
}

// ParamType is the JSON-schema type of a declared parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"

	// TypeStringOrArray accepts a single field name or a list of them.
	TypeStringOrArray ParamType = "stringOrArray"
)

// Param declares one tool argument: its type, bounds and documentation. The
// same declaration drives validation and the function schema advertised to
// the LLM.
type Param struct {
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
	Minimum     *int
	Maximum     *int
	Pattern     *regexp.Regexp
	Default     any
}

// ParamSpec maps argument names to their declarations.
type ParamSpec map[string]Param

// IntRange is a convenience constructor for bounded integers.
func IntRange(min, max int) (*int, *int) {
	return &min, &max
}

// Validate checks args against the spec and fills declared defaults in
// place. Violations come back as user-visible validation errors.
func (s ParamSpec) Validate(args map[string]any) error {
	for name := range args {
		if _, declared := s[name]; !declared {
			return NewValidationError("unknown argument %q", name)
		}
	}

	for name, p := range s {
		v, present := args[name]
		if !present || v == nil {
			if p.Required {
				return NewValidationError("missing required argument %q", name)
			}
			if p.Default != nil {
				args[name] = p.Default
			}
			continue
		}
		if err := p.check(name, v); err != nil {
			return err
		}
	}
	return nil
}

func (p Param) check(name string, v any) error {
	switch p.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return NewValidationError("argument %q must be a string", name)
		}
		if p.Pattern != nil && !p.Pattern.MatchString(s) {
			return NewValidationError("argument %q value %q must match pattern %s", name, s, p.Pattern)
		}
		if len(p.Enum) > 0 && !containsString(p.Enum, s) {
			return NewValidationError("argument %q must be one of: %s", name, strings.Join(p.Enum, ", "))
		}
	case TypeInteger:
		n, ok := asInt(v)
		if !ok {
			return NewValidationError("argument %q must be an integer", name)
		}
		if p.Minimum != nil && n < *p.Minimum {
			return NewValidationError("argument %q must be >= %d", name, *p.Minimum)
		}
		if p.Maximum != nil && n > *p.Maximum {
			return NewValidationError("argument %q must be <= %d", name, *p.Maximum)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return NewValidationError("argument %q must be a boolean", name)
		}
	case TypeObject:
		if _, ok := asDocument(v); !ok {
			return NewValidationError("argument %q must be a document", name)
		}
	case TypeArray:
		if _, ok := asArray(v); !ok {
			return NewValidationError("argument %q must be an array", name)
		}
	case TypeStringOrArray:
		if _, ok := v.(string); ok {
			return nil
		}
		if _, ok := asArray(v); !ok {
			return NewValidationError("argument %q must be a string or an array of strings", name)
		}
	}
	return nil
}

// JSONSchema renders the spec as the JSON-schema object the LLM function
// definition carries.
func (s ParamSpec) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s))
	var required []string

	for name, p := range s {
		var prop map[string]any
		if p.Type == TypeStringOrArray {
			prop = map[string]any{"type": []string{"string", "array"}}
		} else {
			prop = map[string]any{"type": string(p.Type)}
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			prop["maximum"] = *p.Maximum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// asInt accepts the numeric representations JSON and extended-JSON decoding
// produce for integers.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// asDocument accepts the map shapes JSON and BSON decoding produce.
func asDocument(v any) (map[string]any, bool) {
	switch d := v.(type) {
	case map[string]any:
		return d, true
	}
	return nil, false
}

func asArray(v any) ([]any, bool) {
	switch a := v.(type) {
	case []any:
		return a, true
	}
	return nil, false
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func asString(args map[string]any, key string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return ""
}

func argInt(args map[string]any, key string, fallback int) int {
	if n, ok := asInt(args[key]); ok {
		return n
	}
	return fallback
}

func argBool(args map[string]any, key string, fallback bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return fallback
}

func argDoc(args map[string]any, key string) map[string]any {
	if d, ok := asDocument(args[key]); ok {
		return d
	}
	return nil
}

func describeEnum(values []string) string {
	return fmt.Sprintf("One of: %s", strings.Join(values, ", "))
}
