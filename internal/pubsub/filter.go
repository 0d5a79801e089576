package pubsub

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/geyang/zaku/internal/codec"
)

// Filter is a compiled CEL boolean expression evaluated against a
// PUBLISHed payload's top-level fields. An empty expression always
// matches, so a subscriber that supplies no filter receives every
// publish on its topic.
type Filter struct {
	prog cel.Program
}

// NewFilter compiles expr, which may reference "topic" (string) and
// "payload" (dyn, the decoded payload's fields). An empty or all-whitespace
// expression yields a nil *Filter, matching everything.
func NewFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("topic", cel.StringType),
		cel.Variable("payload", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("pubsub: build cel env: %w", err)
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("pubsub: parse filter: %w", iss.Err())
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("pubsub: check filter: %w", iss.Err())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("pubsub: build filter program: %w", err)
	}
	return &Filter{prog: prog}, nil
}

// Match reports whether payload on topic satisfies the filter. A nil
// Filter (no expression) always matches. Evaluation errors (e.g. the
// expression references a field the payload doesn't have) are treated as
// a non-match rather than a delivery failure.
func (f *Filter) Match(topic string, payload codec.Value) bool {
	if f == nil {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"topic":   topic,
		"payload": codec.ToNative(payload),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
