// Package filter evaluates CEL predicates against records.
//
// Expressions see these variables:
//
//	queue_seq, topic_id, topic_seq  uint (declared dyn, so int literals compare)
//	timestamp                       int (as written by the producer)
//	size                            int (payload bytes)
//	text                            string (payload)
//	json                            dyn (payload parsed as JSON, null if invalid)
//	now                             int (wall clock, unix nanoseconds)
//
// Example: `topic_id == 2 && json.level == "error"`.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/flolog/internal/record"
)

// Filter is a compiled predicate. The zero value and a Filter built from an
// empty expression match every record.
type Filter struct {
	expr     string
	prog     cel.Program
	enabled  bool
	wantJSON bool
}

// Compile parses and type-checks expr. The expression must yield a bool.
func Compile(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("queue_seq", cel.DynType),
		cel.Variable("topic_id", cel.DynType),
		cel.Variable("topic_seq", cel.DynType),
		cel.Variable("timestamp", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		cel.Variable("json", cel.DynType),
		cel.Variable("now", cel.IntType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("filter: parse: %w", iss.Err())
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("filter: check: %w", iss.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) && !checked.OutputType().IsExactType(cel.DynType) {
		return nil, fmt.Errorf("filter: expression must be bool, got %s", checked.OutputType())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("filter: program: %w", err)
	}
	return &Filter{expr: expr, prog: prog, enabled: true, wantJSON: strings.Contains(expr, "json")}, nil
}

// String returns the source expression.
func (f *Filter) String() string { return f.expr }

// Enabled reports whether the filter rejects anything at all.
func (f *Filter) Enabled() bool { return f != nil && f.enabled }

// Match reports whether rec satisfies the predicate. Evaluation errors count
// as no match.
func (f *Filter) Match(rec *record.Record) bool {
	if !f.Enabled() {
		return true
	}
	var doc any
	if f.wantJSON {
		_ = json.Unmarshal(rec.Data, &doc)
	}
	out, _, err := f.prog.Eval(map[string]any{
		"queue_seq": rec.QueueSeq,
		"topic_id":  rec.TopicID,
		"topic_seq": rec.TopicSeq,
		"timestamp": rec.Timestamp,
		"size":      int64(len(rec.Data)),
		"text":      string(rec.Data),
		"json":      doc,
		"now":       time.Now().UnixNano(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
