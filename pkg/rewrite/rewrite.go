// Package rewrite implements the Ingestor's sample- and batch-level
// rewriting hooks (spec.md §4.7 "external"), including a tiny
// expression-based rewriter for the rule language spec.md §6's
// samples.rewrite/samples.batch.rewrite sections configure, grounded
// on the govaluate-style evaluator pattern visible in the pack's
// config-driven daemons (n-backup's ParseByteSize is the same "small
// hand-rolled grammar over a config string" shape, scaled up here to
// arithmetic expressions).
package rewrite

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sn2d/ingestd/pkg/sample"
	"github.com/sn2d/ingestd/pkg/sensorpath"
	"github.com/sn2d/ingestd/pkg/sn2derr"
)

// SampleRewriter transforms a single Sample before it is grouped into
// a Batch. Returning ok=false drops the sample.
type SampleRewriter interface {
	RewriteSample(s sample.Sample) (out sample.Sample, ok bool)
}

// BatchRewriter transforms a Batch after grouping, before it is
// enqueued to sinks. Returning ok=false drops the batch.
type BatchRewriter interface {
	RewriteBatch(b sample.Batch) (out sample.Batch, ok bool)
}

// PassThrough implements both rewriter interfaces as identity
// functions; it is the default when no rules are configured.
type PassThrough struct{}

func (PassThrough) RewriteSample(s sample.Sample) (sample.Sample, bool) { return s, true }
func (PassThrough) RewriteBatch(b sample.Batch) (sample.Batch, bool)    { return b, true }

// Rule is one parsed expression-based rewrite rule: when it applies
// to a path, value is rebound to the result of evaluating Expr against
// the current value (named "value" inside the expression).
type Rule struct {
	PathMatch string
	Expr      *expr
}

// NewRule parses pathMatch (a sensorpath.Part name, "*" for any) and
// an arithmetic expression over the variable "value" into a Rule.
func NewRule(pathMatch, expression string) (*Rule, error) {
	e, err := parseExpr(expression)
	if err != nil {
		return nil, &sn2derr.ConfigError{Field: "rewrite.expression", Reason: err.Error()}
	}
	return &Rule{PathMatch: pathMatch, Expr: e}, nil
}

func (r *Rule) matches(p sensorpath.Path) bool {
	return r.PathMatch == "*" || r.PathMatch == p.Part.String()
}

// ExprSampleRewriter applies an ordered list of Rules to each sample's
// value, rule order matching declaration order in config.
type ExprSampleRewriter struct {
	Rules []*Rule
}

func (r *ExprSampleRewriter) RewriteSample(s sample.Sample) (sample.Sample, bool) {
	for _, rule := range r.Rules {
		if !rule.matches(s.Path) {
			continue
		}
		s.Value = rule.Expr.eval(s.Value)
	}
	return s, true
}

// ExprBatchRewriter applies an ordered list of Rules to every subpart
// value present in a batch, rule order matching declaration order in
// config.
type ExprBatchRewriter struct {
	Rules []*Rule
}

func (r *ExprBatchRewriter) RewriteBatch(b sample.Batch) (sample.Batch, bool) {
	for _, rule := range r.Rules {
		if !rule.matches(b.BarePath) {
			continue
		}
		for sub, v := range b.Samples {
			b.Samples[sub] = rule.Expr.eval(v)
		}
	}
	return b, true
}

// expr is a minimal arithmetic expression: a left-to-right sequence of
// (operator, operand) pairs applied to the starting value "value".
// Supported operators: + - * /. No operator precedence or
// parentheses; e.g. "value * 0.1 + 32" is evaluated strictly
// left-to-right as ((value * 0.1) + 32).
type expr struct {
	ops  []byte
	vals []opVal
}

// opVal is either a numeric literal or a reference to "value".
type opVal struct {
	isValue bool
	literal float64
}

func parseExpr(s string) (*expr, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	if len(fields)%2 != 1 {
		return nil, fmt.Errorf("malformed expression %q: expected value (op value)*", s)
	}

	first, err := parseOperand(fields[0])
	if err != nil {
		return nil, err
	}

	e := &expr{vals: []opVal{first}}
	for i := 1; i < len(fields); i += 2 {
		op := fields[i]
		if len(op) != 1 || !strings.ContainsAny(op, "+-*/") {
			return nil, fmt.Errorf("malformed expression %q: expected operator at %q", s, op)
		}
		operand, err := parseOperand(fields[i+1])
		if err != nil {
			return nil, err
		}
		e.ops = append(e.ops, op[0])
		e.vals = append(e.vals, operand)
	}

	return e, nil
}

func parseOperand(tok string) (opVal, error) {
	if tok == "value" {
		return opVal{isValue: true}, nil
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return opVal{}, fmt.Errorf("invalid operand %q: %w", tok, err)
	}
	return opVal{literal: f}, nil
}

func (v opVal) resolve(value float64) float64 {
	if v.isValue {
		return value
	}
	return v.literal
}

func (e *expr) eval(value float64) float64 {
	acc := e.vals[0].resolve(value)
	for i, op := range e.ops {
		operand := e.vals[i+1].resolve(value)
		switch op {
		case '+':
			acc += operand
		case '-':
			acc -= operand
		case '*':
			acc *= operand
		case '/':
			acc /= operand
		}
	}
	return acc
}
