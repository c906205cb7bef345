package playbook

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"responder/core"
)

// The condition micro-language gates step execution:
//
//	expr    := operand | operand op operand
//	op      := "==" | "!=" | ">=" | "<=" | ">" | "<"
//	operand := "$" name | JSON literal | bare string
//
// A $name operand resolves against context variables and is a hard error
// when missing, because control flow depends on it. Relational operators
// require numeric operands. An expression with no operator is read as a
// boolean variable. The empty expression is vacuously true.
//
// Expressions are parsed into an explicit AST rather than scanned for
// operator substrings; the tokenizer matches two-character operators
// before their one-character prefixes, so ">=" can never be read as ">".

type comparator string

const (
	opEq comparator = "=="
	opNe comparator = "!="
	opGe comparator = ">="
	opLe comparator = "<="
	opGt comparator = ">"
	opLt comparator = "<"
)

func (op comparator) numeric() bool {
	return op == opGe || op == opLe || op == opGt || op == opLt
}

// operand is an unresolved term of a comparison: either a variable
// reference or a literal captured from the expression text.
type operand struct {
	variable string // set when the token was $name
	raw      string // literal token text, resolved lazily
}

// condition is the parsed form of an expression. When op is empty the
// condition is the boolean-variable form and only left is set.
type condition struct {
	left  operand
	op    comparator
	right operand
}

// Parsed conditions are immutable, so a process-wide cache keyed by the
// expression text saves re-parsing hot playbooks.
var conditionCache, _ = lru.New[string, *condition](512)

// parseCondition tokenizes and parses an expression, consulting the
// shared cache first. The empty expression parses to nil (vacuous true).
func parseCondition(expr string) (*condition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	if cached, ok := conditionCache.Get(expr); ok {
		return cached, nil
	}

	cond, err := parse(expr)
	if err != nil {
		return nil, err
	}

	conditionCache.Add(expr, cond)
	return cond, nil
}

// parse splits the expression at its top-level comparator, if any.
// Operator characters inside double-quoted literals do not count.
func parse(expr string) (*condition, error) {
	inQuote := false
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if c == '"' {
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}

		// Two-character operators are matched first so that ">=" is
		// never tokenized as ">" followed by "=".
		if i+1 < len(expr) {
			switch two := expr[i : i+2]; two {
			case "==", "!=", ">=", "<=":
				return buildComparison(expr[:i], comparator(two), expr[i+2:])
			}
		}
		switch c {
		case '>', '<':
			return buildComparison(expr[:i], comparator(expr[i:i+1]), expr[i+1:])
		}
	}

	if inQuote {
		return nil, core.ValidationErrorf("unterminated string literal in condition %q", expr)
	}

	// No operator: boolean variable form.
	op, err := parseOperand(expr)
	if err != nil {
		return nil, err
	}
	return &condition{left: op}, nil
}

func buildComparison(left string, op comparator, right string) (*condition, error) {
	lhs, err := parseOperand(left)
	if err != nil {
		return nil, err
	}
	rhs, err := parseOperand(right)
	if err != nil {
		return nil, err
	}
	return &condition{left: lhs, op: op, right: rhs}, nil
}

func parseOperand(token string) (operand, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return operand{}, core.ValidationErrorf("empty operand in condition")
	}
	if name, ok := strings.CutPrefix(token, "$"); ok {
		if name == "" {
			return operand{}, core.ValidationErrorf("empty variable reference in condition")
		}
		return operand{variable: name}, nil
	}
	return operand{raw: token}, nil
}

// variableResolver looks up a context variable by name.
type variableResolver func(name string) (interface{}, bool)

// eval evaluates the condition against the given variable resolver.
func (c *condition) eval(resolve variableResolver) (bool, error) {
	if c == nil {
		return true, nil
	}

	leftVal, err := c.left.resolve(resolve)
	if err != nil {
		return false, err
	}

	if c.op == "" {
		return truthy(leftVal), nil
	}

	rightVal, err := c.right.resolve(resolve)
	if err != nil {
		return false, err
	}

	if c.op.numeric() {
		leftNum, ok := asNumber(leftVal)
		if !ok {
			return false, core.ValidationErrorf("operand %v is not numeric", leftVal)
		}
		rightNum, ok := asNumber(rightVal)
		if !ok {
			return false, core.ValidationErrorf("operand %v is not numeric", rightVal)
		}
		switch c.op {
		case opGe:
			return leftNum >= rightNum, nil
		case opLe:
			return leftNum <= rightNum, nil
		case opGt:
			return leftNum > rightNum, nil
		default:
			return leftNum < rightNum, nil
		}
	}

	equal := valuesEqual(leftVal, rightVal)
	if c.op == opNe {
		return !equal, nil
	}
	return equal, nil
}

// resolve produces the operand's runtime value: a context variable for
// $name tokens (missing variable is a hard error), otherwise the token
// parsed as JSON, falling back to a raw string literal.
func (o operand) resolve(lookup variableResolver) (interface{}, error) {
	if o.variable != "" {
		value, ok := lookup(o.variable)
		if !ok {
			return nil, core.NotFoundErrorf("variable %q not found", o.variable)
		}
		return value, nil
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(o.raw), &parsed); err == nil {
		return parsed, nil
	}
	return o.raw, nil
}

// truthy implements the boolean-variable form: JSON true or the string
// "true"; anything else is false.
func truthy(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// valuesEqual compares two resolved values. Numbers of different Go
// types compare by value, but a numeric string never equals a number:
// only the relational operators parse strings as numbers.
func valuesEqual(a, b interface{}) bool {
	if an, ok := asStrictNumber(a); ok {
		if bn, ok := asStrictNumber(b); ok {
			return an == bn
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// asStrictNumber converts actual number types only, never strings.
func asStrictNumber(value interface{}) (float64, bool) {
	if _, isString := value.(string); isString {
		return 0, false
	}
	return asNumber(value)
}

// asNumber converts a JSON number or numeric string to float64.
func asNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
