// Package expressions reads pagination cursors and record lists out of decoded
// provider responses with JMESPath.
package expressions

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/jmespath/go-jmespath"
)

// Evaluator runs JMESPath expressions. Compiled expressions are cached, so one
// Evaluator is shared by every adapter.
type Evaluator struct {
	compiled sync.Map // expression -> *jmespath.JMESPath
}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Decode unmarshals a JSON body into the generic form JMESPath searches.
func Decode(body []byte) (any, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return data, nil
}

// Validate reports whether expression compiles
func (e *Evaluator) Validate(expression string) error {
	_, err := e.compile(expression)
	return err
}

// Evaluate searches data with expression
func (e *Evaluator) Evaluate(expression string, data any) (any, error) {
	compiled, err := e.compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}
	result, err := compiled.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

// EvaluateString returns the result as a string. Missing values and JSON null give "".
// Whole numbers print without a decimal point so numeric ids and offsets survive.
func (e *Evaluator) EvaluateString(expression string, data any) (string, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return "", err
	}
	return asString(result), nil
}

// EvaluateBool applies JMESPath truthiness: null, false, "" and empty collections are false.
func (e *Evaluator) EvaluateBool(expression string, data any) (bool, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return false, err
	}
	return truthy(result), nil
}

// EvaluateInt returns a numeric result, or a string holding one, as an int. Missing gives 0.
func (e *Evaluator) EvaluateInt(expression string, data any) (int, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return 0, err
	}

	switch v := result.(type) {
	case nil:
		return 0, nil
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("expression %q: %q is not an integer", expression, v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expression %q: cannot convert %T to int", expression, result)
}

// EvaluateSlice returns the result as a slice. A single value is wrapped and null gives nil.
func (e *Evaluator) EvaluateSlice(expression string, data any) ([]any, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil || result == nil {
		return nil, err
	}
	if slice, ok := result.([]any); ok {
		return slice, nil
	}
	return []any{result}, nil
}

func (e *Evaluator) compile(expression string) (*jmespath.JMESPath, error) {
	if cached, ok := e.compiled.Load(expression); ok {
		return cached.(*jmespath.JMESPath), nil
	}
	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}
	actual, _ := e.compiled.LoadOrStore(expression, compiled)
	return actual.(*jmespath.JMESPath), nil
}

func asString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}
	return true
}
