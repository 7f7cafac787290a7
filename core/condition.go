package core

import (
	"fmt"
	"strconv"
	"strings"

	"argus/util"
)

// Operator is a condition comparison operator. Operators are validated when
// a rule is loaded; an unknown operator rejects the rule instead of silently
// never matching.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpRegex       Operator = "regex"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
)

// IsValid checks if the operator is one of the supported set
func (o Operator) IsValid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpNotContains,
		OpGreaterThan, OpLessThan, OpRegex, OpIn, OpNotIn:
		return true
	default:
		return false
	}
}

// Condition is a single {field, operator, value} triple. Field supports
// dotted paths into raw data and enrichment namespaces.
type Condition struct {
	Field    string      `json:"field" bson:"field" yaml:"field"`
	Operator Operator    `json:"operator" bson:"operator" yaml:"operator"`
	Value    interface{} `json:"value" bson:"value" yaml:"value"`

	regex *util.SafeRegex
}

// Validate checks the condition and precompiles regex patterns. Called at
// rule load time so evaluation never sees a malformed condition.
func (c *Condition) Validate() error {
	if strings.TrimSpace(c.Field) == "" {
		return fmt.Errorf("condition field cannot be empty")
	}
	if !c.Operator.IsValid() {
		return fmt.Errorf("unknown operator %q for field %q", c.Operator, c.Field)
	}

	switch c.Operator {
	case OpRegex:
		pattern, ok := c.Value.(string)
		if !ok {
			return fmt.Errorf("regex condition on field %q requires a string value", c.Field)
		}
		re, err := util.CompileSafe(pattern)
		if err != nil {
			return fmt.Errorf("invalid regex for field %q: %w", c.Field, err)
		}
		c.regex = re
	case OpIn, OpNotIn:
		if _, ok := valueList(c.Value); !ok {
			return fmt.Errorf("%s condition on field %q requires a list value", c.Operator, c.Field)
		}
	}
	return nil
}

// Evaluate applies the condition to an event. A nil field value only
// satisfies the negated operators.
func (c *Condition) Evaluate(event *SecurityEvent) bool {
	fieldValue := event.Field(c.Field)
	if fieldValue == nil {
		return c.Operator == OpNotEquals || c.Operator == OpNotContains || c.Operator == OpNotIn
	}

	switch c.Operator {
	case OpEquals:
		return looseEqual(fieldValue, c.Value)
	case OpNotEquals:
		return !looseEqual(fieldValue, c.Value)
	case OpContains:
		return stringContains(fieldValue, c.Value)
	case OpNotContains:
		return !stringContains(fieldValue, c.Value)
	case OpGreaterThan:
		return compareNumbers(fieldValue, c.Value, func(a, b float64) bool { return a > b })
	case OpLessThan:
		return compareNumbers(fieldValue, c.Value, func(a, b float64) bool { return a < b })
	case OpRegex:
		str, ok := fieldValue.(string)
		if !ok {
			return false
		}
		if c.regex != nil {
			matched, err := c.regex.MatchString(str)
			return err == nil && matched
		}
		// Conditions built without Validate (ad hoc queries) go through the
		// shared compiled-pattern cache instead.
		pattern, ok := c.Value.(string)
		if !ok {
			return false
		}
		matched, err := util.MatchCached(pattern, str)
		return err == nil && matched
	case OpIn:
		return valueInList(fieldValue, c.Value)
	case OpNotIn:
		return !valueInList(fieldValue, c.Value)
	}
	return false
}

// looseEqual compares values across the JSON/YAML type boundary: numbers
// compare numerically regardless of int/float decoding, everything else
// compares via its string form.
func looseEqual(a, b interface{}) bool {
	if fa, aok := toFloat(a); aok {
		if fb, bok := toFloat(b); bok {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func stringContains(field, value interface{}) bool {
	fs, ok := field.(string)
	if !ok {
		return false
	}
	vs, ok := value.(string)
	if !ok {
		return false
	}
	return strings.Contains(fs, vs)
}

func compareNumbers(a, b interface{}, cmp func(float64, float64) bool) bool {
	fa, ok := toFloat(a)
	if !ok {
		return false
	}
	fb, ok := toFloat(b)
	if !ok {
		return false
	}
	return cmp(fa, fb)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func valueList(v interface{}) ([]interface{}, bool) {
	switch list := v.(type) {
	case []interface{}:
		return list, true
	case []string:
		out := make([]interface{}, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func valueInList(field, value interface{}) bool {
	list, ok := valueList(value)
	if !ok {
		return false
	}
	for _, item := range list {
		if looseEqual(field, item) {
			return true
		}
	}
	return false
}
