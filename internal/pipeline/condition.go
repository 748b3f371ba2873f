package pipeline

import (
	"reflect"

	"github.com/nao1215/saxsflow/internal/model"
)

// Condition is a predicate over metadata. Chaining policies evaluate it
// against the metadata a stage submits with its request.
type Condition interface {
	Evaluate(md model.Metadata) bool
}

// TrueCondition always holds.
type TrueCondition struct{}

// Evaluate implements Condition.
func (TrueCondition) Evaluate(model.Metadata) bool { return true }

// KeyPresentCondition holds when Key is present with a non-empty value.
// Nil, empty strings, empty slices and maps, and values whose Empty
// method reports true all count as empty.
type KeyPresentCondition struct {
	Key string
}

// Evaluate implements Condition.
func (c KeyPresentCondition) Evaluate(md model.Metadata) bool {
	v, ok := md[c.Key]
	if !ok {
		return false
	}
	return !isEmpty(v)
}

// KeyEqualsCondition holds when Key is present and equal to Value.
// Numeric values of different types are compared as float64.
type KeyEqualsCondition struct {
	Key   string
	Value any
}

// Evaluate implements Condition.
func (c KeyEqualsCondition) Evaluate(md model.Metadata) bool {
	v, ok := md[c.Key]
	if !ok {
		return false
	}
	a, aNum := toFloat(v)
	b, bNum := toFloat(c.Value)
	if aNum && bNum {
		return a == b
	}
	return reflect.DeepEqual(v, c.Value)
}

// ThresholdCondition holds when the numeric value under Key is strictly
// greater than Threshold. A missing key reads as zero; a non-numeric
// value never holds.
type ThresholdCondition struct {
	Key       string
	Threshold float64
}

// Evaluate implements Condition.
func (c ThresholdCondition) Evaluate(md model.Metadata) bool {
	v, ok := md[c.Key]
	if !ok {
		return 0 > c.Threshold
	}
	f, ok := toFloat(v)
	return ok && f > c.Threshold
}

type emptier interface {
	Empty() bool
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if e, ok := v.(emptier); ok {
		return e.Empty()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// toFloat converts any integer or floating-point value, including named
// numeric types, to float64.
func toFloat(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
