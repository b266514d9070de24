package store

import "fmt"

// Op is a filter comparison operator
type Op string

const (
	OpEqual    Op = "=="
	OpNotEqual Op = "!="
)

// Filter restricts a query or subscription to documents whose field compares
// to Value. Comparison uses the textual form of both sides.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds a filter
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Match reports whether the document satisfies the filter.
// A missing field never equals anything.
func (f Filter) Match(doc Document) bool {
	v, ok := doc[f.Field]
	equal := ok && v != nil && textOf(v) == textOf(f.Value)
	switch f.Op {
	case OpNotEqual:
		return !equal
	default:
		return equal
	}
}

func (f Filter) validate() error {
	if f.Field == "" {
		return fmt.Errorf("%w: field is required", ErrInvalidFilter)
	}
	switch f.Op {
	case OpEqual, OpNotEqual:
		return nil
	}
	return fmt.Errorf("%w: unsupported operator %q", ErrInvalidFilter, f.Op)
}

func matchAll(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if !f.Match(doc) {
			return false
		}
	}
	return true
}

func validateFilters(filters []Filter) error {
	for _, f := range filters {
		if err := f.validate(); err != nil {
			return err
		}
	}
	return nil
}

func textOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
