package routing

import (
	"fmt"
	"strings"

	"github.com/grafana/regexp"

	"github.com/dmitrymomot/channeled/core/channel"
	"github.com/dmitrymomot/channeled/core/consumer"
)

// FieldFilter guards a route with a regular expression over one message
// field. Build filters with Filter or Path.
type FieldFilter struct {
	field   string
	pattern string
	re      *regexp.Regexp
}

// Filter creates a filter matching the named message field against a regular
// expression. Named capture groups are extracted into consumer parameters.
// Panics if the pattern does not compile.
func Filter(field, pattern string) FieldFilter {
	re, err := regexp.Compile(pattern)
	if err != nil {
		panic(fmt.Sprintf("routing: invalid filter pattern %q for field %q: %v", pattern, field, err))
	}
	return FieldFilter{field: field, pattern: pattern, re: re}
}

// Path is shorthand for a filter on the message path field.
func Path(pattern string) FieldFilter {
	return Filter(channel.FieldPath, pattern)
}

// Field returns the message field this filter applies to.
func (f FieldFilter) Field() string { return f.field }

// Pattern returns the source pattern string.
func (f FieldFilter) Pattern() string { return f.pattern }

// match tests the filter against a message and collects named captures.
// A message lacking the field never matches.
func (f FieldFilter) match(msg channel.Message, params consumer.Params) bool {
	value, ok := msg.Fields[f.field]
	if !ok {
		return false
	}

	m := f.re.FindStringSubmatch(value)
	if m == nil {
		return false
	}

	for i, name := range f.re.SubexpNames() {
		if i > 0 && name != "" {
			params[name] = m[i]
		}
	}
	return true
}

// fuse prepends a prefix filter onto this filter, concatenating the two
// patterns on the same field. The nested pattern's "^" anchor is dropped so
// it continues where the prefix matched. Used by Include.
func (f FieldFilter) fuse(prefix FieldFilter) FieldFilter {
	nested := strings.TrimPrefix(f.pattern, "^")
	return Filter(f.field, prefix.pattern+nested)
}
