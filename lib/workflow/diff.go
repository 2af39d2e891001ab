package workflow

import (
	"reflect"
	"sort"
)

// ChangedFields computes the sorted list of field names whose values differ
// between two snapshots. Comparison is strict: nil versus empty string is a
// difference. Pure over its inputs so it can be tested without a transaction.
func ChangedFields(previous, current map[string]interface{}) []string {
	changed := []string{}

	seen := map[string]bool{}
	for name := range previous {
		seen[name] = true
	}
	for name := range current {
		seen[name] = true
	}

	for name := range seen {
		if !reflect.DeepEqual(normalize(previous[name]), normalize(current[name])) {
			changed = append(changed, name)
		}
	}

	sort.Strings(changed)
	return changed
}

// normalize dereferences pointer values so *string fields compare by value,
// with nil pointers collapsing to untyped nil
func normalize(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return rv.Elem().Interface()
	}
	return v
}
