package catalog

import (
	"sort"
	"strings"
)

// RequiredRoles returns the role definition ids listed under
// then.details.roleDefinitionIds in a policy rule. Keys are matched without
// regard to case since definitions in the wild use both "then" and "Then".
func RequiredRoles(policyRule any) []string {
	rule, ok := asMap(policyRule)
	if !ok {
		return nil
	}
	then, ok := lookup(rule, "then")
	if !ok {
		return nil
	}
	details, ok := lookup(then, "details")
	if !ok {
		return nil
	}
	value, ok := field(details, "roleDefinitionIds")
	if !ok {
		return nil
	}
	return stringSlice(value)
}

func lookup(m map[string]any, key string) (map[string]any, bool) {
	v, ok := field(m, key)
	if !ok {
		return nil, false
	}
	return asMap(v)
}

// field returns m[key], or else the value of the first key, in sorted
// order, that equals key without regard to case.
func field(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	var keys []string
	for k := range m {
		if strings.EqualFold(k, key) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, false
	}
	sort.Strings(keys)
	return m[keys[0]], true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case *map[string]any:
		if m == nil {
			return nil, false
		}
		return *m, true
	}
	return nil, false
}

func stringSlice(v any) []string {
	var out []string
	switch items := v.(type) {
	case []any:
		for _, item := range items {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case *string:
				if s != nil {
					out = append(out, *s)
				}
			}
		}
	case []string:
		out = append(out, items...)
	case []*string:
		for _, s := range items {
			if s != nil {
				out = append(out, *s)
			}
		}
	}
	return out
}
