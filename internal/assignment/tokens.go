package assignment

import (
	"sort"
	"strings"

	"github.com/juju/errors"
)

const subscriptionTokenPrefix = "{subscription:"

// Tokens holds the placeholder values substituted into descriptors.
type Tokens struct {
	Organization  string
	Platform      string
	Region        string
	Environment   string
	Subscriptions map[string]string
}

func (t Tokens) replacer() *strings.Replacer {
	pairs := []string{
		"{organization}", t.Organization,
		"{platform}", t.Platform,
		"{region}", t.Region,
		"{environment}", t.Environment,
	}
	aliases := make([]string, 0, len(t.Subscriptions))
	for alias := range t.Subscriptions {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		pairs = append(pairs, subscriptionTokenPrefix+alias+"}", t.Subscriptions[alias])
	}
	return strings.NewReplacer(pairs...)
}

type substituter struct {
	r *strings.Replacer
}

func (s substituter) str(in string) (string, error) {
	out := s.r.Replace(in)
	if i := strings.Index(out, subscriptionTokenPrefix); i >= 0 {
		end := strings.Index(out[i:], "}")
		token := out[i:]
		if end >= 0 {
			token = out[i : i+end+1]
		}
		return "", errors.NotValidf("unknown subscription alias in %s", token)
	}
	return out, nil
}

func (s substituter) strs(in []string) ([]string, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]string, len(in))
	for i, v := range in {
		sub, err := s.str(v)
		if err != nil {
			return nil, err
		}
		out[i] = sub
	}
	return out, nil
}

// value substitutes tokens in every string nested inside v.
func (s substituter) value(v any) (any, error) {
	switch value := v.(type) {
	case string:
		return s.str(value)
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			sub, err := s.value(item)
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		return out, nil
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			sub, err := s.value(item)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	}
	return v, nil
}
