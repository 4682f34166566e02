package tools

import (
	"fmt"
	"regexp"
	"sync"
)

var (
	patternCacheMu sync.Mutex
	patternCache   = make(map[string]*regexp.Regexp)
)

func compiledPattern(pattern string) (*regexp.Regexp, error) {
	patternCacheMu.Lock()
	defer patternCacheMu.Unlock()
	if re, ok := patternCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache[pattern] = re
	return re, nil
}

// validateArgs enforces required/enum/regex/type against schema, the
// Executor's parameter-validation step ahead of every dispatch.
func validateArgs(schema Schema, args map[string]any) error {
	for name, spec := range schema {
		v, present := args[name]
		if !present {
			if spec.Required {
				return fmt.Errorf("missing required argument %q", name)
			}
			continue
		}
		if err := validateOne(name, spec, v); err != nil {
			return err
		}
	}
	for name := range args {
		if _, known := schema[name]; !known {
			return fmt.Errorf("unknown argument %q", name)
		}
	}
	return nil
}

func validateOne(name string, spec ParamSpec, v any) error {
	switch spec.Type {
	case ParamString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("argument %q must be a string", name)
		}
		if len(spec.Enum) > 0 && !containsString(spec.Enum, s) {
			return fmt.Errorf("argument %q must be one of %v", name, spec.Enum)
		}
		if spec.Pattern != "" {
			re, err := compiledPattern(spec.Pattern)
			if err != nil {
				return fmt.Errorf("argument %q: invalid validation pattern: %w", name, err)
			}
			if !re.MatchString(s) {
				return fmt.Errorf("argument %q does not match the required pattern", name)
			}
		}
	case ParamNumber:
		switch v.(type) {
		case float64, int, int64:
		default:
			return fmt.Errorf("argument %q must be a number", name)
		}
	case ParamBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("argument %q must be a bool", name)
		}
	case ParamArray:
		if _, ok := v.([]any); !ok {
			return fmt.Errorf("argument %q must be an array", name)
		}
	case ParamObject:
		if _, ok := v.(map[string]any); !ok {
			return fmt.Errorf("argument %q must be an object", name)
		}
	}
	return nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
