package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/ilpatch/il"
)

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// parseArgs converts command-line values to the parameter types of a
// static routine.
func parseArgs(m *il.Method, values []string) ([]any, error) {
	if !m.Static {
		return nil, fmt.Errorf("%s is an instance routine; only static routines can be called", m)
	}
	if len(values) != len(m.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", m, len(m.Params), len(values))
	}
	args := make([]any, len(values))
	for i, v := range values {
		a, err := convertArg(v, m.Params[i].Type)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", m.Params[i].Name, err)
		}
		args[i] = a
	}
	return args, nil
}

func convertArg(value string, t *il.Type) (any, error) {
	switch t.Kind {
	case il.KindInt32:
		v, err := strconv.ParseInt(value, 0, 32)
		if err != nil {
			return nil, err
		}
		return int32(v), nil
	case il.KindInt64:
		return strconv.ParseInt(value, 0, 64)
	case il.KindFloat64:
		return strconv.ParseFloat(value, 64)
	case il.KindBool:
		return strconv.ParseBool(value)
	case il.KindString:
		if value == "null" {
			return nil, nil
		}
		if uq, err := strconv.Unquote(value); err == nil {
			return uq, nil
		}
		return value, nil
	}
	if value == "null" && !t.IsValueType() {
		return nil, nil
	}
	return nil, fmt.Errorf("cannot pass %s from the command line", t)
}
