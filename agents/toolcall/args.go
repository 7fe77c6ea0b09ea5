/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolcall

import (
	"fmt"
	"maps"

	"chainguard.dev/smartfix/agents/agenttrace"
)

// Arg extracts a typed argument. JSON numbers arrive as float64 and are
// converted to the requested integer type.
func Arg[T any](args map[string]any, name string) (T, bool, error) {
	var zero T
	value, exists := args[name]
	if !exists {
		return zero, false, nil
	}
	if v, ok := value.(T); ok {
		return v, true, nil
	}
	if f, ok := value.(float64); ok {
		switch any(zero).(type) {
		case int:
			return any(int(f)).(T), true, nil
		case int32:
			return any(int32(f)).(T), true, nil
		case int64:
			return any(int64(f)).(T), true, nil
		}
	}
	return zero, true, fmt.Errorf("%s parameter must be of type %T, got %T", name, zero, value)
}

// Param extracts a required argument. On failure it records a bad tool call
// on trace and returns the error result to send back to the model.
func Param[T any](call Call, trace *agenttrace.Trace, name string) (T, map[string]any) {
	v, exists, err := Arg[T](call.Args, name)
	if err == nil && !exists {
		err = fmt.Errorf("%s parameter is required", name)
	}
	if err != nil {
		trace.BadToolCall(call.ID, call.Name, call.Args, err)
		return v, Error("%s", err)
	}
	return v, nil
}

// OptionalParam extracts an optional argument, returning def when absent.
func OptionalParam[T any](call Call, name string, def T) (T, map[string]any) {
	v, exists, err := Arg[T](call.Args, name)
	if err != nil {
		return v, Error("%s", err)
	}
	if !exists {
		return def, nil
	}
	return v, nil
}

// Error builds an error result.
func Error(format string, args ...any) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, args...)}
}

// ErrorWithContext builds an error result with extra fields.
func ErrorWithContext(err error, context map[string]any) map[string]any {
	response := map[string]any{"error": err.Error()}
	maps.Copy(response, context)
	return response
}
