package tools

import (
	"fmt"
	"math"
	"reflect"
)

// ValidateParams checks args against a JSON-schema-shaped parameter spec:
// required-key presence, primitive type matching, enum membership, and the
// same recursively for nested object and array-of-object schemas.
// All violations are collected, not just the first.
func ValidateParams(schema map[string]any, args map[string]any) []string {
	return validateObject(schema, args, "")
}

func validateObject(schema map[string]any, args map[string]any, prefix string) []string {
	var violations []string

	if required, ok := schema["required"].([]string); ok {
		for _, key := range required {
			if _, present := args[key]; !present {
				violations = append(violations, fmt.Sprintf("missing required parameter %q", prefix+key))
			}
		}
	} else if required, ok := schema["required"].([]any); ok {
		for _, k := range required {
			key, _ := k.(string)
			if _, present := args[key]; key != "" && !present {
				violations = append(violations, fmt.Sprintf("missing required parameter %q", prefix+key))
			}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for key, rawSpec := range properties {
		value, present := args[key]
		if !present || value == nil {
			continue
		}
		spec, ok := rawSpec.(map[string]any)
		if !ok {
			continue
		}
		violations = append(violations, validateValue(spec, value, prefix+key)...)
	}

	return violations
}

func validateValue(spec map[string]any, value any, path string) []string {
	var violations []string

	wantType, _ := spec["type"].(string)
	if wantType != "" && !matchesType(wantType, value) {
		violations = append(violations,
			fmt.Sprintf("parameter %q must be of type %s, got %s", path, wantType, jsonTypeName(value)))
		return violations
	}

	if enum, ok := spec["enum"]; ok {
		if !enumContains(enum, value) {
			violations = append(violations, fmt.Sprintf("parameter %q is not one of the allowed values", path))
		}
	}

	switch wantType {
	case "object":
		if nested, ok := value.(map[string]any); ok {
			violations = append(violations, validateObject(spec, nested, path+".")...)
		}
	case "array":
		items, ok := spec["items"].(map[string]any)
		if !ok {
			break
		}
		if list, ok := value.([]any); ok {
			for i, item := range list {
				violations = append(violations, validateValue(items, item, fmt.Sprintf("%s[%d]", path, i))...)
			}
		}
	}

	return violations
}

func matchesType(wantType string, value any) bool {
	switch wantType {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			// JSON numbers decode as float64; accept integral values
			return v == math.Trunc(v)
		}
		return false
	case "number":
		switch value.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case "array":
		if value == nil {
			return false
		}
		return reflect.TypeOf(value).Kind() == reflect.Slice
	case "object":
		_, ok := value.(map[string]any)
		return ok
	}
	return true
}

func enumContains(enum any, value any) bool {
	switch options := enum.(type) {
	case []string:
		s, ok := value.(string)
		if !ok {
			return false
		}
		for _, opt := range options {
			if opt == s {
				return true
			}
		}
	case []any:
		for _, opt := range options {
			if reflect.DeepEqual(opt, value) {
				return true
			}
		}
	}
	return false
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64:
		return "number"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	}
	if reflect.TypeOf(value).Kind() == reflect.Slice {
		return "array"
	}
	return reflect.TypeOf(value).String()
}
