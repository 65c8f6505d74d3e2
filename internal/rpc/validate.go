package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

// decodeInput turns raw JSON into In and validates it. Every problem found is reported in a
// single VALIDATION error.
func decodeInput[In any](raw json.RawMessage) (In, error) {
	var in In
	if _, ok := any(in).(NoInput); ok {
		return in, nil
	}

	var fields []FieldError
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if !json.Valid(trimmed) {
			return in, ValidationFailed([]FieldError{{Message: "input is not valid JSON"}})
		}
		trimmed, fields = stripTypeErrors(reflect.TypeOf(&in).Elem(), trimmed, "")
		if err := json.Unmarshal(trimmed, &in); err != nil {
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &typeErr) {
				return in, ValidationFailed([]FieldError{{Message: "input is not valid JSON"}})
			}
			fields = append(fields, typeFieldError("", typeErr))
			if typeErr.Field == "" {
				return in, ValidationFailed(fields)
			}
		}
	}

	fields = append(fields, validateStruct(in, fields)...)
	if len(fields) > 0 {
		return in, ValidationFailed(fields)
	}
	return in, nil
}

// stripTypeErrors removes every object member of raw that cannot be decoded into t and reports
// one field error per removed member. Members are checked one at a time since encoding/json
// stops at the first mismatch.
func stripTypeErrors(t reflect.Type, raw json.RawMessage, prefix string) (json.RawMessage, []FieldError) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	var obj map[string]json.RawMessage
	if t.Kind() != reflect.Struct || json.Unmarshal(raw, &obj) != nil || obj == nil {
		return raw, nil
	}

	var fields []FieldError
	for _, key := range slices.Sorted(maps.Keys(obj)) {
		value := obj[key]
		single, err := json.Marshal(map[string]json.RawMessage{key: value})
		if err != nil {
			continue
		}
		var typeErr *json.UnmarshalTypeError
		if !errors.As(json.Unmarshal(single, reflect.New(t).Interface()), &typeErr) {
			continue
		}
		if f, ok := jsonField(t, key); ok && strings.Contains(typeErr.Field, ".") {
			cleaned, nested := stripTypeErrors(f.Type, value, joinField(prefix, jsonName(f)))
			if len(nested) > 0 {
				obj[key] = cleaned
				fields = append(fields, nested...)
				continue
			}
		}
		fields = append(fields, typeFieldError(prefix, typeErr))
		delete(obj, key)
	}
	if len(fields) == 0 {
		return raw, nil
	}
	cleaned, err := json.Marshal(obj)
	if err != nil {
		return raw, fields
	}
	return cleaned, fields
}

// jsonField finds the struct field encoding/json would decode key into.
func jsonField(t reflect.Type, key string) (reflect.StructField, bool) {
	var fold reflect.StructField
	found := false
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || (f.Anonymous && f.Tag.Get("json") == "") {
			continue
		}
		name := jsonName(f)
		if name == key {
			return f, true
		}
		if !found && strings.EqualFold(name, key) {
			fold, found = f, true
		}
	}
	return fold, found
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		return f.Name
	}
	return name
}

func joinField(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func typeFieldError(prefix string, typeErr *json.UnmarshalTypeError) FieldError {
	field := typeErr.Field
	if prefix != "" {
		field = joinField(prefix, field)
	}
	return FieldError{
		Field:   field,
		Message: fmt.Sprintf("expected %s, received %s", jsonKind(typeErr.Type), typeErr.Value),
	}
}

func validateStruct(in any, reported []FieldError) []FieldError {
	t := reflect.TypeOf(in)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	if v := reflect.ValueOf(in); v.Kind() == reflect.Pointer && v.IsNil() {
		return []FieldError{{Message: "input is required"}}
	}

	seen := make(map[string]bool, len(reported))
	for _, f := range reported {
		seen[f.Field] = true
	}

	var verrs validator.ValidationErrors
	if err := validate.Struct(in); !errors.As(err, &verrs) {
		return nil
	}
	var fields []FieldError
	for _, fe := range verrs {
		path := fieldPath(fe.Namespace())
		if seen[path] {
			continue
		}
		seen[path] = true
		fields = append(fields, FieldError{Field: path, Message: fieldMessage(fe)})
	}
	return fields
}

// fieldPath drops the leading struct type name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}

func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Struct, reflect.Map:
		return "object"
	}
	return t.String()
}
